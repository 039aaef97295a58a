package dialect

type athena struct{ base }

func (a athena) ParserName() string { return "presto" }

func (a athena) StringDistanceFunction(m Metric) (string, error) {
	if m == Levenshtein {
		return "levenshtein_distance", nil
	}
	return a.base.StringDistanceFunction(m)
}
