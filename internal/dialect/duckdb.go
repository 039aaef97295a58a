package dialect

import "fmt"

type duckdb struct{ base }

func (d duckdb) StringDistanceFunction(m Metric) (string, error) {
	switch m {
	case Levenshtein:
		return "levenshtein", nil
	case DamerauLevenshtein:
		return "damerau_levenshtein", nil
	case Jaro:
		return "jaro_similarity", nil
	case JaroWinkler:
		return "jaro_winkler_similarity", nil
	case Jaccard:
		return "jaccard", nil
	}
	return d.base.StringDistanceFunction(m)
}

func (d duckdb) TryParseDate(column, format string) (string, error) {
	if format == "" {
		format = d.DefaultDateFormat()
	}
	return fmt.Sprintf("try_strptime(%s, %s)", column, quoteLiteral(format)), nil
}

func (d duckdb) regexExtractRaw(column, pattern string, group int) (string, error) {
	return fmt.Sprintf("regexp_extract(%s, %s, %d)", column, quoteLiteral(pattern), group), nil
}

func (d duckdb) RandomSampleSQL(proportion, _ float64, seed *int64) (string, error) {
	if isFullSample(proportion) {
		return "", nil
	}
	percent := formatPercent(proportion)
	if seed != nil {
		return fmt.Sprintf("USING SAMPLE bernoulli(%s%%) REPEATABLE(%d)", percent, *seed), nil
	}
	return fmt.Sprintf("USING SAMPLE %s%% (bernoulli)", percent), nil
}

func (d duckdb) ExplodeArraysSQL(table string, explode, retain []string) (string, error) {
	return explodeArrays(table, explode, retain, "unnest"), nil
}

// ArrayIntersectSQL counts the overlap as the sum of both unique sizes minus
// the size of the unique union.
func (d duckdb) ArrayIntersectSQL(left, right string, threshold int) (string, error) {
	return fmt.Sprintf(
		"list_unique(%s) + list_unique(%s) - list_unique(list_concat(%s, %s)) >= %d",
		left, right, left, right, threshold,
	), nil
}

func (d duckdb) InfinityExpression() (string, error) {
	return "cast('infinity' as float8)", nil
}
