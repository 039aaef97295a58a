package dialect

import (
	"fmt"
	"math"
	"strings"
)

type spark struct{ base }

func (s spark) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (s spark) StringDistanceFunction(m Metric) (string, error) {
	switch m {
	case Levenshtein:
		return "levenshtein", nil
	case DamerauLevenshtein:
		return "damerau_levenshtein", nil
	case Jaro:
		return "jaro_sim", nil
	case JaroWinkler:
		return "jaro_winkler", nil
	case Jaccard:
		return "jaccard", nil
	}
	return s.base.StringDistanceFunction(m)
}

func (s spark) DefaultDateFormat() string { return "yyyy-MM-dd" }

func (s spark) TryParseDate(column, format string) (string, error) {
	if format == "" {
		format = s.DefaultDateFormat()
	}
	return fmt.Sprintf("to_date(%s, %s)", column, quoteLiteral(format)), nil
}

func (s spark) regexExtractRaw(column, pattern string, group int) (string, error) {
	return fmt.Sprintf("regexp_extract(%s, %s, %d)", column, quoteLiteral(pattern), group), nil
}

// RandomSampleSQL uses TABLESAMPLE unless a seed is given, in which case the
// rows are ordered by a seeded rand() and truncated.
func (s spark) RandomSampleSQL(proportion, sampleSize float64, seed *int64) (string, error) {
	if isFullSample(proportion) {
		return "", nil
	}
	if seed != nil {
		return fmt.Sprintf(" ORDER BY rand(%d) LIMIT %d", *seed, int64(math.Round(sampleSize))), nil
	}
	return fmt.Sprintf(" TABLESAMPLE (%s PERCENT) ", formatPercent(proportion)), nil
}

func (s spark) ExplodeArraysSQL(table string, explode, retain []string) (string, error) {
	return explodeArrays(table, explode, retain, "explode"), nil
}

func (s spark) InfinityExpression() (string, error) {
	return "'infinity'", nil
}
