package dialect

import (
	"fmt"

	"duck-link/internal/domain"
)

type postgres struct{ base }

func (p postgres) StringDistanceFunction(m Metric) (string, error) {
	if m == Levenshtein {
		return "levenshtein", nil
	}
	return p.base.StringDistanceFunction(m)
}

func (p postgres) Substring(sql string, start, length int) string {
	return fmt.Sprintf("SUBSTRING(%s FROM %d FOR %d)", sql, start, length)
}

func (p postgres) DefaultDateFormat() string { return "YYYY-MM-DD" }

func (p postgres) TryParseDate(column, format string) (string, error) {
	if format == "" {
		format = p.DefaultDateFormat()
	}
	return fmt.Sprintf("try_cast_date(%s, %s)", column, quoteLiteral(format)), nil
}

// regexExtractRaw relies on substring(... from pattern) returning the first
// group. Group 0 wraps the whole pattern so the full match becomes that group.
func (p postgres) regexExtractRaw(column, pattern string, group int) (string, error) {
	if group > 1 {
		return "", domain.ErrUnsupportedOption("capture_group", p.name,
			"capture groups greater than 1 are not supported, use a custom SQL expression")
	}
	if group == 0 {
		pattern = "(" + pattern + ")"
	}
	return fmt.Sprintf("substring(%s from %s)", column, quoteLiteral(pattern)), nil
}

func (p postgres) ArrayIntersectSQL(left, right string, threshold int) (string, error) {
	return fmt.Sprintf("CARDINALITY(ARRAY_INTERSECT(%s, %s)) >= %d", left, right, threshold), nil
}

func (p postgres) RandomSampleSQL(proportion, sampleSize float64, seed *int64) (string, error) {
	return orderByRandomSample(p.name, proportion, sampleSize, seed)
}

func (p postgres) InfinityExpression() (string, error) {
	return "'infinity'", nil
}
