// Package comparison builds comparison levels from column expressions for a
// bound dialect, and compiles the comparison vector SQL over blocked pairs.
package comparison

import (
	"fmt"
	"strconv"

	"duck-link/internal/colexpr"
	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// Level produces one comparison level once the dialect is known.
type Level interface {
	Build(d dialect.Dialect) (*settings.ComparisonLevel, error)
}

// LevelFunc adapts a function to Level.
type LevelFunc func(d dialect.Dialect) (*settings.ComparisonLevel, error)

// Build implements Level.
func (f LevelFunc) Build(d dialect.Dialect) (*settings.ComparisonLevel, error) { return f(d) }

// sides resolves the left and right forms of col under d.
func sides(col colexpr.ColumnExpression, d dialect.Dialect) (string, string, error) {
	bound := col.Bind(d)
	l, err := bound.NameL()
	if err != nil {
		return "", "", err
	}
	r, err := bound.NameR()
	if err != nil {
		return "", "", err
	}
	return l, r, nil
}

// NullLevel matches pairs where either side is NULL.
func NullLevel(col colexpr.ColumnExpression) Level {
	return LevelFunc(func(d dialect.Dialect) (*settings.ComparisonLevel, error) {
		l, r, err := sides(col, d)
		if err != nil {
			return nil, err
		}
		return &settings.ComparisonLevel{
			SQLCondition: fmt.Sprintf("%s IS NULL OR %s IS NULL", l, r),
			Label:        col.Label() + " is NULL",
			IsNullLevel:  true,
		}, nil
	})
}

// ExactMatchLevel matches pairs with equal values. With tfAdjust the level is
// weighted by the term frequency of the column, which must then be a bare column.
func ExactMatchLevel(col colexpr.ColumnExpression, tfAdjust bool) Level {
	return LevelFunc(func(d dialect.Dialect) (*settings.ComparisonLevel, error) {
		l, r, err := sides(col, d)
		if err != nil {
			return nil, err
		}
		level := &settings.ComparisonLevel{
			SQLCondition: fmt.Sprintf("%s = %s", l, r),
			Label:        "Exact match on " + col.Label(),
		}
		if col.IsPureColumn() {
			cols, err := col.InputColumns()
			if err != nil {
				return nil, err
			}
			level.ExactMatchColumns = cols
		}
		if tfAdjust {
			if !col.IsPureColumn() {
				return nil, domain.ErrValidation("term frequency adjustment needs a bare column, got %q", col.Raw())
			}
			level.TFAdjustmentColumn = level.ExactMatchColumns[0]
			level.TFAdjustmentWeight = 1
		}
		return level, nil
	})
}

// StringDistanceLevel compares with a string metric. Distance metrics
// (levenshtein, damerau_levenshtein) match at or below threshold; similarity
// metrics match at or above it.
func StringDistanceLevel(col colexpr.ColumnExpression, metric dialect.Metric, threshold float64) Level {
	return LevelFunc(func(d dialect.Dialect) (*settings.ComparisonLevel, error) {
		fn, err := d.StringDistanceFunction(metric)
		if err != nil {
			return nil, err
		}
		l, r, err := sides(col, d)
		if err != nil {
			return nil, err
		}
		op := ">="
		if metric == dialect.Levenshtein || metric == dialect.DamerauLevenshtein {
			op = "<="
		}
		t := strconv.FormatFloat(threshold, 'f', -1, 64)
		return &settings.ComparisonLevel{
			SQLCondition: fmt.Sprintf("%s(%s, %s) %s %s", fn, l, r, op, t),
			Label:        fmt.Sprintf("%s %s %s %s", metricLabel(metric), col.Label(), op, t),
		}, nil
	})
}

func metricLabel(m dialect.Metric) string {
	switch m {
	case dialect.Levenshtein:
		return "Levenshtein distance of"
	case dialect.DamerauLevenshtein:
		return "Damerau-Levenshtein distance of"
	case dialect.Jaro:
		return "Jaro similarity of"
	case dialect.JaroWinkler:
		return "Jaro-Winkler similarity of"
	case dialect.Jaccard:
		return "Jaccard similarity of"
	}
	return string(m) + " of"
}

// ArrayIntersectLevel matches pairs whose arrays share at least minIntersection elements.
func ArrayIntersectLevel(col colexpr.ColumnExpression, minIntersection int) Level {
	return LevelFunc(func(d dialect.Dialect) (*settings.ComparisonLevel, error) {
		l, r, err := sides(col, d)
		if err != nil {
			return nil, err
		}
		sql, err := d.ArrayIntersectSQL(l, r, minIntersection)
		if err != nil {
			return nil, err
		}
		return &settings.ComparisonLevel{
			SQLCondition: sql,
			Label:        fmt.Sprintf("Array intersection size >= %d", minIntersection),
		}, nil
	})
}

// CustomLevel uses a caller supplied condition over _l / _r columns.
func CustomLevel(sqlCondition, label string) Level {
	return LevelFunc(func(dialect.Dialect) (*settings.ComparisonLevel, error) {
		return &settings.ComparisonLevel{SQLCondition: sqlCondition, Label: label}, nil
	})
}

// ElseLevel catches every pair not matched by an earlier level.
func ElseLevel() Level {
	return LevelFunc(func(dialect.Dialect) (*settings.ComparisonLevel, error) {
		return &settings.ComparisonLevel{SQLCondition: "ELSE", Label: "All other comparisons", IsElseLevel: true}, nil
	})
}
