package comparison

import (
	"fmt"
	"strings"

	"duck-link/internal/colexpr"
	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// Spec describes a comparison before a dialect is bound.
type Spec struct {
	OutputColumnName string
	Description      string
	Levels           []Level
}

// New creates a comparison spec.
func New(outputColumnName string, levels ...Level) Spec {
	return Spec{OutputColumnName: outputColumnName, Levels: levels}
}

// Build compiles every level for d and assigns comparison vector values: -1
// for the null level and a countdown to 0 for the rest.
func (s Spec) Build(d dialect.Dialect) (*settings.Comparison, error) {
	c := &settings.Comparison{OutputColumnName: s.OutputColumnName, Description: s.Description}
	for i, lc := range s.Levels {
		level, err := lc.Build(d)
		if err != nil {
			return nil, fmt.Errorf("comparison %q level %d: %w", s.OutputColumnName, i, err)
		}
		c.Levels = append(c.Levels, level)
	}

	next := len(c.LevelsExcludingNull()) - 1
	for _, l := range c.Levels {
		if l.IsNullLevel {
			l.ComparisonVectorValue = -1
			continue
		}
		l.ComparisonVectorValue = next
		next--
	}
	if c.Description == "" {
		c.Description = describe(c)
	}
	return c, nil
}

func describe(c *settings.Comparison) string {
	labels := make([]string, 0, len(c.Levels))
	for _, l := range c.Levels {
		labels = append(labels, l.Label)
	}
	return strings.Join(labels, " vs. ")
}

// ExactMatch is the null / exact / else comparison on col.
func ExactMatch(col colexpr.ColumnExpression) Spec {
	return New(col.OutputColumnName(), NullLevel(col), ExactMatchLevel(col, false), ElseLevel())
}

// AtThresholds is the null / exact / metric-at-each-threshold / else comparison
// on col. Thresholds are applied in the order given.
func AtThresholds(col colexpr.ColumnExpression, metric dialect.Metric, thresholds ...float64) Spec {
	levels := []Level{NullLevel(col), ExactMatchLevel(col, false)}
	for _, t := range thresholds {
		levels = append(levels, StringDistanceLevel(col, metric, t))
	}
	levels = append(levels, ElseLevel())
	return New(col.OutputColumnName(), levels...)
}

// BuildAll compiles specs for d.
func BuildAll(d dialect.Dialect, specs ...Spec) ([]*settings.Comparison, error) {
	out := make([]*settings.Comparison, 0, len(specs))
	for _, s := range specs {
		c, err := s.Build(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Table names used by the comparison vector stage.
const (
	BlockedTable           = "__splink__df_blocked"
	ComparisonVectorsTable = "__splink__df_comparison_vectors"
)

// VectorsSQL selects one gamma column per comparison (plus ids and retained
// columns) from the blocked pairs table.
func VectorsSQL(s *settings.Settings) (domain.SQLStep, error) {
	cols, err := s.ColumnsToSelectForComparisonVectors()
	if err != nil {
		return domain.SQLStep{}, err
	}
	return domain.SQLStep{
		SQL:             "select " + strings.Join(cols, ", ") + " from " + BlockedTable,
		OutputTableName: ComparisonVectorsTable,
	}, nil
}

// ParseMetric maps a configuration name to a metric.
func ParseMetric(name string) (dialect.Metric, error) {
	switch m := dialect.Metric(strings.ToLower(name)); m {
	case dialect.Levenshtein, dialect.DamerauLevenshtein, dialect.Jaro, dialect.JaroWinkler, dialect.Jaccard:
		return m, nil
	}
	return "", domain.ErrValidation("unknown string metric %q", name)
}
