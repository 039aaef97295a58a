package settings

import (
	"fmt"
	"math"
	"strings"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/sqlexpr"
)

// ComparisonLevel is one discrete outcome of a comparison. SQLCondition is
// written against the blocked pairs table, so columns carry _l / _r suffixes.
type ComparisonLevel struct {
	SQLCondition          string
	Label                 string
	IsNullLevel           bool
	IsElseLevel           bool
	ComparisonVectorValue int

	MProbability *float64
	UProbability *float64
	MDescription string
	UDescription string

	// FixedM and FixedU protect a user supplied value from training.
	FixedM bool
	FixedU bool

	TFAdjustmentColumn string
	TFAdjustmentWeight float64

	// ExactMatchColumns is set by exact match levels and names the compared input columns.
	ExactMatchColumns []string
}

// Clone returns a deep copy of the level.
func (l *ComparisonLevel) Clone() *ComparisonLevel {
	out := *l
	out.MProbability = copyFloat(l.MProbability)
	out.UProbability = copyFloat(l.UProbability)
	out.ExactMatchColumns = append([]string(nil), l.ExactMatchColumns...)
	return &out
}

// SetM records a trained m probability and where it came from.
func (l *ComparisonLevel) SetM(p float64, description string) {
	l.MProbability = &p
	l.MDescription = description
}

// SetU records a trained u probability and where it came from.
func (l *ComparisonLevel) SetU(p float64, description string) {
	l.UProbability = &p
	l.UDescription = description
}

// BayesFactor is m/u, available once both are set. A zero u yields +Inf.
func (l *ComparisonLevel) BayesFactor() (float64, bool) {
	if l.IsNullLevel {
		return 1, true
	}
	if l.MProbability == nil || l.UProbability == nil {
		return 0, false
	}
	if *l.UProbability == 0 {
		return math.Inf(1), true
	}
	return *l.MProbability / *l.UProbability, true
}

// Comparison is a named field comparison partitioned into levels. Levels are
// ordered from the null level through the most to the least similar outcome.
type Comparison struct {
	OutputColumnName string
	Description      string
	Levels           []*ComparisonLevel
}

// Clone returns a deep copy of the comparison.
func (c *Comparison) Clone() *Comparison {
	out := *c
	out.Levels = make([]*ComparisonLevel, len(c.Levels))
	for i, l := range c.Levels {
		out.Levels[i] = l.Clone()
	}
	return &out
}

// GammaColumn is the name of the comparison vector column for c.
func (c *Comparison) GammaColumn() string { return "gamma_" + c.OutputColumnName }

// BayesFactorColumn is the name of the per-pair bayes factor column for c.
func (c *Comparison) BayesFactorColumn() string { return "bf_" + c.OutputColumnName }

// LevelsExcludingNull returns the levels that carry parameters.
func (c *Comparison) LevelsExcludingNull() []*ComparisonLevel {
	out := make([]*ComparisonLevel, 0, len(c.Levels))
	for _, l := range c.Levels {
		if !l.IsNullLevel {
			out = append(out, l)
		}
	}
	return out
}

// Level returns the level with the given comparison vector value.
func (c *Comparison) Level(cvv int) (*ComparisonLevel, error) {
	for _, l := range c.Levels {
		if l.ComparisonVectorValue == cvv {
			return l, nil
		}
	}
	return nil, domain.ErrNotFound("comparison %q has no level with comparison vector value %d", c.OutputColumnName, cvv)
}

// InputColumns returns the unsuffixed input columns referenced by the level
// conditions, in order of first use.
func (c *Comparison) InputColumns() ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, l := range c.Levels {
		if l.IsElseLevel {
			continue
		}
		expr, err := sqlexpr.Parse(l.SQLCondition)
		if err != nil {
			return nil, domain.ErrValidation("comparison %q level %q: %v", c.OutputColumnName, l.Label, err)
		}
		for _, ref := range sqlexpr.Columns(expr) {
			name, ok := stripSide(ref.Column)
			if ok && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out, nil
}

// TermFrequencyColumns returns the distinct term frequency columns used by c.
func (c *Comparison) TermFrequencyColumns() []string {
	var out []string
	for _, l := range c.Levels {
		if l.TFAdjustmentColumn != "" && !contains(out, l.TFAdjustmentColumn) {
			out = append(out, l.TFAdjustmentColumn)
		}
	}
	return out
}

// CaseStatement renders the gamma column: a CASE mapping each level condition
// to its comparison vector value.
func (c *Comparison) CaseStatement(quote func(string) string) string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, l := range c.Levels {
		if l.IsElseLevel {
			fmt.Fprintf(&b, " ELSE %d", l.ComparisonVectorValue)
			continue
		}
		fmt.Fprintf(&b, " WHEN %s THEN %d", l.SQLCondition, l.ComparisonVectorValue)
	}
	b.WriteString(" END as ")
	b.WriteString(quote(c.GammaColumn()))
	return b.String()
}

// maxBayesFactor stands in for an infinite factor on engines without an
// infinity literal.
const maxBayesFactor = "cast(1e300 as float8)"

// BayesFactorCaseStatement renders the per-pair bayes factor for c from its
// gamma column. Unknown values and the null level contribute a factor of 1.
// A level never seen among non-matches (u = 0) contributes infinity.
func (c *Comparison) BayesFactorCaseStatement(d dialect.Dialect) string {
	gamma := d.QuoteIdentifier(c.GammaColumn())
	var b strings.Builder
	b.WriteString("CASE")
	for _, l := range c.Levels {
		bf, ok := l.BayesFactor()
		if !ok || l.IsNullLevel {
			continue
		}
		value := fmt.Sprintf("cast(%s as float8)", formatFloat(bf))
		if math.IsInf(bf, 1) {
			value = maxBayesFactor
			if inf, err := d.InfinityExpression(); err == nil {
				value = inf
			}
		}
		fmt.Fprintf(&b, " WHEN %s = %d THEN %s", gamma, l.ComparisonVectorValue, value)
	}
	b.WriteString(" ELSE cast(1 as float8) END as ")
	b.WriteString(d.QuoteIdentifier(c.BayesFactorColumn()))
	return b.String()
}

func (c *Comparison) validate() error {
	if c.OutputColumnName == "" {
		return domain.ErrValidation("comparison has no output column name")
	}
	if len(c.Levels) < 2 {
		return domain.ErrValidation("comparison %q needs at least two levels", c.OutputColumnName)
	}
	seen := make(map[int]bool, len(c.Levels))
	for i, l := range c.Levels {
		if seen[l.ComparisonVectorValue] {
			return domain.ErrValidation("comparison %q has duplicate comparison vector value %d",
				c.OutputColumnName, l.ComparisonVectorValue)
		}
		seen[l.ComparisonVectorValue] = true
		if l.IsElseLevel && i != len(c.Levels)-1 {
			return domain.ErrValidation("comparison %q: else level must be last", c.OutputColumnName)
		}
	}
	return nil
}

func (c *Comparison) notTrainedMessages() []string {
	var msgs []string
	var missingM, missingU bool
	for _, l := range c.LevelsExcludingNull() {
		missingM = missingM || l.MProbability == nil
		missingU = missingU || l.UProbability == nil
	}
	if missingM {
		msgs = append(msgs, fmt.Sprintf("    - %s (some m values are not trained).", c.OutputColumnName))
	}
	if missingU {
		msgs = append(msgs, fmt.Sprintf("    - %s (some u values are not trained).", c.OutputColumnName))
	}
	return msgs
}

// DefaultMValues returns starting m probabilities for n non-null levels:
// 0.95 for the most similar level and the remainder split evenly.
func DefaultMValues(n int) []float64 { return splitDefault(n, 0.95) }

// DefaultUValues returns starting u probabilities for n non-null levels:
// 0.05 for the most similar level and the remainder split evenly.
func DefaultUValues(n int) []float64 { return splitDefault(n, 0.05) }

func splitDefault(n int, top float64) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{1}
	}
	out := make([]float64, n)
	out[0] = top
	for i := 1; i < n; i++ {
		out[i] = (1 - top) / float64(n-1)
	}
	return out
}

// stripSide removes a trailing _l or _r from a blocked-table column name.
func stripSide(name string) (string, bool) {
	if strings.HasSuffix(name, "_l") || strings.HasSuffix(name, "_r") {
		return name[:len(name)-2], true
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
