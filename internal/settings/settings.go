// Package settings holds the linkage model: link type, comparisons with their
// levels and m/u parameters, blocking rules and training flags.
package settings

import (
	"fmt"
	"strings"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
)

// LinkType selects which record pairs are valid candidates.
type LinkType string

// Supported link types.
const (
	DedupeOnly    LinkType = "dedupe_only"
	LinkOnly      LinkType = "link_only"
	LinkAndDedupe LinkType = "link_and_dedupe"
)

// ParseLinkType validates s as a link type.
func ParseLinkType(s string) (LinkType, error) {
	switch lt := LinkType(s); lt {
	case DedupeOnly, LinkOnly, LinkAndDedupe:
		return lt, nil
	}
	return "", domain.ErrValidation("unknown link type %q (valid: dedupe_only, link_only, link_and_dedupe)", s)
}

// Defaults applied by New.
const (
	DefaultProbabilityTwoRandomRecordsMatch = 0.0001
	DefaultEMConvergence                    = 0.0001
	DefaultMaxIterations                    = 25
	DefaultUniqueIDColumnName               = "unique_id"
	DefaultSourceDatasetColumnName          = "source_dataset"
)

// BlockingRuleSpec is the configured form of a blocking rule.
type BlockingRuleSpec struct {
	SQL               string `yaml:"blocking_rule"`
	SaltingPartitions int    `yaml:"salting_partitions"`
}

// Settings is the linkage model. It is owned by one training run at a time;
// concurrent runs must work on Clone()s.
type Settings struct {
	Dialect  dialect.Dialect
	LinkType LinkType

	Comparisons                        []*Comparison
	BlockingRulesToGeneratePredictions []BlockingRuleSpec

	ProbabilityTwoRandomRecordsMatch float64
	EMConvergence                    float64
	MaxIterations                    int

	UniqueIDColumnName      string
	SourceDatasetColumnName string

	RetainMatchingColumns                bool
	RetainIntermediateCalculationColumns bool
	AdditionalColumnsToRetain            []string
}

// New returns settings with defaults for everything but the comparisons.
func New(d dialect.Dialect, linkType LinkType, comparisons ...*Comparison) *Settings {
	return &Settings{
		Dialect:                          d,
		LinkType:                         linkType,
		Comparisons:                      comparisons,
		ProbabilityTwoRandomRecordsMatch: DefaultProbabilityTwoRandomRecordsMatch,
		EMConvergence:                    DefaultEMConvergence,
		MaxIterations:                    DefaultMaxIterations,
		UniqueIDColumnName:               DefaultUniqueIDColumnName,
		SourceDatasetColumnName:          DefaultSourceDatasetColumnName,
		RetainMatchingColumns:            true,
	}
}

// Validate checks the model is usable for SQL generation.
func (s *Settings) Validate() error {
	if s.Dialect == nil {
		return domain.ErrValidation("settings have no dialect")
	}
	if _, err := ParseLinkType(string(s.LinkType)); err != nil {
		return err
	}
	if len(s.Comparisons) == 0 {
		return domain.ErrValidation("settings must contain at least one comparison")
	}
	if s.ProbabilityTwoRandomRecordsMatch <= 0 || s.ProbabilityTwoRandomRecordsMatch >= 1 {
		return domain.ErrValidation("probability_two_random_records_match must be in (0, 1), got %g",
			s.ProbabilityTwoRandomRecordsMatch)
	}
	seen := make(map[string]bool, len(s.Comparisons))
	for _, c := range s.Comparisons {
		if err := c.validate(); err != nil {
			return err
		}
		if seen[c.OutputColumnName] {
			return domain.ErrValidation("duplicate comparison output column name %q", c.OutputColumnName)
		}
		seen[c.OutputColumnName] = true
	}
	return nil
}

// Clone returns a deep copy. Mutating the clone's comparisons or levels never
// affects s.
func (s *Settings) Clone() *Settings {
	out := *s
	out.Comparisons = make([]*Comparison, len(s.Comparisons))
	for i, c := range s.Comparisons {
		out.Comparisons[i] = c.Clone()
	}
	out.BlockingRulesToGeneratePredictions = append([]BlockingRuleSpec(nil), s.BlockingRulesToGeneratePredictions...)
	out.AdditionalColumnsToRetain = append([]string(nil), s.AdditionalColumnsToRetain...)
	return &out
}

// Comparison returns the comparison with the given output column name.
func (s *Settings) Comparison(outputColumnName string) (*Comparison, error) {
	for _, c := range s.Comparisons {
		if c.OutputColumnName == outputColumnName {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound("no comparison with output column name %q", outputColumnName)
}

// SourceDatasetColumnRequired reports whether records carry a source dataset column.
func (s *Settings) SourceDatasetColumnRequired() bool {
	return s.LinkType != DedupeOnly
}

// UniqueIDColumns returns the columns that together identify a record.
func (s *Settings) UniqueIDColumns() []string {
	if s.SourceDatasetColumnRequired() {
		return []string{s.SourceDatasetColumnName, s.UniqueIDColumnName}
	}
	return []string{s.UniqueIDColumnName}
}

// NeedsMatchKey reports whether blocked pairs are tagged with the rule that produced them.
func (s *Settings) NeedsMatchKey() bool {
	return len(s.BlockingRulesToGeneratePredictions) > 1
}

// TermFrequencyColumns returns the distinct term frequency columns, in comparison order.
func (s *Settings) TermFrequencyColumns() []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range s.Comparisons {
		for _, l := range c.Levels {
			if l.TFAdjustmentColumn != "" && !seen[l.TFAdjustmentColumn] {
				seen[l.TFAdjustmentColumn] = true
				out = append(out, l.TFAdjustmentColumn)
			}
		}
	}
	return out
}

// DisableTermFrequencies clears every level's term frequency adjustment.
func (s *Settings) DisableTermFrequencies() {
	for _, c := range s.Comparisons {
		for _, l := range c.Levels {
			l.TFAdjustmentColumn = ""
		}
	}
}

func (s *Settings) q(name string) string { return s.Dialect.QuoteIdentifier(name) }

// ColumnsToSelectForBlocking lists the select expressions of the blocked pairs table.
func (s *Settings) ColumnsToSelectForBlocking() ([]string, error) {
	var cols []string
	add := func(name string) {
		cols = append(cols,
			fmt.Sprintf("l.%s as %s", s.q(name), s.q(name+"_l")),
			fmt.Sprintf("r.%s as %s", s.q(name), s.q(name+"_r")))
	}
	ids := s.UniqueIDColumns()
	for _, id := range ids {
		cols = append(cols, fmt.Sprintf("l.%s as %s", s.q(id), s.q(id+"_l")))
	}
	for _, id := range ids {
		cols = append(cols, fmt.Sprintf("r.%s as %s", s.q(id), s.q(id+"_r")))
	}
	for _, c := range s.Comparisons {
		inputs, err := c.InputColumns()
		if err != nil {
			return nil, err
		}
		for _, in := range inputs {
			add(in)
		}
		for _, tf := range c.TermFrequencyColumns() {
			add("tf_" + tf)
		}
	}
	for _, a := range s.AdditionalColumnsToRetain {
		add(a)
	}
	return dedupe(cols), nil
}

// ColumnsToSelectForComparisonVectors lists the select expressions of the
// comparison vectors table, including one gamma CASE per comparison.
func (s *Settings) ColumnsToSelectForComparisonVectors() ([]string, error) {
	var cols []string
	lr := func(name string) {
		cols = append(cols, s.q(name+"_l"), s.q(name+"_r"))
	}
	ids := s.UniqueIDColumns()
	for _, id := range ids {
		cols = append(cols, s.q(id+"_l"))
	}
	for _, id := range ids {
		cols = append(cols, s.q(id+"_r"))
	}
	for _, c := range s.Comparisons {
		if s.RetainMatchingColumns {
			inputs, err := c.InputColumns()
			if err != nil {
				return nil, err
			}
			for _, in := range inputs {
				lr(in)
			}
		}
		cols = append(cols, c.CaseStatement(s.q))
		for _, tf := range c.TermFrequencyColumns() {
			lr("tf_" + tf)
		}
	}
	for _, a := range s.AdditionalColumnsToRetain {
		lr(a)
	}
	if s.NeedsMatchKey() {
		cols = append(cols, "match_key")
	}
	return dedupe(cols), nil
}

// ParameterRecord is one row of the parameter estimates table.
type ParameterRecord struct {
	ComparisonName        string
	Label                 string
	ComparisonVectorValue int
	SQLCondition          string
	IsNullLevel           bool
	MProbability          *float64
	UProbability          *float64
	MDescription          string
	UDescription          string
	BayesFactor           *float64
	Log2BayesFactor       *float64
}

// ParameterRecords returns the current parameters, one record per level,
// preceded by the prior.
func (s *Settings) ParameterRecords() []ParameterRecord {
	p := s.ProbabilityTwoRandomRecordsMatch
	bf := ProbToBayesFactor(p)
	mw := BayesFactorToMatchWeight(bf)
	out := []ParameterRecord{{
		ComparisonName:  "probability_two_random_records_match",
		Label:           fmt.Sprintf("one in %.1f random pairs is a match", 1/p),
		BayesFactor:     &bf,
		Log2BayesFactor: &mw,
	}}
	for _, c := range s.Comparisons {
		for _, l := range c.Levels {
			rec := ParameterRecord{
				ComparisonName:        c.OutputColumnName,
				Label:                 l.Label,
				ComparisonVectorValue: l.ComparisonVectorValue,
				SQLCondition:          l.SQLCondition,
				IsNullLevel:           l.IsNullLevel,
				MProbability:          l.MProbability,
				UProbability:          l.UProbability,
				MDescription:          l.MDescription,
				UDescription:          l.UDescription,
			}
			if b, ok := l.BayesFactor(); ok {
				w := BayesFactorToMatchWeight(b)
				rec.BayesFactor, rec.Log2BayesFactor = &b, &w
			}
			out = append(out, rec)
		}
	}
	return out
}

// IsFullyTrained reports whether every non-null level has both m and u.
func (s *Settings) IsFullyTrained() bool {
	return len(s.NotTrainedMessages()) == 0
}

// NotTrainedMessages lists the comparisons still missing m or u estimates.
func (s *Settings) NotTrainedMessages() []string {
	var msgs []string
	for _, c := range s.Comparisons {
		msgs = append(msgs, c.notTrainedMessages()...)
	}
	return msgs
}

// TrainingStatus is the human-readable summary of NotTrainedMessages.
func (s *Settings) TrainingStatus() string {
	msgs := s.NotTrainedMessages()
	if len(msgs) == 0 {
		return "Your model is fully trained. All comparisons have at least one estimate for their m and u values"
	}
	return "Your model is not yet fully trained. Missing estimates for:\n" + strings.Join(msgs, "\n")
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
