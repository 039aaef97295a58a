package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"duck-link/internal/colexpr"
	"duck-link/internal/comparison"
	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// SettingsFile is the YAML form of a linkage model.
type SettingsFile struct {
	LinkType                             string                      `yaml:"link_type"`
	UniqueIDColumnName                   string                      `yaml:"unique_id_column_name"`
	SourceDatasetColumnName              string                      `yaml:"source_dataset_column_name"`
	ProbabilityTwoRandomRecordsMatch     *float64                    `yaml:"probability_two_random_records_match"`
	EMConvergence                        *float64                    `yaml:"em_convergence"`
	MaxIterations                        *int                        `yaml:"max_iterations"`
	RetainMatchingColumns                *bool                       `yaml:"retain_matching_columns"`
	RetainIntermediateCalculationColumns *bool                       `yaml:"retain_intermediate_calculation_columns"`
	AdditionalColumnsToRetain            []string                    `yaml:"additional_columns_to_retain"`
	BlockingRulesToGeneratePredictions   []settings.BlockingRuleSpec `yaml:"blocking_rules_to_generate_predictions"`
	Comparisons                          []ComparisonSpec            `yaml:"comparisons"`
}

// ComparisonSpec is one comparison of a settings file.
type ComparisonSpec struct {
	OutputColumnName string      `yaml:"output_column_name"`
	Description      string      `yaml:"comparison_description"`
	Levels           []LevelSpec `yaml:"comparison_levels"`
}

// ColumnSpec names an input column and its transforms. Transforms apply as
// date parse, regex extract, substr, then lower.
type ColumnSpec struct {
	Name         string `yaml:"name"`
	Lower        bool   `yaml:"lower"`
	RegexExtract string `yaml:"regex_extract"`
	RegexGroup   int    `yaml:"regex_group"`
	Substr       []int  `yaml:"substr"`
	TryParseDate bool   `yaml:"try_parse_date"`
	DateFormat   string `yaml:"date_format"`
}

// UnmarshalYAML accepts either a bare column name or a mapping.
func (c *ColumnSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Name = node.Value
		return nil
	}
	type plain ColumnSpec
	return node.Decode((*plain)(c))
}

// Expression builds the transformed column.
func (c ColumnSpec) Expression() (colexpr.ColumnExpression, error) {
	if c.Name == "" {
		return colexpr.ColumnExpression{}, fmt.Errorf("column has no name")
	}
	col := colexpr.New(c.Name)
	if c.TryParseDate {
		col = col.TryParseDate(c.DateFormat)
	}
	if c.RegexExtract != "" {
		col = col.RegexExtract(c.RegexExtract, c.RegexGroup)
	}
	if len(c.Substr) > 0 {
		if len(c.Substr) != 2 {
			return colexpr.ColumnExpression{}, fmt.Errorf("substr takes [start, length], got %v", c.Substr)
		}
		col = col.Substr(c.Substr[0], c.Substr[1])
	}
	if c.Lower {
		col = col.Lower()
	}
	return col, nil
}

// Level types of a settings file.
const (
	LevelNull           = "null"
	LevelExactMatch     = "exact_match"
	LevelStringDistance = "string_distance"
	LevelArrayIntersect = "array_intersect"
	LevelCustom         = "custom"
	LevelElse           = "else"
)

// LevelSpec is one comparison level of a settings file.
type LevelSpec struct {
	Type   string     `yaml:"type"`
	Column ColumnSpec `yaml:"column"`

	TermFrequencyAdjustments bool    `yaml:"term_frequency_adjustments"`
	Metric                   string  `yaml:"metric"`
	Threshold                float64 `yaml:"threshold"`
	MinIntersection          int     `yaml:"min_intersection"`
	SQLCondition             string  `yaml:"sql_condition"`
	Label                    string  `yaml:"label"`
	IsNullLevel              bool    `yaml:"is_null_level"`

	MProbability *float64 `yaml:"m_probability"`
	UProbability *float64 `yaml:"u_probability"`
	FixM         bool     `yaml:"fix_m_probability"`
	FixU         bool     `yaml:"fix_u_probability"`
}

func (l LevelSpec) creator() (comparison.Level, error) {
	if l.Type == LevelElse {
		return comparison.ElseLevel(), nil
	}
	if l.Type == LevelCustom {
		if l.SQLCondition == "" {
			return nil, fmt.Errorf("custom level needs sql_condition")
		}
		label := l.Label
		if label == "" {
			label = l.SQLCondition
		}
		if l.IsNullLevel {
			return comparison.LevelFunc(func(d dialect.Dialect) (*settings.ComparisonLevel, error) {
				return &settings.ComparisonLevel{SQLCondition: l.SQLCondition, Label: label, IsNullLevel: true}, nil
			}), nil
		}
		return comparison.CustomLevel(l.SQLCondition, label), nil
	}

	col, err := l.Column.Expression()
	if err != nil {
		return nil, fmt.Errorf("%s level: %w", l.Type, err)
	}
	switch l.Type {
	case LevelNull:
		return comparison.NullLevel(col), nil
	case LevelExactMatch:
		return comparison.ExactMatchLevel(col, l.TermFrequencyAdjustments), nil
	case LevelStringDistance:
		metric, err := comparison.ParseMetric(l.Metric)
		if err != nil {
			return nil, err
		}
		return comparison.StringDistanceLevel(col, metric, l.Threshold), nil
	case LevelArrayIntersect:
		n := l.MinIntersection
		if n == 0 {
			n = 1
		}
		return comparison.ArrayIntersectLevel(col, n), nil
	}
	return nil, fmt.Errorf("unknown level type %q", l.Type)
}

// applyParameters copies configured probabilities onto a built level.
func (l LevelSpec) applyParameters(level *settings.ComparisonLevel) {
	if l.MProbability != nil {
		level.SetM(*l.MProbability, "from settings file")
	}
	if l.UProbability != nil {
		level.SetU(*l.UProbability, "from settings file")
	}
	level.FixedM = l.FixM
	level.FixedU = l.FixU
}

// Build compiles the file into a validated model for d.
func (f *SettingsFile) Build(d dialect.Dialect) (*settings.Settings, error) {
	lt := settings.DedupeOnly
	if f.LinkType != "" {
		var err error
		if lt, err = settings.ParseLinkType(f.LinkType); err != nil {
			return nil, err
		}
	}

	comparisons := make([]*settings.Comparison, 0, len(f.Comparisons))
	for i, cs := range f.Comparisons {
		spec := comparison.Spec{OutputColumnName: cs.OutputColumnName, Description: cs.Description}
		for j, ls := range cs.Levels {
			creator, err := ls.creator()
			if err != nil {
				return nil, domain.ErrValidation("comparison %d level %d: %v", i, j, err)
			}
			spec.Levels = append(spec.Levels, creator)
		}
		if spec.OutputColumnName == "" {
			spec.OutputColumnName = defaultOutputName(cs)
		}
		c, err := spec.Build(d)
		if err != nil {
			return nil, err
		}
		for j, level := range c.Levels {
			cs.Levels[j].applyParameters(level)
		}
		comparisons = append(comparisons, c)
	}

	s := settings.New(d, lt, comparisons...)
	if f.UniqueIDColumnName != "" {
		s.UniqueIDColumnName = f.UniqueIDColumnName
	}
	if f.SourceDatasetColumnName != "" {
		s.SourceDatasetColumnName = f.SourceDatasetColumnName
	}
	if f.ProbabilityTwoRandomRecordsMatch != nil {
		s.ProbabilityTwoRandomRecordsMatch = *f.ProbabilityTwoRandomRecordsMatch
	}
	if f.EMConvergence != nil {
		s.EMConvergence = *f.EMConvergence
	}
	if f.MaxIterations != nil {
		s.MaxIterations = *f.MaxIterations
	}
	if f.RetainMatchingColumns != nil {
		s.RetainMatchingColumns = *f.RetainMatchingColumns
	}
	if f.RetainIntermediateCalculationColumns != nil {
		s.RetainIntermediateCalculationColumns = *f.RetainIntermediateCalculationColumns
	}
	s.AdditionalColumnsToRetain = f.AdditionalColumnsToRetain
	s.BlockingRulesToGeneratePredictions = f.BlockingRulesToGeneratePredictions

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// defaultOutputName names a comparison after the first column its levels use.
func defaultOutputName(cs ComparisonSpec) string {
	for _, l := range cs.Levels {
		if l.Column.Name != "" {
			col, err := l.Column.Expression()
			if err == nil {
				return col.OutputColumnName()
			}
		}
	}
	return ""
}

// ParseSettings decodes a YAML model definition. Unknown keys are rejected.
func ParseSettings(data []byte, d dialect.Dialect) (*settings.Settings, error) {
	var f SettingsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, domain.ErrValidation("parse settings: %v", err)
	}
	return f.Build(d)
}

// LoadSettingsFile reads a YAML model definition from path.
func LoadSettingsFile(path string, d dialect.Dialect) (*settings.Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	s, err := ParseSettings(data, d)
	if err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}
