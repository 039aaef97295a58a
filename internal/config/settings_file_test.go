package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

const settingsYAML = `
link_type: link_and_dedupe
unique_id_column_name: id
probability_two_random_records_match: 0.001
max_iterations: 10
additional_columns_to_retain: [city]
blocking_rules_to_generate_predictions:
  - blocking_rule: l.surname = r.surname
  - blocking_rule: l.dob = r.dob
    salting_partitions: 4
comparisons:
  - comparison_levels:
      - type: "null"
        column: first_name
      - type: exact_match
        column: first_name
        term_frequency_adjustments: true
        u_probability: 0.01
        fix_u_probability: true
      - type: string_distance
        column: {name: first_name, lower: true}
        metric: jaro_winkler
        threshold: 0.9
      - type: else
  - output_column_name: dob
    comparison_levels:
      - type: custom
        sql_condition: dob_l IS NULL OR dob_r IS NULL
        label: dob is NULL
        is_null_level: true
      - type: exact_match
        column: {name: dob, substr: [1, 4]}
      - type: else
`

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(settingsYAML), dialect.DuckDB)
	require.NoError(t, err)

	assert.Equal(t, settings.LinkAndDedupe, s.LinkType)
	assert.Equal(t, "id", s.UniqueIDColumnName)
	assert.Equal(t, settings.DefaultSourceDatasetColumnName, s.SourceDatasetColumnName)
	assert.Equal(t, 0.001, s.ProbabilityTwoRandomRecordsMatch)
	assert.Equal(t, 10, s.MaxIterations)
	assert.Equal(t, settings.DefaultEMConvergence, s.EMConvergence)
	assert.Equal(t, []string{"city"}, s.AdditionalColumnsToRetain)
	require.Len(t, s.BlockingRulesToGeneratePredictions, 2)
	assert.Equal(t, 4, s.BlockingRulesToGeneratePredictions[1].SaltingPartitions)

	require.Len(t, s.Comparisons, 2)
	first := s.Comparisons[0]
	assert.Equal(t, "first_name", first.OutputColumnName)
	require.Len(t, first.Levels, 4)
	assert.Equal(t, []int{-1, 2, 1, 0}, []int{
		first.Levels[0].ComparisonVectorValue, first.Levels[1].ComparisonVectorValue,
		first.Levels[2].ComparisonVectorValue, first.Levels[3].ComparisonVectorValue,
	})
	exact := first.Levels[1]
	require.NotNil(t, exact.UProbability)
	assert.Equal(t, 0.01, *exact.UProbability)
	assert.True(t, exact.FixedU)
	assert.False(t, exact.FixedM)
	assert.Equal(t, "first_name", exact.TFAdjustmentColumn)
	assert.Contains(t, first.Levels[2].SQLCondition, "0.9")
	assert.Equal(t, []string{"first_name"}, s.TermFrequencyColumns())

	dob := s.Comparisons[1]
	assert.True(t, dob.Levels[0].IsNullLevel)
	assert.Equal(t, -1, dob.Levels[0].ComparisonVectorValue)
	assert.Contains(t, dob.Levels[1].SQLCondition, "dob_l")
}

func TestParseSettingsRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "link_typo: dedupe_only\ncomparisons: []\n"},
		{"bad link type", "link_type: merge\n"},
		{"no comparisons", "link_type: dedupe_only\n"},
		{"unknown level", "comparisons:\n  - comparison_levels:\n      - type: fuzzy\n        column: a\n"},
		{"bad metric", "comparisons:\n  - comparison_levels:\n      - type: string_distance\n        column: a\n        metric: soundex\n      - type: else\n"},
		{"custom without sql", "comparisons:\n  - comparison_levels:\n      - type: custom\n      - type: else\n"},
		{"bad substr", "comparisons:\n  - comparison_levels:\n      - type: exact_match\n        column: {name: a, substr: [1]}\n      - type: else\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.yaml), dialect.DuckDB)
			var invalid *domain.ValidationError
			assert.True(t, errors.As(err, &invalid), "got %v", err)
		})
	}
}

func TestParseSettingsDialectCapability(t *testing.T) {
	yml := "comparisons:\n  - comparison_levels:\n      - type: string_distance\n        column: a\n        metric: jaccard\n        threshold: 0.8\n      - type: else\n"
	_, err := ParseSettings([]byte(yml), dialect.SQLite)
	var unsupported *domain.CapabilityUnsupportedError
	assert.True(t, errors.As(err, &unsupported), "got %v", err)
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settingsYAML), 0o644))

	s, err := LoadSettingsFile(path, dialect.Spark)
	require.NoError(t, err)
	assert.Equal(t, "spark", s.Dialect.Name())

	_, err = LoadSettingsFile(filepath.Join(t.TempDir(), "missing.yaml"), dialect.DuckDB)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
