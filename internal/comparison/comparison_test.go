package comparison

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-link/internal/colexpr"
	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

func TestExactMatchComparison(t *testing.T) {
	c, err := ExactMatch(colexpr.New("first_name")).Build(dialect.DuckDB)
	require.NoError(t, err)

	require.Len(t, c.Levels, 3)
	assert.Equal(t, "first_name", c.OutputColumnName)
	assert.Equal(t, -1, c.Levels[0].ComparisonVectorValue)
	assert.True(t, c.Levels[0].IsNullLevel)
	assert.Equal(t, 1, c.Levels[1].ComparisonVectorValue)
	assert.Equal(t, `"first_name_l" = "first_name_r"`, c.Levels[1].SQLCondition)
	assert.Equal(t, []string{"first_name"}, c.Levels[1].ExactMatchColumns)
	assert.Equal(t, 0, c.Levels[2].ComparisonVectorValue)
	assert.True(t, c.Levels[2].IsElseLevel)

	assert.Equal(t,
		`CASE WHEN "first_name_l" IS NULL OR "first_name_r" IS NULL THEN -1 WHEN "first_name_l" = "first_name_r" THEN 1 ELSE 0 END as "gamma_first_name"`,
		c.CaseStatement(dialect.DuckDB.QuoteIdentifier))
}

func TestAtThresholds(t *testing.T) {
	col := colexpr.New("surname").Lower()
	c, err := AtThresholds(col, dialect.JaroWinkler, 0.9, 0.7).Build(dialect.DuckDB)
	require.NoError(t, err)

	require.Len(t, c.Levels, 5)
	assert.Equal(t, []int{-1, 3, 2, 1, 0}, cvvs(c))
	assert.Equal(t, `jaro_winkler_similarity(LOWER("surname_l"), LOWER("surname_r")) >= 0.9`, c.Levels[2].SQLCondition)
	assert.Equal(t, "Jaro-Winkler similarity of transformed surname >= 0.9", c.Levels[2].Label)
	assert.Nil(t, c.Levels[1].ExactMatchColumns, "transformed columns are not exact-match columns")

	lev, err := AtThresholds(colexpr.New("surname"), dialect.Levenshtein, 2).Build(dialect.SQLite)
	require.NoError(t, err)
	assert.Equal(t, `levenshtein("surname_l", "surname_r") <= 2`, lev.Levels[2].SQLCondition)
}

func TestUnsupportedMetricFailsAtBuild(t *testing.T) {
	_, err := AtThresholds(colexpr.New("surname"), dialect.Jaro, 0.9).Build(dialect.Postgres)
	var capErr *domain.CapabilityUnsupportedError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "postgres", capErr.Backend)
}

func TestArrayIntersectLevel(t *testing.T) {
	c, err := New("tags",
		NullLevel(colexpr.New("tags")),
		ArrayIntersectLevel(colexpr.New("tags"), 2),
		ElseLevel(),
	).Build(dialect.Postgres)
	require.NoError(t, err)
	assert.Equal(t, `CARDINALITY(ARRAY_INTERSECT("tags_l", "tags_r")) >= 2`, c.Levels[1].SQLCondition)

	_, err = New("tags", ArrayIntersectLevel(colexpr.New("tags"), 1), ElseLevel()).Build(dialect.SQLite)
	var capErr *domain.CapabilityUnsupportedError
	assert.True(t, errors.As(err, &capErr))
}

func TestTermFrequencyLevel(t *testing.T) {
	c, err := New("city",
		NullLevel(colexpr.New("city")),
		ExactMatchLevel(colexpr.New("city"), true),
		ElseLevel(),
	).Build(dialect.DuckDB)
	require.NoError(t, err)
	assert.Equal(t, "city", c.Levels[1].TFAdjustmentColumn)
	assert.Equal(t, []string{"city"}, c.TermFrequencyColumns())

	_, err = New("city", ExactMatchLevel(colexpr.New("city").Lower(), true), ElseLevel()).Build(dialect.DuckDB)
	var invalid *domain.ValidationError
	assert.True(t, errors.As(err, &invalid), "term frequency on an expression is a configuration error")
}

func TestVectorsSQL(t *testing.T) {
	comps, err := BuildAll(dialect.DuckDB, ExactMatch(colexpr.New("first_name")))
	require.NoError(t, err)
	s := settings.New(dialect.DuckDB, settings.DedupeOnly, comps...)
	s.RetainMatchingColumns = false

	step, err := VectorsSQL(s)
	require.NoError(t, err)
	assert.Equal(t, ComparisonVectorsTable, step.OutputTableName)
	assert.Equal(t,
		`select "unique_id_l", "unique_id_r", CASE WHEN "first_name_l" IS NULL OR "first_name_r" IS NULL THEN -1 WHEN "first_name_l" = "first_name_r" THEN 1 ELSE 0 END as "gamma_first_name" from __splink__df_blocked`,
		step.SQL)

	s.RetainMatchingColumns = true
	s.LinkType = settings.LinkOnly
	step, err = VectorsSQL(s)
	require.NoError(t, err)
	assert.Contains(t, step.SQL, `"source_dataset_l", "unique_id_l", "source_dataset_r", "unique_id_r", "first_name_l", "first_name_r", CASE`)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("Jaro_Winkler")
	require.NoError(t, err)
	assert.Equal(t, dialect.JaroWinkler, m)

	_, err = ParseMetric("hamming")
	var valErr *domain.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func cvvs(c *settings.Comparison) []int {
	out := make([]int, len(c.Levels))
	for i, l := range c.Levels {
		out[i] = l.ComparisonVectorValue
	}
	return out
}
