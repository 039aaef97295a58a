package linker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-link/internal/backend"
	"duck-link/internal/blocking"
	"duck-link/internal/colexpr"
	"duck-link/internal/comparison"
	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func firstNameSettings(t *testing.T, d dialect.Dialect, lt settings.LinkType, tf bool) *settings.Settings {
	t.Helper()
	col := colexpr.New("first_name")
	spec := comparison.New("first_name",
		comparison.NullLevel(col), comparison.ExactMatchLevel(col, tf), comparison.ElseLevel())
	c, err := spec.Build(d)
	require.NoError(t, err)
	return settings.New(d, lt, c)
}

func openBackend(t *testing.T, d dialect.Dialect) *backend.Backend {
	t.Helper()
	ctx := context.Background()
	b, err := backend.Open(ctx, d, "", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(ctx) })
	return b
}

func TestNewValidates(t *testing.T) {
	b := openBackend(t, dialect.SQLite)
	a, c := b.RegisterTable("a"), b.RegisterTable("c")

	_, err := New(firstNameSettings(t, dialect.SQLite, settings.DedupeOnly, false), b, []domain.ResultTable{a, c}, Options{})
	var invalid *domain.ValidationError
	assert.True(t, errors.As(err, &invalid), "dedupe_only takes one input")

	_, err = New(firstNameSettings(t, dialect.SQLite, settings.DedupeOnly, false), b, nil, Options{})
	assert.True(t, errors.As(err, &invalid))

	_, err = New(firstNameSettings(t, dialect.SQLite, settings.DedupeOnly, false), nil, []domain.ResultTable{a}, Options{})
	assert.True(t, errors.As(err, &invalid))

	broken := firstNameSettings(t, dialect.SQLite, settings.DedupeOnly, false)
	broken.Comparisons = nil
	_, err = New(broken, b, []domain.ResultTable{a}, Options{})
	assert.True(t, errors.As(err, &invalid))

	lk, err := New(firstNameSettings(t, dialect.SQLite, settings.LinkOnly, false), b, []domain.ResultTable{a, c}, Options{})
	require.NoError(t, err)
	assert.Positive(t, lk.SaltingPartitions())
	assert.NotNil(t, lk.Logger())
	assert.Len(t, lk.Inputs(), 2)
}

func TestSaltingRequired(t *testing.T) {
	b := openBackend(t, dialect.SQLite)
	in := []domain.ResultTable{b.RegisterTable("people")}

	lk, err := New(firstNameSettings(t, dialect.SQLite, settings.DedupeOnly, false), b, in, Options{})
	require.NoError(t, err)
	assert.False(t, lk.SaltingRequired())

	s := firstNameSettings(t, dialect.SQLite, settings.DedupeOnly, false)
	s.BlockingRulesToGeneratePredictions = []settings.BlockingRuleSpec{{SQL: "l.first_name = r.first_name", SaltingPartitions: 4}}
	lk, err = New(s, b, in, Options{})
	require.NoError(t, err)
	assert.True(t, lk.SaltingRequired())

	duck := openBackend(t, dialect.DuckDB)
	lk, err = New(firstNameSettings(t, dialect.DuckDB, settings.DedupeOnly, false), duck, []domain.ResultTable{duck.RegisterTable("people")}, Options{})
	require.NoError(t, err)
	assert.True(t, lk.SaltingRequired())
}

func TestConcatWithTFSteps(t *testing.T) {
	b := openBackend(t, dialect.SQLite)
	lk, err := New(firstNameSettings(t, dialect.SQLite, settings.LinkOnly, true), b,
		[]domain.ResultTable{b.RegisterTable("people_a"), b.RegisterTable("people_b")}, Options{})
	require.NoError(t, err)

	steps, err := lk.ConcatWithTFSteps()
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, blocking.ConcatTable, steps[0].OutputTableName)
	assert.Contains(t, steps[0].SQL, `select 'people_a' as "source_dataset", * from people_a`)
	assert.Equal(t, "__splink__df_tf_first_name", steps[1].OutputTableName)
	assert.Equal(t, ConcatWithTFTable, steps[2].OutputTableName)
	assert.Equal(t,
		`select __splink__df_concat.*, __splink__df_tf_first_name."tf_first_name" from __splink__df_concat `+
			`left join __splink__df_tf_first_name on __splink__df_concat."first_name" = __splink__df_tf_first_name."first_name"`,
		steps[2].SQL)
}

func TestInitialiseConcatWithTF(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t, dialect.DuckDB)
	people, err := b.RegisterQuery(ctx, "people",
		"select * from (values (1, 'amy'), (2, 'amy'), (3, 'bob'), (4, null)) t(unique_id, first_name)")
	require.NoError(t, err)

	lk, err := New(firstNameSettings(t, dialect.DuckDB, settings.DedupeOnly, true), b, []domain.ResultTable{people}, Options{})
	require.NoError(t, err)

	res, err := lk.InitialiseConcatWithTF(ctx)
	require.NoError(t, err)
	defer func() { require.NoError(t, res.Release(ctx)) }()
	assert.Equal(t, ConcatWithTFTable, res.TemplatedName())

	recs, err := res.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	freq := map[string]float64{}
	for _, r := range recs {
		assert.Contains(t, r, blocking.SaltColumn)
		if r["first_name"] == nil {
			assert.Nil(t, r["tf_first_name"])
			continue
		}
		f, err := r.Float64("tf_first_name")
		require.NoError(t, err)
		freq[r.String("first_name")] = f
	}
	assert.InDelta(t, 2.0/3, freq["amy"], 1e-9)
	assert.InDelta(t, 1.0/3, freq["bob"], 1e-9)
}

func TestAnalyzerUsesLinkerInputs(t *testing.T) {
	b := openBackend(t, dialect.SQLite)
	lk, err := New(firstNameSettings(t, dialect.SQLite, settings.DedupeOnly, false), b,
		[]domain.ResultTable{b.RegisterTable("people")}, Options{})
	require.NoError(t, err)

	a := lk.Analyzer(1e6)
	assert.Equal(t, settings.DedupeOnly, a.LinkType)
	assert.Equal(t, 1e6, a.MaxRowsLimit)
	assert.Equal(t, "unique_id", a.UniqueIDColumnName)
	require.Len(t, a.Inputs, 1)
	assert.Equal(t, "people", a.Inputs[0].TemplatedName())
}

func TestCumulativeComparisonsWithSharedEquiJoinKeys(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t, dialect.DuckDB)
	people, err := b.RegisterQuery(ctx, "people",
		"select i as unique_id, 'n' || cast(i % 50 as varchar) as first_name, i % 7 as bucket from range(2000) t(i)")
	require.NoError(t, err)
	lk, err := New(firstNameSettings(t, dialect.DuckDB, settings.DedupeOnly, false), b,
		[]domain.ResultTable{people}, Options{Logger: testLogger()})
	require.NoError(t, err)

	var rules []*blocking.Rule
	for _, sql := range []string{
		"l.first_name = r.first_name and l.bucket < r.bucket",
		"l.first_name = r.first_name and l.bucket > r.bucket",
		"l.first_name = r.first_name and l.unique_id + 100 < r.unique_id",
		"l.first_name = r.first_name and l.bucket + 1 < r.bucket",
		"l.first_name = r.first_name and l.bucket <> r.bucket",
		"l.first_name = r.first_name",
	} {
		r, err := blocking.NewRule(sql, 0)
		require.NoError(t, err)
		rules = append(rules, r)
	}

	for i := 0; i < 5; i++ {
		rows, err := lk.Analyzer(blocking.DefaultMaxRowsLimit).CumulativeComparisons(ctx, rules)
		require.NoError(t, err)
		require.Len(t, rows, len(rules))
		// 50 names of 40 rows each.
		assert.Equal(t, int64(50*40*39/2), rows[len(rows)-1].CumulativeRows)
		assert.Equal(t, []string{"people"}, b.LiveTables())
	}
}
