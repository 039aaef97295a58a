package blocking

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// countingExecutor answers every pipeline with a fixed comparison count.
type countingExecutor struct {
	mu         sync.Mutex
	executions int
	count      int64
	releaseErr error
}

func (e *countingExecutor) Execute(_ context.Context, steps []domain.SQLStep, _ ...domain.ResultTable) (domain.ResultTable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions++
	return &fakeTable{name: steps[len(steps)-1].OutputTableName, count: e.count, releaseErr: e.releaseErr}, nil
}

type fakeTable struct {
	name       string
	count      int64
	releaseErr error
}

func (t *fakeTable) TemplatedName() string { return t.name }
func (t *fakeTable) PhysicalName() string  { return t.name + "_fake" }
func (t *fakeTable) Records(context.Context) ([]domain.Record, error) {
	return []domain.Record{{countColumn: t.count}}, nil
}
func (t *fakeTable) Release(context.Context) error { return t.releaseErr }

func newTestAnalyzer(exec domain.PipelineExecutor, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		Executor: exec,
		Dialect:  dialect.DuckDB,
		LinkType: settings.DedupeOnly,
		Inputs:   []domain.ResultTable{&fakeTable{name: "people"}},
		Logger:   logger,
	}
}

func mustRules(t *testing.T, sqls ...string) []*Rule {
	t.Helper()
	rules := make([]*Rule, len(sqls))
	for i, sql := range sqls {
		r, err := NewRule(sql, 0)
		require.NoError(t, err)
		rules[i] = r
	}
	return rules
}

func TestCheckLimitsCountsSharedKeysOnce(t *testing.T) {
	exec := &countingExecutor{count: 10}
	a := newTestAnalyzer(exec, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	rules := mustRules(t,
		"l.first_name = r.first_name and l.dob < r.dob",
		"l.first_name = r.first_name and l.dob > r.dob",
		"l.first_name = r.first_name",
		"l.surname = r.surname",
	)
	require.NoError(t, a.checkLimits(context.Background(), rules))
	assert.Equal(t, 2, exec.executions)
}

func TestCheckLimitsNamesRuleOverLimit(t *testing.T) {
	exec := &countingExecutor{count: 500}
	a := newTestAnalyzer(exec, nil)
	a.MaxRowsLimit = 100

	err := a.checkLimits(context.Background(), mustRules(t, "l.first_name = r.first_name"))
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, err.Error(), "l.first_name = r.first_name")
}

func TestReleaseFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	exec := &countingExecutor{count: 3, releaseErr: errors.New("drop failed")}
	a := newTestAnalyzer(exec, slog.New(slog.NewTextHandler(&logs, nil)))

	c, err := a.CountComparisons(context.Background(), mustRules(t, "l.first_name = r.first_name")[0], false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.PreFilter)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "drop failed")
}
