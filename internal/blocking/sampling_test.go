package blocking

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

func TestPlanDedupeReproducesMaxPairs(t *testing.T) {
	tests := []struct {
		n        int64
		maxPairs float64
	}{
		{1000, 1e4},
		{1000, 499500},
		{50000, 1e6},
		{7, 3},
		{2, 1},
	}
	for _, tc := range tests {
		plan, err := PlanDedupe(tc.n, tc.maxPairs)
		require.NoError(t, err)
		assert.LessOrEqual(t, plan.Proportion, 1.0)
		assert.LessOrEqual(t, plan.SampleSize, float64(tc.n))

		allPairs := float64(tc.n) * float64(tc.n-1) / 2
		expected := plan.Proportion * plan.Proportion * allPairs
		// Pairs among r sampled rows are r(r-1)/2, so p^2 N(N-1)/2 only
		// approaches maxPairs up to an O(r) term.
		assert.InDelta(t, tc.maxPairs, expected, RowsNeededForPairs(tc.maxPairs)+1, "n=%d", tc.n)
	}
}

func TestPlanDedupeClamps(t *testing.T) {
	plan, err := PlanDedupe(10, 1e9)
	require.NoError(t, err)
	assert.Equal(t, 1.0, plan.Proportion)
	assert.Equal(t, 10.0, plan.SampleSize)
}

func TestRowsNeededForPairs(t *testing.T) {
	assert.InDelta(t, 2.0, RowsNeededForPairs(1), 1e-12)
	assert.InDelta(t, 1000.0, RowsNeededForPairs(499500), 1e-9)
	assert.InDelta(t, 1.0, RowsNeededForPairs(0), 1e-12)
}

func TestPlanLinkOnly(t *testing.T) {
	counts := []int64{100, 200, 300}
	assert.Equal(t, (600.0*600.0-(100*100+200*200+300*300))/2, TotalLinks(counts))

	plan, err := PlanLinkOnly(counts, 1000)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(1000/TotalLinks(counts)), plan.Proportion, 1e-12)
	assert.InDelta(t, plan.Proportion*600, plan.SampleSize, 1e-9)
	assert.LessOrEqual(t, plan.SampleSize, 600.0)

	plan, err = PlanLinkOnly([]int64{3, 4}, 1e6)
	require.NoError(t, err)
	assert.Equal(t, 1.0, plan.Proportion)
	assert.Equal(t, 7.0, plan.SampleSize)
}

func TestPlanDegenerate(t *testing.T) {
	var degErr *domain.DegenerateInputError

	_, err := PlanDedupe(0, 100)
	require.True(t, errors.As(err, &degErr))
	assert.Equal(t, []int64{0}, degErr.Counts)

	_, err = PlanLinkOnly([]int64{10}, 100)
	require.True(t, errors.As(err, &degErr), "one dataset has no cross links")
	assert.Equal(t, []int64{10}, degErr.Counts)

	_, err = PlanLinkOnly(nil, 100)
	assert.True(t, errors.As(err, &degErr))

	_, err = PlanDedupe(10, math.NaN())
	var valErr *domain.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestPlanByLinkType(t *testing.T) {
	pooled, err := Plan(settings.LinkAndDedupe, []int64{40, 60}, 100)
	require.NoError(t, err)
	single, err := PlanDedupe(100, 100)
	require.NoError(t, err)
	assert.Equal(t, single, pooled)

	link, err := Plan(settings.LinkOnly, []int64{40, 60}, 100)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(100.0/2400), link.Proportion, 1e-12)
}

func TestCartesian(t *testing.T) {
	n, err := Cartesian(settings.DedupeOnly, []int64{10})
	require.NoError(t, err)
	assert.Equal(t, int64(45), n)

	n, err = Cartesian(settings.LinkOnly, []int64{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, int64(2*3+2*4+3*4), n)

	n, err = Cartesian(settings.LinkAndDedupe, []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	_, err = Cartesian(settings.LinkOnly, []int64{5})
	assert.Error(t, err)
	_, err = Cartesian(settings.DedupeOnly, []int64{5, 5})
	assert.Error(t, err)
}

func TestTrainingRules(t *testing.T) {
	rules := TrainingRules(dialect.DuckDB, 1e6, 8)
	require.Len(t, rules, 1)
	assert.Equal(t, "1=1", rules[0].SQL)
	assert.Equal(t, 8, rules[0].SaltingPartitions)
	assert.True(t, AnySalted(rules))

	assert.Empty(t, TrainingRules(dialect.DuckDB, SaltedCartesianThreshold, 8))
	assert.Empty(t, TrainingRules(dialect.Spark, 1e6, 8))
	assert.Empty(t, TrainingRules(dialect.SQLite, 1e6, 8))
	assert.False(t, AnySalted(nil))
}
