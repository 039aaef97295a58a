package estimate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"duck-link/internal/blocking"
	"duck-link/internal/comparison"
	"duck-link/internal/domain"
	"duck-link/internal/linker"
	"duck-link/internal/settings"
)

// SampleTable holds the random sample u estimation scores.
const SampleTable = "__splink__df_concat_with_tf_sample"

// UDescription tags u probabilities written by EstimateU.
const UDescription = "estimate u by random sampling"

// UResult reports a u estimation run.
type UResult struct {
	RunID string
	Plan  blocking.SamplingPlan
	// Updated lists the levels that received a new u probability, as
	// "<comparison>: <level label>".
	Updated []string
	// Warning is set when some levels were not observed in the sample. Those
	// levels keep their previous value.
	Warning *domain.SparseTrainingDataWarning
}

// EstimateU estimates the u probability of every comparison level from a
// random sample of pairs, which are assumed to be non-matches. At most about
// maxPairs pairs are scored. A nil seed leaves sampling unseeded.
//
// Only the u probabilities of the linker's model are modified; all other
// training state lives on a clone. Intermediate tables are released on every
// path.
func EstimateU(ctx context.Context, lk *linker.Linker, maxPairs float64, seed *int64) (*UResult, error) {
	runID := uuid.NewString()
	logger := lk.Logger().With("run_id", runID)
	logger.Info("estimating u probabilities using random sampling", "max_pairs", maxPairs)

	original := lk.Settings()
	training := original.Clone()
	training.RetainMatchingColumns = false
	training.RetainIntermediateCalculationColumns = false
	training.DisableTermFrequencies()

	d := training.Dialect
	exec := lk.Executor()

	// Generate every statement that does not depend on the data first, so
	// dialect capability errors surface before anything runs.
	if _, err := d.RandomSampleSQL(0.5, 1, seed); err != nil {
		return nil, err
	}
	join, err := blocking.JoinForSettings(training, SampleTable)
	if err != nil {
		return nil, err
	}
	blocked, err := join.SQL(blocking.TrainingRules(d, maxPairs, lk.SaltingPartitions()))
	if err != nil {
		return nil, err
	}
	vectors, err := comparison.VectorsSQL(training)
	if err != nil {
		return nil, err
	}
	scoreSteps := []domain.SQLStep{
		blocked,
		vectors,
		{
			SQL:             "select *, cast(0.0 as float8) as match_probability from " + comparison.ComparisonVectorsTable,
			OutputTableName: PredictTable,
		},
		newParametersSQL(training.Comparisons, d.QuoteIdentifier),
	}

	nodes, err := lk.InitialiseConcatWithTF(ctx)
	if err != nil {
		return nil, err
	}
	defer release(ctx, logger, nodes)

	counts, err := rowCounts(ctx, logger, exec, training, nodes)
	if err != nil {
		return nil, err
	}
	plan, err := blocking.Plan(training.LinkType, counts, maxPairs)
	if err != nil {
		return nil, err
	}
	logger.Info("sampling training pairs",
		"row_counts", counts, "proportion", plan.Proportion, "sample_size", plan.SampleSize)

	sampleClause, err := d.RandomSampleSQL(plan.Proportion, plan.SampleSize, seed)
	if err != nil {
		return nil, err
	}
	sample, err := exec.Execute(ctx, []domain.SQLStep{{
		SQL:             fmt.Sprintf("select * from %s %s", linker.ConcatWithTFTable, sampleClause),
		OutputTableName: SampleTable,
	}}, nodes)
	if err != nil {
		return nil, fmt.Errorf("sample input rows: %w", err)
	}
	defer release(ctx, logger, sample)

	params, err := exec.Execute(ctx, scoreSteps, sample)
	if err != nil {
		return nil, fmt.Errorf("score sampled pairs: %w", err)
	}
	records, err := params.Records(ctx)
	release(ctx, logger, params)
	if err != nil {
		return nil, err
	}
	estimates, err := computeProportions(records)
	if err != nil {
		return nil, err
	}

	res := &UResult{RunID: runID, Plan: plan}
	var unobserved []string
	for _, c := range original.Comparisons {
		for _, level := range c.LevelsExcludingNull() {
			if level.FixedU {
				continue
			}
			name := c.OutputColumnName + ": " + level.Label
			p, ok := estimates.lookup(c.OutputColumnName, level.ComparisonVectorValue)
			if !ok {
				unobserved = append(unobserved, name)
				continue
			}
			level.SetU(p.u, UDescription)
			res.Updated = append(res.Updated, name)
		}
	}
	if len(unobserved) > 0 {
		res.Warning = &domain.SparseTrainingDataWarning{Levels: unobserved}
		logger.Warn("some comparison levels kept their previous u probability", "warning", res.Warning.Error())
	}
	logger.Info("estimated u probabilities using random sampling", "levels", len(res.Updated))
	return res, nil
}

// rowCounts returns the size of each source dataset, or of the whole input
// when deduplicating.
func rowCounts(ctx context.Context, logger *slog.Logger, exec domain.PipelineExecutor, s *settings.Settings, nodes domain.ResultTable) ([]int64, error) {
	res, err := exec.Execute(ctx, []domain.SQLStep{
		blocking.RowCountsSQL(s.Dialect, s.LinkType, linker.ConcatWithTFTable, s.SourceDatasetColumnName),
	}, nodes)
	if err != nil {
		return nil, fmt.Errorf("count input rows: %w", err)
	}
	defer release(ctx, logger, res)

	records, err := res.Records(ctx)
	if err != nil {
		return nil, err
	}
	counts := make([]int64, 0, len(records))
	for _, r := range records {
		n, err := r.Int64("count")
		if err != nil {
			return nil, err
		}
		counts = append(counts, n)
	}
	return counts, nil
}

func release(ctx context.Context, logger *slog.Logger, t domain.ResultTable) {
	if err := t.Release(ctx); err != nil {
		logger.Warn("failed to release intermediate table", "table", t.PhysicalName(), "error", err)
	}
}
