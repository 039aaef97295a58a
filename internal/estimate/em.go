package estimate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"duck-link/internal/blocking"
	"duck-link/internal/comparison"
	"duck-link/internal/domain"
	"duck-link/internal/linker"
	"duck-link/internal/settings"
	"duck-link/internal/sqlexpr"
)

// EMOptions tune an expectation maximisation session.
type EMOptions struct {
	// TrainU lets the session overwrite u probabilities. By default u stays
	// fixed, as it is better estimated by EstimateU.
	TrainU bool
	// FixM keeps m probabilities at their current values.
	FixM bool
	// MaxIterations and Convergence override the model's settings when positive.
	MaxIterations int
	Convergence   float64
}

// EMResult reports an expectation maximisation session.
type EMResult struct {
	RunID        string
	BlockingRule string
	Iterations   int
	Converged    bool
	MaxChange    float64
	// Deactivated lists comparisons that use a column of the blocking rule.
	// Their parameters cannot be learned in this session and are left alone.
	Deactivated []string
	// ProbabilityTwoRandomRecordsMatch is the match rate among the blocked
	// pairs at the end of the session.
	ProbabilityTwoRandomRecordsMatch float64
	Warning                          *domain.SparseTrainingDataWarning
}

// Tables of the EM stages.
const (
	matchWeightPartsTable = "__splink__df_match_weight_parts"
	bayesFactorTable      = "__splink__df_bf_product"
)

// EstimateParametersUsingEM trains m (and optionally u) probabilities on the
// pairs produced by blockingRule. Each iteration scores every pair with the
// current parameters, then re-estimates the parameters from the scores, until
// no parameter moves by more than the convergence threshold.
func EstimateParametersUsingEM(ctx context.Context, lk *linker.Linker, blockingRule string, opts EMOptions) (*EMResult, error) {
	rule, err := blocking.NewRule(blockingRule, 0)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger := lk.Logger().With("run_id", runID, "blocking_rule", rule.SQL)

	original := lk.Settings()
	training := original.Clone()
	training.RetainMatchingColumns = false
	training.RetainIntermediateCalculationColumns = false
	training.DisableTermFrequencies()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = training.MaxIterations
	}
	if opts.Convergence <= 0 {
		opts.Convergence = training.EMConvergence
	}

	res := &EMResult{RunID: runID, BlockingRule: rule.SQL}
	active, deactivated, err := splitByRuleColumns(training.Comparisons, rule)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, domain.ErrValidation("blocking rule %q uses the columns of every comparison; nothing to train", rule.SQL)
	}
	res.Deactivated = deactivated
	training.Comparisons = active
	for _, c := range active {
		seedStartingValues(c)
	}
	if len(deactivated) > 0 {
		logger.Info("comparisons not trained in this session", "comparisons", deactivated)
	}

	exec := lk.Executor()
	join, err := blocking.JoinForSettings(training, linker.ConcatWithTFTable)
	if err != nil {
		return nil, err
	}
	blocked, err := join.SQL([]*blocking.Rule{rule})
	if err != nil {
		return nil, err
	}
	vectors, err := comparison.VectorsSQL(training)
	if err != nil {
		return nil, err
	}

	nodes, err := lk.InitialiseConcatWithTF(ctx)
	if err != nil {
		return nil, err
	}
	defer release(ctx, logger, nodes)

	cv, err := exec.Execute(ctx, []domain.SQLStep{blocked, vectors}, nodes)
	if err != nil {
		return nil, fmt.Errorf("compute comparison vectors: %w", err)
	}
	defer release(ctx, logger, cv)

	var estimates parameterEstimates
	for i := 1; i <= opts.MaxIterations; i++ {
		estimates, err = iterate(ctx, logger, exec, training, cv)
		if err != nil {
			return nil, fmt.Errorf("EM iteration %d: %w", i, err)
		}
		res.Iterations = i
		res.MaxChange = applyEstimates(training, estimates, opts)
		logger.Info("EM iteration", "iteration", i, "max_change", res.MaxChange,
			"probability_two_random_records_match", training.ProbabilityTwoRandomRecordsMatch)
		if res.MaxChange < opts.Convergence {
			res.Converged = true
			break
		}
	}
	res.ProbabilityTwoRandomRecordsMatch = training.ProbabilityTwoRandomRecordsMatch

	description := "estimate m by EM training session blocked on " + rule.SQL
	var unobserved []string
	for _, tc := range active {
		c, err := original.Comparison(tc.OutputColumnName)
		if err != nil {
			return nil, err
		}
		for _, level := range c.LevelsExcludingNull() {
			if _, ok := estimates.lookup(c.OutputColumnName, level.ComparisonVectorValue); !ok {
				unobserved = append(unobserved, c.OutputColumnName+": "+level.Label)
				continue
			}
			trained, err := tc.Level(level.ComparisonVectorValue)
			if err != nil {
				return nil, err
			}
			if !opts.FixM && !level.FixedM {
				level.SetM(*trained.MProbability, description)
			}
			if opts.TrainU && !level.FixedU {
				level.SetU(*trained.UProbability, strings.Replace(description, "estimate m", "estimate u", 1))
			}
		}
	}
	if len(unobserved) > 0 {
		res.Warning = &domain.SparseTrainingDataWarning{Levels: unobserved}
		logger.Warn("some comparison levels kept their previous parameters", "warning", res.Warning.Error())
	}
	logger.Info("EM training session finished", "iterations", res.Iterations, "converged", res.Converged)
	return res, nil
}

// iterate scores the comparison vectors with the current parameters and
// returns the re-estimated proportions.
func iterate(ctx context.Context, logger *slog.Logger, exec domain.PipelineExecutor, s *settings.Settings, cv domain.ResultTable) (parameterEstimates, error) {
	q := s.Dialect.QuoteIdentifier
	bfCases := make([]string, len(s.Comparisons))
	bfCols := make([]string, len(s.Comparisons))
	for i, c := range s.Comparisons {
		bfCases[i] = c.BayesFactorCaseStatement(s.Dialect)
		bfCols[i] = q(c.BayesFactorColumn())
	}
	prior := strconv.FormatFloat(settings.ProbToBayesFactor(s.ProbabilityTwoRandomRecordsMatch), 'g', -1, 64)

	steps := []domain.SQLStep{
		{
			SQL:             fmt.Sprintf("select *, %s from %s", strings.Join(bfCases, ", "), comparison.ComparisonVectorsTable),
			OutputTableName: matchWeightPartsTable,
		},
		{
			SQL: fmt.Sprintf("select *, cast(%s as float8) * %s as __splink__bf_product from %s",
				prior, strings.Join(bfCols, " * "), matchWeightPartsTable),
			OutputTableName: bayesFactorTable,
		},
		{
			SQL: "select *, case when __splink__bf_product > 1e300 then cast(1 as float8) " +
				"else __splink__bf_product / (1 + __splink__bf_product) end as match_probability from " + bayesFactorTable,
			OutputTableName: PredictTable,
		},
		newParametersSQL(s.Comparisons, q),
	}
	params, err := exec.Execute(ctx, steps, cv)
	if err != nil {
		return parameterEstimates{}, err
	}
	defer release(ctx, logger, params)
	records, err := params.Records(ctx)
	if err != nil {
		return parameterEstimates{}, err
	}
	return computeProportions(records)
}

// applyEstimates writes estimates onto the training model and returns the
// largest absolute change of any trained parameter.
func applyEstimates(s *settings.Settings, est parameterEstimates, opts EMOptions) float64 {
	var maxChange float64
	track := func(old *float64, next float64) {
		if old != nil {
			maxChange = math.Max(maxChange, math.Abs(next-*old))
		} else {
			maxChange = math.Inf(1)
		}
	}
	for _, c := range s.Comparisons {
		for _, level := range c.LevelsExcludingNull() {
			p, ok := est.lookup(c.OutputColumnName, level.ComparisonVectorValue)
			if !ok {
				continue
			}
			if !opts.FixM && !level.FixedM {
				track(level.MProbability, p.m)
				level.SetM(p.m, "")
			}
			if opts.TrainU && !level.FixedU {
				track(level.UProbability, p.u)
				level.SetU(p.u, "")
			}
		}
	}
	if est.hasPrior && est.prior > 0 && est.prior < 1 {
		s.ProbabilityTwoRandomRecordsMatch = est.prior
	}
	return maxChange
}

// splitByRuleColumns separates comparisons that read a column the blocking
// rule joins on. Those pairs agree on the column by construction, so the
// session cannot learn its parameters.
func splitByRuleColumns(comparisons []*settings.Comparison, rule *blocking.Rule) ([]*settings.Comparison, []string, error) {
	expr, err := sqlexpr.Parse(rule.SQL)
	if err != nil {
		return nil, nil, domain.ErrValidation("invalid blocking rule %q: %v", rule.SQL, err)
	}
	used := make(map[string]bool)
	for _, ref := range sqlexpr.Columns(expr) {
		used[ref.Column] = true
	}

	var active []*settings.Comparison
	var deactivated []string
	for _, c := range comparisons {
		inputs, err := c.InputColumns()
		if err != nil {
			return nil, nil, err
		}
		blockedOn := false
		for _, in := range inputs {
			blockedOn = blockedOn || used[in]
		}
		if blockedOn {
			deactivated = append(deactivated, c.OutputColumnName)
			continue
		}
		active = append(active, c)
	}
	return active, deactivated, nil
}

// seedStartingValues fills missing m and u probabilities with defaults so the
// first iteration can score pairs.
func seedStartingValues(c *settings.Comparison) {
	levels := c.LevelsExcludingNull()
	ms := settings.DefaultMValues(len(levels))
	us := settings.DefaultUValues(len(levels))
	for i, l := range levels {
		if l.MProbability == nil {
			l.SetM(ms[i], "default starting value")
		}
		if l.UProbability == nil {
			l.SetU(us[i], "default starting value")
		}
	}
}
