package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"duck-link/internal/backend"
	"duck-link/internal/config"
	"duck-link/internal/domain"
	"duck-link/internal/estimate"
	"duck-link/internal/linker"
)

// modelFlags are shared by the training commands.
type modelFlags struct {
	settingsPath string
	inputs       inputFlags
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.settingsPath, "settings", "s", "", "YAML model definition")
	_ = cmd.MarkFlagRequired("settings")
	f.inputs.register(cmd)
}

// openLinker loads the model and its inputs. The caller closes the backend.
func (env *runtimeEnv) openLinker(ctx context.Context, f modelFlags) (*linker.Linker, *backend.Backend, error) {
	d, err := env.cfg.Dialect()
	if err != nil {
		return nil, nil, err
	}
	s, err := config.LoadSettingsFile(f.settingsPath, d)
	if err != nil {
		return nil, nil, err
	}
	b, inputs, err := env.openInputs(ctx, f.inputs)
	if err != nil {
		return nil, nil, err
	}
	lk, err := linker.New(s, b, inputs, linker.Options{
		SaltingPartitions: env.cfg.SaltingPartitions,
		Logger:            env.logger,
	})
	if err != nil {
		_ = b.Close(ctx)
		return nil, nil, err
	}
	return lk, b, nil
}

type trainingOutput struct {
	RunID      string                            `json:"run_id"`
	Summary    map[string]interface{}            `json:"summary"`
	Warning    *domain.SparseTrainingDataWarning `json:"warning,omitempty"`
	Parameters []parameterRow                    `json:"parameters"`
	Status     string                            `json:"training_status"`
}

func (env *runtimeEnv) renderTraining(lk *linker.Linker, out trainingOutput) error {
	out.Parameters = parameterRows(lk.Settings())
	out.Status = lk.Settings().TrainingStatus()
	if env.output == "json" {
		return printJSON(env.stdout, out)
	}
	for _, k := range sortedKeys(out.Summary) {
		_, _ = fmt.Fprintf(env.stdout, "%s: %v\n", k, out.Summary[k])
	}
	_, _ = fmt.Fprintln(env.stdout)
	renderWarning(env.stderr, out.Warning)
	return renderParameters(env.stdout, lk.Settings())
}

func newEstimateUCmd(env *runtimeEnv) *cobra.Command {
	var (
		flags    modelFlags
		maxPairs float64
		seed     int64
	)
	cmd := &cobra.Command{
		Use:     "estimate-u",
		Short:   "Estimate u probabilities from randomly sampled pairs",
		Example: `  duck-link estimate-u -s model.yaml --csv people.csv --max-pairs 1e6 --seed 42`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("max-pairs") {
				maxPairs = env.cfg.MaxPairs
			}
			seedPtr := env.cfg.Seed
			if cmd.Flags().Changed("seed") {
				seedPtr = &seed
			}

			lk, b, err := env.openLinker(ctx, flags)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close(ctx) }()

			res, err := estimate.EstimateU(ctx, lk, maxPairs, seedPtr)
			if err != nil {
				return err
			}
			return env.renderTraining(lk, trainingOutput{
				RunID: res.RunID,
				Summary: map[string]interface{}{
					"max_pairs":   maxPairs,
					"proportion":  res.Plan.Proportion,
					"sample_size": res.Plan.SampleSize,
					"updated":     len(res.Updated),
				},
				Warning: res.Warning,
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().Float64Var(&maxPairs, "max-pairs", config.DefaultMaxPairs, "Approximate number of pairs to sample")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for repeatable sampling (duckdb only)")
	return cmd
}

func newEstimateEMCmd(env *runtimeEnv) *cobra.Command {
	var (
		flags modelFlags
		rule  string
		opts  estimate.EMOptions
	)
	cmd := &cobra.Command{
		Use:     "estimate-em",
		Short:   "Estimate m probabilities by expectation maximisation on blocked pairs",
		Example: `  duck-link estimate-em -s model.yaml --csv people.csv --blocking-rule "l.dob = r.dob"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			lk, b, err := env.openLinker(ctx, flags)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close(ctx) }()

			res, err := estimate.EstimateParametersUsingEM(ctx, lk, rule, opts)
			if err != nil {
				return err
			}
			summary := map[string]interface{}{
				"blocking_rule": res.BlockingRule,
				"iterations":    res.Iterations,
				"converged":     res.Converged,
				"max_change":    res.MaxChange,
				"not_trained":   joinOrDash(res.Deactivated),
			}
			summary["probability_two_random_records_match"] = res.ProbabilityTwoRandomRecordsMatch
			return env.renderTraining(lk, trainingOutput{RunID: res.RunID, Summary: summary, Warning: res.Warning})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&rule, "blocking-rule", "", "Blocking rule generating the training pairs")
	_ = cmd.MarkFlagRequired("blocking-rule")
	cmd.Flags().BoolVar(&opts.TrainU, "train-u", false, "Also re-estimate u probabilities")
	cmd.Flags().BoolVar(&opts.FixM, "fix-m", false, "Keep m probabilities at their current values")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", 0, "Iteration limit (default: the model's max_iterations)")
	cmd.Flags().Float64Var(&opts.Convergence, "convergence", 0, "Convergence threshold (default: the model's em_convergence)")
	return cmd
}
