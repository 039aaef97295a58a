// Package cli is the duck-link command-line front end.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"duck-link/internal/config"
	"duck-link/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			if kind := errorKind(err); kind != "" {
				errObj["kind"] = kind
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorKind names the domain error class of err, if any.
func errorKind(err error) string {
	var (
		notFound    *domain.NotFoundError
		invalid     *domain.ValidationError
		capability  *domain.CapabilityUnsupportedError
		unknown     *domain.UnknownDialectError
		degenerate  *domain.DegenerateInputError
		unsupported *domain.UnsupportedOptionError
	)
	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &invalid):
		return "validation"
	case errors.As(err, &capability):
		return "capability_unsupported"
	case errors.As(err, &unknown):
		return "unknown_dialect"
	case errors.As(err, &degenerate):
		return "degenerate_input"
	case errors.As(err, &unsupported):
		return "unsupported_option"
	}
	return ""
}

// runtimeEnv is the resolved configuration shared by subcommands.
type runtimeEnv struct {
	cfg    *config.Config
	logger *slog.Logger
	output string
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd() *cobra.Command {
	var (
		backendName string
		dsn         string
		logLevel    string
		output      string
		envFile     string
	)
	env := &runtimeEnv{stdout: os.Stdout, stderr: os.Stderr}

	rootCmd := &cobra.Command{
		Use:           "duck-link",
		Short:         "Probabilistic record linkage on SQL engines",
		Long:          "Train Fellegi-Sunter record linkage models by generating SQL for DuckDB, SQLite or Postgres.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			// Apply precedence: flag > env > default
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backendName
				if _, err := cfg.Dialect(); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("dsn") {
				cfg.DSN = dsn
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
			}

			env.stdout = cmd.OutOrStdout()
			env.stderr = cmd.ErrOrStderr()
			env.cfg = cfg
			env.output = output
			env.logger = slog.New(slog.NewTextHandler(env.stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			for _, w := range cfg.Warnings {
				env.logger.Warn(w)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&backendName, "backend", config.DefaultBackend, "Execution backend (duckdb, sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database DSN (default: in-memory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before reading the environment")

	rootCmd.AddCommand(newDialectsCmd(env))
	rootCmd.AddCommand(newCompileColumnCmd(env))
	rootCmd.AddCommand(newEstimateUCmd(env))
	rootCmd.AddCommand(newEstimateEMCmd(env))
	rootCmd.AddCommand(newCountComparisonsCmd(env))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
