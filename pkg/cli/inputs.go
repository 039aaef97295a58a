package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"duck-link/internal/backend"
	"duck-link/internal/colexpr"
	"duck-link/internal/dialect"
	"duck-link/internal/domain"
)

// inputFlags selects the tables a command reads.
type inputFlags struct {
	tables []string
	csvs   []string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.tables, "table", nil, "Existing input table in the database (repeatable)")
	cmd.Flags().StringSliceVar(&f.csvs, "csv", nil, "CSV file loaded as an input table, duckdb only (repeatable)")
}

// openInputs opens the configured backend and registers the inputs on it. The
// caller closes the backend.
func (env *runtimeEnv) openInputs(ctx context.Context, f inputFlags) (*backend.Backend, []domain.ResultTable, error) {
	if len(f.tables)+len(f.csvs) == 0 {
		return nil, nil, domain.ErrValidation("no inputs: pass --table or --csv")
	}
	d, err := env.cfg.Dialect()
	if err != nil {
		return nil, nil, err
	}
	if len(f.csvs) > 0 && d != dialect.DuckDB {
		return nil, nil, domain.ErrValidation("--csv needs the duckdb backend, got %s", d.Name())
	}

	b, err := backend.Open(ctx, d, env.cfg.DSN, env.logger)
	if err != nil {
		return nil, nil, err
	}
	var inputs []domain.ResultTable
	for _, name := range f.tables {
		inputs = append(inputs, b.RegisterTable(name))
	}
	for _, path := range f.csvs {
		name := csvTableName(path)
		t, err := b.RegisterQuery(ctx, name,
			fmt.Sprintf("select * from read_csv_auto('%s')", strings.ReplaceAll(path, "'", "''")))
		if err != nil {
			_ = b.Close(ctx)
			return nil, nil, err
		}
		inputs = append(inputs, t)
	}
	return b, inputs, nil
}

// csvTableName derives an identifier from a file name: data/people-2024.csv
// becomes people_2024.
func csvTableName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return colexpr.New(base).OutputColumnName()
}
