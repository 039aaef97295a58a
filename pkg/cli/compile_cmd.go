package cli

import (
	"github.com/spf13/cobra"

	"duck-link/internal/config"
	"duck-link/internal/dialect"
)

type compiledColumn struct {
	Dialect          string   `json:"dialect"`
	Name             string   `json:"name"`
	NameL            string   `json:"name_l"`
	NameR            string   `json:"name_r"`
	OutputColumnName string   `json:"output_column_name"`
	InputColumns     []string `json:"input_columns"`
}

func newCompileColumnCmd(env *runtimeEnv) *cobra.Command {
	var (
		spec        config.ColumnSpec
		dialectName string
	)
	cmd := &cobra.Command{
		Use:   "compile-column <column-or-expression>",
		Short: "Show the SQL a column expression compiles to",
		Example: `  duck-link compile-column first_name --lower
  duck-link compile-column "dob" --try-parse-date --dialect spark
  duck-link compile-column postcode --regex-extract "^[A-Z]{1,2}" --dialect postgres`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := dialectName
			if name == "" {
				name = env.cfg.Backend
			}
			d, err := dialect.Resolve(name)
			if err != nil {
				return err
			}
			spec.Name = args[0]
			col, err := spec.Expression()
			if err != nil {
				return err
			}
			col = col.Bind(d)

			out := compiledColumn{Dialect: d.Name(), OutputColumnName: col.OutputColumnName()}
			if out.Name, err = col.Name(); err != nil {
				return err
			}
			if out.NameL, err = col.NameL(); err != nil {
				return err
			}
			if out.NameR, err = col.NameR(); err != nil {
				return err
			}
			if out.InputColumns, err = col.InputColumns(); err != nil {
				return err
			}

			if env.output == "json" {
				return printJSON(env.stdout, out)
			}
			return renderTable(env.stdout, []string{"form", "sql"}, [][]string{
				{"name", out.Name},
				{"name_l", out.NameL},
				{"name_r", out.NameR},
				{"output column", out.OutputColumnName},
				{"input columns", joinOrDash(out.InputColumns)},
			})
		},
	}
	cmd.Flags().StringVar(&dialectName, "dialect", "", "Dialect to compile for (default: the configured backend)")
	cmd.Flags().BoolVar(&spec.Lower, "lower", false, "Lowercase the value")
	cmd.Flags().IntSliceVar(&spec.Substr, "substr", nil, "Substring as start,length (1-based)")
	cmd.Flags().StringVar(&spec.RegexExtract, "regex-extract", "", "Regex pattern to extract")
	cmd.Flags().IntVar(&spec.RegexGroup, "regex-group", 0, "Capture group of --regex-extract")
	cmd.Flags().BoolVar(&spec.TryParseDate, "try-parse-date", false, "Parse the value as a date")
	cmd.Flags().StringVar(&spec.DateFormat, "date-format", "", "Date format for --try-parse-date (default: dialect default)")
	return cmd
}
