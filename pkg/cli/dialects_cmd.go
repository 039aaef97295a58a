package cli

import (
	"github.com/spf13/cobra"

	"duck-link/internal/dialect"
)

var capabilities = []dialect.Capability{
	dialect.CapLevenshtein,
	dialect.CapDamerauLevenshtein,
	dialect.CapJaro,
	dialect.CapJaroWinkler,
	dialect.CapJaccard,
	dialect.CapTryParseDate,
	dialect.CapRegexExtract,
	dialect.CapRandomSample,
	dialect.CapExplodeArrays,
	dialect.CapArrayIntersect,
	dialect.CapInfinity,
}

type dialectInfo struct {
	Name         string   `json:"name"`
	ParserName   string   `json:"parser_name"`
	Capabilities []string `json:"capabilities"`
}

func newDialectsCmd(env *runtimeEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List the SQL dialects and the features each supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var infos []dialectInfo
			for _, name := range dialect.Names() {
				d, err := dialect.Resolve(name)
				if err != nil {
					return err
				}
				info := dialectInfo{Name: d.Name(), ParserName: d.ParserName()}
				for _, c := range capabilities {
					if dialect.Supports(d, c) {
						info.Capabilities = append(info.Capabilities, string(c))
					}
				}
				infos = append(infos, info)
			}

			if env.output == "json" {
				return printJSON(env.stdout, infos)
			}
			rows := make([][]string, len(infos))
			for i, info := range infos {
				rows[i] = []string{info.Name, info.ParserName, joinOrDash(info.Capabilities)}
			}
			return renderTable(env.stdout, []string{"dialect", "parser", "capabilities"}, rows)
		},
	}
}
