package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"duck-link/internal/blocking"
	"duck-link/internal/settings"
)

type ruleCount struct {
	Rule               string `json:"blocking_rule"`
	PreFilter          int64  `json:"pre_filter"`
	PostFilter         *int64 `json:"post_filter,omitempty"`
	EquiJoinConditions string `json:"equi_join_conditions"`
	FilterConditions   string `json:"filter_conditions"`
}

func newCountComparisonsCmd(env *runtimeEnv) *cobra.Command {
	var (
		inputs       inputFlags
		rules        []string
		linkType     string
		uniqueID     string
		sourceColumn string
		postFilter   bool
		cumulative   bool
		maxRowsLimit float64
	)
	cmd := &cobra.Command{
		Use:   "count-comparisons",
		Short: "Count the pairwise comparisons blocking rules generate",
		Long: "Count the pairwise comparisons blocking rules generate. By default each rule is counted " +
			"on its own; with --cumulative the rules are applied in order and each reports only the pairs " +
			"earlier rules did not already produce.",
		Example: `  duck-link count-comparisons --csv people.csv --rule "l.surname = r.surname" --post-filter
  duck-link count-comparisons --csv a.csv --csv b.csv --link-type link_only \
    --rule "l.dob = r.dob" --rule "l.surname = r.surname" --cumulative`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			lt, err := settings.ParseLinkType(linkType)
			if err != nil {
				return err
			}
			parsed := make([]*blocking.Rule, len(rules))
			for i, sql := range rules {
				if parsed[i], err = blocking.NewRule(sql, 0); err != nil {
					return err
				}
			}

			b, tables, err := env.openInputs(ctx, inputs)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close(ctx) }()

			a := &blocking.Analyzer{
				Executor:                b,
				Dialect:                 b.Dialect(),
				LinkType:                lt,
				Inputs:                  tables,
				UniqueIDColumnName:      uniqueID,
				SourceDatasetColumnName: sourceColumn,
				MaxRowsLimit:            maxRowsLimit,
				Logger:                  env.logger,
			}

			if cumulative {
				rows, err := a.CumulativeComparisons(ctx, parsed)
				if err != nil {
					return err
				}
				if env.output == "json" {
					return printJSON(env.stdout, rows)
				}
				cells := make([][]string, len(rows))
				for i, r := range rows {
					cells[i] = []string{
						strconv.Itoa(r.MatchKey), r.Rule, strconv.FormatInt(r.RowCount, 10),
						strconv.FormatInt(r.CumulativeRows, 10), strconv.FormatInt(r.Cartesian, 10),
					}
				}
				return renderTable(env.stdout, []string{"match key", "blocking rule", "comparisons", "cumulative", "cartesian"}, cells)
			}

			counts := make([]ruleCount, 0, len(parsed))
			for _, r := range parsed {
				c, err := a.CountComparisons(ctx, r, postFilter)
				if err != nil {
					return err
				}
				counts = append(counts, ruleCount{
					Rule:               r.SQL,
					PreFilter:          c.PreFilter,
					PostFilter:         c.PostFilter,
					EquiJoinConditions: c.EquiJoinConditions,
					FilterConditions:   c.FilterConditions,
				})
			}
			if env.output == "json" {
				return printJSON(env.stdout, counts)
			}
			cells := make([][]string, len(counts))
			for i, c := range counts {
				post := "-"
				if c.PostFilter != nil {
					post = strconv.FormatInt(*c.PostFilter, 10)
				}
				cells[i] = []string{
					c.Rule, strconv.FormatInt(c.PreFilter, 10), post,
					orDash(c.EquiJoinConditions), orDash(c.FilterConditions),
				}
			}
			return renderTable(env.stdout, []string{"blocking rule", "pre-filter", "post-filter", "equi-join", "filter"}, cells)
		},
	}
	inputs.register(cmd)
	cmd.Flags().StringArrayVar(&rules, "rule", nil, "Blocking rule (repeatable)")
	_ = cmd.MarkFlagRequired("rule")
	cmd.Flags().StringVar(&linkType, "link-type", string(settings.DedupeOnly), "dedupe_only, link_only or link_and_dedupe")
	cmd.Flags().StringVar(&uniqueID, "unique-id-column", settings.DefaultUniqueIDColumnName, "Unique id column of the inputs")
	cmd.Flags().StringVar(&sourceColumn, "source-dataset-column", settings.DefaultSourceDatasetColumnName, "Source dataset column added when linking")
	cmd.Flags().BoolVar(&postFilter, "post-filter", false, "Also count the pairs left after non-equi conditions")
	cmd.Flags().BoolVar(&cumulative, "cumulative", false, "Count each rule net of the rules before it")
	cmd.Flags().Float64Var(&maxRowsLimit, "max-rows-limit", blocking.DefaultMaxRowsLimit, "Skip expensive counts above this many pairs")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
