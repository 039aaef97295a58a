package blocking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// DefaultMaxRowsLimit caps the comparisons a rule may generate before the
// analysis refuses to evaluate it further.
const DefaultMaxRowsLimit = 1e9

const countColumn = "count_of_pairwise_comparisons_generated"

// Analyzer counts the comparisons blocking rules generate over registered
// input tables.
type Analyzer struct {
	Executor domain.PipelineExecutor
	Dialect  dialect.Dialect
	LinkType settings.LinkType
	Inputs   []domain.ResultTable

	UniqueIDColumnName      string
	SourceDatasetColumnName string
	MaxRowsLimit            float64

	Logger *slog.Logger
}

// ComparisonCount describes the work a single rule generates. PostFilter is
// nil when it was not requested or the pre-filter count exceeded the limit.
type ComparisonCount struct {
	PreFilter          int64
	PostFilter         *int64
	FilterConditions   string
	EquiJoinConditions string
}

// CumulativeRow is one rule's contribution once earlier rules' pairs are removed.
type CumulativeRow struct {
	Rule           string
	MatchKey       int
	RowCount       int64
	CumulativeRows int64
	Start          int64
	Cartesian      int64
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *Analyzer) maxRowsLimit() float64 {
	if a.MaxRowsLimit <= 0 {
		return DefaultMaxRowsLimit
	}
	return a.MaxRowsLimit
}

func (a *Analyzer) sourceDatasetColumn() string {
	if a.SourceDatasetColumnName == "" {
		return settings.DefaultSourceDatasetColumnName
	}
	return a.SourceDatasetColumnName
}

func (a *Analyzer) uniqueIDColumns() []string {
	uid := a.UniqueIDColumnName
	if uid == "" {
		uid = settings.DefaultUniqueIDColumnName
	}
	if a.LinkType == settings.DedupeOnly {
		return []string{uid}
	}
	return []string{a.sourceDatasetColumn(), uid}
}

func (a *Analyzer) twoDatasetLinkOnly() bool {
	return a.LinkType == settings.LinkOnly && len(a.Inputs) == 2
}

func (a *Analyzer) inputNames() []string {
	names := make([]string, len(a.Inputs))
	for i, in := range a.Inputs {
		names[i] = in.TemplatedName()
	}
	return names
}

// concat returns the step stacking the inputs into ConcatTable.
func (a *Analyzer) concat(withSourceDataset bool) ([]domain.SQLStep, error) {
	src := ""
	if withSourceDataset && a.LinkType != settings.DedupeOnly {
		src = a.sourceDatasetColumn()
	}
	step, err := ConcatSQL(a.Dialect, a.inputNames(), src, false)
	if err != nil {
		return nil, err
	}
	return []domain.SQLStep{step}, nil
}

// records executes steps and reads the result, which is released before
// returning.
func (a *Analyzer) records(ctx context.Context, steps []domain.SQLStep) ([]domain.Record, error) {
	res, err := a.Executor.Execute(ctx, steps, a.Inputs...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Release(ctx); err != nil {
			a.logger().Warn("release blocking analysis table", "table", res.PhysicalName(), "error", err)
		}
	}()
	return res.Records(ctx)
}

func (a *Analyzer) count(ctx context.Context, steps []domain.SQLStep) (int64, error) {
	recs, err := a.records(ctx, steps)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[0].Int64(countColumn)
}

// preFilterSteps counts pairs sharing every equi-join key, ignoring filters.
func (a *Analyzer) preFilterSteps(joins []EquiJoinCondition) ([]domain.SQLStep, error) {
	var steps []domain.SQLStep
	left, right := ConcatTable, ConcatTable
	if a.twoDatasetLinkOnly() {
		left, right = a.Inputs[0].TemplatedName(), a.Inputs[1].TemplatedName()
	} else {
		concat, err := a.concat(false)
		if err != nil {
			return nil, err
		}
		steps = append(steps, concat...)
	}

	if len(joins) == 0 {
		sql := fmt.Sprintf("select count(*) * count(*) as %s from %s", countColumn, ConcatTable)
		if a.twoDatasetLinkOnly() {
			sql = fmt.Sprintf("select (select count(*) from %s) * (select count(*) from %s) as %s", left, right, countColumn)
		}
		return append(steps, domain.SQLStep{SQL: sql, OutputTableName: "__splink__total_of_block_counts"}), nil
	}

	var lSel, rSel, lGroup, rGroup, using []string
	for i, j := range joins {
		lSel = append(lSel, fmt.Sprintf("%s as key_%d", j.Left, i))
		rSel = append(rSel, fmt.Sprintf("%s as key_%d", j.Right, i))
		lGroup = append(lGroup, j.Left)
		rGroup = append(rGroup, j.Right)
		using = append(using, fmt.Sprintf("key_%d", i))
	}
	return append(steps,
		domain.SQLStep{
			SQL: fmt.Sprintf("select %s, count(*) as count_l from %s group by %s",
				strings.Join(lSel, ", "), left, strings.Join(lGroup, ", ")),
			OutputTableName: "__splink__count_comparisons_from_blocking_l",
		},
		domain.SQLStep{
			SQL: fmt.Sprintf("select %s, count(*) as count_r from %s group by %s",
				strings.Join(rSel, ", "), right, strings.Join(rGroup, ", ")),
			OutputTableName: "__splink__count_comparisons_from_blocking_r",
		},
		domain.SQLStep{
			SQL: "select count_l * count_r as block_count from __splink__count_comparisons_from_blocking_l " +
				"inner join __splink__count_comparisons_from_blocking_r using (" + strings.Join(using, ", ") + ")",
			OutputTableName: "__splink__block_counts",
		},
		domain.SQLStep{
			SQL: fmt.Sprintf("select cast(coalesce(sum(block_count), 0) as bigint) as %s from __splink__block_counts",
				countColumn),
			OutputTableName: "__splink__total_of_block_counts",
		},
	), nil
}

// postFilterSteps counts the pairs the rule actually produces after the link
// type's where condition.
func (a *Analyzer) postFilterSteps(rule *Rule) ([]domain.SQLStep, error) {
	j := Join{
		Dialect:            a.Dialect,
		LinkType:           a.LinkType,
		UniqueIDColumns:    a.uniqueIDColumns(),
		Left:               ConcatTable,
		Right:              ConcatTable,
		TwoDatasetLinkOnly: a.twoDatasetLinkOnly(),
	}
	var steps []domain.SQLStep
	if j.TwoDatasetLinkOnly {
		j.Left, j.Right = a.Inputs[0].TemplatedName(), a.Inputs[1].TemplatedName()
	} else {
		concat, err := a.concat(true)
		if err != nil {
			return nil, err
		}
		steps = append(steps, concat...)
	}
	return append(steps, domain.SQLStep{
		SQL: fmt.Sprintf("select count(*) as %s from %s as l inner join %s as r on (%s) %s",
			countColumn, j.Left, j.Right, rule.SQL, j.WhereCondition()),
		OutputTableName: "__splink__comparisons_post_filter",
	}), nil
}

// CountComparisons reports how many comparisons rule generates. The
// post-filter count runs a real join, so it is skipped once the pre-filter
// count reaches the row limit.
func (a *Analyzer) CountComparisons(ctx context.Context, rule *Rule, computePostFilter bool) (*ComparisonCount, error) {
	joins, filters, err := rule.Conditions()
	if err != nil {
		return nil, err
	}
	steps, err := a.preFilterSteps(joins)
	if err != nil {
		return nil, err
	}
	pre, err := a.count(ctx, steps)
	if err != nil {
		return nil, fmt.Errorf("count pre-filter comparisons for %q: %w", rule.SQL, err)
	}

	equi := make([]string, len(joins))
	for i, j := range joins {
		equi[i] = j.SQL
	}
	out := &ComparisonCount{
		PreFilter:          pre,
		FilterConditions:   filters,
		EquiJoinConditions: strings.Join(equi, " AND "),
	}
	if !computePostFilter {
		return out, nil
	}
	if float64(pre) >= a.maxRowsLimit() {
		a.logger().Warn("skipped post-filter comparison count",
			"blocking_rule", rule.SQL, "pre_filter", pre, "max_rows_limit", a.maxRowsLimit())
		return out, nil
	}

	steps, err = a.postFilterSteps(rule)
	if err != nil {
		return nil, err
	}
	post, err := a.count(ctx, steps)
	if err != nil {
		return nil, fmt.Errorf("count post-filter comparisons for %q: %w", rule.SQL, err)
	}
	out.PostFilter = &post
	return out, nil
}

// RowCounts returns the row count of each source dataset, or of the whole
// input when deduplicating.
func (a *Analyzer) RowCounts(ctx context.Context) ([]int64, error) {
	steps, err := a.concat(true)
	if err != nil {
		return nil, err
	}
	steps = append(steps, RowCountsSQL(a.Dialect, a.LinkType, ConcatTable, a.sourceDatasetColumn()))
	recs, err := a.records(ctx, steps)
	if err != nil {
		return nil, err
	}
	counts := make([]int64, 0, len(recs))
	for _, r := range recs {
		n, err := r.Int64("count")
		if err != nil {
			return nil, err
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// CumulativeComparisons reports, for each rule in order, how many new pairs it
// adds once pairs produced by earlier rules are removed. Every rule's
// pre-filter count is checked against the row limit first.
func (a *Analyzer) CumulativeComparisons(ctx context.Context, rules []*Rule) ([]CumulativeRow, error) {
	if err := a.checkLimits(ctx, rules); err != nil {
		return nil, err
	}

	counts, err := a.RowCounts(ctx)
	if err != nil {
		return nil, err
	}
	cartesian, err := Cartesian(a.LinkType, counts)
	if err != nil {
		return nil, err
	}

	chained := make([]*Rule, len(rules))
	for i, r := range rules {
		cp := *r
		chained[i] = &cp
	}
	Chain(chained)

	steps, err := a.concat(true)
	if err != nil {
		return nil, err
	}
	j := Join{
		Dialect:            a.Dialect,
		LinkType:           a.LinkType,
		UniqueIDColumns:    a.uniqueIDColumns(),
		Left:               ConcatTable,
		Right:              ConcatTable,
		TwoDatasetLinkOnly: a.twoDatasetLinkOnly(),
	}
	if j.TwoDatasetLinkOnly {
		split := SplitSQL(a.Dialect, ConcatTable, a.sourceDatasetColumn())
		steps = append(steps, split...)
		j.Left, j.Right = split[0].OutputTableName, split[1].OutputTableName
	}
	for _, id := range j.UniqueIDColumns {
		q := a.Dialect.QuoteIdentifier
		j.Columns = append(j.Columns,
			fmt.Sprintf("l.%s as %s", q(id), q(id+"_l")),
			fmt.Sprintf("r.%s as %s", q(id), q(id+"_r")))
	}
	blocked, err := j.SQL(chained)
	if err != nil {
		return nil, err
	}
	steps = append(steps, blocked, domain.SQLStep{
		SQL:             "select count(*) as row_count, match_key from " + BlockedTable + " group by match_key",
		OutputTableName: "__splink__df_count_cumulative_blocks",
	})

	recs, err := a.records(ctx, steps)
	if err != nil {
		return nil, err
	}
	byKey := make(map[int]int64, len(recs))
	for _, r := range recs {
		key, err := strconv.Atoi(r.String("match_key"))
		if err != nil {
			return nil, fmt.Errorf("parse match_key: %w", err)
		}
		n, err := r.Int64("row_count")
		if err != nil {
			return nil, err
		}
		byKey[key] = n
	}

	out := make([]CumulativeRow, len(rules))
	var cumulative int64
	for i, r := range rules {
		n := byKey[i]
		out[i] = CumulativeRow{
			Rule:           r.SQL,
			MatchKey:       i,
			RowCount:       n,
			Start:          cumulative,
			CumulativeRows: cumulative + n,
			Cartesian:      cartesian,
		}
		cumulative += n
	}
	return out, nil
}

// limitCheck is one distinct pre-filter count and the rules that share it.
type limitCheck struct {
	steps []domain.SQLStep
	rules []*Rule
}

// checkLimits counts pre-filter comparisons concurrently and fails on the
// first rule over the row limit. Rules with the same equi-join keys share
// one count.
func (a *Analyzer) checkLimits(ctx context.Context, rules []*Rule) error {
	checks := make(map[string]*limitCheck, len(rules))
	for _, r := range rules {
		joins, _, err := r.Conditions()
		if err != nil {
			return err
		}
		steps, err := a.preFilterSteps(joins)
		if err != nil {
			return err
		}
		key := stepsKey(steps)
		if c, ok := checks[key]; ok {
			c.rules = append(c.rules, r)
			continue
		}
		checks[key] = &limitCheck{steps: steps, rules: []*Rule{r}}
	}
	keys := make([]string, 0, len(checks))
	for k := range checks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, k := range keys {
		check := checks[k]
		g.Go(func() error {
			pre, err := a.count(gctx, check.steps)
			if err != nil {
				return fmt.Errorf("count pre-filter comparisons for %q: %w", check.rules[0].SQL, err)
			}
			if float64(pre) > a.maxRowsLimit() {
				return domain.ErrValidation(
					"blocking rule %s would create %d comparisons, exceeding max_rows_limit %g; tighten the rule or raise the limit",
					check.rules[0].SQL, pre, a.maxRowsLimit())
			}
			return nil
		})
	}
	return g.Wait()
}

func stepsKey(steps []domain.SQLStep) string {
	var sb strings.Builder
	for _, s := range steps {
		sb.WriteString(s.OutputTableName)
		sb.WriteString("\x00")
		sb.WriteString(s.SQL)
		sb.WriteString("\x00")
	}
	return sb.String()
}
