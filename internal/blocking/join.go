package blocking

import (
	"fmt"
	"strings"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/settings"
)

// Table names produced by the blocking stage.
const (
	ConcatTable  = "__splink__df_concat"
	BlockedTable = "__splink__df_blocked"
)

// Join describes how candidate pairs are generated from the input table(s).
type Join struct {
	Dialect  dialect.Dialect
	LinkType settings.LinkType
	// UniqueIDColumns identify a record; with a source dataset column it comes first.
	UniqueIDColumns []string
	Left, Right     string
	// TwoDatasetLinkOnly marks Left and Right as the two datasets of a link_only
	// job, so every pair across them is valid.
	TwoDatasetLinkOnly bool
	Columns            []string
}

// JoinForSettings builds a self-join of input with the blocking columns of s.
func JoinForSettings(s *settings.Settings, input string) (Join, error) {
	cols, err := s.ColumnsToSelectForBlocking()
	if err != nil {
		return Join{}, err
	}
	return Join{
		Dialect:         s.Dialect,
		LinkType:        s.LinkType,
		UniqueIDColumns: s.UniqueIDColumns(),
		Left:            input,
		Right:           input,
		Columns:         cols,
	}, nil
}

// compositeID concatenates the id columns of one side into a single sortable key.
func (j Join) compositeID(side string) string {
	parts := make([]string, len(j.UniqueIDColumns))
	for i, c := range j.UniqueIDColumns {
		parts[i] = side + "." + j.Dialect.QuoteIdentifier(c)
	}
	return strings.Join(parts, " || '-__-' || ")
}

// WhereCondition keeps each unordered pair once and applies the link type.
func (j Join) WhereCondition() string {
	if j.TwoDatasetLinkOnly {
		return "where 1=1"
	}
	where := fmt.Sprintf("where %s < %s", j.compositeID("l"), j.compositeID("r"))
	if j.LinkType == settings.LinkOnly && len(j.UniqueIDColumns) > 1 {
		src := j.Dialect.QuoteIdentifier(j.UniqueIDColumns[0])
		where += fmt.Sprintf(" and l.%s != r.%s", src, src)
	}
	return where
}

// SQL returns the step producing BlockedTable. With no rules every pair
// passes; each rule (or salt partition) becomes one branch of a UNION ALL and
// tags its pairs with the rule's position as match_key.
func (j Join) SQL(rules []*Rule) (domain.SQLStep, error) {
	if len(j.UniqueIDColumns) == 0 {
		return domain.SQLStep{}, domain.ErrValidation("blocking join has no unique id columns")
	}
	if len(rules) == 0 {
		rules = []*Rule{{SQL: "1=1"}}
	}

	cols := strings.Join(j.Columns, ", ")
	where := j.WhereCondition()
	var branches []string
	for key, r := range rules {
		exclude := r.excludePrecedingSQL()
		for _, predicate := range r.SaltedSQL() {
			branches = append(branches, fmt.Sprintf(
				"select %s, '%d' as match_key\nfrom %s as l\ninner join %s as r\non (%s)\n%s\n%s",
				cols, key, j.Left, j.Right, predicate, exclude, where))
		}
	}
	return domain.SQLStep{
		SQL:             strings.Join(branches, "\nUNION ALL\n"),
		OutputTableName: BlockedTable,
	}, nil
}

// ConcatSQL stacks the input tables into ConcatTable. When sourceDatasetColumn
// is set and there is more than one input, each row is tagged with its
// input's name. Salting adds a uniform random SaltColumn.
func ConcatSQL(d dialect.Dialect, inputs []string, sourceDatasetColumn string, salting bool) (domain.SQLStep, error) {
	if len(inputs) == 0 {
		return domain.SQLStep{}, domain.ErrValidation("no input tables to concatenate")
	}
	salt := ""
	if salting {
		salt = ", random() as " + SaltColumn
	}
	parts := make([]string, len(inputs))
	for i, in := range inputs {
		if sourceDatasetColumn != "" && len(inputs) > 1 {
			parts[i] = fmt.Sprintf("select '%s' as %s, *%s from %s",
				strings.ReplaceAll(in, "'", "''"), d.QuoteIdentifier(sourceDatasetColumn), salt, in)
			continue
		}
		parts[i] = fmt.Sprintf("select *%s from %s", salt, in)
	}
	return domain.SQLStep{SQL: strings.Join(parts, "\nUNION ALL\n"), OutputTableName: ConcatTable}, nil
}

// SplitSQL separates a two-dataset table into left and right tables by its
// smallest and largest source dataset value.
func SplitSQL(d dialect.Dialect, input, sourceDatasetColumn string) []domain.SQLStep {
	col := d.QuoteIdentifier(sourceDatasetColumn)
	return []domain.SQLStep{
		{
			SQL:             fmt.Sprintf("select * from %s where %s = (select min(%s) from %s)", input, col, col, input),
			OutputTableName: input + "_left",
		},
		{
			SQL:             fmt.Sprintf("select * from %s where %s = (select max(%s) from %s)", input, col, col, input),
			OutputTableName: input + "_right",
		},
	}
}

// RowCountsSQL counts rows of input, per source dataset unless deduplicating.
func RowCountsSQL(d dialect.Dialect, lt settings.LinkType, input, sourceDatasetColumn string) domain.SQLStep {
	sql := "select count(*) as count from " + input
	if lt != settings.DedupeOnly {
		sql += " group by " + d.QuoteIdentifier(sourceDatasetColumn)
	}
	return domain.SQLStep{SQL: sql, OutputTableName: input + "_count"}
}
