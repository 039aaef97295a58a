// Package blocking turns blocking rules into candidate-pair SQL and sizes the
// random sample used for u estimation.
package blocking

import (
	"fmt"
	"strings"

	"duck-link/internal/domain"
	"duck-link/internal/settings"
	"duck-link/internal/sqlexpr"
)

// SaltColumn holds the per-row random value that salted rules partition on.
const SaltColumn = "__splink_salt"

// Rule is a join predicate over the l and r aliases of the input table.
type Rule struct {
	SQL               string
	SaltingPartitions int

	preceding []*Rule
}

// NewRule parses sql to reject malformed predicates early.
func NewRule(sql string, saltingPartitions int) (*Rule, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, domain.ErrValidation("blocking rule is empty")
	}
	if _, err := sqlexpr.Parse(sql); err != nil {
		return nil, domain.ErrValidation("invalid blocking rule %q: %v", sql, err)
	}
	if saltingPartitions < 0 {
		return nil, domain.ErrValidation("salting partitions must not be negative, got %d", saltingPartitions)
	}
	return &Rule{SQL: sql, SaltingPartitions: saltingPartitions}, nil
}

// FromSpecs builds rules from configuration and chains each one to the rules
// before it, so no pair is generated twice.
func FromSpecs(specs []settings.BlockingRuleSpec) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(specs))
	for _, s := range specs {
		r, err := NewRule(s.SQL, s.SaltingPartitions)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	Chain(rules)
	return rules, nil
}

// Chain sets every rule's preceding rules to the rules listed before it.
func Chain(rules []*Rule) {
	for i, r := range rules {
		r.preceding = append([]*Rule(nil), rules[:i]...)
	}
}

// IsSalted reports whether the rule is split into more than one partition.
func (r *Rule) IsSalted() bool { return r.SaltingPartitions > 1 }

// SaltedSQL returns one predicate per partition. An unsalted rule yields its
// own SQL once.
func (r *Rule) SaltedSQL() []string {
	if !r.IsSalted() {
		return []string{r.SQL}
	}
	out := make([]string, r.SaltingPartitions)
	for n := range out {
		out[n] = fmt.Sprintf("%s and ceiling(l.%s * %d) = %d", r.SQL, SaltColumn, r.SaltingPartitions, n+1)
	}
	return out
}

// excludePrecedingSQL removes pairs already produced by earlier rules. A rule
// that evaluates to NULL counts as not having produced the pair.
func (r *Rule) excludePrecedingSQL() string {
	if len(r.preceding) == 0 {
		return ""
	}
	clauses := make([]string, len(r.preceding))
	for i, p := range r.preceding {
		clauses[i] = fmt.Sprintf("coalesce((%s), false)", p.SQL)
	}
	return "AND NOT (" + strings.Join(clauses, " OR ") + ")"
}

// EquiJoinCondition is one l.x = r.y conjunct. Left and Right are the keys
// with the table aliases removed; SQL is the conjunct with the l side first.
type EquiJoinCondition struct {
	Left  string
	Right string
	SQL   string
}

// Conditions splits the rule into equi-join keys and the remaining filter
// conditions. The filter is empty when every conjunct is an equi-join.
func (r *Rule) Conditions() ([]EquiJoinCondition, string, error) {
	expr, err := sqlexpr.Parse(r.SQL)
	if err != nil {
		return nil, "", domain.ErrValidation("invalid blocking rule %q: %v", r.SQL, err)
	}

	var joins []EquiJoinCondition
	var filters []string
	for _, conj := range sqlexpr.SplitConjuncts(expr) {
		if left, right, ok := equiJoinSides(conj); ok {
			qualified := sqlexpr.Format(left, nil) + " = " + sqlexpr.Format(right, nil)
			sqlexpr.StripTables(left)
			sqlexpr.StripTables(right)
			joins = append(joins, EquiJoinCondition{
				Left:  sqlexpr.Format(left, nil),
				Right: sqlexpr.Format(right, nil),
				SQL:   qualified,
			})
			continue
		}
		filters = append(filters, sqlexpr.Format(conj, nil))
	}
	return joins, strings.Join(filters, " AND "), nil
}

// equiJoinSides returns the l-side and r-side operands of an equality whose
// operands each reference exactly one of the two aliases.
func equiJoinSides(e sqlexpr.Expr) (sqlexpr.Expr, sqlexpr.Expr, bool) {
	b, ok := e.(*sqlexpr.BinaryExpr)
	if !ok || (b.Op != sqlexpr.TOKEN_EQ && b.Op != sqlexpr.TOKEN_DBLEQ) {
		return nil, nil, false
	}
	lt, rt := sqlexpr.Tables(b.Left), sqlexpr.Tables(b.Right)
	only := func(tables map[string]bool, alias string) bool {
		return len(tables) == 1 && tables[alias]
	}
	switch {
	case only(lt, "l") && only(rt, "r"):
		return b.Left, b.Right, true
	case only(lt, "r") && only(rt, "l"):
		return b.Right, b.Left, true
	}
	return nil, nil, false
}
