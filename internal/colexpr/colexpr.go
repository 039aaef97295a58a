// Package colexpr builds dialect-agnostic column transforms. A ColumnExpression
// records a source column (or SQL expression) plus an ordered chain of
// transforms; SQL text is only produced once a dialect is bound.
package colexpr

import (
	"fmt"
	"regexp"
	"strings"

	"duck-link/internal/dialect"
	"duck-link/internal/domain"
	"duck-link/internal/sqlexpr"
)

// sqlExpressionPattern marks raw input that is treated as a SQL expression
// rather than a column name: a parenthesised group or a || concatenation.
var sqlExpressionPattern = regexp.MustCompile(`\([^)]*\)`)

type operation struct {
	apply func(sql string, d dialect.Dialect) (string, error)
}

// ColumnExpression is an immutable value. Every transform returns a copy with
// its own operation list.
type ColumnExpression struct {
	raw     string
	ops     []operation
	dialect dialect.Dialect
}

// New creates a ColumnExpression over a column name or SQL expression.
func New(raw string) ColumnExpression {
	return ColumnExpression{raw: raw}
}

func (c ColumnExpression) with(op operation) ColumnExpression {
	clone := c
	clone.ops = make([]operation, len(c.ops), len(c.ops)+1)
	copy(clone.ops, c.ops)
	clone.ops = append(clone.ops, op)
	return clone
}

// Bind returns a copy bound to d.
func (c ColumnExpression) Bind(d dialect.Dialect) ColumnExpression {
	clone := c
	clone.ops = append([]operation(nil), c.ops...)
	clone.dialect = d
	return clone
}

// Dialect returns the bound dialect, or nil.
func (c ColumnExpression) Dialect() dialect.Dialect { return c.dialect }

// Raw returns the source text the expression was created from.
func (c ColumnExpression) Raw() string { return c.raw }

// Lower lowercases the current value.
func (c ColumnExpression) Lower() ColumnExpression {
	return c.with(operation{apply: func(sql string, d dialect.Dialect) (string, error) {
		return d.Lower(sql), nil
	}})
}

// Substr takes length characters starting at the 1-based position start.
func (c ColumnExpression) Substr(start, length int) ColumnExpression {
	return c.with(operation{apply: func(sql string, d dialect.Dialect) (string, error) {
		return d.Substring(sql, start, length), nil
	}})
}

// RegexExtract extracts the given capture group of pattern; group 0 is the
// whole match. An empty match becomes NULL.
func (c ColumnExpression) RegexExtract(pattern string, group int) ColumnExpression {
	return c.with(operation{apply: func(sql string, d dialect.Dialect) (string, error) {
		return dialect.RegexExtract(d, sql, pattern, group)
	}})
}

// TryParseDate parses the value as a date, yielding NULL when it does not
// parse. An empty format uses the dialect default.
func (c ColumnExpression) TryParseDate(format string) ColumnExpression {
	return c.with(operation{apply: func(sql string, d dialect.Dialect) (string, error) {
		return d.TryParseDate(sql, format)
	}})
}

// rawIsPureColumn applies the column-vs-expression heuristic to the raw input.
func (c ColumnExpression) rawIsPureColumn() bool {
	return !sqlExpressionPattern.MatchString(c.raw) && !strings.Contains(c.raw, "||")
}

// IsPureColumn reports whether the expression is a bare column with no transforms.
func (c ColumnExpression) IsPureColumn() bool {
	return len(c.ops) == 0 && c.rawIsPureColumn()
}

// baseTree parses the raw input. A bare column name is taken literally, so a
// name containing spaces or punctuation is still one identifier.
func (c ColumnExpression) baseTree() (sqlexpr.Expr, error) {
	if c.rawIsPureColumn() {
		if expr, err := sqlexpr.Parse(c.raw); err == nil {
			if ref, ok := expr.(*sqlexpr.ColumnRef); ok {
				ref.Quoted = true
				return ref, nil
			}
		}
		return &sqlexpr.ColumnRef{Column: strings.TrimSpace(c.raw), Quoted: true}, nil
	}
	expr, err := sqlexpr.Parse(c.raw)
	if err != nil {
		return nil, domain.ErrValidation("cannot parse column expression %q: %v", c.raw, err)
	}
	return expr, nil
}

func (c ColumnExpression) resolve(suffix string) (string, error) {
	if c.dialect == nil {
		return "", domain.ErrValidation("column expression %q has no dialect bound", c.raw)
	}

	var sql string
	if suffix == "" && !c.rawIsPureColumn() {
		sql = c.raw
	} else {
		tree, err := c.baseTree()
		if err != nil {
			return "", err
		}
		sqlexpr.SuffixColumns(tree, suffix)
		sql = sqlexpr.Format(tree, c.dialect.QuoteIdentifier)
	}

	for i, op := range c.ops {
		next, err := op.apply(sql, c.dialect)
		if err != nil {
			return "", fmt.Errorf("transform %d of %q: %w", i+1, c.raw, err)
		}
		sql = next
	}
	return sql, nil
}

// Name is the transformed expression over the unsuffixed input.
func (c ColumnExpression) Name() (string, error) { return c.resolve("") }

// NameL is the transformed expression with every column suffixed _l.
func (c ColumnExpression) NameL() (string, error) { return c.resolve("_l") }

// NameR is the transformed expression with every column suffixed _r.
func (c ColumnExpression) NameR() (string, error) { return c.resolve("_r") }

// InputColumns returns the unqualified source column names the expression reads.
func (c ColumnExpression) InputColumns() ([]string, error) {
	tree, err := c.baseTree()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, ref := range sqlexpr.Columns(tree) {
		if !seen[ref.Column] {
			seen[ref.Column] = true
			out = append(out, ref.Column)
		}
	}
	return out, nil
}

// OutputColumnName is the raw input with every character outside
// [A-Za-z0-9_] replaced by an underscore.
func (c ColumnExpression) OutputColumnName() string {
	var b strings.Builder
	b.Grow(len(c.raw))
	for _, r := range c.raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Label is a human-readable description used in level labels.
func (c ColumnExpression) Label() string {
	if len(c.ops) > 0 {
		return "transformed " + c.raw
	}
	return c.raw
}
