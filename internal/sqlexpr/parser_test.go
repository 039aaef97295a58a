package sqlexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backtick(name string) string { return "`" + name + "`" }

func TestParseFormatRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"concat", "first_name || surname", "first_name || surname"},
		{"function", "levenshtein(l.name, r.name) <= 2", "levenshtein(l.name, r.name) <= 2"},
		{"quoted", `lower("first name")`, `lower("first name")`},
		{"keyword column", `"end" = 1`, `"end" = 1`},
		{"string escape", `name = 'o''brien'`, `name = 'o''brien'`},
		{"case", "case when x is null then -1 else 0 end", "CASE WHEN x IS NULL THEN -1 ELSE 0 END"},
		{"cast", "cast(0.0 as float8)", "CAST(0.0 AS FLOAT8)"},
		{"try cast", "try_cast(dob as date)", "TRY_CAST(dob AS DATE)"},
		{"type cast", "dob::varchar", "dob::VARCHAR"},
		{"in", "x not in (1, 2)", "x NOT IN (1, 2)"},
		{"between", "x between 1 and 3", "x BETWEEN 1 AND 3"},
		{"is not null", "l.x is not null and r.x is not null", "l.x IS NOT NULL AND r.x IS NOT NULL"},
		{"like", "name ilike 'a%'", "name ILIKE 'a%'"},
		{"not equal", "a != b", "a <> b"},
		{"count star", "count(*)", "count(*)"},
		{"distinct", "count(distinct x)", "count(DISTINCT x)"},
		{"keyword args", "substring(name from '([0-9]+)')", "substring(name FROM '([0-9]+)')"},
		{"for", "SUBSTRING(x FROM 1 FOR 3)", "SUBSTRING(x FROM 1 FOR 3)"},
		{"list", "[1, 2][1]", "[1, 2][1]"},
		{"lambda", "list_filter(tags, t -> t <> '')", "list_filter(tags, t -> t <> '')"},
		{"parens", "(a + b) * 2", "(a + b) * 2"},
		{"not", "NOT (coalesce(a = b, false))", "NOT (coalesce(a = b, FALSE))"},
		{"comment", "a -- trailing\n+ 1", "a + 1"},
		{"table star", "l.*", "l.*"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := Parse(tc.sql)
			require.NoError(t, err)
			assert.Equal(t, tc.want, Format(expr, nil))
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, sql := range []string{"", "   ", "a +", "a b", "x is 3", "f(1", "a NOT 5"} {
		t.Run(sql, func(t *testing.T) {
			_, err := Parse(sql)
			assert.Error(t, err)
		})
	}
}

func TestPrecedence(t *testing.T) {
	expr, err := Parse("a = 1 or b = 2 and c = 3")
	require.NoError(t, err)

	or, ok := expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TOKEN_OR, or.Op)
	and, ok := or.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TOKEN_AND, and.Op)
}

func TestSuffixColumns(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"first_name || surname", "first_name_l || surname_l"},
		{`lower("first name") || 'first_name'`, `lower("first name_l") || 'first_name'`},
		{"list_transform(tags, x -> upper(x))", "list_transform(tags_l, x -> upper(x))"},
		{"substr(dob, 1, 4)", "substr(dob_l, 1, 4)"},
		{"CASE WHEN a IS NULL THEN b ELSE c END", "CASE WHEN a_l IS NULL THEN b_l ELSE c_l END"},
	}
	for _, tc := range tests {
		t.Run(tc.sql, func(t *testing.T) {
			expr, err := Parse(tc.sql)
			require.NoError(t, err)
			SuffixColumns(expr, "_l")
			assert.Equal(t, tc.want, Format(expr, nil))
		})
	}
}

func TestFormatQuoteFunc(t *testing.T) {
	expr, err := Parse(`"first name" || surname`)
	require.NoError(t, err)
	assert.Equal(t, "`first name` || surname", Format(expr, backtick))

	expr, err = Parse("`first name`")
	require.NoError(t, err)
	assert.Equal(t, `"first name"`, Format(expr, nil))
}

func TestColumnsAndTables(t *testing.T) {
	expr, err := Parse("l.first_name = r.first_name and levenshtein(l.surname, r.surname) < 2 and dob = 1")
	require.NoError(t, err)

	var names []string
	for _, c := range Columns(expr) {
		names = append(names, c.Table+"."+c.Column)
	}
	assert.Equal(t, []string{"l.first_name", "r.first_name", "l.surname", "r.surname", ".dob"}, names)
	assert.Equal(t, map[string]bool{"l": true, "r": true, "": true}, Tables(expr))

	StripTables(expr)
	assert.Equal(t, "first_name = first_name AND levenshtein(surname, surname) < 2 AND dob = 1", Format(expr, nil))
}

func TestSplitConjuncts(t *testing.T) {
	expr, err := Parse("l.a = r.a and (l.b = r.b AND l.c > 1)")
	require.NoError(t, err)

	parts := SplitConjuncts(expr)
	require.Len(t, parts, 3)
	assert.Equal(t, "l.a = r.a", Format(parts[0], nil))
	assert.Equal(t, "l.b = r.b", Format(parts[1], nil))
	assert.Equal(t, "l.c > 1", Format(parts[2], nil))

	expr, err = Parse("l.a = r.a or l.b = r.b")
	require.NoError(t, err)
	assert.Len(t, SplitConjuncts(expr), 1)
}

func TestWalkSkipsChildren(t *testing.T) {
	expr, err := Parse("f(a, g(b))")
	require.NoError(t, err)

	var funcs []string
	Walk(expr, func(e Expr) bool {
		if fn, ok := e.(*FuncCall); ok {
			funcs = append(funcs, fn.Name)
			return fn.Name != "f"
		}
		return true
	})
	assert.Equal(t, []string{"f"}, funcs)
}
