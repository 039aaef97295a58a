package sqlexpr

// children returns the direct sub-expressions of e.
func children(e Expr) []Expr {
	switch x := e.(type) {
	case *BinaryExpr:
		return []Expr{x.Left, x.Right}
	case *UnaryExpr:
		return []Expr{x.Expr}
	case *ParenExpr:
		return []Expr{x.Expr}
	case *FuncCall:
		out := append([]Expr(nil), x.Args...)
		return append(out, x.From, x.For)
	case *CaseExpr:
		out := []Expr{x.Operand}
		for _, w := range x.Whens {
			out = append(out, w.Condition, w.Result)
		}
		return append(out, x.Else)
	case *CastExpr:
		return []Expr{x.Expr}
	case *TypeCastExpr:
		return []Expr{x.Expr}
	case *InExpr:
		return append([]Expr{x.Expr}, x.Values...)
	case *BetweenExpr:
		return []Expr{x.Expr, x.Low, x.High}
	case *IsNullExpr:
		return []Expr{x.Expr}
	case *IsBoolExpr:
		return []Expr{x.Expr}
	case *LikeExpr:
		return []Expr{x.Expr, x.Pattern}
	case *IndexExpr:
		return []Expr{x.Expr, x.Index}
	case *ListLiteral:
		return x.Elements
	case *LambdaExpr:
		return []Expr{x.Body}
	}
	return nil
}

// Walk visits e and its descendants depth-first. Returning false from visit
// skips the children of that node.
func Walk(e Expr, visit func(Expr) bool) {
	if e == nil || !visit(e) {
		return
	}
	for _, c := range children(e) {
		Walk(c, visit)
	}
}

// visitColumns calls fn for every column reference that is not a bound lambda parameter.
func visitColumns(e Expr, bound map[string]bool, fn func(*ColumnRef)) {
	switch x := e.(type) {
	case nil:
		return
	case *ColumnRef:
		if x.Table == "" && bound[x.Column] {
			return
		}
		fn(x)
		return
	case *LambdaExpr:
		inner := make(map[string]bool, len(bound)+len(x.Params))
		for k := range bound {
			inner[k] = true
		}
		for _, p := range x.Params {
			inner[p] = true
		}
		visitColumns(x.Body, inner, fn)
		return
	}
	for _, c := range children(e) {
		visitColumns(c, bound, fn)
	}
}

// Columns returns every column reference in e, in source order.
func Columns(e Expr) []*ColumnRef {
	var out []*ColumnRef
	visitColumns(e, nil, func(c *ColumnRef) { out = append(out, c) })
	return out
}

// SuffixColumns renames every column reference in e in place by appending suffix.
// String literals and function names are never touched.
func SuffixColumns(e Expr, suffix string) {
	visitColumns(e, nil, func(c *ColumnRef) { c.Column += suffix })
}

// StripTables removes the table qualifier from every column reference in e.
func StripTables(e Expr) {
	visitColumns(e, nil, func(c *ColumnRef) { c.Table = "" })
}

// Tables returns the set of table qualifiers used by column references in e.
// Unqualified references are recorded under "".
func Tables(e Expr) map[string]bool {
	out := make(map[string]bool)
	visitColumns(e, nil, func(c *ColumnRef) { out[c.Table] = true })
	return out
}

// SplitConjuncts flattens a chain of ANDs into its operands. Parentheses
// around a whole conjunction are looked through.
func SplitConjuncts(e Expr) []Expr {
	switch x := e.(type) {
	case nil:
		return nil
	case *ParenExpr:
		if b, ok := x.Expr.(*BinaryExpr); ok && b.Op == TOKEN_AND {
			return SplitConjuncts(b)
		}
	case *BinaryExpr:
		if x.Op == TOKEN_AND {
			return append(SplitConjuncts(x.Left), SplitConjuncts(x.Right)...)
		}
	}
	return []Expr{e}
}
