package sqlexpr

import (
	"strings"
)

// QuoteFunc quotes an identifier for a target dialect.
type QuoteFunc func(name string) string

// DoubleQuote quotes an identifier with double quotes, escaping embedded quotes.
func DoubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Format formats an expression AST back to flat SQL. Identifiers are only
// quoted when they were quoted in the source or cannot be written bare; quote
// defaults to DoubleQuote.
func Format(expr Expr, quote QuoteFunc) string {
	if quote == nil {
		quote = DoubleQuote
	}
	f := &formatter{quote: quote}
	f.formatExpr(expr)
	return strings.TrimSpace(f.buf.String())
}

type formatter struct {
	buf   strings.Builder
	quote QuoteFunc
}

func (f *formatter) write(s string) {
	f.buf.WriteString(s)
}

func (f *formatter) writeIdent(name string, quoted bool) {
	if quoted || needsQuoting(name) {
		f.write(f.quote(name))
		return
	}
	f.write(name)
}

// needsQuoting reports whether name is not a plain identifier or collides with a keyword.
func needsQuoting(name string) bool {
	if name == "" {
		return true
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch == '_' || isLetter(ch) || (i > 0 && isDigit(ch)) {
			continue
		}
		return true
	}
	return lookupKeyword(strings.ToLower(name)) != TOKEN_IDENT
}

func (f *formatter) commaSep(exprs []Expr) {
	for i, e := range exprs {
		if i > 0 {
			f.write(", ")
		}
		f.formatExpr(e)
	}
}

func (f *formatter) formatExpr(e Expr) {
	switch expr := e.(type) {
	case nil:
		return
	case *Literal:
		f.formatLiteral(expr)
	case *ColumnRef:
		if expr.Table != "" {
			f.writeIdent(expr.Table, false)
			f.write(".")
		}
		f.writeIdent(expr.Column, expr.Quoted)
	case *BinaryExpr:
		f.formatExpr(expr.Left)
		if expr.Op == TOKEN_COMMA {
			f.write(", ")
		} else {
			f.write(" " + operatorString(expr.Op) + " ")
		}
		f.formatExpr(expr.Right)
	case *UnaryExpr:
		if expr.Op == TOKEN_NOT {
			f.write("NOT ")
		} else {
			f.write(operatorString(expr.Op))
		}
		f.formatExpr(expr.Expr)
	case *ParenExpr:
		f.write("(")
		f.formatExpr(expr.Expr)
		f.write(")")
	case *FuncCall:
		f.formatFuncCall(expr)
	case *CaseExpr:
		f.formatCaseExpr(expr)
	case *CastExpr:
		if expr.TryCast {
			f.write("TRY_CAST(")
		} else {
			f.write("CAST(")
		}
		f.formatExpr(expr.Expr)
		f.write(" AS " + expr.TypeName + ")")
	case *TypeCastExpr:
		f.formatExpr(expr.Expr)
		f.write("::" + expr.TypeName)
	case *InExpr:
		f.formatExpr(expr.Expr)
		if expr.Not {
			f.write(" NOT")
		}
		f.write(" IN (")
		f.commaSep(expr.Values)
		f.write(")")
	case *BetweenExpr:
		f.formatExpr(expr.Expr)
		if expr.Not {
			f.write(" NOT")
		}
		f.write(" BETWEEN ")
		f.formatExpr(expr.Low)
		f.write(" AND ")
		f.formatExpr(expr.High)
	case *IsNullExpr:
		f.formatExpr(expr.Expr)
		if expr.Not {
			f.write(" IS NOT NULL")
		} else {
			f.write(" IS NULL")
		}
	case *IsBoolExpr:
		f.formatExpr(expr.Expr)
		f.write(" IS ")
		if expr.Not {
			f.write("NOT ")
		}
		if expr.Value {
			f.write("TRUE")
		} else {
			f.write("FALSE")
		}
	case *LikeExpr:
		f.formatExpr(expr.Expr)
		if expr.Not {
			f.write(" NOT")
		}
		if expr.ILike {
			f.write(" ILIKE ")
		} else {
			f.write(" LIKE ")
		}
		f.formatExpr(expr.Pattern)
	case *IndexExpr:
		f.formatExpr(expr.Expr)
		f.write("[")
		f.formatExpr(expr.Index)
		f.write("]")
	case *ListLiteral:
		f.write("[")
		f.commaSep(expr.Elements)
		f.write("]")
	case *LambdaExpr:
		if len(expr.Params) == 1 {
			f.write(expr.Params[0])
		} else {
			f.write("(" + strings.Join(expr.Params, ", ") + ")")
		}
		f.write(" -> ")
		f.formatExpr(expr.Body)
	case *StarExpr:
		if expr.Table != "" {
			f.writeIdent(expr.Table, false)
			f.write(".")
		}
		f.write("*")
	}
}

func (f *formatter) formatLiteral(lit *Literal) {
	switch lit.Type {
	case LiteralString:
		f.write("'" + strings.ReplaceAll(lit.Value, "'", "''") + "'")
	case LiteralBool:
		f.write(strings.ToUpper(lit.Value))
	case LiteralNull:
		f.write("NULL")
	default:
		f.write(lit.Value)
	}
}

// operatorString returns the SQL string for a token type used as an operator.
func operatorString(op TokenType) string {
	switch op {
	case TOKEN_NE:
		return "<>"
	case TOKEN_DBLEQ:
		return "="
	}
	if name, ok := tokenNames[op]; ok {
		return name
	}
	return "?"
}

func (f *formatter) formatFuncCall(fn *FuncCall) {
	// Function names are written unquoted in original case
	f.write(fn.Name + "(")
	if fn.Distinct {
		f.write("DISTINCT ")
	}
	if fn.Star {
		f.write("*")
	}
	f.commaSep(fn.Args)
	if fn.From != nil {
		f.write(" FROM ")
		f.formatExpr(fn.From)
	}
	if fn.For != nil {
		f.write(" FOR ")
		f.formatExpr(fn.For)
	}
	f.write(")")
}

func (f *formatter) formatCaseExpr(c *CaseExpr) {
	f.write("CASE")
	if c.Operand != nil {
		f.write(" ")
		f.formatExpr(c.Operand)
	}
	for _, w := range c.Whens {
		f.write(" WHEN ")
		f.formatExpr(w.Condition)
		f.write(" THEN ")
		f.formatExpr(w.Result)
	}
	if c.Else != nil {
		f.write(" ELSE ")
		f.formatExpr(c.Else)
	}
	f.write(" END")
}
