package sqlexpr

import (
	"fmt"
	"strings"
)

// Parser parses SQL expressions into an AST using precedence climbing.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	errors []error
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	p := &Parser{lexer: NewLexer(sql)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a standalone expression from SQL text.
func Parse(sql string) (Expr, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, fmt.Errorf("empty expression")
	}

	p := NewParser(sql)
	expr := p.parseExpression()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	if p.token.Type != TOKEN_EOF {
		return nil, fmt.Errorf("unexpected token after expression: %q", p.token.Literal)
	}
	return expr, nil
}

func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("unexpected token %s, expected %s", p.token.Type, t))
	return false
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Errorf("parse error: %s", msg))
}

func (p *Parser) parseExpression() Expr {
	return p.parseExpressionWithPrecedence(PrecedenceNone + 1)
}

// parseExpressionWithPrecedence implements Pratt parsing.
func (p *Parser) parseExpressionWithPrecedence(minPrecedence int) Expr {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}
	for {
		prec := p.infixPrecedence()
		if prec < minPrecedence {
			break
		}
		left = p.parseInfixExpr(left, prec)
		if left == nil || len(p.errors) > 0 {
			break
		}
	}
	return left
}

func (p *Parser) parsePrefixExpr() Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		p.nextToken()
		return &UnaryExpr{Op: TOKEN_NOT, Expr: p.parseExpressionWithPrecedence(PrecedenceNot)}
	case TOKEN_MINUS, TOKEN_PLUS:
		op := p.token.Type
		p.nextToken()
		return &UnaryExpr{Op: op, Expr: p.parseExpressionWithPrecedence(PrecedenceUnary)}
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) infixPrecedence() int {
	switch p.token.Type {
	case TOKEN_OR, TOKEN_ARROW:
		return PrecedenceOr
	case TOKEN_AND:
		return PrecedenceAnd
	case TOKEN_EQ, TOKEN_DBLEQ, TOKEN_NE, TOKEN_LT, TOKEN_GT, TOKEN_LE, TOKEN_GE,
		TOKEN_IS, TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE, TOKEN_NOT:
		return PrecedenceComparison
	case TOKEN_PLUS, TOKEN_MINUS, TOKEN_DPIPE:
		return PrecedenceAddition
	case TOKEN_STAR, TOKEN_SLASH, TOKEN_MOD, TOKEN_DSLASH:
		return PrecedenceMultiply
	case TOKEN_DCOLON, TOKEN_LBRACKET:
		return PrecedencePostfix
	default:
		return PrecedenceNone
	}
}

func (p *Parser) parseInfixExpr(left Expr, prec int) Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		p.nextToken()
		switch p.token.Type {
		case TOKEN_IN:
			p.nextToken()
			return p.parseInExpr(left, true)
		case TOKEN_BETWEEN:
			p.nextToken()
			return p.parseBetweenExpr(left, true)
		case TOKEN_LIKE, TOKEN_ILIKE:
			ilike := p.check(TOKEN_ILIKE)
			p.nextToken()
			return &LikeExpr{Expr: left, Not: true, ILike: ilike, Pattern: p.parseExpressionWithPrecedence(PrecedenceAddition)}
		}
		p.addError("expected IN, BETWEEN, LIKE or ILIKE after NOT")
		return left
	case TOKEN_IS:
		return p.parseIsExpr(left)
	case TOKEN_IN:
		p.nextToken()
		return p.parseInExpr(left, false)
	case TOKEN_BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, false)
	case TOKEN_LIKE, TOKEN_ILIKE:
		ilike := p.check(TOKEN_ILIKE)
		p.nextToken()
		return &LikeExpr{Expr: left, ILike: ilike, Pattern: p.parseExpressionWithPrecedence(PrecedenceAddition)}
	case TOKEN_DCOLON:
		p.nextToken()
		return &TypeCastExpr{Expr: left, TypeName: p.parseTypeName()}
	case TOKEN_LBRACKET:
		p.nextToken()
		idx := &IndexExpr{Expr: left, Index: p.parseExpression()}
		p.expect(TOKEN_RBRACKET)
		return idx
	case TOKEN_ARROW:
		return p.parseLambdaExpr(left)
	default:
		op := p.token.Type
		p.nextToken()
		right := p.parseExpressionWithPrecedence(prec + 1)
		return &BinaryExpr{Left: left, Op: op, Right: right}
	}
}

// parseIsExpr parses IS [NOT] NULL / IS [NOT] TRUE / IS [NOT] FALSE.
func (p *Parser) parseIsExpr(left Expr) Expr {
	p.nextToken() // consume IS
	isNot := p.match(TOKEN_NOT)

	switch p.token.Type {
	case TOKEN_NULL:
		p.nextToken()
		return &IsNullExpr{Expr: left, Not: isNot}
	case TOKEN_TRUE:
		p.nextToken()
		return &IsBoolExpr{Expr: left, Not: isNot, Value: true}
	case TOKEN_FALSE:
		p.nextToken()
		return &IsBoolExpr{Expr: left, Not: isNot, Value: false}
	default:
		p.addError("expected NULL, TRUE or FALSE after IS")
		return left
	}
}

func (p *Parser) parseInExpr(left Expr, not bool) Expr {
	in := &InExpr{Expr: left, Not: not}
	p.expect(TOKEN_LPAREN)
	in.Values = p.parseExpressionList()
	p.expect(TOKEN_RPAREN)
	return in
}

func (p *Parser) parseBetweenExpr(left Expr, not bool) Expr {
	between := &BetweenExpr{Expr: left, Not: not}
	between.Low = p.parseExpressionWithPrecedence(PrecedenceAddition)
	p.expect(TOKEN_AND)
	between.High = p.parseExpressionWithPrecedence(PrecedenceAddition)
	return between
}

// parseLambdaExpr parses x -> expr or (x, y) -> expr.
func (p *Parser) parseLambdaExpr(left Expr) Expr {
	p.nextToken() // consume ->
	params, err := lambdaParams(left)
	if err != nil {
		p.addError(err.Error())
		return left
	}
	return &LambdaExpr{Params: params, Body: p.parseExpression()}
}

func lambdaParams(expr Expr) ([]string, error) {
	switch e := expr.(type) {
	case *ColumnRef:
		if e.Table != "" {
			return nil, fmt.Errorf("invalid lambda parameter: qualified name not allowed")
		}
		return []string{e.Column}, nil
	case *ParenExpr:
		return lambdaParams(e.Expr)
	case *BinaryExpr:
		if e.Op != TOKEN_COMMA {
			return nil, fmt.Errorf("invalid lambda parameter: unexpected binary expression")
		}
		left, err := lambdaParams(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := lambdaParams(e.Right)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	default:
		return nil, fmt.Errorf("invalid lambda parameter: expected identifier, got %T", expr)
	}
}

func (p *Parser) parseExpressionList() []Expr {
	var exprs []Expr
	for {
		if expr := p.parseExpression(); expr != nil {
			exprs = append(exprs, expr)
		}
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return exprs
}

func (p *Parser) parsePrimary() Expr {
	switch p.token.Type {
	case TOKEN_NUMBER:
		lit := &Literal{Type: LiteralNumber, Value: p.token.Literal}
		p.nextToken()
		return lit
	case TOKEN_STRING:
		lit := &Literal{Type: LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit
	case TOKEN_TRUE, TOKEN_FALSE:
		lit := &Literal{Type: LiteralBool, Value: strings.ToLower(p.token.Literal)}
		p.nextToken()
		return lit
	case TOKEN_NULL:
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "NULL"}
	case TOKEN_CASE:
		return p.parseCaseExpr()
	case TOKEN_CAST, TOKEN_TRY_CAST:
		return p.parseCastExpr()
	case TOKEN_IDENT:
		return p.parseIdentifierExpr()
	case TOKEN_LPAREN:
		return p.parseParenExpr()
	case TOKEN_LBRACKET:
		p.nextToken()
		list := &ListLiteral{}
		if !p.check(TOKEN_RBRACKET) {
			list.Elements = p.parseExpressionList()
		}
		p.expect(TOKEN_RBRACKET)
		return list
	case TOKEN_STAR:
		p.nextToken()
		return &StarExpr{}
	default:
		// Keywords such as LEFT or REPLACE are valid function names.
		if isKeywordToken(p.token.Type) && p.peek.Type == TOKEN_LPAREN {
			return p.parseIdentifierExpr()
		}
		p.addError(fmt.Sprintf("unexpected token in expression: %s (%q)", p.token.Type, p.token.Literal))
		p.nextToken()
		return nil
	}
}

// parseIdentifierExpr parses a column reference or a function call.
func (p *Parser) parseIdentifierExpr() Expr {
	first := p.token
	p.nextToken()

	if p.check(TOKEN_LPAREN) && !first.Quoted {
		return p.parseFuncCall(first.Literal)
	}
	if !p.match(TOKEN_DOT) {
		return &ColumnRef{Column: first.Literal, Quoted: first.Quoted}
	}
	if p.match(TOKEN_STAR) {
		return &StarExpr{Table: first.Literal}
	}
	if !p.check(TOKEN_IDENT) {
		p.addError(fmt.Sprintf("expected column name after %q.", first.Literal))
		return nil
	}
	col := p.token
	p.nextToken()
	return &ColumnRef{Table: first.Literal, Column: col.Literal, Quoted: col.Quoted}
}

// parseFuncCall parses name([DISTINCT] args) including the
// SUBSTRING(x FROM s FOR l) keyword-argument form.
func (p *Parser) parseFuncCall(name string) Expr {
	fn := &FuncCall{Name: name}
	p.expect(TOKEN_LPAREN)

	if p.check(TOKEN_STAR) {
		fn.Star = true
		p.nextToken()
	} else if !p.check(TOKEN_RPAREN) {
		fn.Distinct = p.match(TOKEN_DISTINCT)
		fn.Args = p.parseExpressionList()
		if p.match(TOKEN_FROM) {
			fn.From = p.parseExpression()
		}
		if p.match(TOKEN_FOR) {
			fn.For = p.parseExpression()
		}
	}

	p.expect(TOKEN_RPAREN)
	return fn
}

func (p *Parser) parseCaseExpr() Expr {
	p.expect(TOKEN_CASE)
	caseExpr := &CaseExpr{}

	if !p.check(TOKEN_WHEN) {
		caseExpr.Operand = p.parseExpression()
	}
	for p.match(TOKEN_WHEN) {
		when := WhenClause{Condition: p.parseExpression()}
		p.expect(TOKEN_THEN)
		when.Result = p.parseExpression()
		caseExpr.Whens = append(caseExpr.Whens, when)
	}
	if p.match(TOKEN_ELSE) {
		caseExpr.Else = p.parseExpression()
	}
	p.expect(TOKEN_END)
	return caseExpr
}

// parseCastExpr parses CAST(expr AS type) and TRY_CAST(expr AS type).
func (p *Parser) parseCastExpr() Expr {
	cast := &CastExpr{TryCast: p.check(TOKEN_TRY_CAST)}
	p.nextToken()
	p.expect(TOKEN_LPAREN)
	cast.Expr = p.parseExpression()
	p.expect(TOKEN_AS)
	cast.TypeName = p.parseTypeName()
	p.expect(TOKEN_RPAREN)
	return cast
}

// parseTypeName parses a type name with optional parameters, e.g. DECIMAL(10, 2) or INTEGER[].
func (p *Parser) parseTypeName() string {
	if !p.check(TOKEN_IDENT) {
		p.addError("expected type name")
		return ""
	}
	typeName := strings.ToUpper(p.token.Literal)
	p.nextToken()

	for p.check(TOKEN_IDENT) && strings.EqualFold(p.token.Literal, "precision") {
		typeName += " PRECISION"
		p.nextToken()
	}

	if p.match(TOKEN_LPAREN) {
		parts := []string{}
		for !p.check(TOKEN_RPAREN) && !p.check(TOKEN_EOF) {
			if !p.check(TOKEN_COMMA) {
				parts = append(parts, p.token.Literal)
			}
			p.nextToken()
		}
		p.expect(TOKEN_RPAREN)
		typeName += "(" + strings.Join(parts, ", ") + ")"
	}

	if p.check(TOKEN_LBRACKET) && p.peek.Type == TOKEN_RBRACKET {
		typeName += "[]"
		p.nextToken()
		p.nextToken()
	}
	return typeName
}

// parseParenExpr parses a parenthesized expression. A comma-separated list
// is kept as comma BinaryExprs so it can serve as lambda parameters.
func (p *Parser) parseParenExpr() Expr {
	p.expect(TOKEN_LPAREN)
	expr := p.parseExpression()
	for p.match(TOKEN_COMMA) {
		expr = &BinaryExpr{Left: expr, Op: TOKEN_COMMA, Right: p.parseExpression()}
	}
	p.expect(TOKEN_RPAREN)
	return &ParenExpr{Expr: expr}
}
