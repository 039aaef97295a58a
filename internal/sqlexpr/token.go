// Package sqlexpr parses standalone SQL expressions (comparison conditions,
// blocking rules, column transforms) into an AST that can be walked, rewritten
// and formatted back to SQL for any supported dialect.
package sqlexpr

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

// TOKEN_EOF and friends enumerate all token types produced by the lexer.
const (
	TOKEN_EOF     TokenType = iota // end of input
	TOKEN_ILLEGAL                  // unexpected character

	TOKEN_IDENT  // identifier
	TOKEN_NUMBER // 123, 45.67, 1e10
	TOKEN_STRING // 'hello'

	TOKEN_PLUS     // +
	TOKEN_MINUS    // -
	TOKEN_STAR     // *
	TOKEN_SLASH    // /
	TOKEN_DSLASH   // //
	TOKEN_MOD      // %
	TOKEN_DPIPE    // ||
	TOKEN_EQ       // =
	TOKEN_DBLEQ    // ==
	TOKEN_NE       // != or <>
	TOKEN_LT       // <
	TOKEN_GT       // >
	TOKEN_LE       // <=
	TOKEN_GE       // >=
	TOKEN_DOT      // .
	TOKEN_COMMA    // ,
	TOKEN_LPAREN   // (
	TOKEN_RPAREN   // )
	TOKEN_LBRACKET // [
	TOKEN_RBRACKET // ]
	TOKEN_DCOLON   // ::
	TOKEN_ARROW    // -> (lambda)

	// TOKEN_AND and below are keywords (alphabetical).
	TOKEN_AND
	TOKEN_AS
	TOKEN_BETWEEN
	TOKEN_CASE
	TOKEN_CAST
	TOKEN_DISTINCT
	TOKEN_ELSE
	TOKEN_END
	TOKEN_FALSE
	TOKEN_FOR
	TOKEN_FROM
	TOKEN_ILIKE
	TOKEN_IN
	TOKEN_IS
	TOKEN_LIKE
	TOKEN_NOT
	TOKEN_NULL
	TOKEN_OR
	TOKEN_THEN
	TOKEN_TRUE
	TOKEN_TRY_CAST
	TOKEN_WHEN
)

// Token is a lexical token. Quoted is set for identifiers written in double
// quotes or backticks.
type Token struct {
	Type    TokenType
	Literal string
	Quoted  bool
}

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

var tokenNames = map[TokenType]string{
	TOKEN_EOF:     "EOF",
	TOKEN_ILLEGAL: "ILLEGAL",
	TOKEN_IDENT:   "IDENT",
	TOKEN_NUMBER:  "NUMBER",
	TOKEN_STRING:  "STRING",

	TOKEN_PLUS:     "+",
	TOKEN_MINUS:    "-",
	TOKEN_STAR:     "*",
	TOKEN_SLASH:    "/",
	TOKEN_DSLASH:   "//",
	TOKEN_MOD:      "%",
	TOKEN_DPIPE:    "||",
	TOKEN_EQ:       "=",
	TOKEN_DBLEQ:    "==",
	TOKEN_NE:       "!=",
	TOKEN_LT:       "<",
	TOKEN_GT:       ">",
	TOKEN_LE:       "<=",
	TOKEN_GE:       ">=",
	TOKEN_DOT:      ".",
	TOKEN_COMMA:    ",",
	TOKEN_LPAREN:   "(",
	TOKEN_RPAREN:   ")",
	TOKEN_LBRACKET: "[",
	TOKEN_RBRACKET: "]",
	TOKEN_DCOLON:   "::",
	TOKEN_ARROW:    "->",

	TOKEN_AND:      "AND",
	TOKEN_AS:       "AS",
	TOKEN_BETWEEN:  "BETWEEN",
	TOKEN_CASE:     "CASE",
	TOKEN_CAST:     "CAST",
	TOKEN_DISTINCT: "DISTINCT",
	TOKEN_ELSE:     "ELSE",
	TOKEN_END:      "END",
	TOKEN_FALSE:    "FALSE",
	TOKEN_FOR:      "FOR",
	TOKEN_FROM:     "FROM",
	TOKEN_ILIKE:    "ILIKE",
	TOKEN_IN:       "IN",
	TOKEN_IS:       "IS",
	TOKEN_LIKE:     "LIKE",
	TOKEN_NOT:      "NOT",
	TOKEN_NULL:     "NULL",
	TOKEN_OR:       "OR",
	TOKEN_THEN:     "THEN",
	TOKEN_TRUE:     "TRUE",
	TOKEN_TRY_CAST: "TRY_CAST",
	TOKEN_WHEN:     "WHEN",
}

var keywords = map[string]TokenType{
	"and":      TOKEN_AND,
	"as":       TOKEN_AS,
	"between":  TOKEN_BETWEEN,
	"case":     TOKEN_CASE,
	"cast":     TOKEN_CAST,
	"distinct": TOKEN_DISTINCT,
	"else":     TOKEN_ELSE,
	"end":      TOKEN_END,
	"false":    TOKEN_FALSE,
	"for":      TOKEN_FOR,
	"from":     TOKEN_FROM,
	"ilike":    TOKEN_ILIKE,
	"in":       TOKEN_IN,
	"is":       TOKEN_IS,
	"like":     TOKEN_LIKE,
	"not":      TOKEN_NOT,
	"null":     TOKEN_NULL,
	"or":       TOKEN_OR,
	"then":     TOKEN_THEN,
	"true":     TOKEN_TRUE,
	"try_cast": TOKEN_TRY_CAST,
	"when":     TOKEN_WHEN,
}

// lookupKeyword returns the keyword token for a lowercased identifier, or TOKEN_IDENT.
func lookupKeyword(lower string) TokenType {
	if t, ok := keywords[lower]; ok {
		return t
	}
	return TOKEN_IDENT
}

// isKeywordToken reports whether t is a keyword token.
func isKeywordToken(t TokenType) bool {
	return t >= TOKEN_AND && t <= TOKEN_WHEN
}

// Precedence constants for operator precedence parsing (Pratt parser).
const (
	PrecedenceNone       = 0
	PrecedenceOr         = 1
	PrecedenceAnd        = 2
	PrecedenceNot        = 3
	PrecedenceComparison = 4 // =, <>, <, >, <=, >=, LIKE, ILIKE, IN, BETWEEN, IS
	PrecedenceAddition   = 5 // +, -, ||
	PrecedenceMultiply   = 6 // *, /, %, //
	PrecedenceUnary      = 7 // -, +
	PrecedencePostfix    = 8 // ::, []
)
