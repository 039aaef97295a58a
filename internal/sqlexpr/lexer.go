package sqlexpr

import (
	"strings"
	"unicode"
)

// operators maps punctuation to token types. Two-byte operators are tried
// before single bytes.
var operators = map[string]TokenType{
	"->": TOKEN_ARROW,
	"//": TOKEN_DSLASH,
	"==": TOKEN_DBLEQ,
	"<=": TOKEN_LE,
	"<>": TOKEN_NE,
	">=": TOKEN_GE,
	"!=": TOKEN_NE,
	"||": TOKEN_DPIPE,
	"::": TOKEN_DCOLON,
	"+":  TOKEN_PLUS,
	"-":  TOKEN_MINUS,
	"*":  TOKEN_STAR,
	"/":  TOKEN_SLASH,
	"%":  TOKEN_MOD,
	"=":  TOKEN_EQ,
	"<":  TOKEN_LT,
	">":  TOKEN_GT,
	".":  TOKEN_DOT,
	",":  TOKEN_COMMA,
	"(":  TOKEN_LPAREN,
	")":  TOKEN_RPAREN,
	"[":  TOKEN_LBRACKET,
	"]":  TOKEN_RBRACKET,
}

// Lexer splits a SQL expression into tokens.
type Lexer struct {
	src string
	off int
}

// NewLexer returns a Lexer positioned at the start of src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

func (l *Lexer) at(i int) byte {
	if l.off+i >= len(l.src) {
		return 0
	}
	return l.src[l.off+i]
}

// NextToken scans the next token. At end of input it returns TOKEN_EOF
// on every call.
func (l *Lexer) NextToken() Token {
	l.skipTrivia()
	c := l.at(0)
	switch {
	case l.off >= len(l.src):
		return Token{Type: TOKEN_EOF}
	case c == '\'':
		return Token{Type: TOKEN_STRING, Literal: l.quoted(c)}
	case c == '"' || c == '`':
		return Token{Type: TOKEN_IDENT, Literal: l.quoted(c), Quoted: true}
	case c == '_' || isLetter(c):
		word := l.span(func(b byte) bool { return b == '_' || isLetter(b) || isDigit(b) })
		return Token{Type: lookupKeyword(strings.ToLower(word)), Literal: word}
	case isDigit(c) || (c == '.' && isDigit(l.at(1))):
		return Token{Type: TOKEN_NUMBER, Literal: l.number()}
	}

	if l.off+2 <= len(l.src) {
		if tt, ok := operators[l.src[l.off:l.off+2]]; ok {
			lit := l.src[l.off : l.off+2]
			l.off += 2
			return Token{Type: tt, Literal: lit}
		}
	}
	lit := l.src[l.off : l.off+1]
	l.off++
	if tt, ok := operators[lit]; ok {
		return Token{Type: tt, Literal: lit}
	}
	return Token{Type: TOKEN_ILLEGAL, Literal: lit}
}

// skipTrivia advances past whitespace, line comments and block comments.
func (l *Lexer) skipTrivia() {
	for l.off < len(l.src) {
		switch {
		case strings.IndexByte(" \t\r\n", l.at(0)) >= 0:
			l.off++
		case l.at(0) == '-' && l.at(1) == '-':
			if nl := strings.IndexByte(l.src[l.off:], '\n'); nl >= 0 {
				l.off += nl + 1
			} else {
				l.off = len(l.src)
			}
		case l.at(0) == '/' && l.at(1) == '*':
			if end := strings.Index(l.src[l.off+2:], "*/"); end >= 0 {
				l.off += end + 4
			} else {
				l.off = len(l.src)
			}
		default:
			return
		}
	}
}

// quoted consumes text wrapped in q. A doubled q is an escaped q. An
// unterminated literal runs to end of input.
func (l *Lexer) quoted(q byte) string {
	l.off++
	var sb strings.Builder
	for l.off < len(l.src) {
		c := l.src[l.off]
		l.off++
		if c != q {
			sb.WriteByte(c)
			continue
		}
		if l.at(0) != q {
			break
		}
		sb.WriteByte(q)
		l.off++
	}
	return sb.String()
}

func (l *Lexer) span(keep func(byte) bool) string {
	start := l.off
	for l.off < len(l.src) && keep(l.src[l.off]) {
		l.off++
	}
	return l.src[start:l.off]
}

// number consumes an integer, decimal or exponent literal.
func (l *Lexer) number() string {
	start := l.off
	l.span(isDigit)
	if l.at(0) == '.' && isDigit(l.at(1)) {
		l.off++
		l.span(isDigit)
	}
	if c := l.at(0); c == 'e' || c == 'E' {
		l.off++
		if c := l.at(0); c == '+' || c == '-' {
			l.off++
		}
		l.span(isDigit)
	}
	return l.src[start:l.off]
}

func isLetter(c byte) bool { return unicode.IsLetter(rune(c)) }

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
