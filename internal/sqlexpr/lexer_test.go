package sqlexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexerTokens(t *testing.T) {
	l := NewLexer("l.\"x\" || `y` >= 1.5e3 :: -> <> 'it''s' AND")
	want := []Token{
		{Type: TOKEN_IDENT, Literal: "l"},
		{Type: TOKEN_DOT, Literal: "."},
		{Type: TOKEN_IDENT, Literal: "x", Quoted: true},
		{Type: TOKEN_DPIPE, Literal: "||"},
		{Type: TOKEN_IDENT, Literal: "y", Quoted: true},
		{Type: TOKEN_GE, Literal: ">="},
		{Type: TOKEN_NUMBER, Literal: "1.5e3"},
		{Type: TOKEN_DCOLON, Literal: "::"},
		{Type: TOKEN_ARROW, Literal: "->"},
		{Type: TOKEN_NE, Literal: "<>"},
		{Type: TOKEN_STRING, Literal: "it's"},
		{Type: TOKEN_AND, Literal: "AND"},
		{Type: TOKEN_EOF},
	}
	for i, w := range want {
		assert.Equal(t, w, l.NextToken(), "token %d", i)
	}
}

func TestLexerSkipsBlockComments(t *testing.T) {
	l := NewLexer("/* note */ a")
	assert.Equal(t, Token{Type: TOKEN_IDENT, Literal: "a"}, l.NextToken())
	assert.Equal(t, TOKEN_EOF, l.NextToken().Type)
}

func TestTokenTypeString(t *testing.T) {
	assert.Equal(t, "||", TOKEN_DPIPE.String())
	assert.Equal(t, "TOKEN(999)", TokenType(999).String())
}

func TestLexerLineCommentAndIllegal(t *testing.T) {
	l := NewLexer("a -- trailing\n! .5 |")
	assert.Equal(t, Token{Type: TOKEN_IDENT, Literal: "a"}, l.NextToken())
	assert.Equal(t, Token{Type: TOKEN_ILLEGAL, Literal: "!"}, l.NextToken())
	assert.Equal(t, Token{Type: TOKEN_NUMBER, Literal: ".5"}, l.NextToken())
	assert.Equal(t, Token{Type: TOKEN_ILLEGAL, Literal: "|"}, l.NextToken())
	assert.Equal(t, TOKEN_EOF, l.NextToken().Type)
	assert.Equal(t, TOKEN_EOF, l.NextToken().Type)
}
