package sqlsec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func wordsOf(tokens []token) []string {
	var out []string
	for _, tok := range tokens {
		if tok.kind == tokenWord {
			out = append(out, tok.text)
		}
	}
	return out
}

func TestTokenizeUppercasesWords(t *testing.T) {
	words := wordsOf(tokenize("select * from t"))
	assert.Equal(t, []string{"SELECT", "FROM", "T"}, words)
}

func TestTokenizeKeepsEscapedQuoteInsideLiteral(t *testing.T) {
	tokens := tokenize("SELECT 'it''s a DROP test' FROM t")
	words := wordsOf(tokens)
	assert.NotContains(t, words, "DROP")
	assert.Contains(t, words, "SELECT")
}

func TestTokenizeHandlesUnterminatedBlockComment(t *testing.T) {
	// Should not panic or infinite-loop on malformed input.
	assert.NotPanics(t, func() {
		tokenize("SELECT 1 /* unterminated")
	})
}
