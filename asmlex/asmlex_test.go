package asmlex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokensOf(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := New("t.asm", src).Tokenize()
	require.NoError(t, err)
	return toks
}

func TestLabelsAndMnemonics(t *testing.T) {
	toks := tokensOf(t, "__FUNC__main:\n\tipush 3\n")
	require.GreaterOrEqual(t, len(toks), 4)
	assert.Equal(t, LABEL, toks[0].Kind)
	assert.Equal(t, "__FUNC__main", toks[0].Literal)
	assert.Equal(t, NEWLINE, toks[1].Kind)
	assert.Equal(t, IDENT, toks[2].Kind)
	assert.Equal(t, "ipush", toks[2].Literal)
	assert.Equal(t, INT, toks[3].Kind)
	assert.Equal(t, int64(3), toks[3].IntVal)
}

func TestNegativeAndFloat(t *testing.T) {
	toks := tokensOf(t, "fpush -3.5\ncall foo, 2\n")
	assert.Equal(t, FLOAT, toks[1].Kind)
	assert.Equal(t, -3.5, toks[1].FltVal)

	assert.Equal(t, IDENT, toks[3].Kind)
	assert.Equal(t, COMMA, toks[5].Kind)
	assert.Equal(t, INT, toks[6].Kind)
	assert.Equal(t, int64(2), toks[6].IntVal)
}

func TestStringLiteralWithEscapes(t *testing.T) {
	toks := tokensOf(t, `log "hi\n"`+"\n")
	require.Len(t, toks, 4)
	assert.Equal(t, STRING, toks[1].Kind)
	assert.Equal(t, "hi\n", toks[1].Literal)
}

func TestCommentsAreSkippedButNewlinesKept(t *testing.T) {
	toks := tokensOf(t, "iadd ; pop two, push sum\nisub\n")
	var kinds []Kind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []Kind{IDENT, NEWLINE, IDENT, NEWLINE, EOF}, kinds)
}

func TestUnterminatedStringErrors(t *testing.T) {
	_, err := New("t.asm", `log "oops`).Tokenize()
	assert.Error(t, err)
}

func TestUnexpectedCharacterErrors(t *testing.T) {
	_, err := New("t.asm", "@@@").Tokenize()
	assert.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "LABEL", LABEL.String())
	assert.Equal(t, "EOF", EOF.String())
}
