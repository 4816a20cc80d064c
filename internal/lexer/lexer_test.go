package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"armips/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeBasicLine(t *testing.T) {
	toks := New("move r0, 1+2 ; comment\n", "f.asm").Tokenize()
	require.Equal(t, []token.Kind{
		token.Identifier, token.Identifier, token.Comma, token.Integer,
		token.Plus, token.Integer, token.Separator, token.EOF,
	}, kinds(toks))
}

func TestEquValueCapturedVerbatim(t *testing.T) {
	toks := New("FOO equ 1 + 2 * bar\n", "f.asm").Tokenize()
	require.Equal(t, token.Identifier, toks[0].Kind)
	require.Equal(t, token.Equ, toks[1].Kind)
	require.Equal(t, token.EquValue, toks[2].Kind)
	require.Equal(t, "1 + 2 * bar", toks[2].StrVal)
}

func TestLineContinuationSuppressesSeparator(t *testing.T) {
	toks := New("a \\\nb\n", "f.asm").Tokenize()
	require.Equal(t, []token.Kind{
		token.Identifier, token.Identifier, token.Separator, token.EOF,
	}, kinds(toks))
}

func TestNumberBases(t *testing.T) {
	toks := New("0x1F $1F 0b101 10h\n", "f.asm").Tokenize()
	require.Equal(t, int64(31), toks[0].IntVal)
	require.Equal(t, int64(31), toks[1].IntVal)
	require.Equal(t, int64(5), toks[2].IntVal)
	require.Equal(t, int64(16), toks[3].IntVal)
}

func TestNumberStringFallback(t *testing.T) {
	toks := New("0.1q\n", "f.asm").Tokenize()
	require.Equal(t, token.NumberString, toks[0].Kind)
}

func TestUnterminatedStringIsInvalid(t *testing.T) {
	toks := New("\"abc\n", "f.asm").Tokenize()
	require.Equal(t, token.Invalid, toks[0].Kind)
}

func TestUnterminatedBlockCommentStillReachesEOF(t *testing.T) {
	toks := New("a /* never closes", "f.asm").Tokenize()
	require.Equal(t, token.Identifier, toks[0].Kind)
	require.Equal(t, token.EOF, toks[len(toks)-1].Kind)
}

func TestDecodeFileBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("mov r0,1")...)
	s, enc, err := DecodeFile(raw, 0)
	require.NoError(t, err)
	require.Equal(t, UTF8, enc)
	require.Equal(t, "mov r0,1", s)
}
