package macro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"armips/internal/lexer"
	"armips/internal/token"
)

func tokenize(t *testing.T, src string) *token.Stream {
	t.Helper()
	toks := lexer.New(src, "t.asm").Tokenize()
	return token.NewStream(toks)
}

func TestCaptureBodyStopsAtEndmacro(t *testing.T) {
	s := tokenize(t, "nop\nnop\n.endmacro\nnop\n")
	def := New("m", nil)
	require.NoError(t, CaptureBody(s, def))
	require.NotEmpty(t, def.Body)
	// One statement ("nop") should remain unconsumed after .endmacro.
	remaining := s.Eat()
	require.Equal(t, token.Identifier, remaining.Kind)
	require.Equal(t, "nop", remaining.Text)
}

func TestCaptureBodyRejectsNestedMacro(t *testing.T) {
	s := tokenize(t, "nop\n.macro inner\nnop\n.endmacro\n.endmacro\n")
	def := New("outer", nil)
	err := CaptureBody(s, def)
	require.Error(t, err)
}

func TestCaptureBodyMissingEndmacroErrors(t *testing.T) {
	s := tokenize(t, "nop\nnop\n")
	def := New("m", nil)
	err := CaptureBody(s, def)
	require.Error(t, err)
}

func TestDryRunLabelsFindsLabelDefinitions(t *testing.T) {
	s := tokenize(t, "loop:\nnop\n@@again:\nnop\n.endmacro\n")
	def := New("m", nil)
	require.NoError(t, CaptureBody(s, def))
	DryRunLabels(def)
	require.True(t, def.Labels["loop"])
	require.True(t, def.Labels["@@again"])
}

func TestExpandRenamesCapturedLabelsHygienically(t *testing.T) {
	s := tokenize(t, "loop:\nb loop\n.endmacro\n")
	def := New("saferet", nil)
	require.NoError(t, CaptureBody(s, def))
	DryRunLabels(def)

	stream1, err := def.Expand(Call{})
	require.NoError(t, err)
	first := stream1.Eat()
	require.Equal(t, "saferet_loop_00000000", first.Text)

	stream2, err := def.Expand(Call{})
	require.NoError(t, err)
	second := stream2.Eat()
	require.Equal(t, "saferet_loop_00000001", second.Text)
	require.NotEqual(t, first.Text, second.Text)
}

func TestExpandParameterSubstitution(t *testing.T) {
	s := tokenize(t, "add r0, r1, val\n.endmacro\n")
	def := New("addv", []string{"val"})
	require.NoError(t, CaptureBody(s, def))
	DryRunLabels(def)

	argToks := lexer.New("42", "t.asm").Tokenize()
	argToks = argToks[:len(argToks)-1] // drop synthetic EOF, Expand appends its own
	stream, err := def.Expand(Call{Args: [][]token.Token{argToks}})
	require.NoError(t, err)

	var texts []string
	for {
		tok := stream.Eat()
		if tok.Kind == token.EOF {
			break
		}
		texts = append(texts, tok.Text)
	}
	require.Contains(t, texts, "42")
}

func TestExpandSingleIdentifierArgumentSkipsRenaming(t *testing.T) {
	s := tokenize(t, "name:\nnop\n.endmacro\n")
	def := New("tag", []string{"name"})
	require.NoError(t, CaptureBody(s, def))
	DryRunLabels(def)
	require.True(t, def.Labels["name"])

	argToks := []token.Token{{Kind: token.Identifier, Text: "mylabel"}}
	stream, err := def.Expand(Call{Args: [][]token.Token{argToks}})
	require.NoError(t, err)
	first := stream.Eat()
	require.Equal(t, "mylabel", first.Text)
}

func TestExpandWrongArgCountErrors(t *testing.T) {
	s := tokenize(t, "nop\n.endmacro\n")
	def := New("m", []string{"%a%", "%b%"})
	require.NoError(t, CaptureBody(s, def))
	_, err := def.Expand(Call{Args: [][]token.Token{{{Kind: token.Identifier, Text: "x"}}}})
	require.Error(t, err)
}
