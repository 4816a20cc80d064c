package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamEatBasic(t *testing.T) {
	toks := []Token{
		{Kind: Identifier, Text: "foo"},
		{Kind: Comma},
		{Kind: EOF},
	}
	s := NewStream(toks)
	require.Equal(t, Identifier, s.Eat().Kind)
	require.Equal(t, Comma, s.Eat().Kind)
	require.Equal(t, EOF, s.Eat().Kind)
	require.True(t, s.AtEOF())
}

func TestStreamReplacementSplicesOnce(t *testing.T) {
	toks := []Token{
		{Kind: Identifier, Text: "X"},
		{Kind: EOF},
	}
	s := NewStream(toks)
	s.PushSource(NewMapSource(map[string][]Token{
		"x": {{Kind: Integer, Text: "1", IntVal: 1}, {Kind: Plus}, {Kind: Integer, Text: "2", IntVal: 2}},
	}))

	require.Equal(t, Integer, s.Eat().Kind)
	require.Equal(t, Plus, s.Eat().Kind)
	got := s.Eat()
	require.Equal(t, Integer, got.Kind)
	require.Equal(t, int64(2), got.IntVal)
	require.Equal(t, EOF, s.Eat().Kind)
}

func TestStreamBookmarkRestore(t *testing.T) {
	toks := []Token{{Kind: Identifier, Text: "a"}, {Kind: Identifier, Text: "b"}, {Kind: EOF}}
	s := NewStream(toks)
	mark := s.Bookmark()
	require.Equal(t, "a", s.Eat().Text)
	s.Restore(mark)
	require.Equal(t, "a", s.Eat().Text)
	require.Equal(t, "b", s.Eat().Text)
}

func TestStreamPeekDoesNotConsume(t *testing.T) {
	toks := []Token{{Kind: Identifier, Text: "a"}, {Kind: EOF}}
	s := NewStream(toks)
	require.Equal(t, "a", s.Peek(0).Text)
	require.Equal(t, "a", s.Peek(0).Text)
	require.Equal(t, "a", s.Eat().Text)
}
