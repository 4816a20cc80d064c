package symtab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"armips/internal/token"
)

func ident(name string) token.Token {
	return token.Token{Kind: token.Identifier, Text: name}
}

func TestValidName(t *testing.T) {
	require.True(t, ValidName("label"))
	require.True(t, ValidName("@local"))
	require.True(t, ValidName("@@loop"))
	require.True(t, ValidName("_underscore"))
	require.True(t, ValidName("dot.name"))
	require.False(t, ValidName("1digit"))
	require.False(t, ValidName("@@@toomany"))
	require.False(t, ValidName(""))
}

func TestGlobalLabelSharedAcrossFiles(t *testing.T) {
	tab := New()
	a := tab.GetLabel("foo", 1, 1)
	b := tab.GetLabel("foo", 2, 9)
	require.Same(t, a, b)
}

func TestFileStaticLabelScopedPerFile(t *testing.T) {
	tab := New()
	a := tab.GetLabel("@foo", 1, 1)
	b := tab.GetLabel("@foo", 2, 1)
	require.NotSame(t, a, b)
	c := tab.GetLabel("@foo", 1, 5)
	require.Same(t, a, c)
}

func TestLocalLabelScopedPerSection(t *testing.T) {
	tab := New()
	a := tab.GetLabel("@@loop", 1, 1)
	b := tab.GetLabel("@@loop", 1, 2)
	require.NotSame(t, a, b)
	c := tab.GetLabel("@@loop", 9, 1)
	require.Same(t, a, c)
}

func TestSymbolExistsDoesNotCreate(t *testing.T) {
	tab := New()
	require.False(t, tab.SymbolExists("foo", 1, 1))
	tab.GetLabel("foo", 1, 1)
	require.True(t, tab.SymbolExists("foo", 1, 1))
}

func TestDefineEquDirectSelfReferenceRejected(t *testing.T) {
	tab := New()
	err := tab.DefineEqu("FOO", []token.Token{ident("FOO")})
	require.Error(t, err)
}

func TestDefineEquTransitiveSelfReferenceRejected(t *testing.T) {
	tab := New()
	require.NoError(t, tab.DefineEqu("A", []token.Token{ident("B")}))
	err := tab.DefineEqu("B", []token.Token{ident("A")})
	require.Error(t, err)
}

func TestDefineEquNonSelfReferentialAccepted(t *testing.T) {
	tab := New()
	require.NoError(t, tab.DefineEqu("A", []token.Token{ident("B")}))
	body, ok := tab.LookupEqu("a")
	require.True(t, ok)
	require.Equal(t, "B", body[0].Text)
}

func TestDefineEquRejectsNestedEquKeyword(t *testing.T) {
	tab := New()
	err := tab.DefineEqu("A", []token.Token{{Kind: token.Equ}})
	require.Error(t, err)
}

func TestGetUniqueLabelNameNeverCollides(t *testing.T) {
	tab := New()
	a := tab.GetUniqueLabelName(false)
	b := tab.GetUniqueLabelName(false)
	require.NotEqual(t, a, b)
	require.True(t, tab.IsMinted(a))
	local := tab.GetUniqueLabelName(true)
	require.Contains(t, local, "@@")
}

func TestAllLabelsOnlyIncludesDefined(t *testing.T) {
	tab := New()
	l := tab.GetLabel("foo", 1, 1)
	require.Empty(t, tab.AllLabels())
	l.Value = 0x1000
	l.Defined = true
	require.Len(t, tab.AllLabels(), 1)
}

func TestUsageIndexDuplicateDefinition(t *testing.T) {
	u := NewUsageIndex()
	dup := u.RecordDefinition("foo", Reference{Kind: RefDefinition, File: "a.asm", Line: 1})
	require.False(t, dup)
	dup = u.RecordDefinition("foo", Reference{Kind: RefDefinition, File: "a.asm", Line: 5})
	require.True(t, dup)
}

func TestUsageIndexUndefinedAndUnreferenced(t *testing.T) {
	u := NewUsageIndex()
	u.RecordDefinition("defined_only", Reference{Kind: RefDefinition, File: "a.asm", Line: 1})
	u.RecordReference("used_only", Reference{Kind: RefBranch, File: "a.asm", Line: 2})

	require.Equal(t, []string{"used_only"}, u.Undefined())
	require.Equal(t, []string{"defined_only"}, u.Unreferenced())
}
