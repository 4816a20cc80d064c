package psx

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"armips/internal/ast"
	"armips/internal/expr"
	"armips/internal/output"
	"armips/internal/symtab"
)

func u16le(v int) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

func u32le(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func pascal(s string) []byte { return append([]byte{byte(len(s))}, s...) }

// buildObject constructs one minimal PSX OBJ record stream: a single
// segment named ".text" holding one 32-bit word, one internal symbol
// "foo" pointing at offset 0, and one relocation patching that word
// against symbol id 7.
func buildObject(t *testing.T) []byte {
	t.Helper()
	var b []byte
	b = append(b, []byte(objMagic)...)

	// 0x10 segment id=1 ".text"
	b = append(b, 0x10)
	b = append(b, u32le(1)...)
	b = append(b, 8)
	b = append(b, pascal(".text")...)

	// 0x06 select segment 1
	b = append(b, 0x06)
	b = append(b, u16le(1)...)

	// 0x02 append 4 bytes of data
	b = append(b, 0x02)
	b = append(b, u16le(4)...)
	b = append(b, 0x78, 0x56, 0x34, 0x12)

	// 0x0A relocation: word @ offset 0, reference symbol id 7
	b = append(b, 0x0A)
	b = append(b, 0x10) // relWord
	b = append(b, u16le(0)...)
	b = append(b, 0x02) // refSymbolID
	b = append(b, u16le(7)...)

	// 0x12 internal symbol "foo" at segment 1, offset 0
	b = append(b, 0x12)
	b = append(b, u16le(1)...)
	b = append(b, u32le(0)...)
	b = append(b, pascal("foo")...)

	return b
}

func TestParseObjectDecodesSegmentsSymbolsAndRelocations(t *testing.T) {
	data := buildObject(t)
	f, err := parseObject(data)
	require.NoError(t, err)

	require.Len(t, f.segments, 1)
	require.Equal(t, ".text", f.segments[0].name)
	require.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, f.segments[0].data)
	require.Len(t, f.segments[0].relocs, 1)
	rel := f.segments[0].relocs[0]
	require.Equal(t, relWord, rel.kind)
	require.Equal(t, refSymbolID, rel.ref)
	require.Equal(t, 7, rel.referenceID)

	require.Len(t, f.symbols, 1)
	require.Equal(t, symInternal, f.symbols[0].kind)
	require.Equal(t, "foo", f.symbols[0].name)
}

func TestParseObjectRejectsBadMagic(t *testing.T) {
	_, err := parseObject([]byte("not an obj"))
	require.Error(t, err)
}

func TestParseObjectRejectsUnrecognizedTag(t *testing.T) {
	data := append([]byte(objMagic), 0xFF)
	_, err := parseObject(data)
	require.Error(t, err)
}

// buildLibrary wraps one member's bytes in a minimal LIB container: a
// 16-byte space-padded name, a 4-byte total entry size, and a single
// zero byte ending the (empty, in this test) variable header.
func buildLibrary(name string, member []byte) []byte {
	var b []byte
	b = append(b, []byte(libMagic)...)

	nameField := make([]byte, 16)
	copy(nameField, name)
	for i := len(name); i < 16; i++ {
		nameField[i] = ' '
	}

	const headerTail = 1 // single zero terminator, no extra header fields
	entrySize := 16 + 4 + headerTail + len(member)

	b = append(b, nameField...)
	b = append(b, u32le(int32(entrySize))...)
	b = append(b, 0x00)
	b = append(b, member...)
	return b
}

func TestSplitEntriesParsesLibraryContainer(t *testing.T) {
	obj := buildObject(t)
	lib := buildLibrary("OBJ1", obj)

	entries, err := splitEntries("test.lib", lib)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "OBJ1", entries[0].name)
	require.Equal(t, obj, entries[0].data)
}

func TestSplitEntriesBareObject(t *testing.T) {
	obj := buildObject(t)
	entries, err := splitEntries("foo.obj", obj)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "foo.obj", entries[0].name)
	require.Equal(t, obj, entries[0].data)
}

func TestSplitEntriesRejectsUnknownMagic(t *testing.T) {
	_, err := splitEntries("x", []byte("garbage"))
	require.Error(t, err)
}

func TestSplitEntriesRejectsEmptyFile(t *testing.T) {
	_, err := splitEntries("x", nil)
	require.Error(t, err)
}

func TestLoadStringAndGetters(t *testing.T) {
	data := append(u16le(0x1234), u32le(0x567890A)...)
	data = append(data, pascal("hi")...)
	require.Equal(t, 0x1234, getU16(data, 0))
	require.Equal(t, int32(0x567890A), getU32(data, 2))
	s, n := loadString(data, 6)
	require.Equal(t, "hi", s)
	require.Equal(t, 3, n)
}

func TestApplyRelocWordAndUpperLower(t *testing.T) {
	buf := make([]byte, 4)
	require.NoError(t, applyReloc(buf, 0, relWord, 0x1000))
	require.Equal(t, uint32(0x1000), binary.LittleEndian.Uint32(buf))

	buf2 := make([]byte, 4)
	require.NoError(t, applyReloc(buf2, 0, relUpper, 0x12345678))
	require.Equal(t, uint32(expr.HiHalf(0x12345678))&0xFFFF, binary.LittleEndian.Uint32(buf2)&0xFFFF)

	buf3 := make([]byte, 4)
	require.NoError(t, applyReloc(buf3, 0, relLower, 0x12345678))
	require.Equal(t, uint32(expr.LoHalf(0x12345678))&0xFFFF, binary.LittleEndian.Uint32(buf3)&0xFFFF)

	require.Error(t, applyReloc(make([]byte, 4), 0, relocKind(99), 0))
}

func TestRelocationBaseResolvesBothReferenceKinds(t *testing.T) {
	f := &file{relocOffset: map[int]int64{1: 0x8000}}
	resolved := map[int]int64{7: 0x9000}

	addr, err := relocationBase(f, resolved, relocation{ref: refSymbolID, referenceID: 7, relativeOffset: 4})
	require.NoError(t, err)
	require.Equal(t, int64(0x9004), addr)

	addr, err = relocationBase(f, resolved, relocation{ref: refSegmentOffset, referenceID: 1, referencePos: 0x10})
	require.NoError(t, err)
	require.Equal(t, int64(0x8010), addr)

	_, err = relocationBase(f, resolved, relocation{ref: refSymbolID, referenceID: 999})
	require.Error(t, err)
}

func TestImportValidateThenEncodeWritesRelocatedBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "case.obj")
	require.NoError(t, os.WriteFile(path, buildObject(t), 0644))

	files := output.NewFileManager()
	out := output.NewGenericFile("out.bin", output.ModeCreate, nil)
	require.NoError(t, out.Open())
	files.Register(out)

	syms := symtab.New()
	// Nothing is pre-defined: the object only defines "foo" internally,
	// and the relocation's symbol id 7 has no matching symbol record, so
	// Validate succeeds but Encode must fail to resolve the reference.
	imp := New(path)
	env := &ast.Env{Files: files, Syms: syms}

	changed, err := imp.Validate(env)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, int64(4), imp.size)

	lbl := syms.GetLabel("foo", 0, 0)
	require.True(t, lbl.Defined)
	require.Equal(t, int64(0), lbl.Value)

	// A second Validate pass must be a no-op (already placed).
	changed, err = imp.Validate(env)
	require.NoError(t, err)
	require.False(t, changed)

	err = imp.Encode(env)
	require.Error(t, err) // symbol id 7 was never defined by this object
}
