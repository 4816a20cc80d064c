package driver

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"armips/internal/arch"
	"armips/internal/expr"
	"armips/internal/output"
	"armips/internal/symtab"
)

func writeSource(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "case.s")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestAssembleWritesWordThroughArchDirective(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")
	src := writeSource(t, fmt.Sprintf(".psx\n.create \"%s\"\n.org 0\n.word 0x12345678\n.close\n", out))

	res, err := driverAssemble(t, src, nil)
	require.NoError(t, err)
	require.False(t, res.HasErrors)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, uint32(0x12345678), binary.LittleEndian.Uint32(data))
}

func TestAssembleRequiresArchDirectiveBeforeOpcode(t *testing.T) {
	src := writeSource(t, "nop\n")
	_, err := driverAssemble(t, src, nil)
	require.Error(t, err)
}

func TestAssembleAppliesPredefinedEqu(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")
	src := writeSource(t, fmt.Sprintf(".psx\n.create \"%s\"\n.org 0\n.word VALUE\n.close\n", out))

	res, err := driverAssemble(t, src, []PredefinedEqu{{Name: "VALUE", Value: "42"}})
	require.NoError(t, err)
	require.False(t, res.HasErrors)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, uint32(42), binary.LittleEndian.Uint32(data))
}

func TestAssembleRejectsInvalidEquName(t *testing.T) {
	src := writeSource(t, ".psx\n")
	_, err := driverAssemble(t, src, []PredefinedEqu{{Name: "1bad", Value: "1"}})
	require.Error(t, err)
}

func TestAssembleUnknownVariantErrors(t *testing.T) {
	src := writeSource(t, ".byte 1\n")
	opts := Options{SourcePath: src, Variant: arch.Variant("not-a-real-variant")}
	_, err := Assemble(opts)
	require.Error(t, err)
}

func TestAssembleMissingSourceFileErrors(t *testing.T) {
	opts := Options{SourcePath: "/no/such/file.s", Variant: arch.VariantPSX}
	_, err := Assemble(opts)
	require.Error(t, err)
}

// driverAssemble is a small wrapper so tests read as one line each; it
// always threads the -arch default through as empty, relying purely on
// the source's own architecture directive, the way cmd/armips does
// when -arch is omitted.
func driverAssemble(t *testing.T, src string, equs []PredefinedEqu) (*Result, error) {
	t.Helper()
	return Assemble(Options{SourcePath: src, Equs: equs})
}

func TestContextCallBuiltinArithmeticAndString(t *testing.T) {
	ctx := NewContext(output.NewFileManager(), symtab.New(), nil, "")

	v, err := ctx.CallBuiltin("hi", []expr.Value{expr.Int(0x12345678)}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(expr.HiHalf(0x12345678)), v)

	v, err = ctx.CallBuiltin("lo", []expr.Value{expr.Int(0x12345678)}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(expr.LoHalf(0x12345678)), v)

	v, err = ctx.CallBuiltin("tohex", []expr.Value{expr.Int(255), expr.Int(4)}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Str("00FF"), v)

	v, err = ctx.CallBuiltin("substr", []expr.Value{expr.Str("hello world"), expr.Int(6)}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Str("world"), v)

	v, err = ctx.CallBuiltin("find", []expr.Value{expr.Str("hello world"), expr.Str("world")}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(6), v)
}

func TestContextCallBuiltinEndiannessAndArchQueries(t *testing.T) {
	files := output.NewFileManager()
	files.LittleEndian = false
	backend, err := arch.Lookup(arch.VariantPSX)
	require.NoError(t, err)
	ctx := NewContext(files, symtab.New(), backend, "")

	v, err := ctx.CallBuiltin("endianness", nil, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Str("big"), v)

	v, err = ctx.CallBuiltin("isarm", nil, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(0), v)

	ctx.SetThumb(true)
	v, err = ctx.CallBuiltin("isthumb", nil, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(1), v)
}

func TestContextCallBuiltinUnknownNameErrors(t *testing.T) {
	ctx := NewContext(output.NewFileManager(), symtab.New(), nil, "")
	_, err := ctx.CallBuiltin("not_a_real_builtin", nil, nil)
	require.Error(t, err)
}

func TestContextLookupIdentifierResolvesLabel(t *testing.T) {
	syms := symtab.New()
	lbl := syms.GetLabel("foo", 0, 0)
	lbl.Defined = true
	lbl.Value = 0x8000

	ctx := NewContext(output.NewFileManager(), syms, nil, "")
	v, err := ctx.LookupIdentifier("foo", 0, 0)
	require.NoError(t, err)
	require.Equal(t, expr.Int(0x8000), v)
}

func TestContextFileExistsAndReadHelpers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02, 0x03, 0x04}, 0644))

	ctx := NewContext(output.NewFileManager(), symtab.New(), nil, "")
	ctx.Files.LittleEndian = true

	v, err := ctx.CallBuiltin("fileexists", []expr.Value{expr.Str(path)}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(1), v)

	v, err = ctx.CallBuiltin("filesize", []expr.Value{expr.Str(path)}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(4), v)

	v, err = ctx.CallBuiltin("readu32", []expr.Value{expr.Str(path), expr.Int(0)}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(0x04030201), v)

	v, err = ctx.CallBuiltin("fileexists", []expr.Value{expr.Str(filepath.Join(dir, "missing.bin"))}, nil)
	require.NoError(t, err)
	require.Equal(t, expr.Int(0), v)
}
