package mips

import (
	"testing"

	"github.com/stretchr/testify/require"

	"armips/internal/arch"
	"armips/internal/ast"
	"armips/internal/expr"
	"armips/internal/lexer"
	"armips/internal/output"
	"armips/internal/token"
)

func TestParseGPRAliasesAndNumbers(t *testing.T) {
	cases := map[string]uint32{"$zero": 0, "$t0": 8, "$s7": 23, "$ra": 31, "$8": 8, "$31": 31}
	for name, want := range cases {
		got, err := ParseGPR(name)
		require.NoError(t, err)
		require.Equal(t, want, got, name)
	}
	_, err := ParseGPR("$32")
	require.Error(t, err)
	_, err = ParseGPR("t0")
	require.Error(t, err)
}

type testContext struct {
	files *output.FileManager
	syms  map[string]int64
}

func (c *testContext) MemoryPos() int64 { return c.files.VirtualAddress() }
func (c *testContext) LookupIdentifier(name string, fileNum, section int) (expr.Value, error) {
	return expr.Int(c.syms[name]), nil
}
func (c *testContext) CallBuiltin(name string, args []expr.Value, rawArgs []*expr.Node) (expr.Value, error) {
	switch name {
	case "hi":
		return expr.Int(HiHalfForTest(args[0].AsInt())), nil
	case "lo":
		return expr.Int(LoHalfForTest(args[0].AsInt())), nil
	}
	return expr.Invalid, nil
}
func (c *testContext) InUnknownConditional() bool { return false }

// HiHalfForTest/LoHalfForTest let the test context exercise the same
// carry rule internal/expr.HiHalf/LoHalf implement without importing
// expr's internals twice.
func HiHalfForTest(v int64) int64 { return expr.HiHalf(v) }
func LoHalfForTest(v int64) int64 { return expr.LoHalf(v) }

func newTestEnv(t *testing.T) *ast.Env {
	t.Helper()
	fm := output.NewFileManager()
	f := output.NewGenericFile("out.bin", output.ModeCreate, nil)
	require.NoError(t, f.Open())
	fm.Register(f)
	ctx := &testContext{files: fm, syms: map[string]int64{}}
	return &ast.Env{Files: fm, Expr: ctx}
}

func tokenize(t *testing.T, src string) *token.Stream {
	t.Helper()
	return token.NewStream(lexer.New(src, "t.s").Tokenize())
}

func testBackend(hazard bool) *Backend {
	b := New(arch.VariantPSX, true)
	b.SetFixLoadDelay(hazard)
	return b
}

func testPC(s *token.Stream) arch.ParseContext {
	return arch.ParseContext{Stream: s, File: "t.s"}
}

func TestRTypeEncode(t *testing.T) {
	b := testBackend(false)
	s := tokenize(t, "$t0, $t1, $t2")
	cmd, ok, err := b.TryParse("ADD", testPC(s))
	require.NoError(t, err)
	require.True(t, ok)

	env := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))

	r := cmd.(*rType)
	require.Equal(t, uint32(0x012A4020), r.word) // add $t0,$t1,$t2
}

func TestIArithImmediate(t *testing.T) {
	b := testBackend(false)
	s := tokenize(t, "$t0, $t1, 5")
	cmd, ok, err := b.TryParse("ADDI", testPC(s))
	require.NoError(t, err)
	require.True(t, ok)

	env := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))

	i := cmd.(*iType)
	require.Equal(t, uint32(0x21280005), i.word) // addi $t0,$t1,5
}

func TestMemoryOffsetBase(t *testing.T) {
	b := testBackend(false)
	s := tokenize(t, "$t0, 4($sp)")
	cmd, ok, err := b.TryParse("LW", testPC(s))
	require.NoError(t, err)
	require.True(t, ok)

	env := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))

	i := cmd.(*iType)
	require.Equal(t, uint32(29), i.rs) // $sp
	require.Equal(t, uint32(0x8FA80004), i.word)
}

func TestPsxLoadDelayHazardInsertsNop(t *testing.T) {
	b := testBackend(true)

	s1 := tokenize(t, "$t0, 0($t1)")
	load, ok, err := b.TryParse("LW", testPC(s1))
	require.NoError(t, err)
	require.True(t, ok)
	_, isSeq := load.(*ast.CommandSequence)
	require.False(t, isSeq, "the load itself is never preceded by a hazard nop")

	s2 := tokenize(t, "$t2, $t0, $t3")
	next, ok, err := b.TryParse("ADD", testPC(s2))
	require.NoError(t, err)
	require.True(t, ok)
	seq, isSeq := next.(*ast.CommandSequence)
	require.True(t, isSeq, "reading the just-loaded register must insert a delay-slot nop")
	require.Len(t, seq.Children, 2)
	_, isNop := seq.Children[0].(*nopInst)
	require.True(t, isNop)
}

func TestPsxHazardNotTriggeredAcrossUnrelatedRegister(t *testing.T) {
	b := testBackend(true)

	s1 := tokenize(t, "$t0, 0($t1)")
	_, ok, err := b.TryParse("LW", testPC(s1))
	require.NoError(t, err)
	require.True(t, ok)

	s2 := tokenize(t, "$t2, $t3, $t4")
	next, ok, err := b.TryParse("ADD", testPC(s2))
	require.NoError(t, err)
	require.True(t, ok)
	_, isSeq := next.(*ast.CommandSequence)
	require.False(t, isSeq)
}

func TestLiExpandsToLuiOriWhenValueNeedsBothHalves(t *testing.T) {
	b := testBackend(false)
	s := tokenize(t, "$t0, 0x12345678")
	cmd, ok, err := b.TryParse("LI", testPC(s))
	require.NoError(t, err)
	require.True(t, ok)

	li := cmd.(*liExpand)
	env := newTestEnv(t)
	_, err = li.Validate(env)
	require.NoError(t, err)
	require.EqualValues(t, 8, li.Size())
	require.NoError(t, li.Encode(env))

	lui := li.instrs[0].(*iType)
	ori := li.instrs[1].(*iType)
	require.Equal(t, uint32(0x3C081234), lui.word)
	require.Equal(t, uint32(0x35085678), ori.word)
}

func TestLiCollapsesToSingleAddiuForSmallPositiveValue(t *testing.T) {
	b := testBackend(false)
	s := tokenize(t, "$a1, 0x00001234")
	cmd, ok, err := b.TryParse("LI", testPC(s))
	require.NoError(t, err)
	require.True(t, ok)

	li := cmd.(*liExpand)
	env := newTestEnv(t)
	_, err = li.Validate(env)
	require.NoError(t, err)
	require.EqualValues(t, 4, li.Size())
	require.NoError(t, li.Encode(env))

	addiu := li.instrs[0].(*iType)
	require.Equal(t, opcodeTable["ADDIU"].Op, addiu.op.Op)
	require.Equal(t, uint32(0x24051234), addiu.word) // addiu $a1,$zero,0x1234
}

func TestLiCollapsesToSingleAddiuForNegative16BitValue(t *testing.T) {
	b := testBackend(false)
	s := tokenize(t, "$a2, 0xFFFF8000")
	cmd, ok, err := b.TryParse("LI", testPC(s))
	require.NoError(t, err)
	require.True(t, ok)

	li := cmd.(*liExpand)
	env := newTestEnv(t)
	_, err = li.Validate(env)
	require.NoError(t, err)
	require.EqualValues(t, 4, li.Size())
	require.NoError(t, li.Encode(env))

	addiu := li.instrs[0].(*iType)
	require.Equal(t, opcodeTable["ADDIU"].Op, addiu.op.Op)
	require.Equal(t, uint32(0x24068000), addiu.word) // addiu $a2,$zero,0x8000 (-32768)
}

func TestLiCollapsesToSingleOriForUpperHalfValue(t *testing.T) {
	b := testBackend(false)
	s := tokenize(t, "$a0, 0x0000F000")
	cmd, ok, err := b.TryParse("LI", testPC(s))
	require.NoError(t, err)
	require.True(t, ok)

	li := cmd.(*liExpand)
	env := newTestEnv(t)
	_, err = li.Validate(env)
	require.NoError(t, err)
	require.EqualValues(t, 4, li.Size())
	require.NoError(t, li.Encode(env))

	ori := li.instrs[0].(*iType)
	require.Equal(t, opcodeTable["ORI"].Op, ori.op.Op)
	require.Equal(t, uint32(0x3404F000), ori.word) // ori $a0,$zero,0xF000
}

func TestJTypeEncode(t *testing.T) {
	b := testBackend(false)
	s := tokenize(t, "target")
	cmd, ok, err := b.TryParse("J", testPC(s))
	require.NoError(t, err)
	require.True(t, ok)

	env := newTestEnv(t)
	env.Expr.(*testContext).syms["target"] = 0x1000
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))

	j := cmd.(*jType)
	require.Equal(t, uint32(0x08000400), j.word)
}
