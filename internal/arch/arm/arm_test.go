package arm

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

func TestParseRegisterAliases(t *testing.T) {
	cases := map[string]uint32{"R0": 0, "r15": 15, "SP": 13, "LR": 14, "PC": 15, "A1": 0, "V1": 4, "IP": 12}
	for name, want := range cases {
		got, err := ParseRegister(name)
		require.NoError(t, err)
		require.Equal(t, want, got, name)
	}
	_, err := ParseRegister("R16")
	require.Error(t, err)
}

func TestEncodeRotatedImmediate(t *testing.T) {
	enc, ok := EncodeRotatedImmediate(0xFF)
	require.True(t, ok)
	require.Equal(t, uint32(0xFF), enc)

	_, ok = EncodeRotatedImmediate(0x101) // not rotatable
	require.False(t, ok)

	enc, ok = EncodeRotatedImmediate(0xFF000000)
	require.True(t, ok)
	require.Equal(t, uint32(4<<8|0xFF), enc)
}

func TestPeelMnemonicConditionAndSuffix(t *testing.T) {
	base, cond, sf, ok := peelMnemonic("MOVEQ")
	require.True(t, ok)
	require.Equal(t, "MOV", base)
	require.Equal(t, CondEQ, cond)
	require.False(t, sf)

	base, cond, sf, ok = peelMnemonic("MOVS")
	require.True(t, ok)
	require.Equal(t, "MOV", base)
	require.Equal(t, CondAL, cond)
	require.True(t, sf)

	base, cond, sf, ok = peelMnemonic("ADDEQS")
	require.True(t, ok)
	require.Equal(t, "ADD", base)
	require.Equal(t, CondEQ, cond)
	require.True(t, sf)

	// "BLS" is B.LS (branch if lower-or-same), not BL+S: branch bases
	// never accept an S suffix.
	base, cond, _, ok = peelMnemonic("BLS")
	require.True(t, ok)
	require.Equal(t, "B", base)
	require.Equal(t, CondLS, cond)

	_, _, _, ok = peelMnemonic("FROB")
	require.False(t, ok)
}

// testContext is a minimal expr.Context backing the Encode/Validate
// tests below: `.` always reads as the file manager's virtual address,
// and identifiers resolve out of a flat map.
type testContext struct {
	files *output.FileManager
	syms  map[string]int64
}

func (c *testContext) MemoryPos() int64 { return c.files.VirtualAddress() }
func (c *testContext) LookupIdentifier(name string, fileNum, section int) (expr.Value, error) {
	return expr.Int(c.syms[name]), nil
}
func (c *testContext) CallBuiltin(name string, args []expr.Value, rawArgs []*expr.Node) (expr.Value, error) {
	return expr.Invalid, nil
}
func (c *testContext) InUnknownConditional() bool { return false }

func newTestEnv(t *testing.T) (*ast.Env, *output.GenericFile) {
	t.Helper()
	fm := output.NewFileManager()
	f := output.NewGenericFile("out.bin", output.ModeCreate, nil)
	require.NoError(t, f.Open())
	fm.Register(f)
	ctx := &testContext{files: fm, syms: map[string]int64{}}
	return &ast.Env{Files: fm, Expr: ctx}, f
}

func tokenizeOperands(t *testing.T, src string) *token.Stream {
	t.Helper()
	return token.NewStream(lexer.New(src, "t.s").Tokenize())
}

func testBackend() *Backend { return New(arch.VariantARMLE, false, true) }

func testParseContext(s *token.Stream) arch.ParseContext {
	return arch.ParseContext{Stream: s, File: "t.s"}
}

func TestMovImmediateEncode(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "R0, #5")
	cmd, ok, err := b.TryParse("MOV", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)

	env, _ := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))

	dp := cmd.(*dataProc)
	require.Equal(t, uint32(0xE3A00005), dp.word) // MOV R0, #5 (AL cond, I=1, opMOV)
}

func TestBranchRangeCheck(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "target")
	cmd, ok, err := b.TryParse("B", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)

	env, _ := newTestEnv(t)
	env.Expr.(*testContext).syms["target"] = 0x40000000 // far out of +-32MiB range
	_, err = cmd.Validate(env)
	require.Error(t, err)
}

func TestMoveFallsBackToMvnWhenImmediateDoesNotFit(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "R0, #0xFFFFFF00")
	cmd, ok, err := b.TryParse("MOV", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)

	env, _ := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	dp := cmd.(*dataProc)
	require.Equal(t, uint32(opMVN), (dp.word>>21)&0xF)
}

func TestArmNopEncodesMovR0R0(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "")
	cmd, ok, err := b.TryParse("NOP", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 4, cmd.Size())

	env, _ := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))
	require.Equal(t, uint32(0xE1A00000), cmd.(*dataProc).word)
}

func TestThumbNopEncodesFixedHalfword(t *testing.T) {
	b := New(arch.VariantThumbLE, true, true)
	s := tokenizeOperands(t, "")
	cmd, ok, err := b.TryParse("NOP", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, cmd.Size())

	env, _ := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))
	require.Equal(t, uint16(0x46C0), cmd.(*thumbHalfword).word)
}

func TestPushEncodesStmdbSp(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "{r4-r6,lr}")
	cmd, ok, err := b.TryParse("PUSH", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 4, cmd.Size())

	env, _ := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))
	require.Equal(t, uint32(0xE92D4070), cmd.(*blockTransfer).word)
}

func TestPopEncodesLdmiaSp(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "{r4-r6,pc}")
	cmd, ok, err := b.TryParse("POP", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 4, cmd.Size())

	env, _ := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))
	require.Equal(t, uint32(0xE8BD8070), cmd.(*blockTransfer).word)
}

func TestPushConditionalEncodesConditionField(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "{r0}")
	cmd, ok, err := b.TryParse("PUSHNE", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)

	env, _ := newTestEnv(t)
	_, err = cmd.Validate(env)
	require.NoError(t, err)
	require.NoError(t, cmd.Encode(env))
	require.Equal(t, uint32(CondNE), cmd.(*blockTransfer).word>>28)
}

func TestReadRegisterListRangesAndSingles(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "{r0,r4-r6,lr}")
	cmd, ok, err := b.TryParse("PUSH", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)
	bt := cmd.(*blockTransfer)
	require.Equal(t, uint32(1<<0|1<<4|1<<5|1<<6|1<<14), bt.regList)
}

func TestReadRegisterListRejectsReversedRange(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "{r6-r4}")
	_, _, err := b.TryParse("PUSH", testParseContext(s))
	require.Error(t, err)
}

func TestReadRegisterListRequiresClosingBrace(t *testing.T) {
	b := testBackend()
	s := tokenizeOperands(t, "{r0,r1")
	_, _, err := b.TryParse("PUSH", testParseContext(s))
	require.Error(t, err)
}
