package arm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parseLdrLiteral(t *testing.T, b *Backend, operands string) *ldrLiteral {
	t.Helper()
	s := tokenizeOperands(t, operands)
	cmd, ok, err := b.TryParse("LDR", testParseContext(s))
	require.NoError(t, err)
	require.True(t, ok)
	lit, ok := cmd.(*ldrLiteral)
	require.True(t, ok)
	return lit
}

func TestLdrLiteralDedupesAcrossRequests(t *testing.T) {
	b := testBackend()
	l0 := parseLdrLiteral(t, b, "R0, =0xCAFEBABE")
	l1 := parseLdrLiteral(t, b, "R1, =0xCAFEBABE")
	l2 := parseLdrLiteral(t, b, "R2, =0xDEADBEEF")

	env, _ := newTestEnv(t)
	_, err := l0.Validate(env)
	require.NoError(t, err)
	_, err = l1.Validate(env)
	require.NoError(t, err)
	_, err = l2.Validate(env)
	require.NoError(t, err)

	require.Same(t, l0.entry, l1.entry, "identical literals must share one pool entry")
	require.NotSame(t, l0.entry, l2.entry)

	pool := b.FlushPool()
	_, err = pool.Validate(env)
	require.NoError(t, err)
	require.Equal(t, int64(8), pool.Size())
	require.Equal(t, int64(0), l0.entry.offset)
	require.Equal(t, int64(4), l2.entry.offset)
}

func TestFlushPoolStartsFreshWindow(t *testing.T) {
	b := testBackend()
	before := parseLdrLiteral(t, b, "R0, =0x1111")
	first := b.FlushPool()
	require.NotNil(t, first)

	after := parseLdrLiteral(t, b, "R1, =0x1111")
	require.NotSame(t, before.window, after.window, "a literal after a flush starts a new window")
}
