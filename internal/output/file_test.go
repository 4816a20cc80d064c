package output

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenericFileVirtualPhysicalSplit(t *testing.T) {
	f := NewGenericFile("out.bin", ModeCreate, nil)
	require.NoError(t, f.Open())
	f.SetHeaderSize(0x800)
	require.NoError(t, f.SeekPhysical(0x100))
	require.Equal(t, int64(0x900), f.VirtualAddress())
	require.Equal(t, int64(0x100), f.PhysicalAddress())

	require.NoError(t, f.SeekVirtual(0x1000))
	require.Equal(t, int64(0x800), f.PhysicalAddress())
}

func TestGenericFileWriteGrows(t *testing.T) {
	f := NewGenericFile("out.bin", ModeCreate, nil)
	require.NoError(t, f.Open())
	n, err := f.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{1, 2, 3, 4}, f.Bytes())
}

func TestGenericFileWriteWhileClosedErrors(t *testing.T) {
	f := NewGenericFile("out.bin", ModeCreate, nil)
	_, err := f.Write([]byte{1})
	require.Error(t, err)
}

func TestFileManagerEndianWrites(t *testing.T) {
	f := NewGenericFile("out.bin", ModeCreate, nil)
	require.NoError(t, f.Open())
	m := NewFileManager()
	m.Register(f)

	m.LittleEndian = true
	require.NoError(t, m.WriteU32(0x12345678))
	require.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, f.Bytes())

	f2 := NewGenericFile("out2.bin", ModeCreate, nil)
	require.NoError(t, f2.Open())
	m2 := NewFileManager()
	m2.Register(f2)
	m2.LittleEndian = false
	require.NoError(t, m2.WriteU32(0x12345678))
	require.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, f2.Bytes())
}

func TestFileManagerCloseActiveRestoresPrevious(t *testing.T) {
	m := NewFileManager()
	a := NewGenericFile("a.bin", ModeCreate, nil)
	b := NewGenericFile("b.bin", ModeCreate, nil)
	require.NoError(t, a.Open())
	require.NoError(t, b.Open())
	m.Register(a)
	m.Register(b)
	require.Equal(t, b, m.Active())
	require.NoError(t, m.CloseActive())
	require.Equal(t, a, m.Active())
	require.False(t, b.IsOpen())
}

func TestFileManagerWriteWithNoActiveFileErrors(t *testing.T) {
	m := NewFileManager()
	err := m.WriteU8(1)
	require.Error(t, err)
}
