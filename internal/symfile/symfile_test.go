package symfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteV1SortsAndLowercases(t *testing.T) {
	var buf bytes.Buffer
	err := WriteV1(&buf, []Entry{
		{Address: 0x100, Name: "Beta"},
		{Address: 0x50, Name: "Alpha"},
	})
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "00000000 0\n")
	require.Contains(t, out, "00000050 alpha\n")
	require.Contains(t, out, "00000100 beta\n")
	require.Equal(t, byte(0x1A), buf.Bytes()[len(buf.Bytes())-1])
}

func TestWriteV2AppendsFunctionSize(t *testing.T) {
	var buf bytes.Buffer
	err := WriteV2(&buf, []Entry{
		{Address: 0x200, Name: "main", IsFunc: true, Size: 0x40},
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "00000200 main,00000040\n")
}

func TestDataRegionSuffixes(t *testing.T) {
	var buf bytes.Buffer
	err := WriteV1(&buf, []Entry{{Address: 0x10, Kind: KindByte, Length: 0x20}})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "00000010 .byt:0020\n")
}

func TestWriteTempFormat(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTemp(&buf, []TempLine{{Address: 0x8000, Text: "nop", File: "a.asm", Line: 3}})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "; a.asm line 3")
}
