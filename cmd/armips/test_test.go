package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindCasesDiscoversAsmFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.asm", "a.asm", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(""), 0644))
	}

	cases, err := findCases(dir)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	require.Equal(t, "a", cases[0].name)
	require.Equal(t, "b", cases[1].name)
}

func TestFindCasesEmptyDirErrorsInRunner(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, runTestDir(dir, "psx"))
}

func TestRunOneCasePassesWhenOutputMatchesExpected(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "prog.out.bin")
	asm := ".psx\n.create \"" + out + "\"\n.org 0\n.word 0x11223344\n.close\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.asm"), []byte(asm), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.expected"), []byte{0x44, 0x33, 0x22, 0x11}, 0644))

	cases, err := findCases(dir)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.NoError(t, runOneCase(cases[0], "psx"))
}

func TestRunOneCaseFailsOnMismatch(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "prog.out.bin")
	asm := ".psx\n.create \"" + out + "\"\n.org 0\n.word 0x11223344\n.close\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.asm"), []byte(asm), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.expected"), []byte{0xFF, 0xFF, 0xFF, 0xFF}, 0644))

	cases, err := findCases(dir)
	require.NoError(t, err)
	require.Error(t, runOneCase(cases[0], "psx"))
}

func TestRunOneCaseSkipsDiffWithoutExpectedFile(t *testing.T) {
	dir := t.TempDir()
	asm := ".psx\n.create \"" + filepath.Join(dir, "prog.out.bin") + "\"\n.word 1\n.close\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.asm"), []byte(asm), 0644))

	cases, err := findCases(dir)
	require.NoError(t, err)
	require.NoError(t, runOneCase(cases[0], "psx"))
}

func TestRunOneCaseUsesSiblingArchFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "prog.out.bin")
	asm := ".gba\n.create \"" + out + "\"\n.org 0\n.word 0xAABBCCDD\n.close\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.asm"), []byte(asm), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.arch"), []byte("gba"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.expected"), []byte{0xDD, 0xCC, 0xBB, 0xAA}, 0644))

	cases, err := findCases(dir)
	require.NoError(t, err)
	require.NoError(t, runOneCase(cases[0], ""))
}
