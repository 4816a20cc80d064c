package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, "psx", cfg.Assemble.Arch)
	require.Equal(t, 100, cfg.Assemble.MaxValidatePass)
}

func TestLoadFromParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armips.toml")
	content := "[assemble]\narch = \"arm\"\nlittle_endian = false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	require.Equal(t, "arm", cfg.Assemble.Arch)
	require.False(t, cfg.Assemble.LittleEndian)
	require.Equal(t, 100, cfg.Assemble.MaxValidatePass) // untouched default survives
}

func TestSaveToRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Assemble.Arch = "n64"
	path := filepath.Join(t.TempDir(), "out.toml")
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	require.Equal(t, "n64", loaded.Assemble.Arch)
}
