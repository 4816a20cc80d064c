// Package config loads assembler configuration from a TOML file,
// adapted from the teacher's config/config.go (struct-of-sections with
// BurntSushi/toml, platform config-path resolution, DefaultConfig/Load/Save),
// re-themed from emulator settings to assembler settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk armips.toml schema (SPEC_FULL.md §1.2).
type Config struct {
	Assemble struct {
		Arch            string `toml:"arch"` // psx, ps2, psp, n64, rsp, gba, nds, 3ds, arm
		LittleEndian    bool   `toml:"little_endian"`
		ErrorOnWarning  bool   `toml:"error_on_warning"`
		MaxValidatePass int    `toml:"max_validate_passes"`
		FixLoadDelay    bool   `toml:"fix_load_delay"`
	} `toml:"assemble"`

	Paths struct {
		Root     string `toml:"root"`
		TempFile string `toml:"temp_file"`
		SymFile  string `toml:"sym_file"`
		Sym2File string `toml:"sym2_file"`
	} `toml:"paths"`

	Include struct {
		Dirs     []string `toml:"dirs"`
		MaxDepth int      `toml:"max_depth"`
	} `toml:"include"`

	Elf struct {
		GenerateCtorStub bool   `toml:"generate_ctor_stub"`
		DefaultEntry     string `toml:"default_entry"`
	} `toml:"elf"`
}

// Default returns the built-in configuration used when no armips.toml
// is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Assemble.Arch = "psx"
	cfg.Assemble.LittleEndian = true
	cfg.Assemble.ErrorOnWarning = false
	cfg.Assemble.MaxValidatePass = 100
	cfg.Assemble.FixLoadDelay = true

	cfg.Paths.Root = "."

	cfg.Include.MaxDepth = 150

	cfg.Elf.GenerateCtorStub = true
	return cfg
}

// Path returns the platform-specific default config file location,
// mirroring the teacher's GetConfigPath.
func Path() string {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			dir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		dir = filepath.Join(dir, "armips")
	case "darwin", "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "armips.toml"
		}
		dir = filepath.Join(home, ".config", "armips")
	default:
		return "armips.toml"
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "armips.toml"
	}
	return filepath.Join(dir, "armips.toml")
}

// Load reads the default config path, returning defaults if absent.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads and merges path over the defaults. A missing file is
// not an error; it simply yields Default().
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// SaveTo writes cfg to path in TOML form.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
