// Command armips is the CLI entry point: parse flags, load config,
// assemble one source file, and report diagnostics, mirroring the
// teacher's main.go flag-to-subsystem wiring but built on cobra per
// SPEC_FULL.md §1.1.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"armips/internal/arch"
	"armips/internal/config"
	"armips/internal/driver"
)

var (
	tempPath       string
	symPath        string
	sym2Path       string
	rootDir        string
	equArgs        []string
	strequArgs     []string
	errorOnWarning bool
	configPath     string
	archName       string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "armips <input-file>",
		Short:         "A retargetable MIPS/ARM assembler",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAssemble,
	}

	root.Flags().StringVar(&tempPath, "temp", "", "write pretty-printed listing")
	root.Flags().StringVar(&symPath, "sym", "", "write no$ symbol file v1")
	root.Flags().StringVar(&sym2Path, "sym2", "", "write no$ symbol file v2")
	root.Flags().StringVar(&rootDir, "root", "", "chdir before assembling")
	root.Flags().StringArrayVar(&equArgs, "equ", nil, "preload equation NAME=VALUE (repeatable)")
	root.Flags().StringArrayVar(&strequArgs, "strequ", nil, "preload quoted-string equation NAME=VALUE (repeatable)")
	root.Flags().BoolVar(&errorOnWarning, "erroronwarning", false, "promote warnings to errors")
	root.Flags().StringVar(&configPath, "config", "", "override config file location")
	root.Flags().StringVar(&archName, "arch", "", "target architecture variant (overrides config); required unless the source opens with an architecture directive")

	root.AddCommand(newTestCmd())
	return root
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts, err := buildOptions(cfg, args[0])
	if err != nil {
		return err
	}

	res, err := driver.Assemble(opts)
	if err != nil {
		return err
	}
	for _, e := range res.Diagnostics {
		fmt.Fprintln(os.Stderr, e.String())
	}
	if res.HasErrors {
		return fmt.Errorf("assembly failed")
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

func buildOptions(cfg *config.Config, sourcePath string) (driver.Options, error) {
	variant := arch.Variant(cfg.Assemble.Arch)
	if archName != "" {
		variant = arch.Variant(archName)
	}

	equs, err := parseEqus(equArgs, false)
	if err != nil {
		return driver.Options{}, err
	}
	strequs, err := parseEqus(strequArgs, true)
	if err != nil {
		return driver.Options{}, err
	}

	root := rootDir
	if root == "" {
		root = cfg.Paths.Root
	}

	opts := driver.Options{
		SourcePath:      sourcePath,
		Variant:         variant,
		RootDir:         root,
		TempPath:        firstNonEmpty(tempPath, cfg.Paths.TempFile),
		SymPath:         firstNonEmpty(symPath, cfg.Paths.SymFile),
		Sym2Path:        firstNonEmpty(sym2Path, cfg.Paths.Sym2File),
		ErrorOnWarning:  errorOnWarning || cfg.Assemble.ErrorOnWarning,
		MaxValidatePass: cfg.Assemble.MaxValidatePass,
		Equs:            append(equs, strequs...),
		Out:             log.New(os.Stderr, "", 0),
	}
	return opts, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// parseEqus turns a repeated `--equ NAME=VALUE` flag into PredefinedEqu
// entries. -equ re-lexes VALUE as assembler source; -strequ wraps it
// verbatim as a string literal.
func parseEqus(raw []string, quoted bool) ([]driver.PredefinedEqu, error) {
	out := make([]driver.PredefinedEqu, 0, len(raw))
	for _, r := range raw {
		name, value, ok := splitOnce(r, '=')
		if !ok {
			return nil, fmt.Errorf("invalid -equ/-strequ argument %q, expected NAME=VALUE", r)
		}
		out = append(out, driver.PredefinedEqu{Name: name, Value: value, IsQuoted: quoted})
	}
	return out, nil
}

func splitOnce(s string, sep byte) (before, after string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
