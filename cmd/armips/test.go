package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"armips/internal/arch"
	"armips/internal/driver"
)

// newTestCmd mirrors the original's `-DARMIPS_TESTS` directory-of-cases
// mode: every `<name>.asm` under the given directory is assembled with
// its sibling `<name>.arch` (a bare variant name) selecting the target,
// and the file `<name>.out.bin`, which the case's own `.open`/`.create`
// must write, is byte-compared against `<name>.expected`.
func newTestCmd() *cobra.Command {
	var archOverride string
	cmd := &cobra.Command{
		Use:   "test <dir>",
		Short: "Assemble every test case under a directory and diff against expected output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestDir(args[0], archOverride)
		},
	}
	cmd.Flags().StringVar(&archOverride, "arch", "", "default architecture variant for cases without a sibling .arch file")
	return cmd
}

func runTestDir(dir, defaultArch string) error {
	cases, err := findCases(dir)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no .asm test cases found under %q", dir)
	}

	failed := 0
	for _, c := range cases {
		if err := runOneCase(c, defaultArch); err != nil {
			fmt.Printf("FAIL %s: %v\n", c.name, err)
			failed++
			continue
		}
		fmt.Printf("PASS %s\n", c.name)
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d cases failed", failed, len(cases))
	}
	return nil
}

type testCase struct {
	name       string
	source     string
	archFile   string
	expected   string
	outputFile string
}

func findCases(dir string) ([]testCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var cases []testCase
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".asm") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".asm")
		base := filepath.Join(dir, name)
		cases = append(cases, testCase{
			name:       name,
			source:     base + ".asm",
			archFile:   base + ".arch",
			expected:   base + ".expected",
			outputFile: base + ".out.bin",
		})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].name < cases[j].name })
	return cases, nil
}

func runOneCase(c testCase, defaultArch string) error {
	variant := defaultArch
	if data, err := os.ReadFile(c.archFile); err == nil {
		variant = strings.TrimSpace(string(data))
	}

	opts := driver.Options{
		SourcePath: c.source,
		Variant:    arch.Variant(variant),
	}
	// The case's own `.open`/`.create` directives choose the output path;
	// the driver has no default output. When `<name>.expected` exists,
	// the case must write outputFile (`<name>.out.bin`), the file diffed
	// below.
	res, err := driver.Assemble(opts)
	if err != nil {
		return err
	}
	if res.HasErrors {
		var msgs []string
		for _, d := range res.Diagnostics {
			msgs = append(msgs, d.String())
		}
		return fmt.Errorf("assembly errors: %s", strings.Join(msgs, "; "))
	}

	expected, err := os.ReadFile(c.expected)
	if err != nil {
		return nil // no expected-output file: a parse-only smoke case
	}
	got, err := os.ReadFile(c.outputFile)
	if err != nil {
		return fmt.Errorf("expected output %q but no %q was produced: %w", c.expected, c.outputFile, err)
	}
	if !bytes.Equal(expected, got) {
		return fmt.Errorf("output mismatch: %d bytes expected, %d bytes produced", len(expected), len(got))
	}
	return nil
}
