package driver

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"sync"

	"armips/internal/arch"
	"armips/internal/ast"
	"armips/internal/diag"
	"armips/internal/lexer"
	"armips/internal/output"
	"armips/internal/parser"
	"armips/internal/symtab"
	"armips/internal/token"

	_ "armips/internal/arch/arm"
	_ "armips/internal/arch/mips"
)

// PredefinedEqu is one -equ/-strequ command-line definition (SPEC_FULL.md
// §1.1), applied to the symbol table before the source file is parsed.
type PredefinedEqu struct {
	Name    string
	Value   string
	IsQuoted bool // -strequ: wrap Value as a string literal rather than re-lexing it
}

// Options configures one assembler run, gathered from cmd/armips' flags
// and/or an internal/config.Config.
type Options struct {
	SourcePath string
	Variant    arch.Variant

	RootDir      string // -root
	TempPath     string // -temp, "" to skip
	SymPath      string // -sym, "" to skip
	Sym2Path     string // -sym2, "" to skip

	ErrorOnWarning  bool
	MaxValidatePass int // 0 defaults to 100

	Equs []PredefinedEqu

	Out *log.Logger // where immediate diagnostics print; nil silences them
}

// Result is everything a caller (cmd/armips, or a test) needs after a run.
type Result struct {
	Diagnostics []diag.Entry
	HasErrors   bool
	Syms        *symtab.Table // nil on early abort, before the table could exist
}

// maxPassesDefault mirrors spec.md §5's fixed-point cap.
const maxPassesDefault = 100

// Assemble runs one whole assembler invocation: parse, fixed-point
// Validate, single Encode, then emit the binary outputs plus the
// optional temp listing and no$ symbol file concurrently, since they
// read disjoint state (file bytes vs. the command tree vs. the symbol
// table) once Encode has finished.
func Assemble(opts Options) (res *Result, err error) {
	// A -arch/config default backend is optional: the source itself may
	// open with an architecture directive (.psx, .gba, ...), matching
	// the original's Arch-global reassignment. When given, it just seeds
	// the parser/file-manager state that directive would otherwise set.
	var backend arch.Backend
	if opts.Variant != "" {
		var lookupErr error
		backend, lookupErr = arch.Lookup(opts.Variant)
		if lookupErr != nil {
			return nil, lookupErr
		}
	}

	syms := symtab.New()
	logger := diag.New(opts.Out)
	logger.ErrorOnWarning = opts.ErrorOnWarning

	defer func() {
		if r := recover(); r != nil {
			abort, ok := r.(diag.FatalAbort)
			if !ok {
				panic(r)
			}
			logger.FlushPass()
			res = &Result{Diagnostics: logger.All(), HasErrors: true}
			err = abort
		}
	}()

	for _, eq := range opts.Equs {
		if !symtab.ValidName(eq.Name) {
			return nil, fmt.Errorf("-equ: %q is not a valid symbol name", eq.Name)
		}
		var body []token.Token
		if eq.IsQuoted {
			body = []token.Token{{Kind: token.String, Text: eq.Value, StrVal: eq.Value}}
		} else {
			body = lexer.New(eq.Value, "<command-line>").Tokenize()
			if len(body) > 0 && body[len(body)-1].Kind == token.EOF {
				body = body[:len(body)-1]
			}
		}
		if err := syms.DefineEqu(eq.Name, body); err != nil {
			return nil, fmt.Errorf("-equ %s: %w", eq.Name, err)
		}
	}

	files := output.NewFileManager()
	if backend != nil {
		files.LittleEndian = backend.LittleEndian()
	}

	ctx := NewContext(files, syms, backend, opts.RootDir)

	raw, readErr := os.ReadFile(opts.SourcePath)
	if readErr != nil {
		return nil, readErr
	}
	src, _, decodeErr := lexer.DecodeFile(raw, 0)
	if decodeErr != nil {
		return nil, decodeErr
	}

	p := parser.New(syms, logger, backend)
	tree, parseErr := p.ParseFile(src, opts.SourcePath, 0)
	if parseErr != nil {
		return nil, parseErr
	}
	// Parse-time diagnostics do not recur on later passes, so persist them
	// before the Validate loop's DiscardQueue can drop them.
	logger.FlushPass()

	env := &ast.Env{Files: files, Diag: logger, Syms: syms, Expr: ctx}

	maxPasses := opts.MaxValidatePass
	if maxPasses <= 0 {
		maxPasses = maxPassesDefault
	}

	converged := false
	for pass := 0; pass < maxPasses; pass++ {
		changed, validateErr := tree.Validate(env)
		if validateErr != nil {
			return nil, validateErr
		}
		if !changed {
			converged = true
			break
		}
		logger.DiscardQueue()
	}
	if !converged {
		logger.Immediate(diag.FatalError, opts.SourcePath, 0,
			"stuck in infinite validation loop after %d passes", maxPasses)
	}
	logger.FlushPass()

	if logger.HasErrors() {
		return &Result{Diagnostics: logger.All(), HasErrors: true, Syms: syms}, nil
	}

	if err := tree.Encode(env); err != nil {
		return nil, err
	}

	if err := writeOutputs(files, tree, syms, opts); err != nil {
		return nil, err
	}

	return &Result{Diagnostics: logger.All(), HasErrors: logger.HasErrors(), Syms: syms}, nil
}

// writeOutputs writes every assembled file to disk plus the optional
// temp/sym files, concurrently: each goroutine only touches one of the
// three disjoint sinks (file bytes, the tree's WriteTemp, the tree's
// WriteSym), so there is no shared mutable state to race on.
func writeOutputs(files *output.FileManager, tree *ast.CommandSequence, syms *symtab.Table, opts Options) error {
	var wg sync.WaitGroup
	errs := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, f := range files.AllFiles() {
			if err := os.WriteFile(f.FileName(), f.Bytes(), 0644); err != nil {
				errs <- fmt.Errorf("writing %q: %w", f.FileName(), err)
				return
			}
		}
	}()

	if opts.TempPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			if err := tree.WriteTemp(&buf); err != nil {
				errs <- err
				return
			}
			if err := os.WriteFile(opts.TempPath, buf.Bytes(), 0644); err != nil {
				errs <- fmt.Errorf("writing temp file %q: %w", opts.TempPath, err)
			}
		}()
	}

	for _, symPath := range []string{opts.SymPath, opts.Sym2Path} {
		if symPath == "" {
			continue
		}
		symPath := symPath
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			if err := tree.WriteSym(&buf); err != nil {
				errs <- err
				return
			}
			if err := os.WriteFile(symPath, buf.Bytes(), 0644); err != nil {
				errs <- fmt.Errorf("writing symbol file %q: %w", symPath, err)
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
