// Package ast implements the command tree built by the parser: a
// closed tagged union of AssemblerCommand variants, each honoring the
// four-method Validate/Encode/WriteTemp/WriteSym contract of spec.md §3.
//
// The teacher interprets parsed ARM instructions directly with no
// intermediate tree; this package is new, shaped by spec.md §3's
// variant list and §9's "tagged enum + dispatch" design note.
package ast

import (
	"fmt"
	"io"

	"armips/internal/diag"
	"armips/internal/expr"
	"armips/internal/output"
	"armips/internal/symtab"
)

// Pos identifies where a command was parsed, restored into the
// diagnostic context before Validate/Encode run (apply_file_info).
type Pos struct {
	File string
	Line int
}

// Env is everything a Command needs to do its work: the active output
// file manager, the diagnostic logger, and the command's source
// position (set once, immutable across passes).
type Env struct {
	Files  *output.FileManager
	Diag   *diag.Logger
	Syms   *symtab.Table
	Expr   expr.Context
	Pos    Pos
	Unknown bool // true while validating inside an Unknown conditional branch
}

// Eval evaluates an expression node against the command's environment.
func (e *Env) Eval(n *expr.Node) (expr.Value, error) {
	return expr.Eval(n, e.Expr)
}

// Command is the four-method contract every tree node implements.
type Command interface {
	// Validate updates position/size state for one pass and reports
	// whether anything observable changed, driving the fixed-point loop.
	Validate(env *Env) (changed bool, err error)
	// Encode emits bytes once sizes have stabilized.
	Encode(env *Env) error
	// WriteTemp optionally writes a human-readable disassembly-style line.
	WriteTemp(w io.Writer) error
	// WriteSym optionally writes debug-symbol information.
	WriteSym(w io.Writer) error
	// Size returns the command's current byte size (0 until Validate runs).
	Size() int64
}

// base provides no-op WriteTemp/WriteSym/Size so variants only override
// what spec.md §3 asks them to.
type base struct {
	size int64
}

func (b *base) WriteTemp(io.Writer) error { return nil }
func (b *base) WriteSym(io.Writer) error  { return nil }
func (b *base) Size() int64               { return b.size }

// SetSize lets a backendHook-driven variant (ArmPool, ElfImport,
// PsxObjImport) report its byte size from outside package ast, since
// its real Validate logic lives in arch/arm, internal/elf, or
// internal/psx and only a closure crosses the package boundary.
func (b *base) SetSize(n int64) { b.size = n }

// Dummy replaces a command constructed inside a known-false conditional
// block: it preserves side-effect ordering but contributes zero size
// and does nothing at Encode (spec.md §4.2.1).
type Dummy struct{ base }

func NewDummy() *Dummy                                    { return &Dummy{} }
func (d *Dummy) Validate(env *Env) (bool, error)          { return false, nil }
func (d *Dummy) Encode(env *Env) error                    { return nil }

// Invalid marks a command that failed to parse; it has already been
// diagnosed by the parser and simply occupies its place in the tree.
type Invalid struct {
	base
	Reason string
}

func NewInvalid(reason string) *Invalid          { return &Invalid{Reason: reason} }
func (i *Invalid) Validate(env *Env) (bool, error) { return false, nil }
func (i *Invalid) Encode(env *Env) error           { return nil }

// CommandSequence is an ordered list of child commands, the backbone
// of every parsed block (file body, macro expansion, area/conditional
// branch content). Positions runs parallel to Children: a recorded
// (non-zero) entry stamps env.Pos before that child's Validate/Encode
// runs (apply_file_info); a zero entry (synthetic children built
// outside the per-statement parser loop, e.g. a directive's own
// wrapper sequence) leaves env.Pos as the enclosing statement set it.
type CommandSequence struct {
	base
	Children  []Command
	Positions []Pos
}

func NewSequence(children ...Command) *CommandSequence {
	return &CommandSequence{Children: children, Positions: make([]Pos, len(children))}
}

func (s *CommandSequence) Validate(env *Env) (bool, error) {
	changed := false
	var total int64
	for i, c := range s.Children {
		s.stampPos(env, i)
		ch, err := c.Validate(env)
		if err != nil {
			return changed, err
		}
		changed = changed || ch
		total += c.Size()
	}
	s.size = total
	return changed, nil
}

func (s *CommandSequence) Encode(env *Env) error {
	for i, c := range s.Children {
		s.stampPos(env, i)
		if err := c.Encode(env); err != nil {
			return err
		}
	}
	return nil
}

func (s *CommandSequence) stampPos(env *Env, i int) {
	if i >= len(s.Positions) {
		return
	}
	if pos := s.Positions[i]; pos.File != "" || pos.Line != 0 {
		env.Pos = pos
	}
}

func (s *CommandSequence) WriteTemp(w io.Writer) error {
	for _, c := range s.Children {
		if err := c.WriteTemp(w); err != nil {
			return err
		}
	}
	return nil
}

func (s *CommandSequence) WriteSym(w io.Writer) error {
	for _, c := range s.Children {
		if err := c.WriteSym(w); err != nil {
			return err
		}
	}
	return nil
}

// Append adds a child with no recorded position, preserving source
// order: used for synthetic wrapper sequences (e.g. an architecture
// directive's ArchSwitch+ArmStateMarker pair) that are themselves
// spliced into an enclosing, positioned sequence.
func (s *CommandSequence) Append(c Command) {
	s.Children = append(s.Children, c)
	s.Positions = append(s.Positions, Pos{})
}

// AppendAt adds a child and records the source position its
// Validate/Encode should see, regardless of which sibling last ran.
func (s *CommandSequence) AppendAt(pos Pos, c Command) {
	s.Children = append(s.Children, c)
	s.Positions = append(s.Positions, pos)
}

// errAt formats a diagnostic-ready error tied to a command's position.
func errAt(pos Pos, format string, args ...interface{}) error {
	return fmt.Errorf("%s(%d): %s", pos.File, pos.Line, fmt.Sprintf(format, args...))
}
