package ast

import (
	"io"

	"armips/internal/diag"
	"armips/internal/expr"
)

// Area bounds a region to size bytes, optionally padding with fill
// (spec.md §4.6.3).
type Area struct {
	base
	SizeExpr *expr.Node
	FillExpr *expr.Node // nil => error on overflow, no padding
	Body     Command
}

func (a *Area) Validate(env *Env) (bool, error) {
	sizeV, err := env.Eval(a.SizeExpr)
	if err != nil {
		return false, err
	}
	size := sizeV.AsInt()
	changed, err := a.Body.Validate(env)
	if err != nil {
		return changed, err
	}
	used := a.Body.Size()
	if used > size {
		return changed, errAt(env.Pos, "area contents (%d bytes) exceed declared size (%d bytes)", used, size)
	}
	newSize := size
	if a.FillExpr == nil {
		newSize = used
	}
	if newSize != a.size {
		changed = true
	}
	a.size = newSize
	return changed, nil
}

func (a *Area) Encode(env *Env) error {
	if err := a.Body.Encode(env); err != nil {
		return err
	}
	if a.FillExpr == nil {
		return nil
	}
	fillV, err := env.Eval(a.FillExpr)
	if err != nil {
		return err
	}
	fill := byte(fillV.AsInt())
	remaining := a.size - a.Body.Size()
	chunk := make([]byte, 64)
	for i := range chunk {
		chunk[i] = fill
	}
	for remaining > 0 {
		n := int64(len(chunk))
		if remaining < n {
			n = remaining
		}
		if err := env.Files.WriteBytes(chunk[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func (a *Area) WriteTemp(w io.Writer) error { return a.Body.WriteTemp(w) }
func (a *Area) WriteSym(w io.Writer) error  { return a.Body.WriteSym(w) }

// AlignFillKind selects AlignFill's two directive forms.
type AlignFillKind int

const (
	KindAlign AlignFillKind = iota
	KindFill
)

// AlignFill implements `.align`/`.fill` (spec.md §4.6.4). Because
// padding depends on position, which depends on prior symbol
// resolution, Validate reports changed whenever size differs from the
// previous pass, driving the fixed-point loop.
type AlignFill struct {
	base
	Kind      AlignFillKind
	ValueExpr *expr.Node // align boundary, or byte count for Fill
	FillExpr  *expr.Node // nil => fill byte 0
}

func (a *AlignFill) Validate(env *Env) (bool, error) {
	valV, err := env.Eval(a.ValueExpr)
	if err != nil {
		return false, err
	}
	val := valV.AsInt()
	var newSize int64
	switch a.Kind {
	case KindAlign:
		pos := env.Files.VirtualAddress()
		if val <= 0 {
			return false, errAt(env.Pos, "alignment must be positive")
		}
		rem := pos % val
		if rem != 0 {
			newSize = val - rem
		}
	case KindFill:
		newSize = val
	}
	changed := newSize != a.size
	a.size = newSize
	return changed, nil
}

func (a *AlignFill) Encode(env *Env) error {
	fill := byte(0)
	if a.FillExpr != nil {
		v, err := env.Eval(a.FillExpr)
		if err != nil {
			return err
		}
		fill = byte(v.AsInt())
	}
	buf := make([]byte, a.size)
	for i := range buf {
		buf[i] = fill
	}
	return env.Files.WriteBytes(buf)
}

// Skip advances the virtual position by Expr bytes without emitting
// anything (spec.md §4.6.5).
type Skip struct {
	base
	Expr *expr.Node
}

func (s *Skip) Validate(env *Env) (bool, error) {
	v, err := env.Eval(s.Expr)
	if err != nil {
		return false, err
	}
	n := v.AsInt()
	changed := n != s.size
	s.size = n
	return changed, nil
}

func (s *Skip) Encode(env *Env) error {
	f := env.Files.Active()
	if f == nil {
		return errAt(env.Pos, "no active output file")
	}
	return f.SeekVirtual(f.VirtualAddress() + s.size)
}

// PosKind distinguishes `.org` (virtual seek) from `.orga` (physical).
type PosKind int

const (
	PosVirtual PosKind = iota
	PosPhysical
)

// Position implements `.org`/`.orga` (spec.md §4.6.5).
type Position struct {
	base
	Kind PosKind
	Expr *expr.Node
}

func (p *Position) Validate(env *Env) (bool, error) {
	v, err := env.Eval(p.Expr)
	if err != nil {
		return false, err
	}
	addr := v.AsInt()
	f := env.Files.Active()
	if f == nil {
		return false, errAt(env.Pos, "no active output file")
	}
	if p.Kind == PosVirtual {
		return false, f.SeekVirtual(addr)
	}
	return false, f.SeekPhysical(addr)
}

func (p *Position) Encode(env *Env) error { return nil }

// HeaderSize implements `.headersize N`: retroactively adjusts the
// active file's virtual/physical split and re-seeks (spec.md §4.6.5).
type HeaderSize struct {
	base
	Expr *expr.Node
}

func (h *HeaderSize) Validate(env *Env) (bool, error) {
	v, err := env.Eval(h.Expr)
	if err != nil {
		return false, err
	}
	if f := env.Files.Active(); f != nil {
		f.SetHeaderSize(v.AsInt())
	}
	return false, nil
}

func (h *HeaderSize) Encode(env *Env) error { return nil }

// MsgKind selects the severity `.warning`/`.error`/`.notice` raises.
type MsgKind int

const (
	MsgNotice MsgKind = iota
	MsgWarning
	MsgError
)

// Message implements `.warning`/`.error`/`.notice expr` (spec.md §7):
// queued during Validate like any other diagnostic.
type Message struct {
	base
	Kind MsgKind
	Expr *expr.Node
}

func (m *Message) Validate(env *Env) (bool, error) {
	v, err := env.Eval(m.Expr)
	if err != nil {
		return false, err
	}
	text := expr.ToString(v).S
	env.Diag.Queue(sevFor(m.Kind), env.Pos.File, env.Pos.Line, "%s", text)
	return false, nil
}

func (m *Message) Encode(env *Env) error { return nil }

func sevFor(k MsgKind) diag.Severity {
	switch k {
	case MsgWarning:
		return diag.Warning
	case MsgError:
		return diag.Error
	default:
		return diag.Notice
	}
}

// SymEnable records a `.sym on`/`.sym off` directive in the tree. Its
// Validate and Encode do nothing, so it does not change which symbols
// the symbol files contain.
type SymEnable struct {
	base
	Enabled bool
}

func (s *SymEnable) Validate(env *Env) (bool, error) { return false, nil }
func (s *SymEnable) Encode(env *Env) error           { return nil }
