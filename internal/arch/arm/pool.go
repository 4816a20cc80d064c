package arm

import (
	"fmt"
	"io"

	"armips/internal/ast"
	"armips/internal/expr"
)

// poolEntry is one pending literal: a deduped 32-bit value waiting for
// its `.pool`/`.ltorg` flush point to assign it an address.
type poolEntry struct {
	value   uint32
	offset  int64 // byte offset within the flushed pool
	addr    int64 // resolved once the owning poolWindow has Validated once
	haveAddr bool
}

// poolWindow is the set of literals requested since the previous flush,
// generalizing the teacher's Encoder.LiteralPool/pendingLiterals maps
// (which tracked one flat pool for a whole program) into a per-flush-
// point window so multiple `.pool` directives each get their own
// dedup scope, per spec.md §4.8's literal pool semantics.
type poolWindow struct {
	entries []*poolEntry
	byValue map[uint32]*poolEntry
}

func newPoolWindow() *poolWindow {
	return &poolWindow{byValue: make(map[uint32]*poolEntry)}
}

func (w *poolWindow) request(value uint32) *poolEntry {
	if e, ok := w.byValue[value]; ok {
		return e
	}
	e := &poolEntry{value: value, offset: int64(len(w.entries)) * 4}
	w.entries = append(w.entries, e)
	w.byValue[value] = e
	return e
}

// currentWindow lazily starts a new literal window for this backend;
// flushing (via FlushPool) swaps it out for a fresh one.
func (b *Backend) currentWindow() *poolWindow {
	if b.window == nil {
		b.window = newPoolWindow()
	}
	return b.window
}

// FlushPool builds the ast.ArmPool command for a `.pool`/`.ltorg`
// directive, closing over the literals requested since the previous
// flush and starting a fresh window for anything parsed afterward.
func (b *Backend) FlushPool() ast.Command {
	w := b.currentWindow()
	b.window = nil
	flush := &poolFlush{window: w}
	pool := ast.NewArmPool(ast.NewBackendHook(flush.validate, flush.encode))
	flush.pool = pool
	return pool
}

type poolFlush struct {
	window *poolWindow
	pool   *ast.ArmPool
}

func (f *poolFlush) validate(env *ast.Env) (bool, error) {
	pos := env.Files.VirtualAddress()
	pad := (4 - pos%4) % 4
	size := pad + int64(len(f.window.entries))*4
	base := pos + pad
	changed := false
	for _, e := range f.window.entries {
		addr := base + e.offset
		if !e.haveAddr || e.addr != addr {
			changed = true
		}
		e.addr = addr
		e.haveAddr = true
	}
	f.pool.SetSize(size)
	return changed, nil
}

func (f *poolFlush) encode(env *ast.Env) error {
	pos := env.Files.VirtualAddress()
	pad := (4 - pos%4) % 4
	for i := int64(0); i < pad; i++ {
		if err := env.Files.WriteU8(0); err != nil {
			return err
		}
	}
	for _, e := range f.window.entries {
		if err := env.Files.WriteU32(e.value); err != nil {
			return err
		}
	}
	return nil
}

// ldrLiteral is `LDR Rd, =expr`: the rotated-immediate encoding failed
// (or was never attempted), so the value is parked in the active
// literal pool window and the instruction becomes a PC-relative load,
// same as the teacher's encodeLDRPseudo.
type ldrLiteral struct {
	cond   Condition
	rd     uint32
	valExpr *expr.Node
	window *poolWindow
	entry  *poolEntry
	word   uint32
}

func (l *ldrLiteral) Size() int64              { return 4 }
func (l *ldrLiteral) WriteTemp(io.Writer) error { return nil }
func (l *ldrLiteral) WriteSym(io.Writer) error  { return nil }

func (l *ldrLiteral) Validate(env *ast.Env) (bool, error) {
	v, err := env.Eval(l.valExpr)
	if err != nil {
		return false, err
	}
	value := uint32(v.AsInt())
	if l.entry == nil || l.entry.value != value {
		l.entry = l.window.request(value)
	}
	word, err := l.encode(env)
	if err != nil {
		return false, err
	}
	changed := word != l.word
	l.word = word
	return changed, nil
}

func (l *ldrLiteral) encode(env *ast.Env) (uint32, error) {
	if !l.entry.haveAddr {
		// Pool not yet flushed in this pass; offset 0 for now, another
		// pass converges once the owning .pool has Validated.
		return uint32(l.cond)<<28 | 0x59<<20 | 15<<16 | l.rd<<12, nil
	}
	pc := env.Files.VirtualAddress() + 8
	offset := l.entry.addr - pc
	uBit := uint32(1)
	if offset < 0 {
		uBit = 0
		offset = -offset
	}
	if offset > 0xFFF {
		return 0, fmt.Errorf("literal pool entry out of +-4095 byte range: %d", offset)
	}
	// cccc 01 0 1 U 0 0 1 Rn Rd offset12, Rn=PC(15)
	return uint32(l.cond)<<28 | 0x51<<20 | uBit<<23 | 15<<16 | l.rd<<12 | uint32(offset), nil
}

func (l *ldrLiteral) Encode(env *ast.Env) error {
	word, err := l.encode(env)
	if err != nil {
		return err
	}
	return env.Files.WriteU32(word)
}
