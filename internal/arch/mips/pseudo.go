package mips

import (
	"io"

	"armips/internal/arch"
	"armips/internal/ast"
	"armips/internal/expr"
)

// parsePseudoLoad expands `li rt, imm` / `la rt, label` the way a real
// assembler's li/la macro does (spec.md §4.7): a value that fits a
// signed or unsigned 16-bit immediate collapses to one addiu/ori,
// otherwise it falls back to the lui/ori pair, loading the value's upper
// and lower 16 bits, re-evaluated every Validate pass instead of being
// computed once from a possibly-still-unresolved label address. The
// collapse decision itself is re-made every pass (liExpand.Validate),
// so it participates in the fixed-point loop the way any other
// size-varying command does.
func (b *Backend) parsePseudoLoad(upper string, pc arch.ParseContext) (ast.Command, error) {
	s := pc.Stream
	rt, err := b.readGPR(s)
	if err != nil {
		return nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, err
	}
	val, err := b.exprParser(s, pc).Parse()
	if err != nil {
		return nil, err
	}
	return &liExpand{rt: rt, val: val}, nil
}

// liExpand is the not-yet-decided form of an `li`/`la` pseudo-op: every
// Validate pass re-evaluates val and picks the cheapest legal
// encoding, the same way ast.Conditional picks its active branch fresh
// each pass.
type liExpand struct {
	rt     uint32
	val    *expr.Node
	size   int64
	instrs []ast.Command
}

func (l *liExpand) Size() int64 { return l.size }

func (l *liExpand) WriteTemp(w io.Writer) error {
	for _, c := range l.instrs {
		if err := c.WriteTemp(w); err != nil {
			return err
		}
	}
	return nil
}

func (l *liExpand) WriteSym(w io.Writer) error {
	for _, c := range l.instrs {
		if err := c.WriteSym(w); err != nil {
			return err
		}
	}
	return nil
}

// pick decides the cheapest encoding from the low 32 bits of val's
// current value, the same bit pattern a 32-bit register would hold:
// a value whose top 16 bits are just the sign-extension of its low 16
// bits fits one addiu; one whose top 16 bits are zero fits one ori;
// anything else needs the full lui/ori pair.
func (l *liExpand) pick(env *ast.Env) ([]ast.Command, error) {
	v, err := env.Eval(l.val)
	if err != nil {
		return nil, err
	}
	v32 := uint32(v.AsInt())
	low16 := v32 & 0xFFFF
	signExtended := uint32(int32(int16(low16)))
	switch {
	case signExtended == v32:
		// low 16 bits alone, sign-extended, reproduce the full value:
		// addiu rt, $zero, imm
		return []ast.Command{&iType{op: opcodeTable["ADDIU"], rs: 0, rt: l.rt, imm: l.val.Clone()}}, nil
	case v32&0xFFFF0000 == 0:
		// top 16 bits are zero but the low 16 don't sign-extend to
		// match (0x8000-0xFFFF): ori rt, $zero, imm
		return []ast.Command{&iType{op: opcodeTable["ORI"], rs: 0, rt: l.rt, imm: l.val.Clone()}}, nil
	default:
		// ori zero-extends its immediate, so lui takes the upper 16 bits
		// unadjusted (no hi() carry) and ori the lower 16 bits (iType
		// keeps only the low 16 bits of imm).
		hi := &expr.Node{Op: expr.OpShr, Children: []*expr.Node{l.val.Clone(), {Op: expr.OpLit, Lit: expr.Int(16)}}}
		lo := l.val.Clone()
		return []ast.Command{
			&iType{op: opcodeTable["LUI"], rs: 0, rt: l.rt, imm: hi},
			&iType{op: opcodeTable["ORI"], rs: l.rt, rt: l.rt, imm: lo},
		}, nil
	}
}

func (l *liExpand) Validate(env *ast.Env) (bool, error) {
	instrs, err := l.pick(env)
	if err != nil {
		return false, err
	}
	changed := false
	newSize := int64(4 * len(instrs))
	if newSize != l.size {
		changed = true
	}
	for _, c := range instrs {
		subChanged, err := c.Validate(env)
		if err != nil {
			return changed, err
		}
		changed = changed || subChanged
	}
	l.size = newSize
	l.instrs = instrs
	return changed, nil
}

func (l *liExpand) Encode(env *ast.Env) error {
	for _, c := range l.instrs {
		if err := c.Encode(env); err != nil {
			return err
		}
	}
	return nil
}
