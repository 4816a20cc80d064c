package mips

import (
	"fmt"
	"io"

	"armips/internal/ast"
	"armips/internal/expr"
)

// rType is a 3-register ALU instruction: `op rd, rs, rt`.
type rType struct {
	op         Opcode
	rd, rs, rt uint32
	word       uint32
}

func (r *rType) Size() int64              { return 4 }
func (r *rType) WriteTemp(io.Writer) error { return nil }
func (r *rType) WriteSym(io.Writer) error  { return nil }

func (r *rType) encode() uint32 {
	return r.op.Op<<26 | r.rs<<21 | r.rt<<16 | r.rd<<11 | r.op.Funct
}

func (r *rType) Validate(env *ast.Env) (bool, error) {
	word := r.encode()
	changed := word != r.word
	r.word = word
	return changed, nil
}

func (r *rType) Encode(env *ast.Env) error {
	r.word = r.encode()
	return env.Files.WriteU32(r.word)
}

// iType is a 16-bit-immediate instruction: arithmetic (`op rt, rs, imm`),
// memory (`op rt, offset(rs)`), or branch (`op rs, rt, target`). The three
// shapes share layout and differ only in operand source/evaluation, so one
// type with a Kind flag covers all of them, the way the teacher's
// `encodeDataProcessingMove/Arithmetic` share one `dataProc` struct.
type iType struct {
	op       Opcode
	rs, rt   uint32
	imm      *expr.Node // arithmetic/memory immediate, or branch target
	isBranch bool
	word     uint32
}

func (i *iType) Size() int64              { return 4 }
func (i *iType) WriteTemp(io.Writer) error { return nil }
func (i *iType) WriteSym(io.Writer) error  { return nil }

func (i *iType) encode(env *ast.Env) (uint32, error) {
	v, err := env.Eval(i.imm)
	if err != nil {
		return 0, err
	}
	var field uint32
	if i.isBranch {
		pc := env.Files.VirtualAddress() + 4
		offset := v.AsInt() - pc
		if offset&0x3 != 0 {
			return 0, fmt.Errorf("branch target not word-aligned: offset=%d", offset)
		}
		wordOffset := offset / 4
		if wordOffset < -0x8000 || wordOffset > 0x7FFF {
			return 0, fmt.Errorf("branch offset out of range: %d (max +-128KiB)", offset)
		}
		field = uint32(wordOffset) & 0xFFFF
	} else {
		imm := v.AsInt()
		if i.op.Flags&FlagNegImm != 0 {
			imm = -imm
		}
		field = uint32(imm) & 0xFFFF
	}
	return i.op.Op<<26 | i.rs<<21 | i.rt<<16 | field, nil
}

func (i *iType) Validate(env *ast.Env) (bool, error) {
	word, err := i.encode(env)
	if err != nil {
		return false, err
	}
	changed := word != i.word
	i.word = word
	return changed, nil
}

func (i *iType) Encode(env *ast.Env) error {
	word, err := i.encode(env)
	if err != nil {
		return err
	}
	i.word = word
	return env.Files.WriteU32(word)
}

// jType is J/JAL: a 26-bit word-address field, PC-region relative rather
// than PC-relative like ARM's branch (spec.md §4.7's MO_IPCA rule).
type jType struct {
	op     Opcode
	target *expr.Node
	word   uint32
}

func (j *jType) Size() int64              { return 4 }
func (j *jType) WriteTemp(io.Writer) error { return nil }
func (j *jType) WriteSym(io.Writer) error  { return nil }

func (j *jType) encode(env *ast.Env) (uint32, error) {
	v, err := env.Eval(j.target)
	if err != nil {
		return 0, err
	}
	addr := v.AsInt()
	if addr&0x3 != 0 {
		return 0, fmt.Errorf("jump target not word-aligned: 0x%X", addr)
	}
	field := uint32(addr>>2) & 0x3FFFFFF
	return j.op.Op<<26 | field, nil
}

func (j *jType) Validate(env *ast.Env) (bool, error) {
	word, err := j.encode(env)
	if err != nil {
		return false, err
	}
	changed := word != j.word
	j.word = word
	return changed, nil
}

func (j *jType) Encode(env *ast.Env) error {
	word, err := j.encode(env)
	if err != nil {
		return err
	}
	j.word = word
	return env.Files.WriteU32(word)
}

// nopInst is the `sll $0,$0,0` encoding of a MIPS nop, inserted by the
// PSX load-delay hazard tracker between a load and an instruction that
// reads its result.
type nopInst struct{}

func (n *nopInst) Size() int64                         { return 4 }
func (n *nopInst) WriteTemp(io.Writer) error            { return nil }
func (n *nopInst) WriteSym(io.Writer) error             { return nil }
func (n *nopInst) Validate(env *ast.Env) (bool, error)  { return false, nil }
func (n *nopInst) Encode(env *ast.Env) error            { return env.Files.WriteU32(0) }
