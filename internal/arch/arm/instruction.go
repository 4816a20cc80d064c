package arm

import (
	"fmt"
	"io"

	"armips/internal/ast"
	"armips/internal/expr"
	"armips/internal/token"
)

// dataProc is a 3-operand (Rd, Rn, operand2) or 2-operand move/compare
// ARM data-processing instruction, encoded fresh every Validate pass
// since operand2's immediate may depend on a not-yet-fixed label.
type dataProc struct {
	opcode  uint32
	cond    Condition
	setFlags bool
	rd      uint32
	rn      uint32
	hasRn   bool
	op2     *Operand2
	word    uint32
}

func (d *dataProc) Size() int64                  { return 4 }
func (d *dataProc) WriteTemp(io.Writer) error     { return nil }
func (d *dataProc) WriteSym(io.Writer) error      { return nil }

func (d *dataProc) evalOperand2(env *ast.Env) (immediate bool, value uint32, shiftField uint32, err error) {
	if d.op2.Imm != nil {
		v, err := env.Eval(d.op2.Imm)
		if err != nil {
			return false, 0, 0, err
		}
		return true, uint32(v.AsInt()), 0, nil
	}
	sh := Shift{Type: d.op2.Shift.Type, Reg: d.op2.Shift.Reg, HasShift: d.op2.Shift.HasShift}
	if d.op2.Shift.HasShift && d.op2.Shift.Reg < 0 && d.op2.Shift.AmountExpr != nil {
		v, err := env.Eval(d.op2.Shift.AmountExpr)
		if err != nil {
			return false, 0, 0, err
		}
		sh.Amount = uint32(v.AsInt())
	}
	return false, 0, sh.Encode(d.op2.Reg), nil
}

func (d *dataProc) Validate(env *ast.Env) (bool, error) {
	word, err := d.encode(env)
	if err != nil {
		return false, err
	}
	changed := word != d.word
	d.word = word
	return changed, nil
}

func (d *dataProc) encode(env *ast.Env) (uint32, error) {
	isImm, value, shiftField, err := d.evalOperand2(env)
	if err != nil {
		return 0, err
	}
	sBit := uint32(0)
	if d.setFlags {
		sBit = 1
	}
	opcode := d.opcode
	rn := uint32(0)
	if d.hasRn {
		rn = d.rn
	}
	if isImm {
		encoded, ok := EncodeRotatedImmediate(value)
		if !ok {
			var fbOK bool
			opcode, encoded, fbOK = dataProcFallback(d.opcode, value)
			if !fbOK {
				return 0, fmt.Errorf("immediate 0x%08X cannot be encoded as an ARM data-processing operand", value)
			}
		}
		return uint32(d.cond)<<28 | 1<<25 | opcode<<21 | sBit<<20 | rn<<16 | d.rd<<12 | encoded, nil
	}
	return uint32(d.cond)<<28 | opcode<<21 | sBit<<20 | rn<<16 | d.rd<<12 | shiftField, nil
}

func (d *dataProc) Encode(env *ast.Env) error {
	word, err := d.encode(env)
	if err != nil {
		return err
	}
	d.word = word
	return env.Files.WriteU32(word)
}

// thumbHalfword is a fixed-encoding 16-bit THUMB instruction; used for
// `nop` (0x46C0, `mov r8,r8`, the original's ThumbOpcodes.cpp entry),
// which has no operands to re-evaluate across passes.
type thumbHalfword struct{ word uint16 }

func (h *thumbHalfword) Size() int64                 { return 2 }
func (h *thumbHalfword) WriteTemp(io.Writer) error    { return nil }
func (h *thumbHalfword) WriteSym(io.Writer) error     { return nil }
func (h *thumbHalfword) Validate(env *ast.Env) (bool, error) { return false, nil }
func (h *thumbHalfword) Encode(env *ast.Env) error    { return env.Files.WriteU16(h.word) }

// blockTransfer is ARM.11 Block Data Transfer (spec.md §4.8), restricted
// here to the `PUSH`/`POP` aliases: `STMDB sp!,{list}` and
// `LDMIA sp!,{list}` respectively, per
// `original_source/ext/armips/Archs/ARM/CArmInstruction.cpp`'s
// ARM_TYPE11 encoding (`LdmModes`/`StmModes` pick P/U, here fixed to
// the DB/IA push/pop pair; `S`=0, `W`=1, `Rn`=13 always for this alias).
type blockTransfer struct {
	cond    Condition
	load    bool // true: POP/LDMIA; false: PUSH/STMDB
	regList uint32
	word    uint32
}

func (t *blockTransfer) Size() int64              { return 4 }
func (t *blockTransfer) WriteTemp(io.Writer) error { return nil }
func (t *blockTransfer) WriteSym(io.Writer) error  { return nil }

func (t *blockTransfer) encode() uint32 {
	const sp = 13
	word := uint32(t.cond)<<28 | 0x4<<25 | 1<<21 | sp<<16 | t.regList
	if t.load {
		word |= 1<<23 | 1<<20 // U=1 (IA), L=1 (load)
	} else {
		word |= 1 << 24 // P=1 (DB); U=0, L=0
	}
	return word
}

func (t *blockTransfer) Validate(env *ast.Env) (bool, error) {
	word := t.encode()
	changed := word != t.word
	t.word = word
	return changed, nil
}

func (t *blockTransfer) Encode(env *ast.Env) error {
	t.word = t.encode()
	return env.Files.WriteU32(t.word)
}

func (b *Backend) parsePushPop(base string, cond Condition, p *operandParser) (ast.Command, bool, error) {
	regList, err := p.readRegisterList()
	if err != nil {
		return nil, true, err
	}
	return &blockTransfer{cond: cond, load: base == "POP", regList: regList}, true, nil
}

func (b *Backend) parseMoveLike(base string, cond Condition, setFlags bool, p *operandParser) (ast.Command, bool, error) {
	rd, err := p.readRegister()
	if err != nil {
		return nil, true, err
	}
	if err := p.expectComma(); err != nil {
		return nil, true, err
	}
	op2, err := p.readOperand2()
	if err != nil {
		return nil, true, err
	}
	return &dataProc{opcode: dataProcOpcodes[base], cond: cond, setFlags: setFlags, rd: rd, op2: op2}, true, nil
}

func (b *Backend) parseDataProc(base string, cond Condition, setFlags bool, p *operandParser) (ast.Command, bool, error) {
	rd, err := p.readRegister()
	if err != nil {
		return nil, true, err
	}
	if err := p.expectComma(); err != nil {
		return nil, true, err
	}
	rn, err := p.readRegister()
	if err != nil {
		return nil, true, err
	}
	if err := p.expectComma(); err != nil {
		return nil, true, err
	}
	op2, err := p.readOperand2()
	if err != nil {
		return nil, true, err
	}
	return &dataProc{opcode: dataProcOpcodes[base], cond: cond, setFlags: setFlags, rd: rd, rn: rn, hasRn: true, op2: op2}, true, nil
}

func (b *Backend) parseCompare(base string, cond Condition, p *operandParser) (ast.Command, bool, error) {
	rn, err := p.readRegister()
	if err != nil {
		return nil, true, err
	}
	if err := p.expectComma(); err != nil {
		return nil, true, err
	}
	op2, err := p.readOperand2()
	if err != nil {
		return nil, true, err
	}
	return &dataProc{opcode: compareOpcodes[base], cond: cond, setFlags: true, rn: rn, hasRn: true, op2: op2}, true, nil
}

// branch is B/BL: a PC-relative 24-bit word offset re-resolved from the
// target expression every pass, since the target label's address can
// still move (spec.md §2's fixed-point Validate loop).
type branch struct {
	link   bool
	cond   Condition
	target *expr.Node
	word   uint32
}

func (br *branch) Size() int64              { return 4 }
func (br *branch) WriteTemp(io.Writer) error { return nil }
func (br *branch) WriteSym(io.Writer) error  { return nil }

func (br *branch) encode(env *ast.Env) (uint32, error) {
	v, err := env.Eval(br.target)
	if err != nil {
		return 0, err
	}
	targetAddr := v.AsInt()
	pc := env.Files.VirtualAddress() + 8
	offset := targetAddr - pc
	if offset&0x3 != 0 {
		return 0, fmt.Errorf("branch target not word-aligned: offset=%d", offset)
	}
	wordOffset := offset / 4
	if wordOffset < -0x800000 || wordOffset > 0x7FFFFF {
		return 0, fmt.Errorf("branch offset out of range: %d (max +-32MiB)", offset)
	}
	encodedOffset := uint32(wordOffset) & 0xFFFFFF
	lBit := uint32(0)
	if br.link {
		lBit = 1
	}
	return uint32(br.cond)<<28 | 5<<25 | lBit<<24 | encodedOffset, nil
}

func (br *branch) Validate(env *ast.Env) (bool, error) {
	word, err := br.encode(env)
	if err != nil {
		return false, err
	}
	changed := word != br.word
	br.word = word
	return changed, nil
}

func (br *branch) Encode(env *ast.Env) error {
	word, err := br.encode(env)
	if err != nil {
		return err
	}
	br.word = word
	return env.Files.WriteU32(word)
}

func (b *Backend) parseBranch(base string, cond Condition, p *operandParser) (ast.Command, bool, error) {
	target, err := p.readTargetExpr()
	if err != nil {
		return nil, true, err
	}
	return &branch{link: base == "BL", cond: cond, target: target}, true, nil
}

// bxInst is BX/BLX Rm, encoded as the fixed special-form data-processing
// instruction the teacher's encodeBX builds.
type bxInst struct {
	cond Condition
	link bool
	reg  uint32
}

func (bx *bxInst) Size() int64               { return 4 }
func (bx *bxInst) WriteTemp(io.Writer) error  { return nil }
func (bx *bxInst) WriteSym(io.Writer) error   { return nil }
func (bx *bxInst) Validate(env *ast.Env) (bool, error) { return false, nil }
func (bx *bxInst) Encode(env *ast.Env) error {
	top := uint32(0x12FFF1)
	if bx.link {
		top = 0x12FFF3
	}
	word := uint32(bx.cond)<<28 | top<<4 | bx.reg
	return env.Files.WriteU32(word)
}

func (b *Backend) parseBX(base string, cond Condition, p *operandParser) (ast.Command, bool, error) {
	rm, err := p.readRegister()
	if err != nil {
		return nil, true, err
	}
	return &bxInst{cond: cond, link: base == "BLX", reg: rm}, true, nil
}

// swiInst is SWI/SVC #imm24.
type swiInst struct {
	cond Condition
	imm  *expr.Node
}

func (s *swiInst) Size() int64              { return 4 }
func (s *swiInst) WriteTemp(io.Writer) error { return nil }
func (s *swiInst) WriteSym(io.Writer) error  { return nil }
func (s *swiInst) Validate(env *ast.Env) (bool, error) { return false, nil }
func (s *swiInst) Encode(env *ast.Env) error {
	v, err := env.Eval(s.imm)
	if err != nil {
		return err
	}
	word := uint32(s.cond)<<28 | 0xF<<24 | (uint32(v.AsInt()) & 0xFFFFFF)
	return env.Files.WriteU32(word)
}

func (b *Backend) parseSWI(cond Condition, p *operandParser) (ast.Command, bool, error) {
	if p.s.Peek(0).Kind != token.Hash {
		return nil, true, fmt.Errorf("expected '#' before SWI comment field")
	}
	p.s.Eat()
	n, err := p.exprParser().Parse()
	if err != nil {
		return nil, true, err
	}
	return &swiInst{cond: cond, imm: n}, true, nil
}
