package arm

import (
	"fmt"
	"strings"

	"armips/internal/expr"
	"armips/internal/token"
)

// operandParser reads ARM operand syntax off a token.Stream, building
// expr.Node trees for anything that isn't a bare register or shift
// keyword, the way internal/expr.Parser does for plain expressions.
type operandParser struct {
	s    *token.Stream
	site expr.Site
}

func newOperandParser(s *token.Stream, site expr.Site) *operandParser {
	return &operandParser{s: s, site: site}
}

func (p *operandParser) exprParser() *expr.Parser { return expr.NewParser(p.s, p.site) }

func (p *operandParser) expectComma() error {
	if p.s.Peek(0).Kind != token.Comma {
		return fmt.Errorf("expected ','")
	}
	p.s.Eat()
	return nil
}

// readRegister consumes one identifier token and parses it as a
// register name.
func (p *operandParser) readRegister() (uint32, error) {
	tok := p.s.Peek(0)
	if tok.Kind != token.Identifier {
		return 0, fmt.Errorf("expected register, got %s", tok.Kind)
	}
	reg, err := ParseRegister(tok.Text)
	if err != nil {
		return 0, err
	}
	p.s.Eat()
	return reg, nil
}

var shiftKeywords = map[string]ShiftType{"LSL": ShiftLSL, "LSR": ShiftLSR, "ASR": ShiftASR, "ROR": ShiftROR, "RRX": ShiftROR}

// readOperand2 parses operand2: `#expr`, `Rm`, or `Rm, <shift> #expr|Rs`.
func (p *operandParser) readOperand2() (*Operand2, error) {
	if p.s.Peek(0).Kind == token.Hash {
		p.s.Eat()
		n, err := p.exprParser().Parse()
		if err != nil {
			return nil, err
		}
		return &Operand2{Imm: n}, nil
	}
	rm, err := p.readRegister()
	if err != nil {
		return nil, err
	}
	op2 := &Operand2{Reg: rm, IsReg: true}
	if p.s.Peek(0).Kind != token.Comma {
		return op2, nil
	}
	// Lookahead: a comma here only belongs to operand2 if followed by a
	// shift keyword, not if it's the next full operand (addressing-mode
	// callers strip their own operands before calling this).
	mark := p.s.Bookmark()
	p.s.Eat()
	tok := p.s.Peek(0)
	st, isShift := shiftKeywords[strings.ToUpper(tok.Text)]
	if tok.Kind != token.Identifier || !isShift {
		p.s.Restore(mark)
		return op2, nil
	}
	p.s.Eat()
	op2.Shift.HasShift = true
	op2.Shift.Type = st
	op2.Shift.Reg = -1
	if strings.ToUpper(tok.Text) == "RRX" {
		return op2, nil
	}
	if p.s.Peek(0).Kind == token.Hash {
		p.s.Eat()
		n, err := p.exprParser().Parse()
		if err != nil {
			return nil, err
		}
		op2.Shift.AmountExpr = n
		op2.Shift.Reg = -1
		return op2, nil
	}
	rs, err := p.readRegister()
	if err != nil {
		return nil, err
	}
	op2.Shift.Reg = int32(rs)
	return op2, nil
}

// Operand2 is the not-yet-evaluated form of operand2: either an
// immediate expression or a (possibly shifted) register.
type Operand2 struct {
	IsReg    bool
	Reg      uint32
	Imm      *expr.Node
	Shift    ShiftExprs
	Negative bool
}

// ShiftExprs mirrors Shift but carries an expr.Node for the immediate
// shift amount, since it must be re-evaluated every validation pass.
type ShiftExprs struct {
	HasShift   bool
	Type       ShiftType
	AmountExpr *expr.Node
	Reg        int32
}

// readTargetExpr parses a branch/ADR target: a plain expression (label
// name resolves through env.Expr exactly like any other identifier).
func (p *operandParser) readTargetExpr() (*expr.Node, error) {
	return p.exprParser().Parse()
}

// readAddressingMode parses `[Rn]`, `[Rn, #off]`, `[Rn, #off]!`, or
// `[Rn], #off`, grounded on the teacher's encodeAddressingMode string
// splitting, rebuilt against tokens instead of pre-split text.
func (p *operandParser) readAddressingMode() (*AddrMode, error) {
	if p.s.Peek(0).Kind != token.LBracket {
		return nil, fmt.Errorf("expected '[' in addressing mode")
	}
	p.s.Eat()
	rn, err := p.readRegister()
	if err != nil {
		return nil, err
	}
	am := &AddrMode{Base: rn}
	if p.s.Peek(0).Kind == token.RBracket {
		p.s.Eat()
		am.PreIndexed = true
		if p.s.Peek(0).Kind == token.Comma {
			p.s.Eat()
			off, err := p.readOffset()
			if err != nil {
				return nil, err
			}
			am.Offset = off
			am.PreIndexed = false
			am.PostIndexed = true
		}
		return am, nil
	}
	if p.s.Peek(0).Kind == token.Comma {
		p.s.Eat()
		off, err := p.readOffset()
		if err != nil {
			return nil, err
		}
		am.Offset = off
	}
	if p.s.Peek(0).Kind != token.RBracket {
		return nil, fmt.Errorf("expected ']' in addressing mode")
	}
	p.s.Eat()
	am.PreIndexed = true
	if tok := p.s.Peek(0); tok.Kind == token.Not {
		p.s.Eat()
		am.WriteBack = true
	}
	return am, nil
}

func (p *operandParser) readOffset() (*Operand2, error) {
	if p.s.Peek(0).Kind == token.Minus {
		p.s.Eat()
		op2, err := p.readOperand2()
		if err != nil {
			return nil, err
		}
		op2.Negative = true
		return op2, nil
	}
	return p.readOperand2()
}

// AddrMode is the not-yet-evaluated `[Rn, offset]` form.
type AddrMode struct {
	Base        uint32
	Offset      *Operand2
	PreIndexed  bool
	PostIndexed bool
	WriteBack   bool
}

// readRegisterList parses `{r0, r1, r4-r6, lr}`, grounded on
// `original_source/ext/armips/Archs/ARM/ArmParser.cpp`'s
// parseRegisterList: a comma-separated run of single registers and
// inclusive ranges, folded into one 16-bit register mask (bit N set
// means rN is in the list).
func (p *operandParser) readRegisterList() (uint32, error) {
	if p.s.Peek(0).Kind != token.LBrace {
		return 0, fmt.Errorf("expected '{' to start a register list")
	}
	p.s.Eat()
	var mask uint32
	for {
		lo, err := p.readRegister()
		if err != nil {
			return 0, err
		}
		hi := lo
		if p.s.Peek(0).Kind == token.Minus {
			p.s.Eat()
			hi, err = p.readRegister()
			if err != nil {
				return 0, err
			}
			if hi < lo {
				return 0, fmt.Errorf("invalid register range: r%d-r%d", lo, hi)
			}
		}
		for r := lo; r <= hi; r++ {
			mask |= 1 << r
		}
		if p.s.Peek(0).Kind != token.Comma {
			break
		}
		p.s.Eat()
	}
	if p.s.Peek(0).Kind != token.RBrace {
		return 0, fmt.Errorf("expected '}' to close a register list")
	}
	p.s.Eat()
	return mask, nil
}
