package mips

import (
	"fmt"
	"strings"

	"armips/internal/arch"
	"armips/internal/ast"
	"armips/internal/expr"
	"armips/internal/token"
)

// Backend implements arch.Backend for one MIPS-family variant. It holds
// one piece of sequential state across TryParse calls within a section:
// pendingLoad, the PSX load-delay hazard tracker (spec.md §4.7),
// mirroring arch/arm's poolWindow technique of keeping source-order
// state on the backend itself rather than threading it through Validate.
type Backend struct {
	variant      arch.Variant
	littleEndian bool
	psxHazard    bool // one-slot load-delay hazard detection, off until `.fixloaddelay`
	pendingLoad  *uint32
}

func New(v arch.Variant, littleEndian bool) *Backend {
	return &Backend{variant: v, littleEndian: littleEndian}
}

func (b *Backend) Family() arch.Family   { return arch.FamilyMIPS }
func (b *Backend) Variant() arch.Variant { return b.variant }
func (b *Backend) LittleEndian() bool    { return b.littleEndian }

// SetFixLoadDelay implements the parser's fixLoadDelaySetter interface
// for `.fixloaddelay` (spec.md §4.7): off by default for every MIPS
// variant, including PSX, matching the original's Mips::FixLoadDelay.
func (b *Backend) SetFixLoadDelay(on bool) { b.psxHazard = on }

func init() {
	arch.Register(New(arch.VariantPSX, true))
	arch.Register(New(arch.VariantPS2, true))
	arch.Register(New(arch.VariantPSP, true))
	arch.Register(New(arch.VariantN64, false))
	arch.Register(New(arch.VariantRSP, false))
}

func (b *Backend) exprParser(s *token.Stream, pc arch.ParseContext) *expr.Parser {
	return expr.NewParser(s, expr.Site{FileNum: pc.FileNum, Section: pc.Section})
}

func (b *Backend) expectComma(s *token.Stream) error {
	if s.Peek(0).Kind != token.Comma {
		return fmt.Errorf("expected ','")
	}
	s.Eat()
	return nil
}

// readGPR parses one `$`-prefixed register. The shared lexer's `$hex`
// immediate rule (spec.md §4.1) greedily consumes a leading run of hex
// digits after `$`, so an alias made only of hex digits (a0-a3)
// arrives as a single Integer/NumberString token carrying the original
// spelling in Text rather than as a separate Dollar + Identifier pair;
// both shapes are handled here. An alias whose hex-digit prefix is
// followed by a non-hex letter (`at`, `fp`) only partially survives this
// (the lexer stops at the first non-hex rune), so those must be written
// as `$1` and `$30` under this lexer.
func (b *Backend) readGPR(s *token.Stream) (uint32, error) {
	tok := s.Peek(0)
	switch tok.Kind {
	case token.Dollar:
		s.Eat()
		name := s.Peek(0)
		reg, err := ParseGPR("$" + name.Text)
		if err != nil {
			return 0, err
		}
		s.Eat()
		return reg, nil
	case token.Integer, token.NumberString:
		if strings.HasPrefix(tok.Text, "$") {
			reg, err := ParseGPR(tok.Text)
			if err != nil {
				return 0, err
			}
			s.Eat()
			return reg, nil
		}
	}
	return 0, fmt.Errorf("expected register, got %s", tok.Kind)
}

// readOffsetBase parses `offset(base)`, MIPS's one addressing-mode shape
// for loads/stores.
func (b *Backend) readOffsetBase(s *token.Stream, pc arch.ParseContext) (*expr.Node, uint32, error) {
	imm, err := b.exprParser(s, pc).Parse()
	if err != nil {
		return nil, 0, err
	}
	if s.Peek(0).Kind != token.LParen {
		return nil, 0, fmt.Errorf("expected '(' before base register")
	}
	s.Eat()
	rs, err := b.readGPR(s)
	if err != nil {
		return nil, 0, err
	}
	if s.Peek(0).Kind != token.RParen {
		return nil, 0, fmt.Errorf("expected ')' after base register")
	}
	s.Eat()
	return imm, rs, nil
}

// TryParse dispatches one mnemonic to the R/I/J-type parser matching its
// opcodeTable row, wrapping the result with a load-delay nop when this
// variant tracks the PSX hazard and the previous instruction's load
// result is read here.
func (b *Backend) TryParse(mnemonic string, pc arch.ParseContext) (ast.Command, bool, error) {
	upper := strings.ToUpper(mnemonic)

	if upper == "LI" || upper == "LA" {
		cmd, err := b.parsePseudoLoad(upper, pc)
		b.pendingLoad = nil
		return cmd, true, err
	}
	if upper == "NOP" {
		b.pendingLoad = nil
		return &nopInst{}, true, nil
	}
	if upper == "B" {
		// `b target` is `beq $zero, $zero, target`.
		b.pendingLoad = nil
		target, err := b.exprParser(pc.Stream, pc).Parse()
		if err != nil {
			return nil, true, err
		}
		return &iType{op: opcodeTable["BEQ"], imm: target, isBranch: true}, true, nil
	}

	op, ok := opcodeTable[upper]
	if !ok {
		return nil, false, nil
	}

	var cmd ast.Command
	var rtRead []uint32 // registers this instruction reads, for hazard detection
	var err error
	var rt uint32
	var isLoad bool

	switch {
	case op.Format == FormatR:
		cmd, rtRead, err = b.parseRType(op, pc)
	case memoryMnemonics[upper]:
		cmd, rt, rtRead, err = b.parseMemory(op, pc)
		isLoad = op.Flags&FlagDelayRT != 0
		if isLoad {
			// rt is the destination here, not something this instruction
			// reads; the base register in rtRead still needs hazard
			// checking (a load's address can itself depend on a
			// preceding load's result).
			rtRead = removeReg(rtRead, rt)
		}
	case branchMnemonics[upper]:
		cmd, rtRead, err = b.parseBranch(op, pc)
	case upper == "LUI":
		cmd, rtRead, err = b.parseUpperImm(op, pc)
	case op.Format == FormatI:
		cmd, rtRead, err = b.parseArithImm(op, pc)
	case op.Format == FormatJ:
		cmd, err = b.parseJump(op, pc)
	default:
		return nil, false, fmt.Errorf("mnemonic %q recognized but not yet encodable", mnemonic)
	}
	if err != nil {
		return nil, true, err
	}

	hazard := b.psxHazard && b.pendingLoad != nil && containsReg(rtRead, *b.pendingLoad)
	if isLoad {
		r := rt
		b.pendingLoad = &r
	} else {
		b.pendingLoad = nil
	}
	if hazard {
		return ast.NewSequence(&nopInst{}, cmd), true, nil
	}
	return cmd, true, nil
}

func containsReg(regs []uint32, r uint32) bool {
	for _, x := range regs {
		if x == r {
			return true
		}
	}
	return false
}

func removeReg(regs []uint32, r uint32) []uint32 {
	out := regs[:0]
	for _, x := range regs {
		if x != r {
			out = append(out, x)
		}
	}
	return out
}

func (b *Backend) parseRType(op Opcode, pc arch.ParseContext) (ast.Command, []uint32, error) {
	s := pc.Stream
	rd, err := b.readGPR(s)
	if err != nil {
		return nil, nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, nil, err
	}
	rs, err := b.readGPR(s)
	if err != nil {
		return nil, nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, nil, err
	}
	rt, err := b.readGPR(s)
	if err != nil {
		return nil, nil, err
	}
	return &rType{op: op, rd: rd, rs: rs, rt: rt}, []uint32{rs, rt}, nil
}

func (b *Backend) parseArithImm(op Opcode, pc arch.ParseContext) (ast.Command, []uint32, error) {
	s := pc.Stream
	rt, err := b.readGPR(s)
	if err != nil {
		return nil, nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, nil, err
	}
	rs, err := b.readGPR(s)
	if err != nil {
		return nil, nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, nil, err
	}
	imm, err := b.exprParser(s, pc).Parse()
	if err != nil {
		return nil, nil, err
	}
	return &iType{op: op, rs: rs, rt: rt, imm: imm}, []uint32{rs}, nil
}

func (b *Backend) parseUpperImm(op Opcode, pc arch.ParseContext) (ast.Command, []uint32, error) {
	s := pc.Stream
	rt, err := b.readGPR(s)
	if err != nil {
		return nil, nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, nil, err
	}
	imm, err := b.exprParser(s, pc).Parse()
	if err != nil {
		return nil, nil, err
	}
	return &iType{op: op, rs: 0, rt: rt, imm: imm}, nil, nil
}

func (b *Backend) parseMemory(op Opcode, pc arch.ParseContext) (ast.Command, uint32, []uint32, error) {
	s := pc.Stream
	rt, err := b.readGPR(s)
	if err != nil {
		return nil, 0, nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, 0, nil, err
	}
	imm, rs, err := b.readOffsetBase(s, pc)
	if err != nil {
		return nil, 0, nil, err
	}
	return &iType{op: op, rs: rs, rt: rt, imm: imm}, rt, []uint32{rs, rt}, nil
}

func (b *Backend) parseBranch(op Opcode, pc arch.ParseContext) (ast.Command, []uint32, error) {
	s := pc.Stream
	rs, err := b.readGPR(s)
	if err != nil {
		return nil, nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, nil, err
	}
	rt, err := b.readGPR(s)
	if err != nil {
		return nil, nil, err
	}
	if err := b.expectComma(s); err != nil {
		return nil, nil, err
	}
	target, err := b.exprParser(s, pc).Parse()
	if err != nil {
		return nil, nil, err
	}
	return &iType{op: op, rs: rs, rt: rt, imm: target, isBranch: true}, []uint32{rs, rt}, nil
}

func (b *Backend) parseJump(op Opcode, pc arch.ParseContext) (ast.Command, error) {
	target, err := b.exprParser(pc.Stream, pc).Parse()
	if err != nil {
		return nil, err
	}
	return &jType{op: op, target: target}, nil
}
