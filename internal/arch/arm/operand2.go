package arm

// EncodeRotatedImmediate tries every even rotation (0..30) looking for an
// 8-bit value that reproduces v when rotated right by that amount,
// exactly as the teacher's encoder.encodeImmediate does, returning the
// packed rotate|imm8 field and whether an encoding was found at all.
func EncodeRotatedImmediate(v uint32) (uint32, bool) {
	for rotate := uint32(0); rotate < 32; rotate += 2 {
		rotated := (v >> rotate) | (v << (32 - rotate))
		if rotated <= 0xFF {
			decodeRotate := (32 - rotate) % 32
			return (decodeRotate/2)<<8 | rotated, true
		}
	}
	return 0, false
}

// ShiftType is the 2-bit operand2 shift-type field.
type ShiftType uint32

const (
	ShiftLSL ShiftType = 0
	ShiftLSR ShiftType = 1
	ShiftASR ShiftType = 2
	ShiftROR ShiftType = 3 // ROR #0 also encodes RRX
)

// Shift describes operand2's optional register-shift suffix.
type Shift struct {
	Type      ShiftType
	Amount    uint32 // used when Reg < 0
	Reg       int32  // >= 0 selects a register-controlled shift amount
	HasShift  bool
}

// Encode packs a register operand2 with its optional shift.
func (s Shift) Encode(rm uint32) uint32 {
	if !s.HasShift {
		return rm
	}
	if s.Reg >= 0 {
		return uint32(s.Reg)<<8 | uint32(s.Type)<<5 | 1<<4 | rm
	}
	return s.Amount<<7 | uint32(s.Type)<<5 | rm
}

// dataProcFallback mirrors the teacher's mov<->mvn / cmp<->cmn immediate
// fallback in encoder.encodeOperand2: when an immediate can't be encoded
// directly, some opcodes have a logically-equivalent inverted/negated
// counterpart that might fit instead.
func dataProcFallback(opcode uint32, value uint32) (fallbackOpcode uint32, encoded uint32, ok bool) {
	switch opcode {
	case opMOV:
		if enc, ok := EncodeRotatedImmediate(^value); ok {
			return opMVN, enc, true
		}
	case opMVN:
		if enc, ok := EncodeRotatedImmediate(^value); ok {
			return opMOV, enc, true
		}
	case opCMP:
		if enc, ok := EncodeRotatedImmediate(uint32(-int32(value))); ok {
			return opCMN, enc, true
		}
	case opCMN:
		if enc, ok := EncodeRotatedImmediate(uint32(-int32(value))); ok {
			return opCMP, enc, true
		}
	}
	return 0, 0, false
}
