// Package mips implements the MIPS backend of spec.md §4.7: register
// parsing, a representative data-driven opcode table (exact table
// contents are explicitly out of scope per spec.md §1; only the schema
// and a few worked rows are required), PSX load-delay hazard tracking,
// and the li/la hi()/lo() pseudo-instruction split. The teacher carries
// no MIPS backend at all, so this package is grounded directly on
// spec.md §4.7 and cross-checked against
// original_source/ext/armips/Archs/MIPS/MipsOpcodes.cpp.
package mips

import (
	"fmt"
	"strconv"
	"strings"
)

// gprAliases is the general-purpose register file (one of the eleven
// register classes spec.md §4.7 names; the other ten — float, FPU
// control, Cop0, PS2-Cop2, VFPU vector/matrix, RSP-Cop0, RSP vector/
// broadcast/scalar/offset — share the same `(name, number)` lookup
// shape but are not populated here, since no opcode row in this pass's
// representative table references them).
var gprAliases = map[string]uint32{
	"ZERO": 0, "AT": 1,
	"V0": 2, "V1": 3,
	"A0": 4, "A1": 5, "A2": 6, "A3": 7,
	"T0": 8, "T1": 9, "T2": 10, "T3": 11, "T4": 12, "T5": 13, "T6": 14, "T7": 15,
	"S0": 16, "S1": 17, "S2": 18, "S3": 19, "S4": 20, "S5": 21, "S6": 22, "S7": 23,
	"T8": 24, "T9": 25, "K0": 26, "K1": 27,
	"GP": 28, "SP": 29, "FP": 30, "RA": 31,
}

// ParseGPR parses a `$`-prefixed general-purpose register: `$0`..`$31`
// or an ABI alias like `$a0`/`$sp`.
func ParseGPR(text string) (uint32, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "$") {
		return 0, fmt.Errorf("expected '$' register, got %q", text)
	}
	body := strings.ToUpper(text[1:])
	if n, ok := gprAliases[body]; ok {
		return n, nil
	}
	n, err := strconv.ParseUint(body, 10, 32)
	if err != nil || n > 31 {
		return 0, fmt.Errorf("invalid register: %s", text)
	}
	return uint32(n), nil
}
