package arm

import (
	"fmt"
	"strconv"
	"strings"
)

// registerAliases maps the ARM ABI register names to their raw number,
// generalizing the teacher's encoder.parseRegister (which only knew
// Rn/SP/LR/PC) with the rest of the AAPCS naming scheme so callee-saved
// and argument registers can be written the way real ARM assembly does.
var registerAliases = map[string]uint32{
	"A1": 0, "A2": 1, "A3": 2, "A4": 3,
	"V1": 4, "V2": 5, "V3": 6, "V4": 7, "V5": 8, "V6": 9,
	"SB": 9, "SL": 10, "FP": 11, "IP": 12,
	"SP": 13, "LR": 14, "PC": 15,
}

// ParseRegister parses a register operand (Rn or an ABI alias) into its
// 0-15 number.
func ParseRegister(text string) (uint32, error) {
	up := strings.ToUpper(strings.TrimSpace(text))
	if n, ok := registerAliases[up]; ok {
		return n, nil
	}
	if strings.HasPrefix(up, "R") {
		n, err := strconv.ParseUint(up[1:], 10, 32)
		if err == nil && n <= 15 {
			return uint32(n), nil
		}
	}
	return 0, fmt.Errorf("invalid register: %s", text)
}

// IsRegisterName reports whether text names a register, without erroring.
func IsRegisterName(text string) bool {
	_, err := ParseRegister(text)
	return err == nil
}
