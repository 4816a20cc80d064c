// Package arch defines the architecture backend contract of spec.md
// §4.7/§4.8 and a registry of the supported MIPS/ARM variants, so the
// parser can dispatch one opcode/directive to whichever backend is
// currently active without depending on arch/mips or arch/arm
// directly (they register themselves in their own init()).
package arch

import (
	"fmt"

	"armips/internal/ast"
	"armips/internal/token"
)

// Variant is one of the closed set of sub-architectures spec.md §1
// names.
type Variant string

const (
	VariantPSX Variant = "psx"
	VariantPS2 Variant = "ps2"
	VariantPSP Variant = "psp"
	VariantN64 Variant = "n64"
	VariantRSP Variant = "rsp"

	VariantGBA       Variant = "gba"
	VariantNDS       Variant = "nds"
	Variant3DS       Variant = "3ds"
	VariantARMLE     Variant = "arm-le"
	VariantARMBE     Variant = "arm-be"
	VariantThumbLE   Variant = "thumb-le"
	VariantThumbBE   Variant = "thumb-be"
)

// Family distinguishes the two instruction-set families a Backend
// belongs to, since MIPS and ARM share no opcode-parsing machinery.
type Family int

const (
	FamilyMIPS Family = iota
	FamilyARM
)

// ParseContext is what a Backend needs from the parser to turn one
// statement into a Command: the token stream positioned right after
// the mnemonic, and the file/section to stamp onto any expressions it
// parses (backends build their own internal/expr.Parser from these).
type ParseContext struct {
	Stream  *token.Stream
	File    string
	FileNum int
	Section int
	Line    int
}

// Backend is the architecture contract of spec.md §4.7/§4.8: parse one
// opcode/directive/macro, returning the Command to splice into the
// tree (or nil, not-mine, so the parser tries the next backend/
// directive path).
type Backend interface {
	Family() Family
	Variant() Variant
	LittleEndian() bool
	// TryParse attempts to parse mnemonic as one of this backend's
	// opcodes or pseudo-instructions. ok=false means "not recognized";
	// the parser should try directives/macro calls instead.
	TryParse(mnemonic string, pc ParseContext) (cmd ast.Command, ok bool, err error)
}

var registry = map[Variant]Backend{}

// Register adds a backend to the registry; called from arch/mips and
// arch/arm's init() functions.
func Register(b Backend) {
	registry[b.Variant()] = b
}

// Lookup returns the backend for a variant name (case-sensitive,
// matching the `-arch` / config values), or an error if unknown.
func Lookup(v Variant) (Backend, error) {
	b, ok := registry[v]
	if !ok {
		return nil, fmt.Errorf("unknown architecture variant %q", v)
	}
	return b, nil
}

// Variants lists every registered variant, for help text / validation.
func Variants() []Variant {
	out := make([]Variant, 0, len(registry))
	for v := range registry {
		out = append(out, v)
	}
	return out
}
