package expr

// Safety classes constrain when a function call may participate in
// constant-folding/simplification, per spec.md §4.3.
type Safety int

const (
	Safe Safety = iota
	ConditionalUnsafe
	Unsafe
)

// Spec describes one built-in function's effect-safety contract.
type Spec struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 = unbounded
	Safety  Safety
}

// Builtins is the single global map of built-in function names to their
// contract, per spec.md §4.3's enumeration. Function *bodies* live behind
// the Context passed to Eval, since most of them need assembler-wide
// state (current file, output name, endianness) that this package does
// not itself own.
var Builtins = map[string]Spec{
	"version":       {"version", 0, 0, Safe},
	"endianness":    {"endianness", 0, 0, Unsafe},
	"outputname":    {"outputname", 0, 0, Unsafe},
	"org":           {"org", 0, 0, Unsafe},
	"orga":          {"orga", 0, 0, Unsafe},
	"headersize":    {"headersize", 0, 0, Unsafe},
	"fileexists":    {"fileexists", 1, 1, Safe},
	"filesize":      {"filesize", 1, 1, ConditionalUnsafe},
	"tostring":      {"tostring", 1, 1, Safe},
	"tohex":         {"tohex", 1, 2, Safe},
	"int":           {"int", 1, 1, Safe},
	"float":         {"float", 1, 1, Safe},
	"frac":          {"frac", 1, 1, Safe},
	"abs":           {"abs", 1, 1, Safe},
	"round":         {"round", 1, 1, Safe},
	"strlen":        {"strlen", 1, 1, Safe},
	"substr":        {"substr", 2, 3, Safe},
	"regex_match":   {"regex_match", 2, 2, Safe},
	"regex_search":  {"regex_search", 2, 2, Safe},
	"regex_extract": {"regex_extract", 2, 3, Safe},
	"find":          {"find", 2, 3, Safe},
	"rfind":         {"rfind", 2, 3, Safe},
	"readbyte":      {"readbyte", 1, 2, ConditionalUnsafe},
	"readu8":        {"readu8", 1, 2, ConditionalUnsafe},
	"reads8":        {"reads8", 1, 2, ConditionalUnsafe},
	"readu16":       {"readu16", 1, 2, ConditionalUnsafe},
	"reads16":       {"reads16", 1, 2, ConditionalUnsafe},
	"readu32":       {"readu32", 1, 2, ConditionalUnsafe},
	"reads32":       {"reads32", 1, 2, ConditionalUnsafe},
	"readu64":       {"readu64", 1, 2, ConditionalUnsafe},
	"reads64":       {"reads64", 1, 2, ConditionalUnsafe},
	"readascii":     {"readascii", 1, 3, ConditionalUnsafe},
	"lo":            {"lo", 1, 1, Safe},
	"hi":            {"hi", 1, 1, Safe},
	"isarm":         {"isarm", 0, 0, Safe},
	"isthumb":       {"isthumb", 0, 0, Safe},
	"defined":       {"defined", 1, 1, Safe},
}

// LoHalf implements lo(v): sign-extended low 16 bits, used with HiHalf so
// that addiu $x,$x,lo(addr) composes correctly after lui $x,hi(addr) even
// when the low 16 bits are negative (spec.md §4.3, §4.7).
func LoHalf(v int64) int64 {
	lo := v & 0xFFFF
	if lo&0x8000 != 0 {
		lo -= 0x10000
	}
	return lo
}

// HiHalf implements hi(v): the carry-adjusted high 16 bits, grounded on
// the original source's getHi16 (original_source/ext/armips/Archs/MIPS/MipsMacros.cpp).
func HiHalf(v int64) int64 {
	hi := (v >> 16) & 0xFFFF
	if v&0x8000 != 0 {
		hi = (hi + 1) & 0xFFFF
	}
	return hi
}
