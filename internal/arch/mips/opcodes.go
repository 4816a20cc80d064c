package mips

// Format is the closed set of MIPS-I encoding shapes this table
// distinguishes (R/I/J); the real opcode table's operand-encoding
// mini-language (spec.md §4.7 — `s,t,d,i<N>,j{...}`, etc.) is schema
// spec.md explicitly leaves out of scope, so rows here carry just
// enough to drive the representative set of opcodes this pass encodes.
type Format int

const (
	FormatR Format = iota
	FormatI
	FormatJ
)

// Flag bits, named after the teacher-absent original's MO_* constants
// (spec.md §4.7). The backend reads FlagDelayRT and FlagNegImm;
// FlagDelay and FlagNoDelaySlot are set on rows but not consulted.
type Flag uint32

const (
	FlagDelayRT     Flag = 1 << iota // rt is a pending load result (PSX hazard)
	FlagDelay                        // this instruction has a delay slot (branch/jump)
	FlagNoDelaySlot                  // this instruction cannot itself occupy a delay slot
	FlagNegImm                       // immediate is negated before placement
)

// Opcode is one row of the data-driven table spec.md §4.7 describes.
type Opcode struct {
	Mnemonic string
	Format   Format
	Op       uint32 // 6-bit primary opcode field
	Funct    uint32 // 6-bit function field, R-type only
	Flags    Flag
}

// opcodeTable carries a representative row set: enough R/I/J shapes and
// load/branch flag combinations to exercise the hazard tracker and the
// encoder's three layouts, per DESIGN.md's note that the exhaustive
// table is explicitly out of spec.md's scope.
var opcodeTable = map[string]Opcode{
	"ADD":  {Mnemonic: "ADD", Format: FormatR, Funct: 0x20},
	"ADDU": {Mnemonic: "ADDU", Format: FormatR, Funct: 0x21},
	"SUB":  {Mnemonic: "SUB", Format: FormatR, Funct: 0x22},
	"SUBU": {Mnemonic: "SUBU", Format: FormatR, Funct: 0x23},
	"AND":  {Mnemonic: "AND", Format: FormatR, Funct: 0x24},
	"OR":   {Mnemonic: "OR", Format: FormatR, Funct: 0x25},
	"XOR":  {Mnemonic: "XOR", Format: FormatR, Funct: 0x26},
	"NOR":  {Mnemonic: "NOR", Format: FormatR, Funct: 0x27},
	"SLT":  {Mnemonic: "SLT", Format: FormatR, Funct: 0x2A},
	"SLTU": {Mnemonic: "SLTU", Format: FormatR, Funct: 0x2B},

	"ADDI":  {Mnemonic: "ADDI", Format: FormatI, Op: 0x08},
	"ADDIU": {Mnemonic: "ADDIU", Format: FormatI, Op: 0x09},
	"ANDI":  {Mnemonic: "ANDI", Format: FormatI, Op: 0x0C},
	"ORI":   {Mnemonic: "ORI", Format: FormatI, Op: 0x0D},
	"XORI":  {Mnemonic: "XORI", Format: FormatI, Op: 0x0E},
	"SLTI":  {Mnemonic: "SLTI", Format: FormatI, Op: 0x0A},
	"SLTIU": {Mnemonic: "SLTIU", Format: FormatI, Op: 0x0B},
	"LUI":   {Mnemonic: "LUI", Format: FormatI, Op: 0x0F},

	"LB":  {Mnemonic: "LB", Format: FormatI, Op: 0x20, Flags: FlagDelayRT},
	"LBU": {Mnemonic: "LBU", Format: FormatI, Op: 0x24, Flags: FlagDelayRT},
	"LH":  {Mnemonic: "LH", Format: FormatI, Op: 0x21, Flags: FlagDelayRT},
	"LHU": {Mnemonic: "LHU", Format: FormatI, Op: 0x25, Flags: FlagDelayRT},
	"LW":  {Mnemonic: "LW", Format: FormatI, Op: 0x23, Flags: FlagDelayRT},
	"SB":  {Mnemonic: "SB", Format: FormatI, Op: 0x28},
	"SH":  {Mnemonic: "SH", Format: FormatI, Op: 0x29},
	"SW":  {Mnemonic: "SW", Format: FormatI, Op: 0x2B},

	"BEQ": {Mnemonic: "BEQ", Format: FormatI, Op: 0x04, Flags: FlagDelay},
	"BNE": {Mnemonic: "BNE", Format: FormatI, Op: 0x05, Flags: FlagDelay},

	"J":   {Mnemonic: "J", Format: FormatJ, Op: 0x02, Flags: FlagDelay},
	"JAL": {Mnemonic: "JAL", Format: FormatJ, Op: 0x03, Flags: FlagDelay},
}

// memoryMnemonics (loads and stores) splits the I-type table further since
// their operand order (and whether offset(base) syntax applies) differs
// from arithmetic-immediate I-type rows.
var memoryMnemonics = map[string]bool{
	"LB": true, "LBU": true, "LH": true, "LHU": true, "LW": true,
	"SB": true, "SH": true, "SW": true,
}

var branchMnemonics = map[string]bool{"BEQ": true, "BNE": true}
