// Package driver implements the fixed-point Validate/Encode pipeline of
// spec.md §5: repeatedly validate the parsed command tree until layout
// stabilizes (capped at 100 passes), encode once, and emit the binary
// image plus the optional temp listing and no$ symbol file concurrently
// over disjoint sinks.
//
// Grounded on the teacher's loader/loader.go (walk parsed instructions,
// encode, place into memory), generalized into the Validate-until-stable/
// Encode-once loop spec.md §5 describes; the teacher has no concurrency
// precedent for the temp/sym emission, so it is expressed with ordinary
// goroutines + a WaitGroup over the three disjoint output sinks.
package driver

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"armips/internal/arch"
	"armips/internal/expr"
	"armips/internal/output"
	"armips/internal/symtab"
)

// Context is the runtime expr.Context threaded through every command's
// Validate/Encode call (spec.md §4.3): `.` resolves against the active
// output file, identifiers resolve against the symbol table (recording
// cross-reference usage as they go), and every built-in function of
// spec.md §4.3's table is implemented here since nearly all of them need
// assembler-wide state this package owns.
type Context struct {
	Files   *output.FileManager
	Syms    *symtab.Table
	Backend arch.Backend

	RootDir string // -root base, relative paths for fileexists/readXX resolve against this

	FileName string // source position recorded on cross-reference entries; nothing in this package sets it after NewContext
	Line     int

	thumb bool // current .arm/.thumb mode, flipped by ast.ArmStateMarker's hook via SetThumb
}

func NewContext(files *output.FileManager, syms *symtab.Table, backend arch.Backend, rootDir string) *Context {
	return &Context{Files: files, Syms: syms, Backend: backend, RootDir: rootDir}
}

// SetThumb is called by ast.ArmStateMarker's hook (via a structural
// interface check, so package ast need not import driver) whenever a
// `.arm`/`.thumb` directive is validated.
func (c *Context) SetThumb(thumb bool) { c.thumb = thumb }

func (c *Context) MemoryPos() int64 { return c.Files.VirtualAddress() }

func (c *Context) LookupIdentifier(name string, fileNum, section int) (expr.Value, error) {
	lbl := c.Syms.GetLabel(name, fileNum, section)
	c.Syms.Usage.RecordReference(strings.ToLower(name), symtab.Reference{
		Kind: symtab.RefData, File: c.FileName, Line: c.Line,
	})
	return expr.Int(lbl.Value), nil
}

func (c *Context) InUnknownConditional() bool { return false }

func (c *Context) resolvePath(p string) string {
	if p == "" || os.IsPathSeparator(p[0]) || c.RootDir == "" {
		return p
	}
	return c.RootDir + string(os.PathSeparator) + p
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// CallBuiltin implements every built-in of spec.md §4.3.
func (c *Context) CallBuiltin(name string, args []expr.Value, rawArgs []*expr.Node) (expr.Value, error) {
	switch name {
	case "defined":
		if len(rawArgs) != 1 || rawArgs[0].Op != expr.OpIdentifier {
			return expr.Invalid, fmt.Errorf("defined() requires a bare identifier")
		}
		n := rawArgs[0]
		exists := c.Syms.EquExists(n.Name) || c.Syms.SymbolExists(n.Name, n.DefFile, n.DefSection)
		return expr.Int(boolInt(exists)), nil

	case "version":
		return expr.Str("armips-go"), nil
	case "endianness":
		if c.Files.LittleEndian {
			return expr.Str("little"), nil
		}
		return expr.Str("big"), nil
	case "outputname":
		if f := c.Files.Active(); f != nil {
			return expr.Str(f.FileName()), nil
		}
		return expr.Str(""), nil
	case "org":
		return expr.Int(c.Files.VirtualAddress()), nil
	case "orga":
		if f := c.Files.Active(); f != nil {
			return expr.Int(f.PhysicalAddress()), nil
		}
		return expr.Int(0), nil
	case "headersize":
		if f := c.Files.Active(); f != nil {
			return expr.Int(f.HeaderSize()), nil
		}
		return expr.Int(0), nil

	case "fileexists":
		_, err := os.Stat(c.resolvePath(args[0].S))
		return expr.Int(boolInt(err == nil)), nil
	case "filesize":
		info, err := os.Stat(c.resolvePath(args[0].S))
		if err != nil {
			return expr.Undef, nil
		}
		return expr.Int(info.Size()), nil

	case "tostring":
		return expr.Str(args[0].String()), nil
	case "tohex":
		digits := 0
		if len(args) > 1 {
			digits = int(args[1].AsInt())
		}
		s := strings.ToUpper(strconv.FormatUint(uint64(args[0].AsInt()), 16))
		if len(s) < digits {
			s = strings.Repeat("0", digits-len(s)) + s
		}
		return expr.Str(s), nil

	case "int":
		return expr.Int(int64(args[0].AsFloat())), nil
	case "float":
		return expr.Float(args[0].AsFloat()), nil
	case "frac":
		f := args[0].AsFloat()
		return expr.Float(f - math.Trunc(f)), nil
	case "abs":
		v := args[0].AsFloat()
		if v < 0 {
			v = -v
		}
		if args[0].Kind == expr.KindFloat {
			return expr.Float(v), nil
		}
		return expr.Int(int64(v)), nil
	case "round":
		return expr.Int(int64(math.Round(args[0].AsFloat()))), nil

	case "strlen":
		return expr.Int(int64(len(args[0].S))), nil
	case "substr":
		return substr(args)
	case "find":
		return findImpl(args, false)
	case "rfind":
		return findImpl(args, true)
	case "regex_match":
		return regexMatch(args)
	case "regex_search":
		return regexSearch(args)
	case "regex_extract":
		return regexExtract(args)

	case "readbyte", "readu8":
		return c.readInt(args, 1, false)
	case "reads8":
		return c.readInt(args, 1, true)
	case "readu16":
		return c.readInt(args, 2, false)
	case "reads16":
		return c.readInt(args, 2, true)
	case "readu32":
		return c.readInt(args, 4, false)
	case "reads32":
		return c.readInt(args, 4, true)
	case "readu64":
		return c.readInt(args, 8, false)
	case "reads64":
		return c.readInt(args, 8, true)
	case "readascii":
		return c.readAscii(args)

	case "lo":
		return expr.Int(expr.LoHalf(args[0].AsInt())), nil
	case "hi":
		return expr.Int(expr.HiHalf(args[0].AsInt())), nil
	case "isarm":
		return expr.Int(boolInt(c.Backend != nil && c.Backend.Family() == arch.FamilyARM)), nil
	case "isthumb":
		return expr.Int(boolInt(c.thumb)), nil

	default:
		return expr.Invalid, fmt.Errorf("unknown built-in function %q", name)
	}
}

func substr(args []expr.Value) (expr.Value, error) {
	s := args[0].S
	start := int(args[1].AsInt())
	n := len(s) - start
	if len(args) > 2 {
		n = int(args[2].AsInt())
	}
	if start < 0 || start > len(s) {
		return expr.Str(""), nil
	}
	end := start + n
	if end > len(s) {
		end = len(s)
	}
	if end < start {
		end = start
	}
	return expr.Str(s[start:end]), nil
}

func findImpl(args []expr.Value, reverse bool) (expr.Value, error) {
	s, needle := args[0].S, args[1].S
	start := 0
	if len(args) > 2 {
		start = int(args[2].AsInt())
	}
	if start < 0 || start > len(s) {
		return expr.Int(-1), nil
	}
	if reverse {
		idx := strings.LastIndex(s, needle)
		return expr.Int(int64(idx)), nil
	}
	idx := strings.Index(s[start:], needle)
	if idx < 0 {
		return expr.Int(-1), nil
	}
	return expr.Int(int64(idx + start)), nil
}

func regexMatch(args []expr.Value) (expr.Value, error) {
	re, err := regexp.Compile(args[1].S)
	if err != nil {
		return expr.Invalid, err
	}
	return expr.Int(boolInt(re.MatchString(args[0].S))), nil
}

func regexSearch(args []expr.Value) (expr.Value, error) {
	re, err := regexp.Compile(args[1].S)
	if err != nil {
		return expr.Invalid, err
	}
	loc := re.FindStringIndex(args[0].S)
	if loc == nil {
		return expr.Int(-1), nil
	}
	return expr.Int(int64(loc[0])), nil
}

func regexExtract(args []expr.Value) (expr.Value, error) {
	re, err := regexp.Compile(args[1].S)
	if err != nil {
		return expr.Invalid, err
	}
	group := 0
	if len(args) > 2 {
		group = int(args[2].AsInt())
	}
	m := re.FindStringSubmatch(args[0].S)
	if m == nil || group >= len(m) {
		return expr.Str(""), nil
	}
	return expr.Str(m[group]), nil
}

func (c *Context) readInt(args []expr.Value, width int, signed bool) (expr.Value, error) {
	path := c.resolvePath(args[0].S)
	off := int64(0)
	if len(args) > 1 {
		off = args[1].AsInt()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return expr.Undef, nil
	}
	if off < 0 || off+int64(width) > int64(len(data)) {
		return expr.Undef, nil
	}
	chunk := data[off : off+int64(width)]
	var u uint64
	if c.Files.LittleEndian {
		for i := width - 1; i >= 0; i-- {
			u = u<<8 | uint64(chunk[i])
		}
	} else {
		for i := 0; i < width; i++ {
			u = u<<8 | uint64(chunk[i])
		}
	}
	if !signed {
		return expr.Int(int64(u)), nil
	}
	bits := uint(width * 8)
	signBit := uint64(1) << (bits - 1)
	if u&signBit != 0 {
		u -= uint64(1) << bits
	}
	return expr.Int(int64(u)), nil
}

func (c *Context) readAscii(args []expr.Value) (expr.Value, error) {
	path := c.resolvePath(args[0].S)
	off := int64(0)
	if len(args) > 1 {
		off = args[1].AsInt()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return expr.Undef, nil
	}
	if off < 0 || off > int64(len(data)) {
		return expr.Undef, nil
	}
	end := int64(len(data))
	if len(args) > 2 {
		if want := off + args[2].AsInt(); want < end {
			end = want
		}
	}
	return expr.Str(string(data[off:end])), nil
}
