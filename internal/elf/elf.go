// Package elf implements the ELF32 relocatable-object importer of
// spec.md §4.9: read one ELF32 object or every member of a GNU ar
// archive, place its allocatable sections into the active output
// file, export its global symbols into the shared symbol table, and
// patch MIPS/ARM relocations against their final addresses once the
// layout has converged.
//
// Grounded on original_source/ext/armips/Core/ELF/ElfRelocator.cpp:
// loadArArchive's "!<arch>\n"/bare-ELF-magic dispatch, init()'s
// SHF_ALLOC-section + matching-SHT_REL pairing, and exportSymbols()'s
// STB_GLOBAL/lowercase-name/already-defined handling. debug/elf
// (stdlib, per the domain-stack dependency table) replaces the
// original's hand-rolled ELF header reader; this package supplies what
// debug/elf does not: ar-archive framing, section placement against
// the active output file, and relocation application.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"armips/internal/ast"
	"armips/internal/expr"
)

// section is one SHF_ALLOC section of an object, paired with whatever
// SHT_REL section targets it (a compiler-emitted .o has at most one).
type section struct {
	idx   int // index into the owning elf.File's Sections slice
	name  string
	data  []byte // always populated: zero-filled for SHT_NOBITS
	align uint64
	rels  []elf.Rel32
	base  int64 // assigned virtual address, set by Validate's placement pass
}

// object is one parsed ELF32 relocatable file: either the whole input
// file, or one archive member.
type object struct {
	name     string
	f        *elf.File
	sections []*section
	secBase  map[int]int64 // elf section index -> placement address
}

// Import is the per-`.importobj`/`.importlib` state threaded through
// the ast.Command the parser splices in: placement happens once (the
// first Validate pass that sees it), relocation happens once at
// Encode, after every label in the source file has had a chance to
// settle across the fixed-point loop.
type Import struct {
	path string
	objs []*object
	done bool
	size int64
}

func New(path string) *Import { return &Import{path: path} }

// NewCommand wraps imp as the ast.Command spec.md §4.9 wires in for
// `.importobj "file.o"` (an `.importlib "file.a"` directive loads
// every archive member through the same Import, since loadObjects
// already expands an ar archive into one object per member). The
// wrapper reports imp's placed size back onto the ast.ElfImport after
// every successful Validate, since that sizing state lives here, not
// in package ast.
func NewCommand(imp *Import) *ast.ElfImport {
	var cmd *ast.ElfImport
	validate := func(env *ast.Env) (bool, error) {
		changed, err := imp.Validate(env)
		if err != nil {
			return changed, err
		}
		cmd.SetSize(imp.size)
		return changed, nil
	}
	hook := ast.NewBackendHook(validate, imp.Encode)
	cmd = ast.NewElfImport(imp.path, hook)
	return cmd
}

// Validate parses the file (once), places its allocatable sections
// contiguously at the active file's current virtual address, and
// exports its global defined symbols into the shared symbol table. It
// reports changed=true exactly once, the pass it actually grows the
// output, matching spec.md §5's fixed-point contract.
func (imp *Import) Validate(env *ast.Env) (bool, error) {
	if imp.done {
		return false, nil
	}
	data, err := os.ReadFile(imp.path)
	if err != nil {
		return false, errAt(env, "importobj %q: %v", imp.path, err)
	}
	objs, err := loadObjects(imp.path, data)
	if err != nil {
		return false, errAt(env, "importobj %q: %v", imp.path, err)
	}

	var total int64
	for _, o := range objs {
		for _, s := range o.sections {
			addr := env.Files.VirtualAddress() + total
			if s.align > 1 {
				if rem := addr % int64(s.align); rem != 0 {
					total += int64(s.align) - rem
				}
			}
			s.base = env.Files.VirtualAddress() + total
			o.secBase[s.idx] = s.base
			total += int64(len(s.data))
		}
	}

	if err := exportSymbols(env, objs); err != nil {
		return false, err
	}

	imp.objs = objs
	imp.size = total
	imp.done = true
	return true, nil
}

// Encode writes every placed section's relocated bytes to the active
// output file, in the order Validate placed them.
func (imp *Import) Encode(env *ast.Env) error {
	if !imp.done {
		return errAt(env, "importobj %q: never placed", imp.path)
	}
	for _, o := range imp.objs {
		for _, s := range o.sections {
			buf := append([]byte(nil), s.data...)
			if err := applyRelocations(env, o, s, buf); err != nil {
				return err
			}
			active := env.Files.Active()
			if active == nil {
				return errAt(env, "importobj %q: no active output file", imp.path)
			}
			if err := active.SeekVirtual(s.base); err != nil {
				return err
			}
			if err := env.Files.WriteBytes(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func errAt(env *ast.Env, format string, args ...any) error {
	return fmt.Errorf("%s(%d): %s", env.Pos.File, env.Pos.Line, fmt.Sprintf(format, args...))
}

// --- loading -----------------------------------------------------------

const arMagic = "!<arch>\n"

// loadObjects returns one *object per ELF32 relocatable file: either
// the single input file, or every member of a GNU ar archive (spec.md
// §4.9's `.importlib`).
func loadObjects(path string, data []byte) ([]*object, error) {
	if len(data) >= len(arMagic) && string(data[:len(arMagic)]) == arMagic {
		return loadArchive(path, data)
	}
	o, err := loadObject(path, data)
	if err != nil {
		return nil, err
	}
	return []*object{o}, nil
}

// arFileHeader mirrors the 60-byte GNU ar member header: 16-byte name,
// 12-byte mtime, 6-byte uid, 6-byte gid, 8-byte mode, 10-byte ASCII
// decimal size, 2-byte end-of-header marker "`\n".
const arHeaderSize = 60

func loadArchive(path string, data []byte) ([]*object, error) {
	var objs []*object
	pos := len(arMagic)
	for pos+arHeaderSize <= len(data) {
		hdr := data[pos : pos+arHeaderSize]
		name := strings.TrimRight(string(hdr[0:16]), " ")
		name = strings.TrimSuffix(name, "/") // GNU-format names end with '/'
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: malformed ar member size %q", path, sizeStr)
		}
		pos += arHeaderSize
		if pos+int(size) > len(data) {
			return nil, fmt.Errorf("%s: truncated ar member %q", path, name)
		}
		member := data[pos : pos+int(size)]
		pos += int(size)
		if size%2 == 1 {
			pos++ // members are padded to an even offset
		}
		if name == "" || name == "/" || name == "//" {
			continue // GNU symbol/long-name tables: not needed for placement
		}
		o, err := loadObject(path+"("+name+")", member)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	return objs, nil
}

func loadObject(name string, data []byte) (*object, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("%s: only ELF32 objects are supported", name)
	}
	if f.Type != elf.ET_REL {
		return nil, fmt.Errorf("%s: not a relocatable object (ET_REL)", name)
	}

	o := &object{name: name, f: f, secBase: make(map[int]int64)}

	relOf := make(map[int]*elf.Section) // target section index -> its SHT_REL section
	for _, sec := range f.Sections {
		if sec.Type == elf.SHT_REL {
			relOf[int(sec.Info)] = sec
		}
	}

	for i, sec := range f.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 || sec.Size == 0 {
			continue
		}
		s := &section{idx: i, name: sec.Name, align: sec.Addralign}
		if sec.Type == elf.SHT_NOBITS {
			s.data = make([]byte, sec.Size)
		} else {
			b, err := sec.Data()
			if err != nil {
				return nil, fmt.Errorf("%s: section %s: %w", name, sec.Name, err)
			}
			s.data = b
		}
		if rs, ok := relOf[i]; ok {
			raw, err := rs.Data()
			if err != nil {
				return nil, fmt.Errorf("%s: relocations for %s: %w", name, sec.Name, err)
			}
			s.rels = decodeRel32(raw, f.ByteOrder)
		}
		o.sections = append(o.sections, s)
	}
	return o, nil
}

func decodeRel32(raw []byte, bo binary.ByteOrder) []elf.Rel32 {
	n := len(raw) / 8
	out := make([]elf.Rel32, 0, n)
	for i := 0; i < n; i++ {
		var r elf.Rel32
		r.Off = bo.Uint32(raw[i*8:])
		r.Info = bo.Uint32(raw[i*8+4:])
		out = append(out, r)
	}
	return out
}

// --- symbol export -------------------------------------------------------

// exportSymbols mirrors ElfRelocator::exportSymbols(): every STB_GLOBAL
// defined (non-SHN_UNDEF) symbol is lowercased and registered as a
// global assembler label, erroring if that name is already defined
// elsewhere (spec.md §4.9).
func exportSymbols(env *ast.Env, objs []*object) error {
	for _, o := range objs {
		syms, err := o.f.Symbols()
		if err != nil {
			// An object with no symbol table at all (rare, headers-only)
			// simply exports nothing.
			continue
		}
		for _, sym := range syms {
			if elf.ST_BIND(sym.Info) != elf.STB_GLOBAL {
				continue
			}
			if sym.Section == elf.SHN_UNDEF || sym.Name == "" {
				continue
			}
			addr, ok := symbolAddress(o, sym)
			if !ok {
				continue
			}
			lbl := env.Syms.GetLabel(strings.ToLower(sym.Name), 0, 0)
			if lbl.Defined {
				return errAt(env, "symbol %q is already defined", sym.Name)
			}
			lbl.Defined = true
			lbl.Value = addr
			lbl.OriginalCaseName = sym.Name
			if addr&1 != 0 && elf.ST_TYPE(sym.Info) == elf.STT_FUNC {
				lbl.Info |= 1 // odd address: a Thumb function per the ARM ELF interworking convention
			}
		}
	}
	return nil
}

// symbolAddress resolves a defined symbol to its placed address: either
// one of this object's own SHF_ALLOC sections, or an absolute (SHN_ABS)
// value taken as-is.
func symbolAddress(o *object, sym elf.Symbol) (int64, bool) {
	if sym.Section == elf.SHN_ABS {
		return int64(sym.Value), true
	}
	base, ok := o.secBase[int(sym.Section)]
	if !ok {
		return 0, false // defined in a non-allocatable section (e.g. debug info): skip
	}
	return base + int64(sym.Value), true
}

// --- relocation ----------------------------------------------------------

// applyRelocations patches buf (a copy of s.data) in place for every
// relocation recorded against s, resolving each entry's symbol either
// against this object's own placement or the shared assembler symbol
// table (so object code can reference labels the surrounding source
// file defines, and vice versa), per spec.md §4.9.
func applyRelocations(env *ast.Env, o *object, s *section, buf []byte) error {
	if len(s.rels) == 0 {
		return nil
	}
	syms, err := o.f.Symbols()
	if err != nil {
		return errAt(env, "%s: relocations present but no symbol table", o.name)
	}
	for _, rel := range s.rels {
		symIdx := elf.R_SYM32(rel.Info)
		relType := elf.R_TYPE32(rel.Info)
		if symIdx == 0 || int(symIdx) > len(syms) {
			continue
		}
		sym := syms[symIdx-1]
		symAddr, err := resolveSymbol(env, o, sym)
		if err != nil {
			return err
		}
		placeAddr := s.base + int64(rel.Off)
		if int(rel.Off)+4 > len(buf) {
			return errAt(env, "%s: relocation offset %#x out of range in section %s", o.name, rel.Off, s.name)
		}
		switch o.f.Machine {
		case elf.EM_MIPS:
			if err := applyMips(buf, int(rel.Off), elf.R_MIPS(relType), symAddr, placeAddr); err != nil {
				return errAt(env, "%s: %v", o.name, err)
			}
		case elf.EM_ARM:
			if err := applyArm(buf, int(rel.Off), elf.R_ARM(relType), symAddr, placeAddr); err != nil {
				return errAt(env, "%s: %v", o.name, err)
			}
		default:
			return errAt(env, "%s: unsupported relocation machine %v", o.name, o.f.Machine)
		}
	}
	return nil
}

func resolveSymbol(env *ast.Env, o *object, sym elf.Symbol) (int64, error) {
	if sym.Section != elf.SHN_UNDEF {
		if addr, ok := symbolAddress(o, sym); ok {
			return addr, nil
		}
	}
	name := strings.ToLower(sym.Name)
	if env.Syms.EquExists(sym.Name) {
		return 0, fmt.Errorf("relocation against %q resolves to an equ, not a label", sym.Name)
	}
	lbl := env.Syms.GetLabel(name, 0, 0)
	if !lbl.Defined {
		return 0, fmt.Errorf("undefined symbol %q referenced by relocation", sym.Name)
	}
	return lbl.Value, nil
}

func le32(b []byte, off int) uint32  { return binary.LittleEndian.Uint32(b[off:]) }
func putLe32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }

// applyMips implements the handful of MIPS relocation types an
// assembler-importable object realistically carries (spec.md §4.9):
// absolute word/half references and J-format jump targets split across
// HI16/LO16 pairs for addiu/lui sequences.
func applyMips(buf []byte, off int, relType elf.R_MIPS, symAddr, placeAddr int64) error {
	switch relType {
	case elf.R_MIPS_32:
		putLe32(buf, off, le32(buf, off)+uint32(symAddr))
	case elf.R_MIPS_26:
		instr := le32(buf, off)
		target := (uint32(symAddr) & 0x0FFFFFFF) >> 2
		instr = (instr &^ 0x03FFFFFF) | target
		putLe32(buf, off, instr)
	case elf.R_MIPS_HI16:
		instr := le32(buf, off)
		hi := expr.HiHalf(symAddr)
		instr = (instr &^ 0xFFFF) | (uint32(hi) & 0xFFFF)
		putLe32(buf, off, instr)
	case elf.R_MIPS_LO16:
		instr := le32(buf, off)
		lo := expr.LoHalf(symAddr)
		instr = (instr &^ 0xFFFF) | (uint32(lo) & 0xFFFF)
		putLe32(buf, off, instr)
	default:
		return fmt.Errorf("unsupported MIPS relocation type %v", relType)
	}
	return nil
}

// applyArm implements R_ARM_ABS32 and the BL/B-family PC-relative
// branch encodings (ARM and Thumb-2 BL), the relocations object code
// calling into hand-written assembly realistically needs.
func applyArm(buf []byte, off int, relType elf.R_ARM, symAddr, placeAddr int64) error {
	switch relType {
	case elf.R_ARM_ABS32:
		putLe32(buf, off, le32(buf, off)+uint32(symAddr))
	case elf.R_ARM_CALL, elf.R_ARM_JUMP24, elf.R_ARM_PC24:
		instr := le32(buf, off)
		delta := (symAddr - (placeAddr + 8)) / 4
		instr = (instr &^ 0x00FFFFFF) | (uint32(delta) & 0x00FFFFFF)
		putLe32(buf, off, instr)
	case elf.R_ARM_THM_JUMP24:
		return fmt.Errorf("R_ARM_THM_JUMP24 relocation not yet supported")
	default:
		return fmt.Errorf("unsupported ARM relocation type %v", relType)
	}
	return nil
}
