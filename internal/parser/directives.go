package parser

import (
	"fmt"
	"os"
	"strings"

	"armips/internal/arch"
	"armips/internal/ast"
	"armips/internal/elf"
	"armips/internal/expr"
	"armips/internal/lexer"
	"armips/internal/macro"
	"armips/internal/psx"
	"armips/internal/token"
)

// parseDirective dispatches one `.`-prefixed identifier already known to
// be a directive (spec.md §4.6) to its ast constructor. The identifier
// token itself has not been consumed yet.
func (p *Parser) parseDirective(s *token.Stream, low string) (ast.Command, error) {
	switch low {
	case ".byte":
		return p.parseData(s, ast.DataU8, false)
	case ".halfword", ".short":
		return p.parseData(s, ast.DataU16, false)
	case ".word", ".int":
		return p.parseData(s, ast.DataU32, false)
	case ".dword", ".long":
		return p.parseData(s, ast.DataU64, false)
	case ".float":
		return p.parseData(s, ast.DataFloat, false)
	case ".double":
		return p.parseData(s, ast.DataDouble, false)
	case ".ascii":
		return p.parseData(s, ast.DataAscii, false)
	case ".string":
		return p.parseData(s, ast.DataAscii, true)

	case ".area":
		return p.parseArea(s)
	case ".endarea":
		return nil, fmt.Errorf("%s(%d): .endarea without matching .area", p.file, p.line)

	case ".align":
		return p.parseAlignFill(s, ast.KindAlign)
	case ".fill":
		return p.parseAlignFill(s, ast.KindFill)

	case ".skip":
		s.Eat()
		n, err := p.exprParser(s).Parse()
		if err != nil {
			return nil, err
		}
		return &ast.Skip{Expr: n}, nil

	case ".org":
		p.bumpSection()
		return p.parsePosition(s, ast.PosVirtual)
	case ".orga":
		p.bumpSection()
		return p.parsePosition(s, ast.PosPhysical)

	case ".headersize":
		s.Eat()
		n, err := p.exprParser(s).Parse()
		if err != nil {
			return nil, err
		}
		return &ast.HeaderSize{Expr: n}, nil

	case ".warning":
		return p.parseMessage(s, ast.MsgWarning)
	case ".error":
		return p.parseMessage(s, ast.MsgError)
	case ".notice":
		return p.parseMessage(s, ast.MsgNotice)

	case ".sym":
		s.Eat()
		arg := strings.ToLower(s.Eat().Text)
		return &ast.SymEnable{Enabled: arg != "off"}, nil

	case ".func":
		return p.parseFunc(s)
	case ".endfunc":
		return nil, fmt.Errorf("%s(%d): .endfunc without matching .func", p.file, p.line)

	case ".open", ".create":
		p.bumpSection()
		return p.parseFileOpen(s, low == ".create")
	case ".close":
		s.Eat()
		p.bumpSection()
		return &ast.File{Op: ast.FileClose}, nil

	case ".incbin":
		return p.parseIncbin(s)

	case ".include":
		return p.parseInclude(s)

	case ".macro":
		return p.parseMacroDef(s)
	case ".endmacro":
		return nil, fmt.Errorf("%s(%d): .endmacro without matching .macro", p.file, p.line)

	case ".little":
		s.Eat()
		p.bumpSection()
		return &ast.ArchSwitch{LittleEndian: true}, nil
	case ".big":
		s.Eat()
		p.bumpSection()
		return &ast.ArchSwitch{LittleEndian: false}, nil

	case ".arm", ".thumb":
		return p.parseArmState(s, low == ".thumb")

	case ".psx":
		return p.parseArchDirective(s, arch.VariantPSX, false)
	case ".ps2":
		return p.parseArchDirective(s, arch.VariantPS2, false)
	case ".psp":
		return p.parseArchDirective(s, arch.VariantPSP, false)
	case ".n64":
		return p.parseArchDirective(s, arch.VariantN64, false)
	case ".rsp":
		return p.parseArchDirective(s, arch.VariantRSP, false)
	case ".gba":
		return p.parseArchDirective(s, arch.VariantGBA, true)
	case ".nds":
		return p.parseArchDirective(s, arch.VariantNDS, false)
	case ".3ds":
		return p.parseArchDirective(s, arch.Variant3DS, false)
	case ".arm.little":
		return p.parseArchDirective(s, arch.VariantARMLE, false)
	case ".arm.big":
		return p.parseArchDirective(s, arch.VariantARMBE, false)

	case ".pool", ".ltorg":
		return p.parsePool(s)
	case ".fixloaddelay":
		return p.parseFixLoadDelay(s)

	case ".if", ".ifdef", ".ifndef":
		return p.parseIfChain(s)
	case ".else", ".elseif", ".elseifdef", ".elseifndef", ".endif":
		return nil, fmt.Errorf("%s(%d): %s without matching .if", p.file, p.line, low)

	case ".importobj", ".importlib":
		return p.parseImportObj(s)

	default:
		return nil, fmt.Errorf("%s(%d): unrecognized directive %q", p.file, p.line, low)
	}
}

func (p *Parser) parseData(s *token.Stream, mode ast.DataMode, terminate bool) (ast.Command, error) {
	s.Eat()
	entries, strs, err := p.parseExprList(s)
	if err != nil {
		return nil, err
	}
	return &ast.Data{Mode: mode, Entries: entries, StringLit: strs, Terminate: terminate}, nil
}

func (p *Parser) parseArea(s *token.Stream) (ast.Command, error) {
	s.Eat()
	size, err := p.exprParser(s).Parse()
	if err != nil {
		return nil, err
	}
	var fill *expr.Node
	if s.Peek(0).Kind == token.Comma {
		s.Eat()
		fill, err = p.exprParser(s).Parse()
		if err != nil {
			return nil, err
		}
	}
	body, stop, err := p.parseSequence(s, stopSet{".endarea": true})
	if err != nil {
		return nil, err
	}
	if stop != ".endarea" {
		return nil, fmt.Errorf("%s(%d): expected .endarea", p.file, p.line)
	}
	s.Eat()
	return &ast.Area{SizeExpr: size, FillExpr: fill, Body: body}, nil
}

func (p *Parser) parseAlignFill(s *token.Stream, kind ast.AlignFillKind) (ast.Command, error) {
	s.Eat()
	val, err := p.exprParser(s).Parse()
	if err != nil {
		return nil, err
	}
	var fill *expr.Node
	if s.Peek(0).Kind == token.Comma {
		s.Eat()
		fill, err = p.exprParser(s).Parse()
		if err != nil {
			return nil, err
		}
	}
	return &ast.AlignFill{Kind: kind, ValueExpr: val, FillExpr: fill}, nil
}

func (p *Parser) parsePosition(s *token.Stream, kind ast.PosKind) (ast.Command, error) {
	s.Eat()
	n, err := p.exprParser(s).Parse()
	if err != nil {
		return nil, err
	}
	return &ast.Position{Kind: kind, Expr: n}, nil
}

func (p *Parser) parseMessage(s *token.Stream, kind ast.MsgKind) (ast.Command, error) {
	s.Eat()
	n, err := p.exprParser(s).Parse()
	if err != nil {
		return nil, err
	}
	return &ast.Message{Kind: kind, Expr: n}, nil
}

func (p *Parser) parseFunc(s *token.Stream) (ast.Command, error) {
	s.Eat()
	label := ""
	if s.Peek(0).Kind == token.Identifier {
		label = s.Eat().Text
	}
	body, stop, err := p.parseSequence(s, stopSet{".endfunc": true})
	if err != nil {
		return nil, err
	}
	if stop != ".endfunc" {
		return nil, fmt.Errorf("%s(%d): expected .endfunc", p.file, p.line)
	}
	s.Eat()
	return &ast.Function{Label: label, Body: body}, nil
}

// thumbSetter is implemented by the runtime expr.Context (internal/driver)
// so ArmStateMarker can flip the current mode without this package
// importing driver (which imports parser).
type thumbSetter interface{ SetThumb(bool) }

// parseArchDirective handles the architecture-selecting directives
// (`.psx`, `.ps2`, `.psp`, `.n64`, `.rsp`, `.gba`, `.nds`, `.3ds`,
// `.arm.little`, `.arm.big`): each one picks the backend every
// subsequent opcode in this file dispatches to, mirroring the
// original's `Arch = &Mips`/`Arch = &Arm` global reassignment
// (parseDirectiveMipsArch/parseDirectiveArmArch). ARM variants also
// carry an initial THUMB/ARM mode (GBA boots into THUMB; the rest
// boot into ARM).
func (p *Parser) parseArchDirective(s *token.Stream, v arch.Variant, initialThumb bool) (ast.Command, error) {
	s.Eat()
	backend, err := arch.Lookup(v)
	if err != nil {
		return nil, fmt.Errorf("%s(%d): %w", p.file, p.line, err)
	}
	p.Backend = backend
	p.bumpSection()

	seq := ast.NewSequence(&ast.ArchSwitch{LittleEndian: backend.LittleEndian()})
	if backend.Family() == arch.FamilyARM {
		seq.Append(buildArmStateMarker(initialThumb))
	}
	return seq, nil
}

func buildArmStateMarker(thumb bool) ast.Command {
	hook := ast.NewBackendHook(func(env *ast.Env) (bool, error) {
		if ts, ok := env.Expr.(thumbSetter); ok {
			ts.SetThumb(thumb)
		}
		return false, nil
	}, nil)
	return ast.NewArmStateMarker(thumb, hook)
}

// poolFlusher is implemented by arch/arm's Backend so `.pool`/`.ltorg`
// can flush its pending literal-pool window without this package
// depending on arch/arm directly (every other backend simply doesn't
// implement it, making the directive ARM-only by construction).
type poolFlusher interface{ FlushPool() ast.Command }

func (p *Parser) parsePool(s *token.Stream) (ast.Command, error) {
	s.Eat()
	flusher, ok := p.Backend.(poolFlusher)
	if !ok {
		return nil, fmt.Errorf("%s(%d): .pool/.ltorg only valid for an ARM target", p.file, p.line)
	}
	return flusher.FlushPool(), nil
}

// fixLoadDelaySetter is implemented by arch/mips's Backend so
// `.fixloaddelay` can turn on load-delay-slot hazard detection
// (spec.md §4.7), off by default even on PSX.
type fixLoadDelaySetter interface{ SetFixLoadDelay(bool) }

func (p *Parser) parseFixLoadDelay(s *token.Stream) (ast.Command, error) {
	s.Eat()
	setter, ok := p.Backend.(fixLoadDelaySetter)
	if !ok {
		return nil, fmt.Errorf("%s(%d): .fixloaddelay only valid for a MIPS target", p.file, p.line)
	}
	setter.SetFixLoadDelay(true)
	return nil, nil
}

// parseArmState handles `.arm`/`.thumb`, only meaningful for an ARM
// backend. The marker's validate hook (buildArmStateMarker) sets the
// expression context's thumb flag, which isthumb() reads; arch/arm's
// TryParse keeps its own ARM/THUMB state and does not consult it.
func (p *Parser) parseArmState(s *token.Stream, thumb bool) (ast.Command, error) {
	s.Eat()
	if p.Backend == nil || p.Backend.Family() != arch.FamilyARM {
		return nil, fmt.Errorf("%s(%d): .arm/.thumb only valid for an ARM target", p.file, p.line)
	}
	return buildArmStateMarker(thumb), nil
}

func (p *Parser) parseFileOpen(s *token.Stream, create bool) (ast.Command, error) {
	s.Eat()
	name, err := p.exprParser(s).Parse()
	if err != nil {
		return nil, err
	}
	f := &ast.File{NameExpr: name}
	if create && s.Peek(0).Kind == token.Comma {
		// `.create path, header`: the second argument is the header size.
		s.Eat()
		hdr, err := p.exprParser(s).Parse()
		if err != nil {
			return nil, err
		}
		f.HeaderExpr = hdr
	}
	if s.Peek(0).Kind == token.Comma {
		// `.open in, out` form: two paths, the second is what gets written.
		s.Eat()
		out, err := p.exprParser(s).Parse()
		if err != nil {
			return nil, err
		}
		f.CopyFromExpr = name
		f.NameExpr = out
		f.Op = ast.FileCopy
	} else if create {
		f.Op = ast.FileCreate
	} else {
		f.Op = ast.FileOpen
	}
	return f, nil
}

func (p *Parser) parseIncbin(s *token.Stream) (ast.Command, error) {
	s.Eat()
	if s.Peek(0).Kind != token.String {
		return nil, fmt.Errorf("%s(%d): .incbin requires a string path", p.file, p.line)
	}
	path := s.Eat().StrVal
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s(%d): %w", p.file, p.line, err)
	}
	var start, size *expr.Node
	if s.Peek(0).Kind == token.Comma {
		s.Eat()
		start, err = p.exprParser(s).Parse()
		if err != nil {
			return nil, err
		}
		if s.Peek(0).Kind == token.Comma {
			s.Eat()
			size, err = p.exprParser(s).Parse()
			if err != nil {
				return nil, err
			}
		}
	}
	return &ast.Incbin{Data: data, StartExpr: start, SizeExpr: size}, nil
}

// parseImportObj handles `.importobj "file"` / `.importlib "file.a"`
// (spec.md §4.9/§4.10); a trailing `, ctorName` argument is rejected
// with an error. Both directives take the same argument shape and
// dispatch on the active MIPS variant — PSX
// targets use the byte-tagged PsxRelocator format, every other MIPS
// target (PS2/PSP/N64/RSP) uses a real ELF32 relocatable object/archive.
// ARM targets have no object-import format in this assembler.
func (p *Parser) parseImportObj(s *token.Stream) (ast.Command, error) {
	s.Eat()
	if p.Backend == nil || p.Backend.Family() != arch.FamilyMIPS {
		return nil, fmt.Errorf("%s(%d): .importobj/.importlib only valid for a MIPS target", p.file, p.line)
	}
	if s.Peek(0).Kind != token.String {
		return nil, fmt.Errorf("%s(%d): .importobj requires a string path", p.file, p.line)
	}
	path := s.Eat().StrVal
	if s.Peek(0).Kind == token.Comma {
		return nil, fmt.Errorf("%s(%d): .importobj constructor-stub generation is not supported", p.file, p.line)
	}
	if p.Backend.Variant() == arch.VariantPSX {
		return psx.NewCommand(psx.New(path)), nil
	}
	return elf.NewCommand(elf.New(path)), nil
}

// parseInclude reads and recursively parses another source file inline,
// splicing its statements directly into the enclosing sequence (spec.md
// §4.2's include stack, capped at maxIncludeDepth).
func (p *Parser) parseInclude(s *token.Stream) (ast.Command, error) {
	s.Eat()
	if s.Peek(0).Kind != token.String {
		return nil, fmt.Errorf("%s(%d): .include requires a string path", p.file, p.line)
	}
	path := s.Eat().StrVal
	override := lexer.ASCII
	hasOverride := false
	if s.Peek(0).Kind == token.Comma {
		s.Eat()
		name := strings.ToLower(s.Eat().Text)
		hasOverride = true
		switch name {
		case "utf8":
			override = lexer.UTF8
		case "utf16le":
			override = lexer.UTF16LE
		case "utf16be":
			override = lexer.UTF16BE
		case "sjis", "shiftjis":
			override = lexer.ShiftJIS
		default:
			override = lexer.ASCII
		}
	}
	if p.includeDepth >= maxIncludeDepth {
		return nil, fmt.Errorf("%s(%d): .include nesting exceeds %d levels", p.file, p.line, maxIncludeDepth)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s(%d): %w", p.file, p.line, err)
	}
	enc := lexer.ASCII
	if hasOverride {
		enc = override
	}
	text, _, err := lexer.DecodeFile(raw, enc)
	if err != nil {
		return nil, fmt.Errorf("%s(%d): %w", p.file, p.line, err)
	}

	prevFile, prevFileNum, prevLine := p.file, p.fileNum, p.line
	p.includeDepth++
	p.file = path
	p.fileNum++
	fileNum := p.fileNum
	p.line = 1
	defer func() {
		p.includeDepth--
		p.file, p.fileNum, p.line = prevFile, prevFileNum, prevLine
	}()

	seq, err := p.ParseFile(text, path, fileNum)
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// parseMacroDef captures `.macro name, p1, p2 … .endmacro` (spec.md
// §4.5). A macro definition contributes nothing to the tree itself.
func (p *Parser) parseMacroDef(s *token.Stream) (ast.Command, error) {
	s.Eat()
	if s.Peek(0).Kind != token.Identifier {
		return nil, fmt.Errorf("%s(%d): .macro requires a name", p.file, p.line)
	}
	name := s.Eat().Text
	var params []string
	for s.Peek(0).Kind == token.Comma {
		s.Eat()
		if s.Peek(0).Kind != token.Identifier {
			return nil, fmt.Errorf("%s(%d): expected parameter name", p.file, p.line)
		}
		params = append(params, s.Eat().Text)
	}
	def := macro.New(name, params)
	if err := macro.CaptureBody(s, def); err != nil {
		return nil, fmt.Errorf("%s(%d): %w", p.file, p.line, err)
	}
	macro.DryRunLabels(def)
	p.macros[strings.ToLower(name)] = def
	return nil, nil
}

// parseMacroCall expands a call to an already-defined macro inline,
// parsing the substituted token stream as an ordinary nested sequence.
func (p *Parser) parseMacroCall(s *token.Stream, def *macro.Macro) (ast.Command, error) {
	s.Eat()
	var args [][]token.Token
	if s.Peek(0).Kind != token.Separator && s.Peek(0).Kind != token.EOF {
		for {
			args = append(args, p.readArgTokens(s))
			if s.Peek(0).Kind != token.Comma {
				break
			}
			s.Eat()
		}
	}
	expanded, err := def.Expand(macro.Call{Args: args})
	if err != nil {
		return nil, fmt.Errorf("%s(%d): %w", p.file, p.line, err)
	}
	seq, _, err := p.parseSequence(expanded, nil)
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// readArgTokens collects one macro-call argument: tokens up to the next
// top-level comma/separator/EOF, tracking bracket nesting so a
// parenthesized sub-expression argument isn't split on its inner comma.
func (p *Parser) readArgTokens(s *token.Stream) []token.Token {
	var out []token.Token
	depth := 0
	for {
		tok := s.Peek(0)
		if tok.Kind == token.EOF || tok.Kind == token.Separator {
			break
		}
		if tok.Kind == token.Comma && depth == 0 {
			break
		}
		switch tok.Kind {
		case token.LParen, token.LBracket, token.LBrace:
			depth++
		case token.RParen, token.RBracket, token.RBrace:
			depth--
		}
		out = append(out, s.Eat())
	}
	return out
}
