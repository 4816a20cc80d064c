// Package parser implements the preprocessor-integrated recursive-descent
// statement parser of spec.md §4.2: one token.Stream walk that resolves
// equs and expands macros inline, dispatches directives to internal/ast
// constructors, and hands opcodes to whichever internal/arch.Backend is
// active, producing a single ast.CommandSequence.
//
// Grounded on the teacher's parser/parser.go (two-pass Instruction/
// Directive/Program shape) and parser/preprocessor.go (conditional-stack,
// include-stack bookkeeping), generalized from a flat ARM-only token walk
// into the statement grammar spec.md §4.2 describes.
package parser

import (
	"fmt"
	"strings"

	"armips/internal/arch"
	"armips/internal/ast"
	"armips/internal/diag"
	"armips/internal/expr"
	"armips/internal/lexer"
	"armips/internal/macro"
	"armips/internal/symtab"
	"armips/internal/token"
)

// maxIncludeDepth bounds `.include` recursion (spec.md §4.2).
const maxIncludeDepth = 150

// Parser walks one or more token streams (the include stack is modeled
// as ordinary Go call recursion through parseInclude) building the
// command tree, registering labels/equs as it goes and expanding macro
// calls inline.
type Parser struct {
	Syms    *symtab.Table
	Diag    *diag.Logger
	Backend arch.Backend

	macros map[string]*macro.Macro

	file           string
	fileNum        int
	section        int
	line           int
	includeDepth   int
	inUnknownDepth int
}

func New(syms *symtab.Table, diagLogger *diag.Logger, backend arch.Backend) *Parser {
	return &Parser{
		Syms:    syms,
		Diag:    diagLogger,
		Backend: backend,
		macros:  make(map[string]*macro.Macro),
	}
}

// ParseFile tokenizes src and parses it to EOF, returning one
// CommandSequence for the whole file.
func (p *Parser) ParseFile(src, filename string, fileNum int) (*ast.CommandSequence, error) {
	prevFile, prevFileNum := p.file, p.fileNum
	p.file, p.fileNum = filename, fileNum
	defer func() { p.file, p.fileNum = prevFile, prevFileNum }()

	toks := lexer.New(src, filename).Tokenize()
	s := token.NewStream(toks)
	s.PushSource(equSource{p.Syms})
	seq, stop, err := p.parseSequence(s, nil)
	if err != nil {
		return nil, err
	}
	if stop != "" {
		return nil, fmt.Errorf("%s: unexpected %q outside any block", filename, stop)
	}
	return seq, nil
}

// equSource exposes the symbol table's equs to a file's token stream, so
// an identifier naming an equ is replaced by its body when visited.
// Macro-body streams built by macro.Expand carry only their own
// parameter and label sources, so equs are not replaced inside them.
type equSource struct{ syms *symtab.Table }

func (e equSource) Lookup(lowerName string) ([]token.Token, bool) {
	return e.syms.LookupEqu(lowerName)
}

// stopSet is a set of lowercase directive names that end the current
// parseSequence call without being consumed, so the caller can inspect
// which one was hit (e.g. distinguishing `.else` from `.endif`).
type stopSet map[string]bool

// parseSequence consumes statements until EOF or a directive named in
// stop is seen (returned, uneaten). Each iteration first tries an equ
// definition, then a macro definition, then (having exhausted both)
// directives, macro calls, labels and opcodes in that order, per
// spec.md §4.2.
func (p *Parser) parseSequence(s *token.Stream, stop stopSet) (*ast.CommandSequence, string, error) {
	seq := ast.NewSequence()
	for {
		p.skipSeparators(s)
		tok := s.Peek(0)
		if tok.Kind == token.EOF {
			if stop != nil {
				return seq, "", fmt.Errorf("%s: unexpected end of file, expected one of %v", p.file, keys(stop))
			}
			return seq, "", nil
		}
		if tok.Kind == token.Identifier && stop != nil {
			if low := strings.ToLower(tok.Text); stop[low] {
				return seq, low, nil
			}
		}
		if tok.Line != 0 {
			p.line = tok.Line
		}

		cmd, err := p.parseStatement(s)
		if err != nil {
			p.Diag.Queue(diag.Error, p.file, p.line, "%s", err.Error())
			seq.Append(ast.NewInvalid(err.Error()))
			p.resyncToSeparator(s)
			continue
		}
		if cmd != nil {
			seq.AppendAt(ast.Pos{File: p.file, Line: p.line}, cmd)
		}
	}
}

func keys(m stopSet) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// bumpSection advances the section counter that scopes local (@-prefixed)
// labels to the span between adjacent global labels (spec.md §4.3): it
// fires whenever a global label is defined or one of .open/.create/
// .close/.org/.orga/an architecture or endianness switch runs.
func (p *Parser) bumpSection() { p.section++ }

func (p *Parser) skipSeparators(s *token.Stream) {
	for s.Peek(0).Kind == token.Separator {
		s.Eat()
		p.line++
	}
}

// resyncToSeparator discards tokens up to (not including) the next
// Separator/EOF, so one bad statement doesn't cascade into every
// statement after it.
func (p *Parser) resyncToSeparator(s *token.Stream) {
	for {
		k := s.Peek(0).Kind
		if k == token.Separator || k == token.EOF {
			return
		}
		s.Eat()
	}
}

// parseStatement recognizes and builds exactly one statement, leaving
// the stream positioned at the trailing Separator (not consumed: the
// caller's skipSeparators loop handles that uniformly).
func (p *Parser) parseStatement(s *token.Stream) (ast.Command, error) {
	tok := s.Peek(0)
	if tok.Kind != token.Identifier {
		return nil, fmt.Errorf("unexpected token %s", tok.Kind)
	}

	// equ definition: `name equ value` / `name :: equ value`.
	next := s.Peek(1)
	if next.Kind == token.Equ {
		return p.parseEquDef(s)
	}
	if next.Kind == token.Colon && s.Peek(2).Kind == token.Colon && s.Peek(3).Kind == token.Equ {
		return p.parseEquDef(s)
	}

	low := strings.ToLower(tok.Text)
	if strings.HasPrefix(low, ".") {
		return p.parseDirective(s, low)
	}

	if def, ok := p.macros[low]; ok {
		return p.parseMacroCall(s, def)
	}

	if next.Kind == token.Colon {
		return p.parseLabel(s)
	}

	if p.Backend == nil {
		err := fmt.Errorf("%s(%d): no architecture directive (.psx/.ps2/.psp/.n64/.rsp/.gba/.nds/.3ds/.arm.little/.arm.big) seen before opcode %q", p.file, p.line, tok.Text)
		p.Diag.Queue(diag.FatalError, p.file, p.line, "%s", err.Error())
		return nil, err
	}

	pc := arch.ParseContext{Stream: s, File: p.file, FileNum: p.fileNum, Section: p.section, Line: p.line}
	s.Eat()
	cmd, ok, err := p.Backend.TryParse(tok.Text, pc)
	if err != nil {
		return nil, fmt.Errorf("%s(%d): %w", p.file, p.line, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s(%d): unrecognized mnemonic or directive %q", p.file, p.line, tok.Text)
	}
	return cmd, nil
}

// parseEquDef handles `name [::] equ value`: the lexer hands back the
// entire value as one verbatim EquValue token, which must be re-lexed
// into a real token slice before symtab.Table.DefineEqu can walk it for
// self-reference checking and later splice it via token.NewMapSource.
func (p *Parser) parseEquDef(s *token.Stream) (ast.Command, error) {
	name := s.Eat().Text
	if s.Peek(0).Kind == token.Colon {
		s.Eat()
		s.Eat() // second ':'
	}
	if s.Peek(0).Kind != token.Equ {
		return nil, fmt.Errorf("%s(%d): expected 'equ'", p.file, p.line)
	}
	s.Eat()
	if s.Peek(0).Kind != token.EquValue {
		return nil, fmt.Errorf("%s(%d): equ %q has no value", p.file, p.line, name)
	}
	valTok := s.Eat()
	body := lexer.New(valTok.StrVal, p.file).Tokenize()
	if len(body) > 0 && body[len(body)-1].Kind == token.EOF {
		body = body[:len(body)-1]
	}
	if !symtab.ValidName(name) {
		return nil, fmt.Errorf("%s(%d): %q is not a valid symbol name", p.file, p.line, name)
	}
	if err := p.Syms.DefineEqu(name, body); err != nil {
		return nil, fmt.Errorf("%s(%d): %w", p.file, p.line, err)
	}
	return nil, nil
}

// parseLabel handles `name:`. A global label (one not starting with '@')
// bumps the section counter before it is registered, so any preceding
// local labels stay scoped to the span that just ended.
func (p *Parser) parseLabel(s *token.Stream) (ast.Command, error) {
	name := s.Eat().Text
	s.Eat() // ':'
	if !symtab.ValidName(name) {
		return nil, fmt.Errorf("%s(%d): %q is not a valid symbol name", p.file, p.line, name)
	}
	if !strings.HasPrefix(name, "@") {
		p.bumpSection()
	}
	sym := p.Syms.GetLabel(name, p.fileNum, p.section)
	sym.DefFile, sym.DefLine = p.fileNum, p.line
	return ast.NewLabel(sym, nil, false), nil
}

// exprParser builds an expr.Parser stamped with the current file/section.
func (p *Parser) exprParser(s *token.Stream) *expr.Parser {
	return expr.NewParser(s, expr.Site{FileNum: p.fileNum, Section: p.section})
}

// parseExprList reads a comma-separated list of expressions, where any
// entry that is a bare String token is instead captured as a string
// literal entry (spec.md §4.6.2's `.ascii`/`.byte` mixed entry lists).
func (p *Parser) parseExprList(s *token.Stream) ([]*expr.Node, []string, error) {
	var entries []*expr.Node
	var strs []string
	for {
		if s.Peek(0).Kind == token.String {
			tok := s.Eat()
			entries = append(entries, nil)
			strs = append(strs, tok.StrVal)
		} else {
			n, err := p.exprParser(s).Parse()
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, n)
			strs = append(strs, "")
		}
		if s.Peek(0).Kind != token.Comma {
			break
		}
		s.Eat()
	}
	return entries, strs, nil
}
