// Package macro implements macro definition capture and hygienic
// per-call expansion, per spec.md §4.5. Grounded on the teacher's
// parser/macros.go (definition/call token-slice capture) and
// parser/preprocessor.go (dry-run label discovery).
package macro

import (
	"fmt"
	"strings"

	"armips/internal/token"
)

// Macro is a captured `.macro name, p1, p2 … .endmacro` definition.
type Macro struct {
	Name        string
	ParamNames  []string
	Body        []token.Token
	Labels      map[string]bool // captured_label_names, discovered by a dry-run parse
	CallCounter int
}

func New(name string, params []string) *Macro {
	return &Macro{Name: name, ParamNames: params, Labels: make(map[string]bool)}
}

// CaptureBody reads s until a top-level `.endmacro`, appending every
// token to the macro's Body. Nested `.macro` definitions are rejected,
// per spec.md §4.5.
func CaptureBody(s *token.Stream, def *Macro) error {
	for {
		if s.AtEOF() {
			return fmt.Errorf("macro %q: missing .endmacro", def.Name)
		}
		tok := s.Peek(0)
		if tok.Kind == token.Identifier {
			switch strings.ToLower(tok.Text) {
			case ".endmacro":
				s.Eat()
				return nil
			case ".macro":
				return fmt.Errorf("macro %q: nested macro definitions are not allowed", def.Name)
			}
		}
		def.Body = append(def.Body, s.Eat())
	}
}

// DryRunLabels scans body for `identifier ':'` label definitions and
// records them in def.Labels, mirroring the teacher's
// initializing_macro dry-run pass (spec.md §4.5): the first time a
// macro is instantiated, its body is walked once purely to discover
// which labels it defines, with no side effects and no diagnostics.
func DryRunLabels(def *Macro) {
	for i := 0; i+1 < len(def.Body); i++ {
		cur := def.Body[i]
		next := def.Body[i+1]
		if cur.Kind == token.Identifier && next.Kind == token.Colon {
			def.Labels[strings.ToLower(cur.Text)] = true
		}
	}
}

type labelPrefix int

const (
	prefixGlobal labelPrefix = iota
	prefixFileStatic
	prefixLocal
)

func classifyPrefix(name string) (labelPrefix, string) {
	switch {
	case strings.HasPrefix(name, "@@"):
		return prefixLocal, name[2:]
	case strings.HasPrefix(name, "@"):
		return prefixFileStatic, name[1:]
	default:
		return prefixGlobal, name
	}
}

// renameFor mints the hygienic per-call name for a captured label,
// per spec.md §4.5: global macro_N_L_00000000, static @macro_N_L_…,
// local @@macro_N_L_…, counting calls from zero.
func renameFor(macroName, label string, counter int) string {
	prefix, stripped := classifyPrefix(label)
	base := fmt.Sprintf("%s_%s_%08d", macroName, stripped, counter)
	switch prefix {
	case prefixLocal:
		return "@@" + base
	case prefixFileStatic:
		return "@" + base
	default:
		return base
	}
}

// Call describes one macro invocation: the raw argument token slices
// as sliced from the caller's token stream (spec.md §4.5).
type Call struct {
	Args [][]token.Token
}

// Expand builds the token.Stream that should be parsed to produce the
// macro call's command tree: parameter-name replacement sources for
// each argument, and hygienic renaming sources for every captured
// label not shadowed by a single-identifier argument bound to a
// same-named parameter.
func (m *Macro) Expand(call Call) (*token.Stream, error) {
	if len(call.Args) != len(m.ParamNames) {
		return nil, fmt.Errorf("macro %q expects %d argument(s), got %d", m.Name, len(m.ParamNames), len(call.Args))
	}
	callIndex := m.CallCounter
	m.CallCounter++

	paramBindings := make(map[string][]token.Token, len(m.ParamNames))
	singleIdentArgFor := make(map[string]string) // lower(param) -> identifier text, when arg is one bare identifier
	for i, p := range m.ParamNames {
		arg := call.Args[i]
		lower := strings.ToLower(p)
		paramBindings[lower] = arg
		if len(arg) == 1 && arg[0].Kind == token.Identifier {
			singleIdentArgFor[lower] = arg[0].Text
		}
	}

	labelBindings := make(map[string][]token.Token)
	for label := range m.Labels {
		if ident, ok := singleIdentArgFor[label]; ok {
			// Parameter's argument is a bare identifier: let the normal
			// parameter substitution pass it through unchanged instead
			// of hygienically renaming it (spec.md §4.5).
			labelBindings[label] = []token.Token{{Kind: token.Identifier, Text: ident}}
			continue
		}
		renamed := renameFor(m.Name, label, callIndex)
		labelBindings[label] = []token.Token{{Kind: token.Identifier, Text: renamed}}
	}

	body := make([]token.Token, len(m.Body), len(m.Body)+1)
	copy(body, m.Body)
	body = append(body, token.Token{Kind: token.EOF})

	s := token.NewStream(body)
	s.PushSource(token.NewMapSource(paramBindings))
	s.PushSource(token.NewMapSource(labelBindings))
	return s, nil
}
