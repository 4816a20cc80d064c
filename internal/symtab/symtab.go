// Package symtab implements the scoped symbol table of spec.md §3/§4.4:
// global/file-static/local labels and equ bodies keyed by
// (name, file_scope, section_scope), unique-name minting for macro
// hygiene, and a usage cross-reference index.
//
// Grounded on the teacher's parser/symbols.go (Symbol/SymbolTable shape)
// and tools/xref.go (cross-reference walk, adapted into UsageIndex).
package symtab

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"armips/internal/token"
)

// Label is spec.md §3's Label record.
type Label struct {
	Name             string
	OriginalCaseName string
	Value            int64
	Defined          bool
	IsData           bool
	Info             int32
	UpdateInfo       bool
	Section          int
	DefFile          int
	DefLine          int
}

// Equation binds a name to a token sequence, substituted inline at parse
// time on subsequent identifier occurrences (spec.md §4).
type Equation struct {
	Name string
	Body []token.Token
}

var nameRe = regexp.MustCompile(`^@{0,2}[A-Za-z_.][A-Za-z0-9_.]*$`)

// ValidName checks spec.md §4.4's name grammar: up to two leading `@`,
// then [A-Za-z_.], then [A-Za-z0-9_.]*, with the first non-`@` character
// never a digit (already excluded by the character class above).
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// scopeClass classifies a name per spec.md §3.
type scopeClass int

const (
	scopeGlobal scopeClass = iota
	scopeFileStatic
	scopeLocal
)

func classify(name string) scopeClass {
	switch {
	case strings.HasPrefix(name, "@@"):
		return scopeLocal
	case strings.HasPrefix(name, "@"):
		return scopeFileStatic
	default:
		return scopeGlobal
	}
}

func scopeKey(name string, fileScope, sectionScope int) string {
	lowered := strings.ToLower(name)
	switch classify(name) {
	case scopeLocal:
		return fmt.Sprintf("L#%d#%s", sectionScope, lowered)
	case scopeFileStatic:
		return fmt.Sprintf("F#%d#%s", fileScope, lowered)
	default:
		return fmt.Sprintf("G#%s", lowered)
	}
}

// Table is the scoped label/equation registry for one assembly run.
type Table struct {
	labels map[string]*Label
	equs   map[string]*Equation // keyed by lowercase name, global scope only

	mintCounter int
	minted      map[string]bool

	Usage *UsageIndex
}

func New() *Table {
	return &Table{
		labels: make(map[string]*Label),
		equs:   make(map[string]*Equation),
		minted: make(map[string]bool),
		Usage:  NewUsageIndex(),
	}
}

// GetLabel creates-on-demand (spec.md §4.4).
func (t *Table) GetLabel(name string, fileScope, sectionScope int) *Label {
	key := scopeKey(name, fileScope, sectionScope)
	if l, ok := t.labels[key]; ok {
		return l
	}
	l := &Label{Name: strings.ToLower(name), OriginalCaseName: name, Section: sectionScope}
	t.labels[key] = l
	return l
}

// SymbolExists looks up without creating.
func (t *Table) SymbolExists(name string, fileScope, sectionScope int) bool {
	_, ok := t.labels[scopeKey(name, fileScope, sectionScope)]
	return ok
}

// EquExists reports whether a global equ is registered under name.
func (t *Table) EquExists(name string) bool {
	_, ok := t.equs[strings.ToLower(name)]
	return ok
}

// LookupEqu returns the registered equ body, if any.
func (t *Table) LookupEqu(name string) ([]token.Token, bool) {
	if eq, ok := t.equs[strings.ToLower(name)]; ok {
		return eq.Body, true
	}
	return nil, false
}

// DefineEqu registers name -> body, rejecting a definition whose value
// tokens mention name (directly or transitively through another equ) or
// contain another `equ` keyword, per spec.md §4/§9 (this implementation
// chooses to reject transitively, one of the two documented-acceptable
// behaviors for spec.md's open question).
func (t *Table) DefineEqu(name string, body []token.Token) error {
	lowered := strings.ToLower(name)
	for _, tok := range body {
		if tok.Kind == token.Equ {
			return fmt.Errorf("equ value for %q may not itself contain 'equ'", name)
		}
	}
	if t.mentionsName(body, lowered, map[string]bool{}) {
		return fmt.Errorf("equ %q may not refer to itself, directly or transitively", name)
	}
	t.equs[lowered] = &Equation{Name: name, Body: body}
	return nil
}

func (t *Table) mentionsName(body []token.Token, target string, visiting map[string]bool) bool {
	for _, tok := range body {
		if tok.Kind != token.Identifier {
			continue
		}
		id := strings.ToLower(tok.Text)
		if id == target {
			return true
		}
		if visiting[id] {
			continue // already walking this equ elsewhere on the stack; avoid infinite recursion
		}
		if other, ok := t.equs[id]; ok {
			visiting[id] = true
			if t.mentionsName(other.Body, target, visiting) {
				return true
			}
			delete(visiting, id)
		}
	}
	return false
}

// GetUniqueLabelName mints a fresh, never-colliding label name for
// macro-internal use (spec.md §4.4). Minted names are remembered so
// temp/sym writers can skip them.
func (t *Table) GetUniqueLabelName(local bool) string {
	t.mintCounter++
	var name string
	if local {
		name = fmt.Sprintf("@@unique_%08d", t.mintCounter)
	} else {
		name = fmt.Sprintf("unique_%08d", t.mintCounter)
	}
	t.minted[strings.ToLower(name)] = true
	return name
}

// IsMinted reports whether name was produced by GetUniqueLabelName.
func (t *Table) IsMinted(name string) bool {
	return t.minted[strings.ToLower(name)]
}

// AllLabels returns every defined label, sorted by value then name, for symbol-file
// emission (spec.md §6).
func (t *Table) AllLabels() []*Label {
	out := make([]*Label, 0, len(t.labels))
	for _, l := range t.labels {
		if l.Defined {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}
