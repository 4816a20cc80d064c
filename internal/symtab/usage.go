package symtab

import "sort"

// RefKind classifies a single usage site, adapted from the teacher's
// tools/xref.go ReferenceType enum.
type RefKind int

const (
	RefDefinition RefKind = iota
	RefBranch
	RefLoad
	RefStore
	RefData
	RefCall
)

// Reference is one recorded occurrence of a symbol name.
type Reference struct {
	Kind   RefKind
	File   string
	Line   int
	Column int
}

// UsageEntry tracks every reference seen for one symbol name, used for
// cross-reference dumps and undefined/duplicate-symbol diagnostics.
type UsageEntry struct {
	Name       string
	Definition *Reference
	References []*Reference
}

// UsageIndex records symbol usage across a whole assembly run. Grounded
// on the teacher's tools/xref.go XRefGenerator, generalized from a
// post-hoc ARM program walk into an index built incrementally during
// parsing/encoding.
type UsageIndex struct {
	entries map[string]*UsageEntry
}

func NewUsageIndex() *UsageIndex {
	return &UsageIndex{entries: make(map[string]*UsageEntry)}
}

func (u *UsageIndex) entry(name string) *UsageEntry {
	e, ok := u.entries[name]
	if !ok {
		e = &UsageEntry{Name: name}
		u.entries[name] = e
	}
	return e
}

// RecordDefinition registers name's definition site. A second call for
// the same name signals a duplicate
// label and is reported to the caller so it can raise a diagnostic.
func (u *UsageIndex) RecordDefinition(name string, ref Reference) (duplicate bool) {
	e := u.entry(name)
	if e.Definition != nil {
		return true
	}
	r := ref
	e.Definition = &r
	return false
}

// RecordReference appends a usage site for name.
func (u *UsageIndex) RecordReference(name string, ref Reference) {
	e := u.entry(name)
	r := ref
	e.References = append(e.References, &r)
}

// Undefined returns every name with at least one reference but no
// recorded definition, sorted for deterministic reporting.
func (u *UsageIndex) Undefined() []string {
	var out []string
	for name, e := range u.entries {
		if e.Definition == nil && len(e.References) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Unreferenced returns every defined name with zero references.
func (u *UsageIndex) Unreferenced() []string {
	var out []string
	for name, e := range u.entries {
		if e.Definition != nil && len(e.References) == 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Entry exposes the raw record for name, if any.
func (u *UsageIndex) Entry(name string) (*UsageEntry, bool) {
	e, ok := u.entries[name]
	return e, ok
}
