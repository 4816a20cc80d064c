// Package symfile writes the no$gba-compatible symbol file and the
// disassembly-style temp listing, per spec.md §6.
package symfile

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Kind tags a symbol entry's data-region directive, empty for a plain
// code/function symbol.
type Kind int

const (
	KindSymbol Kind = iota
	KindByte
	KindWord
	KindDouble
	KindAscii
)

// Entry is one no$ symbol file line.
type Entry struct {
	Address uint32
	Name    string
	Kind    Kind
	Length  uint32 // data region length (for Kind != KindSymbol)
	Size    uint32 // function size, used only by v2 output
	IsFunc  bool
}

func (k Kind) suffix(nnnn uint32) string {
	switch k {
	case KindByte:
		return fmt.Sprintf(".byt:%04X", nnnn)
	case KindWord:
		return fmt.Sprintf(".wrd:%04X", nnnn)
	case KindDouble:
		return fmt.Sprintf(".dbl:%04X", nnnn)
	case KindAscii:
		return fmt.Sprintf(".asc:%04X", nnnn)
	default:
		return ""
	}
}

// WriteV1 emits the v1 no$ symbol file: header, sorted lowercase
// entries, trailer byte 0x1A.
func WriteV1(w io.Writer, entries []Entry) error {
	return write(w, entries, false)
}

// WriteV2 additionally appends `,SSSSSSSS` (hex size) to function
// symbols.
func WriteV2(w io.Writer, entries []Entry) error {
	return write(w, entries, true)
}

func write(w io.Writer, entries []Entry, v2 bool) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Address != sorted[j].Address {
			return sorted[i].Address < sorted[j].Address
		}
		return sorted[i].Name < sorted[j].Name
	})

	if _, err := fmt.Fprintf(w, "%08X 0\n", 0); err != nil {
		return err
	}
	for _, e := range sorted {
		text := strings.ToLower(e.Name)
		if e.Kind != KindSymbol {
			text = e.Kind.suffix(e.Length)
		} else if v2 && e.IsFunc {
			text = fmt.Sprintf("%s,%08X", text, e.Size)
		}
		if _, err := fmt.Fprintf(w, "%08X %s\n", e.Address, text); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{0x1A})
	return err
}

// TempLine is one entry in the human-readable instruction listing.
type TempLine struct {
	Address uint32
	Text    string
	File    string
	Line    int
}

// WriteTemp emits spec.md §6's `AAAAAAAA <text> ; <filename> line N`
// format, one entry per generated line of code.
func WriteTemp(w io.Writer, lines []TempLine) error {
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%08X %-40s ; %s line %d\n", l.Address, l.Text, l.File, l.Line); err != nil {
			return err
		}
	}
	return nil
}
