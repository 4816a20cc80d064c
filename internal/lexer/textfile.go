// Package lexer turns assembly source text into a token.Stream, detecting
// the source encoding the way a TextFile reader would: BOM-sniffed
// UTF-8/UTF-16LE/UTF-16BE, an explicit Shift-JIS override, or an ASCII
// fallback.
package lexer

import (
	"fmt"
	"unicode/utf16"

	"golang.org/x/text/encoding/japanese"
)

// Encoding names a detected or requested source text encoding.
type Encoding int

const (
	ASCII Encoding = iota
	UTF8
	UTF16LE
	UTF16BE
	ShiftJIS
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF16LE:
		return "utf-16le"
	case UTF16BE:
		return "utf-16be"
	case ShiftJIS:
		return "shift-jis"
	default:
		return "ascii"
	}
}

// DecodeFile converts raw file bytes to a Go string, auto-detecting the
// encoding from a leading byte-order-mark. If override is non-zero it
// takes priority over BOM sniffing — this is how `.include "f", sjis`
// and the CLI's per-file encoding hints work.
func DecodeFile(raw []byte, override Encoding) (string, Encoding, error) {
	enc := override
	body := raw
	if enc == 0 {
		enc, body = sniff(raw)
	} else {
		body = stripBOM(raw, enc)
	}

	switch enc {
	case UTF16LE:
		return decodeUTF16(body, false), enc, nil
	case UTF16BE:
		return decodeUTF16(body, true), enc, nil
	case ShiftJIS:
		out, err := japanese.ShiftJIS.NewDecoder().Bytes(body)
		if err != nil {
			return "", enc, fmt.Errorf("shift-jis decode: %w", err)
		}
		return string(out), enc, nil
	default: // ASCII, UTF8 — both are valid Go strings as raw bytes
		return string(body), enc, nil
	}
}

func sniff(raw []byte) (Encoding, []byte) {
	switch {
	case len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF:
		return UTF8, raw[3:]
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE:
		return UTF16LE, raw[2:]
	case len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF:
		return UTF16BE, raw[2:]
	default:
		return ASCII, raw
	}
}

func stripBOM(raw []byte, enc Encoding) []byte {
	switch enc {
	case UTF8:
		if len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF {
			return raw[3:]
		}
	case UTF16LE:
		if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
			return raw[2:]
		}
	case UTF16BE:
		if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
			return raw[2:]
		}
	}
	return raw
}

func decodeUTF16(b []byte, bigEndian bool) string {
	n := len(b) / 2
	u16 := make([]uint16, n)
	for i := 0; i < n; i++ {
		if bigEndian {
			u16[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
		} else {
			u16[i] = uint16(b[2*i+1])<<8 | uint16(b[2*i])
		}
	}
	return string(utf16.Decode(u16))
}
