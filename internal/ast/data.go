package ast

import (
	"io"
	"math"
	"unicode"

	"armips/internal/diag"
	"armips/internal/expr"
)

// DataMode selects one entry's encoded representation (spec.md §4.6.2).
type DataMode int

const (
	DataU8 DataMode = iota
	DataU16
	DataU32
	DataU64
	DataFloat
	DataDouble
	DataAscii
	DataSjis
	DataCustom
)

func (m DataMode) byteWidth() int64 {
	switch m {
	case DataU8:
		return 1
	case DataU16:
		return 2
	case DataU32, DataFloat:
		return 4
	case DataU64, DataDouble:
		return 8
	default:
		return 0 // string-like modes: width depends on content
	}
}

// EncodingTable maps a string entry (greedy, longest-prefix match) to
// raw bytes for Sjis/Custom data modes, plus an optional terminator.
type EncodingTable interface {
	Encode(s string) ([]byte, error)
	Terminator() []byte
}

// Data implements `.byte`/`.halfword`/`.word`/`.ascii`/etc (spec.md
// §4.6.2). Warned-once non-ASCII detection is tracked per command
// instance, matching the "warn once" wording.
type Data struct {
	base
	Mode       DataMode
	Entries    []*expr.Node
	StringLit  []string // parallel to Entries; non-empty slot => string entry
	Terminate  bool
	Table      EncodingTable
	warnedOnce bool
}

func (d *Data) Validate(env *Env) (bool, error) {
	var total int64
	for i := range d.Entries {
		n, err := d.entrySize(env, i)
		if err != nil {
			return false, err
		}
		total += n
	}
	changed := total != d.size
	d.size = total
	return changed, nil
}

func (d *Data) entrySize(env *Env, i int) (int64, error) {
	if s := d.StringLit[i]; s != "" {
		return d.stringEntrySize(env, s)
	}
	return d.Mode.byteWidth(), nil
}

func (d *Data) stringEntrySize(env *Env, s string) (int64, error) {
	switch d.Mode {
	case DataAscii:
		n := int64(len(s))
		if d.Terminate {
			n++
		}
		return n, nil
	case DataSjis, DataCustom:
		enc, err := d.Table.Encode(s)
		if err != nil {
			return 0, err
		}
		n := int64(len(enc))
		if d.Terminate {
			n += int64(len(d.Table.Terminator()))
		}
		return n, nil
	default:
		return int64(len(s)), nil
	}
}

func (d *Data) Encode(env *Env) error {
	for i, n := range d.Entries {
		if s := d.StringLit[i]; s != "" {
			if err := d.encodeString(env, s); err != nil {
				return err
			}
			continue
		}
		v, err := env.Eval(n)
		if err != nil {
			return err
		}
		if err := d.encodeScalar(env, v); err != nil {
			return err
		}
	}
	return nil
}

func (d *Data) encodeScalar(env *Env, v expr.Value) error {
	switch d.Mode {
	case DataU8:
		return env.Files.WriteU8(uint8(v.AsInt()))
	case DataU16:
		return env.Files.WriteU16(uint16(v.AsInt()))
	case DataU32:
		return env.Files.WriteU32(uint32(v.AsInt()))
	case DataU64:
		return env.Files.WriteU64(uint64(v.AsInt()))
	case DataFloat:
		return env.Files.WriteU32(math.Float32bits(float32(v.AsFloat())))
	case DataDouble:
		return env.Files.WriteU64(math.Float64bits(v.AsFloat()))
	default:
		return env.Files.WriteU8(uint8(v.AsInt()))
	}
}

func (d *Data) encodeString(env *Env, s string) error {
	switch d.Mode {
	case DataAscii:
		if !d.warnedOnce {
			for _, r := range s {
				if r > unicode.MaxASCII {
					env.Diag.Queue(diag.Warning, env.Pos.File, env.Pos.Line,
						"non-ASCII character in byte data; consider .string")
					d.warnedOnce = true
					break
				}
			}
		}
		if err := env.Files.WriteBytes([]byte(s)); err != nil {
			return err
		}
		if d.Terminate {
			return env.Files.WriteU8(0)
		}
		return nil
	case DataSjis, DataCustom:
		enc, err := d.Table.Encode(s)
		if err != nil {
			return err
		}
		if err := env.Files.WriteBytes(enc); err != nil {
			return err
		}
		if d.Terminate {
			return env.Files.WriteBytes(d.Table.Terminator())
		}
		return nil
	default:
		return env.Files.WriteBytes([]byte(s))
	}
}

func (d *Data) WriteTemp(w io.Writer) error { return nil }
