package ast

import (
	"io"
	"os"

	"armips/internal/expr"
	"armips/internal/output"
)

// FileOp selects `.open`/`.create`/`.close`'s behavior (spec.md §4.6.5).
type FileOp int

const (
	FileOpen FileOp = iota
	FileCreate
	FileCopy
	FileClose
)

// File implements `.open`/`.create`/`.open in,out`/`.close`. NameExpr
// (and CopyFromExpr for the two-path open form) resolve to strings at
// Validate time, since a path may itself be computed.
type File struct {
	base
	Op             FileOp
	NameExpr       *expr.Node
	CopyFromExpr   *expr.Node
	HeaderExpr     *expr.Node
	seed           []byte // pre-loaded bytes for Copy mode
	opened         bool
}

func (f *File) Validate(env *Env) (bool, error) {
	if f.Op == FileClose {
		if f.opened {
			return false, env.Files.CloseActive()
		}
		return false, nil
	}
	if f.opened {
		return false, nil
	}
	nameV, err := env.Eval(f.NameExpr)
	if err != nil {
		return false, err
	}
	var header int64
	if f.HeaderExpr != nil {
		hv, err := env.Eval(f.HeaderExpr)
		if err != nil {
			return false, err
		}
		header = hv.AsInt()
	}
	if f.Op == FileCopy && f.seed == nil {
		srcV, err := env.Eval(f.CopyFromExpr)
		if err != nil {
			return false, err
		}
		if f.seed, err = os.ReadFile(srcV.S); err != nil {
			return false, err
		}
	}
	mode := output.ModeOpen
	switch f.Op {
	case FileCreate:
		mode = output.ModeCreate
	case FileCopy:
		mode = output.ModeCopy
	}
	gf := output.NewGenericFile(nameV.S, mode, f.seed)
	gf.SetHeaderSize(header)
	if err := gf.Open(); err != nil {
		return false, err
	}
	env.Files.Register(gf)
	f.opened = true
	return true, nil
}

func (f *File) Encode(env *Env) error { return nil }

// Incbin implements `.incbin path[, start[, size]]`: Validate advances
// position by Size, Encode copies bytes from disk (spec.md §4.6.5).
type Incbin struct {
	base
	Data      []byte // pre-read bytes of the referenced file
	StartExpr *expr.Node
	SizeExpr  *expr.Node
	start     int64
}

func (b *Incbin) Validate(env *Env) (bool, error) {
	start := int64(0)
	if b.StartExpr != nil {
		v, err := env.Eval(b.StartExpr)
		if err != nil {
			return false, err
		}
		start = v.AsInt()
	}
	size := int64(len(b.Data)) - start
	if b.SizeExpr != nil {
		v, err := env.Eval(b.SizeExpr)
		if err != nil {
			return false, err
		}
		size = v.AsInt()
	}
	changed := size != b.size
	b.size = size
	b.start = start
	return changed, nil
}

func (b *Incbin) Encode(env *Env) error {
	end := b.start + b.size
	if end > int64(len(b.Data)) {
		end = int64(len(b.Data))
	}
	if b.start >= end {
		return nil
	}
	return env.Files.WriteBytes(b.Data[b.start:end])
}

func (b *Incbin) WriteTemp(w io.Writer) error { return nil }
