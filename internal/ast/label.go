package ast

import (
	"fmt"
	"io"

	"armips/internal/expr"
	"armips/internal/symtab"
)

// Label is spec.md §4.6.1: on first Validate, flags the backing symbol
// as defined and computes its value (from Expr if present, else from
// the current virtual address); every later pass recomputes and
// reports whether the value moved.
type Label struct {
	base
	Sym       *symtab.Label
	ValueExpr *expr.Node // nil => value tracks the current virtual address
	thumb     bool       // low bit stashed into Sym.Info for ARM interworking
	claimed   bool        // this command, not some other Label node, owns Sym
}

func NewLabel(sym *symtab.Label, valueExpr *expr.Node, thumb bool) *Label {
	return &Label{Sym: sym, ValueExpr: valueExpr, thumb: thumb}
}

// Validate computes Sym's value from ValueExpr (or the current virtual
// address) and reports whether it moved since the previous pass. The
// first pass also claims ownership of Sym: a second, distinct Label
// command targeting the same already-defined symbol is a redefinition
// error (spec.md §4.6.1), distinguished from this same command simply
// being revalidated on a later pass via the claimed flag.
func (l *Label) Validate(env *Env) (bool, error) {
	var value int64
	if l.ValueExpr != nil {
		v, err := env.Eval(l.ValueExpr)
		if err != nil {
			return false, err
		}
		value = v.AsInt()
	} else {
		value = env.Files.VirtualAddress()
	}
	if !l.claimed {
		l.claimed = true
		if l.Sym.Defined {
			return false, errAt(env.Pos, "label %q is already defined", l.Sym.OriginalCaseName)
		}
		l.Sym.Defined = true
		l.Sym.Value = value
		if l.thumb {
			l.Sym.Info |= 1
		}
		return true, nil
	}
	if l.Sym.Value == value {
		return false, nil
	}
	l.Sym.Value = value
	return true, nil
}

func (l *Label) Encode(env *Env) error { return nil }

func (l *Label) WriteSym(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%08X %s\n", l.Sym.Value, l.Sym.OriginalCaseName)
	return err
}
