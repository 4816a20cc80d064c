package ast

import (
	"io"

	"armips/internal/expr"
)

// Conditional is the AST node retained only for Unknown-at-parse-time
// `.if`/`.ifdef`/`.ifndef` blocks (spec.md §4.2.2/§4.6.6): each
// Validate re-evaluates Expr and picks the branch whose commands run.
type Conditional struct {
	base
	Expr         *expr.Node // nil for .ifdef/.ifndef, which use NameCheck instead
	NameCheck    func(env *Env) (bool, error)
	IfBody       Command
	ElseBody     Command // nil if no .else
	activeBranch Command
}

func (c *Conditional) pickTrue(env *Env) (bool, error) {
	if c.NameCheck != nil {
		return c.NameCheck(env)
	}
	v, err := env.Eval(c.Expr)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

func (c *Conditional) Validate(env *Env) (bool, error) {
	truth, err := c.pickTrue(env)
	if err != nil {
		return false, err
	}
	branch := c.ElseBody
	if truth {
		branch = c.IfBody
	}
	if branch == nil {
		changed := c.size != 0
		c.size = 0
		c.activeBranch = nil
		return changed, nil
	}
	sub := *env
	sub.Unknown = true
	changed, err := branch.Validate(&sub)
	if err != nil {
		return changed, err
	}
	newSize := branch.Size()
	if newSize != c.size {
		changed = true
	}
	c.size = newSize
	c.activeBranch = branch
	return changed, nil
}

func (c *Conditional) Encode(env *Env) error {
	if c.activeBranch == nil {
		return nil
	}
	return c.activeBranch.Encode(env)
}

func (c *Conditional) WriteTemp(w io.Writer) error {
	if c.activeBranch == nil {
		return nil
	}
	return c.activeBranch.WriteTemp(w)
}

func (c *Conditional) WriteSym(w io.Writer) error {
	if c.activeBranch == nil {
		return nil
	}
	return c.activeBranch.WriteSym(w)
}

// Function implements `.func name … .endfunc`: a named scope boundary
// around Body used by debuggers; it has no size or encode effect of
// its own beyond delegating to Body.
type Function struct {
	base
	Label string
	Body  Command
}

func (f *Function) Validate(env *Env) (bool, error) {
	changed, err := f.Body.Validate(env)
	f.size = f.Body.Size()
	return changed, err
}

func (f *Function) Encode(env *Env) error           { return f.Body.Encode(env) }
func (f *Function) WriteTemp(w io.Writer) error     { return f.Body.WriteTemp(w) }
func (f *Function) WriteSym(w io.Writer) error       { return f.Body.WriteSym(w) }

// ArchSwitch records the endianness in effect from this point on; when
// encoded, it updates FileManager.endianness (spec.md §4.6.7). It emits
// no bytes of its own.
type ArchSwitch struct {
	base
	LittleEndian bool
	TempText     string
	SymText      string
}

func (a *ArchSwitch) Validate(env *Env) (bool, error) {
	env.Files.LittleEndian = a.LittleEndian
	return false, nil
}

func (a *ArchSwitch) Encode(env *Env) error {
	env.Files.LittleEndian = a.LittleEndian
	return nil
}

func (a *ArchSwitch) WriteTemp(w io.Writer) error {
	if a.TempText == "" {
		return nil
	}
	_, err := io.WriteString(w, a.TempText)
	return err
}

func (a *ArchSwitch) WriteSym(w io.Writer) error {
	if a.SymText == "" {
		return nil
	}
	_, err := io.WriteString(w, a.SymText)
	return err
}
