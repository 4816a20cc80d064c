package ast

import "io"

// backendHook is implemented by ast.Command variants whose real logic
// lives in an architecture/linker package (arch/arm, arch/mips, elf,
// psx): rather than those packages reimplementing the tree machinery,
// they provide closures bound at construction time.
type backendHook struct {
	validate func(env *Env) (bool, error)
	encode   func(env *Env) error
	temp     func(w io.Writer) error
	sym      func(w io.Writer) error
}

// ArmStateMarker records a `.arm`/`.thumb` mode switch in the command
// tree (spec.md §3). Its hook only reports the mode to the expression
// context (what isthumb() returns); it does not change how arch/arm
// parses or encodes the opcodes that follow.
type ArmStateMarker struct {
	base
	Thumb bool
	hook  backendHook
}

func NewArmStateMarker(thumb bool, hook backendHook) *ArmStateMarker {
	return &ArmStateMarker{Thumb: thumb, hook: hook}
}

func (a *ArmStateMarker) Validate(env *Env) (bool, error) {
	if a.hook.validate != nil {
		return a.hook.validate(env)
	}
	return false, nil
}
func (a *ArmStateMarker) Encode(env *Env) error {
	if a.hook.encode != nil {
		return a.hook.encode(env)
	}
	return nil
}

// ArmPool is the `.pool` flush point: it owns the set of literal
// values enqueued since the previous flush and the instructions
// waiting to be patched once addresses are known (spec.md §4.8). The
// dedup/align/range-check/patch logic is supplied by arch/arm via hook
// so this type stays backend-agnostic.
type ArmPool struct {
	base
	hook backendHook
}

func NewArmPool(hook backendHook) *ArmPool { return &ArmPool{hook: hook} }

func (p *ArmPool) Validate(env *Env) (bool, error) {
	if p.hook.validate == nil {
		return false, nil
	}
	changed, err := p.hook.validate(env)
	return changed, err
}

func (p *ArmPool) Encode(env *Env) error {
	if p.hook.encode != nil {
		return p.hook.encode(env)
	}
	return nil
}

// MipsMacroContent is a parsed pseudo-instruction expansion (spec.md
// §4.7): the already-expanded real-instruction sequence is just a
// CommandSequence, but this wrapper preserves the fact that it came
// from a template so WriteTemp can annotate it distinctly.
type MipsMacroContent struct {
	base
	Mnemonic string
	Body     Command
}

func (m *MipsMacroContent) Validate(env *Env) (bool, error) {
	changed, err := m.Body.Validate(env)
	m.size = m.Body.Size()
	return changed, err
}
func (m *MipsMacroContent) Encode(env *Env) error { return m.Body.Encode(env) }
func (m *MipsMacroContent) WriteTemp(w io.Writer) error {
	return m.Body.WriteTemp(w)
}

// ElfImport is the command produced by importing one relocatable ELF
// object or archive member (spec.md §4.9): placement and relocation
// are entirely the elf package's responsibility, reached through hook.
type ElfImport struct {
	base
	Path string
	hook backendHook
}

func NewElfImport(path string, hook backendHook) *ElfImport {
	return &ElfImport{Path: path, hook: hook}
}

func (e *ElfImport) Validate(env *Env) (bool, error) {
	if e.hook.validate == nil {
		return false, nil
	}
	return e.hook.validate(env)
}
func (e *ElfImport) Encode(env *Env) error {
	if e.hook.encode == nil {
		return nil
	}
	return e.hook.encode(env)
}

// PsxObjImport mirrors ElfImport for the PSX OBJ/LIB format
// (spec.md §4.10).
type PsxObjImport struct {
	base
	Path string
	hook backendHook
}

func NewPsxObjImport(path string, hook backendHook) *PsxObjImport {
	return &PsxObjImport{Path: path, hook: hook}
}

func (p *PsxObjImport) Validate(env *Env) (bool, error) {
	if p.hook.validate == nil {
		return false, nil
	}
	return p.hook.validate(env)
}
func (p *PsxObjImport) Encode(env *Env) error {
	if p.hook.encode == nil {
		return nil
	}
	return p.hook.encode(env)
}

// NewBackendHook lets architecture/linker packages build a hook without
// reaching into ast's unexported fields directly.
func NewBackendHook(validate func(env *Env) (bool, error), encode func(env *Env) error) backendHook {
	return backendHook{validate: validate, encode: encode}
}
