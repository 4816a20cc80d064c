package expr

// Context supplies the assembler-wide state an expression tree needs to
// evaluate: the current virtual address (MemoryPos), symbol lookup, and
// built-in function execution. Implemented by the driver/symtab layer so
// this package stays free of a dependency on them.
type Context interface {
	// MemoryPos returns the current virtual address (the `.` leaf).
	MemoryPos() int64

	// LookupIdentifier resolves a scoped identifier to a value. fileNum/
	// section are the definition site recorded on the node (spec.md §3),
	// used to scope local/file-static lookups correctly after cloning.
	LookupIdentifier(name string, fileNum, section int) (Value, error)

	// CallBuiltin executes a built-in function by name (already validated
	// against Builtins for arity). For `defined`, the raw argument Node is
	// also supplied since that built-in inspects the parse tree rather
	// than a value (spec.md §4.3).
	CallBuiltin(name string, args []Value, rawArgs []*Node) (Value, error)

	// InUnknownConditional reports whether evaluation is happening inside
	// an `.if` block whose outcome was Unknown at parse time — this gates
	// ConditionalUnsafe built-ins during simplification (spec.md §4.3).
	InUnknownConditional() bool
}
