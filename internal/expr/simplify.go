package expr

// Simplify walks n bottom-up and folds every subtree whose children are
// all "safe constants" into a literal leaf, per spec.md §4.3. It returns
// the (possibly replaced) node and whether the whole tree folded to a
// literal (isConstExpression, which is what lets `.if` resolve at parse
// time).
func Simplify(n *Node, ctx Context) (*Node, bool) {
	if n == nil {
		return n, false
	}
	switch n.Op {
	case OpLit:
		return n, true
	case OpMemoryPos, OpIdentifier:
		return n, false
	case OpToString:
		simplifyChildren(n, ctx)
		return n, false // ToString is never considered safe to fold (spec.md §4.3)
	case OpCall:
		allConst := true
		for i, a := range n.Args {
			s, c := Simplify(a, ctx)
			n.Args[i] = s
			allConst = allConst && c
		}
		spec, known := Builtins[n.FuncName]
		if !known {
			return n, false
		}
		safe := spec.Safety == Safe || (spec.Safety == ConditionalUnsafe && !ctx.InUnknownConditional())
		if !allConst || !safe {
			return n, false
		}
		v, err := Eval(n, ctx)
		if err != nil {
			return n, false
		}
		return lit(v), true
	default:
		allConst := simplifyChildren(n, ctx)
		if !allConst {
			return n, false
		}
		v, err := Eval(n, ctx)
		if err != nil {
			return n, false
		}
		return lit(v), true
	}
}

func simplifyChildren(n *Node, ctx Context) bool {
	allConst := true
	for i, c := range n.Children {
		s, isConst := Simplify(c, ctx)
		n.Children[i] = s
		allConst = allConst && isConst
	}
	return allConst
}

// IsConstExpression simplifies a copy of n and reports whether it folded
// entirely to a literal, without mutating the caller's tree — used by
// `.if` to decide at parse time whether the condition is Known or
// Unknown (spec.md §4.2.2).
func IsConstExpression(n *Node, ctx Context) (bool, Value) {
	clone := n.Clone()
	folded, ok := Simplify(clone, ctx)
	if !ok {
		return false, Invalid
	}
	return true, folded.Lit
}
