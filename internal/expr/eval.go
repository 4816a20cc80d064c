package expr

import "fmt"

// Eval evaluates a tree bottom-up against ctx.
func Eval(n *Node, ctx Context) (Value, error) {
	if n == nil {
		return Invalid, fmt.Errorf("nil expression node")
	}
	switch n.Op {
	case OpLit:
		return n.Lit, nil
	case OpMemoryPos:
		return Int(ctx.MemoryPos()), nil
	case OpIdentifier:
		return ctx.LookupIdentifier(n.Name, n.DefFile, n.DefSection)
	case OpCall:
		return evalCall(n, ctx)
	case OpNeg:
		a, err := Eval(n.Children[0], ctx)
		if err != nil {
			return Invalid, err
		}
		return Neg(a)
	case OpPos:
		return Eval(n.Children[0], ctx)
	case OpBitNot:
		a, err := Eval(n.Children[0], ctx)
		if err != nil {
			return Invalid, err
		}
		return BitNot(a)
	case OpLNot:
		a, err := Eval(n.Children[0], ctx)
		if err != nil {
			return Invalid, err
		}
		return LNot(a), nil
	case OpToString:
		a, err := Eval(n.Children[0], ctx)
		if err != nil {
			return Invalid, err
		}
		return ToString(a), nil
	case OpMul:
		return evalArith("*", n, ctx)
	case OpDiv:
		return evalArith("/", n, ctx)
	case OpAdd:
		return evalArith("+", n, ctx)
	case OpSub:
		return evalArith("-", n, ctx)
	case OpMod:
		a, b, err := evalBinValues(n, ctx)
		if err != nil {
			return Invalid, err
		}
		return Mod(a, b)
	case OpShl, OpShr, OpAnd, OpXor, OpOr:
		a, b, err := evalBinValues(n, ctx)
		if err != nil {
			return Invalid, err
		}
		return BitOp(opSymbol(n.Op), a, b)
	case OpLt, OpLe, OpGt, OpGe, OpEq, OpNe:
		a, b, err := evalBinValues(n, ctx)
		if err != nil {
			return Invalid, err
		}
		return Compare(opSymbol(n.Op), a, b)
	case OpLAnd:
		a, err := Eval(n.Children[0], ctx)
		if err != nil {
			return Invalid, err
		}
		if !a.Truthy() {
			return Int(0), nil
		}
		b, err := Eval(n.Children[1], ctx)
		if err != nil {
			return Invalid, err
		}
		if b.Truthy() {
			return Int(1), nil
		}
		return Int(0), nil
	case OpLOr:
		a, err := Eval(n.Children[0], ctx)
		if err != nil {
			return Invalid, err
		}
		if a.Truthy() {
			return Int(1), nil
		}
		b, err := Eval(n.Children[1], ctx)
		if err != nil {
			return Invalid, err
		}
		if b.Truthy() {
			return Int(1), nil
		}
		return Int(0), nil
	case OpTernary:
		cond, err := Eval(n.Children[0], ctx)
		if err != nil {
			return Invalid, err
		}
		if cond.Truthy() {
			return Eval(n.Children[1], ctx)
		}
		return Eval(n.Children[2], ctx)
	default:
		return Invalid, fmt.Errorf("unhandled expression node op %d", n.Op)
	}
}

func evalArith(op string, n *Node, ctx Context) (Value, error) {
	a, b, err := evalBinValues(n, ctx)
	if err != nil {
		return Invalid, err
	}
	return Arith(op, a, b)
}

func evalBinValues(n *Node, ctx Context) (Value, Value, error) {
	a, err := Eval(n.Children[0], ctx)
	if err != nil {
		return Invalid, Invalid, err
	}
	b, err := Eval(n.Children[1], ctx)
	if err != nil {
		return Invalid, Invalid, err
	}
	return a, b, nil
}

func opSymbol(op Op) string {
	switch op {
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpAnd:
		return "&"
	case OpXor:
		return "^"
	case OpOr:
		return "|"
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	default:
		return "?"
	}
}

func evalCall(n *Node, ctx Context) (Value, error) {
	if n.FuncName == "defined" {
		// defined() inspects the parse tree, bypassing normal evaluation
		// of its operand (spec.md §4.3).
		return ctx.CallBuiltin("defined", nil, n.Args)
	}
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		v, err := Eval(a, ctx)
		if err != nil {
			return Invalid, err
		}
		args[i] = v
	}
	return ctx.CallBuiltin(n.FuncName, args, n.Args)
}
