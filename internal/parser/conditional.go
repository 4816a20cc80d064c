package parser

import (
	"fmt"
	"strings"

	"armips/internal/arch"
	"armips/internal/ast"
	"armips/internal/expr"
	"armips/internal/token"
)

// ifBranch is one already-parsed arm of a `.if`/`.elseif*`/`.else` chain.
type ifBranch struct {
	nameCheck func(env *ast.Env) (bool, error) // set for ifdef/ifndef/elseifdef/elseifndef
	exprNode  *expr.Node                        // set for if/elseif; nil for else
	isElse    bool
	body      *ast.CommandSequence
}

var elseStopSet = stopSet{
	".else": true, ".elseif": true, ".elseifdef": true, ".elseifndef": true, ".endif": true,
}

// parseIfChain handles a full `.if`/`.ifdef`/`.ifndef` … `.elseif*` …
// `.else` … `.endif` chain (spec.md §4.2.2/§4.6.6).
//
// Every branch body is always parsed — so labels/equs it defines take
// effect even when the branch turns out dead, matching the "constructed,
// destroyed immediately" wording for known-false blocks — but each
// branch's Known/Unknown status is decided from its header alone, right
// before its body is parsed, so any nested `.if` inside that body sees
// the correct inUnknownDepth. Once the chain goes Unknown (a name-check
// branch, a non-constant expression, or an already-Unknown enclosing
// context), every remaining branch is collected into a nested
// ast.Conditional tree instead of being resolved outright.
func (p *Parser) parseIfChain(s *token.Stream) (ast.Command, error) {
	kind := strings.ToLower(s.Eat().Text)
	decided := p.inUnknownDepth == 0
	taken := false
	var selected ast.Command
	var pending []ifBranch

	for {
		br, err := p.parseOneIfHeader(s, kind)
		if err != nil {
			return nil, err
		}

		branchForcesUnknown := false
		thisTruth := false
		if decided {
			switch {
			case br.isElse:
				thisTruth = !taken
			case br.nameCheck != nil:
				branchForcesUnknown = true
			default:
				isConst, val := p.constFold(br.exprNode)
				if !isConst {
					branchForcesUnknown = true
				} else {
					thisTruth = val.Truthy() && !taken
				}
			}
		}

		unknownForBody := !decided || branchForcesUnknown
		if unknownForBody {
			p.inUnknownDepth++
		}
		body, stop, err := p.parseSequence(s, elseStopSet)
		if unknownForBody {
			p.inUnknownDepth--
		}
		if err != nil {
			return nil, err
		}
		br.body = body

		if decided && branchForcesUnknown {
			decided = false
		}
		if decided {
			if thisTruth {
				selected, taken = body, true
			}
		} else {
			pending = append(pending, br)
		}

		if stop == ".endif" {
			s.Eat()
			break
		}
		kind = stop
		s.Eat()
		if kind == ".else" {
			unknownForElse := !decided
			if unknownForElse {
				p.inUnknownDepth++
			}
			body2, stop2, err := p.parseSequence(s, stopSet{".endif": true})
			if unknownForElse {
				p.inUnknownDepth--
			}
			if err != nil {
				return nil, err
			}
			if stop2 != ".endif" {
				return nil, fmt.Errorf("%s(%d): expected .endif after .else", p.file, p.line)
			}
			s.Eat()
			if decided {
				if !taken {
					selected, taken = body2, true
				}
			} else {
				pending = append(pending, ifBranch{isElse: true, body: body2})
			}
			break
		}
	}

	if decided {
		if taken {
			return selected, nil
		}
		return ast.NewDummy(), nil
	}
	return p.buildUnknownChain(pending), nil
}

// parseOneIfHeader parses the condition (an expression for if/elseif, or
// a bare name for ifdef/ifndef/elseifdef/elseifndef) for one branch.
func (p *Parser) parseOneIfHeader(s *token.Stream, kind string) (ifBranch, error) {
	switch kind {
	case ".if", ".elseif":
		n, err := p.exprParser(s).Parse()
		if err != nil {
			return ifBranch{}, err
		}
		return ifBranch{exprNode: n}, nil
	case ".ifdef", ".elseifdef":
		name := s.Eat().Text
		return ifBranch{nameCheck: p.definedCheck(name, true)}, nil
	case ".ifndef", ".elseifndef":
		name := s.Eat().Text
		return ifBranch{nameCheck: p.definedCheck(name, false)}, nil
	default:
		return ifBranch{}, fmt.Errorf("%s(%d): unexpected %q in conditional chain", p.file, p.line, kind)
	}
}

// definedCheck builds the NameCheck closure ast.Conditional re-runs every
// Validate pass: a symbol or equ named name exists (wantDefined=true for
// ifdef, false for ifndef).
func (p *Parser) definedCheck(name string, wantDefined bool) func(env *ast.Env) (bool, error) {
	fileNum, section := p.fileNum, p.section
	return func(env *ast.Env) (bool, error) {
		exists := p.Syms.EquExists(name) || p.Syms.SymbolExists(name, fileNum, section)
		return exists == wantDefined, nil
	}
}

// buildUnknownChain wraps the remaining branches in nested
// ast.Conditional nodes, innermost (last parsed) first.
func (p *Parser) buildUnknownChain(branches []ifBranch) ast.Command {
	var rest ast.Command
	for i := len(branches) - 1; i >= 0; i-- {
		br := branches[i]
		if br.isElse {
			rest = br.body
			continue
		}
		rest = &ast.Conditional{Expr: br.exprNode, NameCheck: br.nameCheck, IfBody: br.body, ElseBody: rest}
	}
	return rest
}

// constFold attempts to fold n to a literal using only parse-time-safe
// information (no identifiers, no memory position, only Safe built-ins
// that need no runtime file/output state). Anything else conservatively
// reports not-constant, which is always a legal (if more conservative)
// answer per spec.md §4.2.2.
func (p *Parser) constFold(n *expr.Node) (bool, expr.Value) {
	return expr.IsConstExpression(n, parseConstCtx{p})
}

// parseConstCtx is the minimal expr.Context used only to decide whether
// a `.if` condition is Known at parse time. Identifiers and the memory
// position are never foldable here (matching expr.Simplify's own
// treatment of OpIdentifier/OpMemoryPos), and only the handful of Safe
// built-ins that require no file or output state are implemented;
// anything else returns an error, which simplify.go already treats as
// "not constant" rather than a hard failure.
type parseConstCtx struct{ p *Parser }

func (c parseConstCtx) MemoryPos() int64 { return 0 }

func (c parseConstCtx) LookupIdentifier(name string, fileNum, section int) (expr.Value, error) {
	return expr.Invalid, fmt.Errorf("identifier %q is not available for parse-time folding", name)
}

func (c parseConstCtx) InUnknownConditional() bool { return c.p.inUnknownDepth > 0 }

func (c parseConstCtx) CallBuiltin(name string, args []expr.Value, rawArgs []*expr.Node) (expr.Value, error) {
	switch name {
	case "defined":
		if len(rawArgs) != 1 || rawArgs[0].Op != expr.OpIdentifier {
			return expr.Invalid, fmt.Errorf("defined() requires a bare identifier")
		}
		n := rawArgs[0].Name
		exists := c.p.Syms.EquExists(n) || c.p.Syms.SymbolExists(n, rawArgs[0].DefFile, rawArgs[0].DefSection)
		return expr.Int(boolInt(exists)), nil
	case "lo":
		return expr.Int(expr.LoHalf(args[0].AsInt())), nil
	case "hi":
		return expr.Int(expr.HiHalf(args[0].AsInt())), nil
	case "int":
		return expr.Int(int64(args[0].AsFloat())), nil
	case "float":
		return expr.Float(args[0].AsFloat()), nil
	case "abs":
		v := args[0].AsFloat()
		if v < 0 {
			v = -v
		}
		if args[0].Kind == expr.KindFloat {
			return expr.Float(v), nil
		}
		return expr.Int(int64(v)), nil
	case "strlen":
		return expr.Int(int64(len(args[0].S))), nil
	case "version":
		return expr.Str("armips-go"), nil
	case "isarm":
		return expr.Int(boolInt(c.p.Backend != nil && c.p.Backend.Family() == arch.FamilyARM)), nil
	case "isthumb":
		return expr.Int(0), nil
	default:
		return expr.Invalid, fmt.Errorf("%q is not available for parse-time folding", name)
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
