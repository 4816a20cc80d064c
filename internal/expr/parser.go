package expr

import (
	"fmt"
	"strings"

	"armips/internal/token"
)

// Site carries the file/section tagging that gets stamped onto every
// Identifier leaf the parser creates, per spec.md §3.
type Site struct {
	FileNum int
	Section int
}

// Parser builds expression trees from a token.Stream using precedence
// climbing, grounded on the teacher's debugger/expr_parser.go.
type Parser struct {
	s    *token.Stream
	site Site
}

func NewParser(s *token.Stream, site Site) *Parser {
	return &Parser{s: s, site: site}
}

// precedence table, highest number binds tightest. Mirrors spec.md §4.3's
// precedence list (unary above everything, ternary lowest).
var binPrec = map[token.Kind]int{
	token.Star: 10, token.Slash: 10, token.Percent: 10,
	token.Plus: 9, token.Minus: 9,
	token.Shl: 8, token.Shr: 8,
	token.Less: 7, token.LessEq: 7, token.Greater: 7, token.GreaterEq: 7,
	token.Eq: 6, token.NotEq: 6,
	token.Amp:      5,
	token.Caret:    4,
	token.Pipe:     3,
	token.AmpAmp:   2,
	token.PipePipe: 1,
}

var binOp = map[token.Kind]Op{
	token.Star: OpMul, token.Slash: OpDiv, token.Percent: OpMod,
	token.Plus: OpAdd, token.Minus: OpSub,
	token.Shl: OpShl, token.Shr: OpShr,
	token.Less: OpLt, token.LessEq: OpLe, token.Greater: OpGt, token.GreaterEq: OpGe,
	token.Eq: OpEq, token.NotEq: OpNe,
	token.Amp: OpAnd, token.Caret: OpXor, token.Pipe: OpOr,
	token.AmpAmp: OpLAnd, token.PipePipe: OpLOr,
}

// Parse parses a full expression, including the lowest-precedence ternary.
func (p *Parser) Parse() (*Node, error) {
	return p.parseTernary()
}

func (p *Parser) parseTernary() (*Node, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.s.Peek(0).Kind != token.Question {
		return cond, nil
	}
	p.s.Eat() // ?
	thenExpr, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.s.Peek(0).Kind != token.Colon {
		return nil, fmt.Errorf("expected ':' in ternary expression")
	}
	p.s.Eat() // :
	elseExpr, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &Node{Op: OpTernary, Children: []*Node{cond, thenExpr, elseExpr}}, nil
}

func (p *Parser) parseBinary(minPrec int) (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.s.Peek(0)
		prec, ok := binPrec[tok.Kind]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.s.Eat()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = bin(binOp[tok.Kind], left, right)
	}
}

func (p *Parser) parseUnary() (*Node, error) {
	tok := p.s.Peek(0)
	switch tok.Kind {
	case token.Plus:
		p.s.Eat()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return un(OpPos, inner), nil
	case token.Minus:
		p.s.Eat()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return un(OpNeg, inner), nil
	case token.Tilde:
		p.s.Eat()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return un(OpBitNot, inner), nil
	case token.Not:
		p.s.Eat()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return un(OpLNot, inner), nil
	case token.Degree:
		p.s.Eat()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return un(OpToString, inner), nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (*Node, error) {
	tok := p.s.Peek(0)
	switch tok.Kind {
	case token.Integer:
		p.s.Eat()
		return lit(Int(tok.IntVal)), nil
	case token.Float:
		p.s.Eat()
		return lit(Float(tok.FloatVal)), nil
	case token.String:
		p.s.Eat()
		return lit(Str(tok.StrVal)), nil
	case token.LParen:
		p.s.Eat()
		inner, err := p.Parse()
		if err != nil {
			return nil, err
		}
		if p.s.Peek(0).Kind != token.RParen {
			return nil, fmt.Errorf("expected ')'")
		}
		p.s.Eat()
		return inner, nil
	case token.Identifier:
		if strings.ToLower(tok.Text) == "." {
			p.s.Eat()
			return &Node{Op: OpMemoryPos}, nil
		}
		return p.parseIdentifierOrCall()
	default:
		return nil, fmt.Errorf("unexpected token %s in expression", tok.Kind)
	}
}

func (p *Parser) parseIdentifierOrCall() (*Node, error) {
	tok := p.s.Eat()
	if p.s.Peek(0).Kind == token.LParen {
		p.s.Eat() // (
		var args []*Node
		if p.s.Peek(0).Kind != token.RParen {
			for {
				arg, err := p.Parse()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.s.Peek(0).Kind == token.Comma {
					p.s.Eat()
					continue
				}
				break
			}
		}
		if p.s.Peek(0).Kind != token.RParen {
			return nil, fmt.Errorf("expected ')' after call arguments")
		}
		p.s.Eat()
		return &Node{Op: OpCall, FuncName: strings.ToLower(tok.Text), Args: args}, nil
	}
	return &Node{Op: OpIdentifier, Name: tok.Text, DefFile: p.site.FileNum, DefSection: p.site.Section}, nil
}
