package mappings

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

// ErrFormula reports a formula that cannot be parsed or evaluated.
var ErrFormula = errors.New("mappings: invalid amount formula")

// Formula is a parsed amount expression. The grammar is closed: numeric
// literals, payload field references (dotted paths), + - * /, unary minus
// and parentheses.
type Formula struct {
	src  string
	root node
}

type node interface {
	eval(p shared.Payload) (decimal.Decimal, error)
}

type numberNode struct{ value decimal.Decimal }

type fieldNode struct{ path string }

type negNode struct{ operand node }

type binaryNode struct {
	op          byte
	left, right node
}

func (n numberNode) eval(shared.Payload) (decimal.Decimal, error) { return n.value, nil }

func (n fieldNode) eval(p shared.Payload) (decimal.Decimal, error) {
	v, ok := p.Decimal(n.path)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: field %q missing or not numeric", ErrFormula, n.path)
	}
	return v, nil
}

func (n negNode) eval(p shared.Payload) (decimal.Decimal, error) {
	v, err := n.operand.eval(p)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v.Neg(), nil
}

func (n binaryNode) eval(p shared.Payload) (decimal.Decimal, error) {
	left, err := n.left.eval(p)
	if err != nil {
		return decimal.Decimal{}, err
	}
	right, err := n.right.eval(p)
	if err != nil {
		return decimal.Decimal{}, err
	}
	switch n.op {
	case '+':
		return left.Add(right), nil
	case '-':
		return left.Sub(right), nil
	case '*':
		return left.Mul(right), nil
	case '/':
		if right.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("%w: division by zero", ErrFormula)
		}
		return left.Div(right), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: operator %q", ErrFormula, n.op)
}

// ParseFormula compiles src.
func ParseFormula(src string) (*Formula, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: unexpected %q", ErrFormula, p.toks[p.pos].text)
	}
	return &Formula{src: src, root: root}, nil
}

// Evaluate computes the formula against payload.
func (f *Formula) Evaluate(payload shared.Payload) (decimal.Decimal, error) {
	return f.root.eval(payload)
}

func (f *Formula) String() string { return f.src }

// EvaluateFormula parses and evaluates src in one step.
func EvaluateFormula(src string, payload shared.Payload) (decimal.Decimal, error) {
	f, err := ParseFormula(src)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return f.Evaluate(payload)
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokField
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[start:i])})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			if strings.HasSuffix(text, ".") || strings.Contains(text, "..") {
				return nil, fmt.Errorf("%w: bad field %q", ErrFormula, text)
			}
			toks = append(toks, token{kind: tokField, text: text})
		case strings.ContainsRune("+-*/", r):
			toks = append(toks, token{kind: tokOp, text: string(r)})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrFormula, r)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrFormula)
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peekOp(ops string) (byte, bool) {
	if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokOp {
		return 0, false
	}
	op := p.toks[p.pos].text[0]
	return op, strings.IndexByte(ops, op) >= 0
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("+-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

// term := unary (('*' | '/') unary)*
func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("*/")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	if _, ok := p.peekOp("-"); ok {
		p.pos++
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negNode{operand: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	if p.pos >= len(p.toks) {
		return nil, fmt.Errorf("%w: unexpected end", ErrFormula)
	}
	tok := p.toks[p.pos]
	p.pos++
	switch tok.kind {
	case tokNumber:
		v, err := decimal.NewFromString(tok.text)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrFormula, tok.text)
		}
		return numberNode{value: v}, nil
	case tokField:
		return fieldNode{path: tok.text}, nil
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return nil, fmt.Errorf("%w: missing )", ErrFormula)
		}
		p.pos++
		return inner, nil
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrFormula, tok.text)
}
