package symbolic

import (
	"fmt"
	"strconv"
	"unicode"
)

// Parse parses an infix expression such as "m*l^2*sin(theta) - 0.5*x".
//
// Grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = [ "-" | "+" ] power
//	power  = atom [ ("^" | "**") unary ]
//	atom   = number | ident | ident "(" expr ")" | "(" expr ")"
func Parse(s string) (Expr, error) {
	p := &parser{src: []rune(s)}
	p.next()
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
	return e, nil
}

// ParseVector parses every string in ss.
func ParseVector(ss []string) (Vector, error) {
	v := make(Vector, len(ss))
	for i, s := range ss {
		e, err := Parse(s)
		if err != nil {
			return nil, err
		}
		v[i] = e
	}
	return v, nil
}

// ParseMatrix parses a row-major nested slice of strings.
func ParseMatrix(rows [][]string) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, fmt.Errorf("%w: ragged row %d", ErrParse, i)
		}
		for j, s := range row {
			e, err := Parse(s)
			if err != nil {
				return nil, err
			}
			m.Set(i, j, e)
		}
	}
	return m, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  float64
}

type parser struct {
	src []rune
	pos int
	tok token
	err error
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: at %d: %s", ErrParse, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF}
		return
	}
	r := p.src[p.pos]
	switch {
	case unicode.IsDigit(r) || r == '.':
		start := p.pos
		for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		// exponent part
		if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
			q := p.pos + 1
			if q < len(p.src) && (p.src[q] == '+' || p.src[q] == '-') {
				q++
			}
			if q < len(p.src) && unicode.IsDigit(p.src[q]) {
				p.pos = q
				for p.pos < len(p.src) && unicode.IsDigit(p.src[p.pos]) {
					p.pos++
				}
			}
		}
		text := string(p.src[start:p.pos])
		v, err := strconv.ParseFloat(text, 64)
		if err != nil && p.err == nil {
			p.err = p.errorf("bad number %q", text)
		}
		p.tok = token{kind: tokNum, text: text, num: v}
	case unicode.IsLetter(r) || r == '_':
		start := p.pos
		for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: string(p.src[start:p.pos])}
	case r == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "("}
	case r == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")"}
	case r == '*' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
		p.pos += 2
		p.tok = token{kind: tokOp, text: "^"}
	case r == '+' || r == '-' || r == '*' || r == '/' || r == '^':
		p.pos++
		p.tok = token{kind: tokOp, text: string(r)}
	default:
		if p.err == nil {
			p.err = p.errorf("unexpected character %q", r)
		}
		p.pos = len(p.src)
		p.tok = token{kind: tokEOF}
	}
}

func (p *parser) isOp(ops ...string) bool {
	if p.tok.kind != tokOp {
		return false
	}
	for _, o := range ops {
		if p.tok.text == o {
			return true
		}
	}
	return false
}

func (p *parser) expr() (Expr, error) {
	e, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.tok.text
		p.next()
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			e = Sum(e, t)
		} else {
			e = Subtract(e, t)
		}
	}
	return e, p.err
}

func (p *parser) term() (Expr, error) {
	e, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/") {
		op := p.tok.text
		p.next()
		f, err := p.unary()
		if err != nil {
			return nil, err
		}
		if op == "*" {
			e = Product(e, f)
		} else {
			e = Div(e, f)
		}
	}
	return e, nil
}

func (p *parser) unary() (Expr, error) {
	if p.isOp("-") {
		p.next()
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		return Neg(e), nil
	}
	if p.isOp("+") {
		p.next()
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (Expr, error) {
	base, err := p.atom()
	if err != nil {
		return nil, err
	}
	if p.isOp("^") {
		p.next()
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return Pow(base, exp), nil
	}
	return base, nil
}

func (p *parser) atom() (Expr, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch p.tok.kind {
	case tokNum:
		v := p.tok.num
		p.next()
		return Const(v), nil
	case tokIdent:
		name := p.tok.text
		p.next()
		if p.tok.kind != tokLParen {
			return NewVar(name), nil
		}
		if _, ok := unaries[name]; !ok {
			return nil, p.errorf("unknown function %q", name)
		}
		p.next()
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("missing ) after %s argument", name)
		}
		p.next()
		return apply(name, arg), nil
	case tokLParen:
		p.next()
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("missing )")
		}
		p.next()
		return e, nil
	case tokEOF:
		return nil, p.errorf("unexpected end of input")
	}
	return nil, p.errorf("unexpected %q", p.tok.text)
}
