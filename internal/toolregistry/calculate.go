package toolregistry

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"reasoner/internal/domain/agent/ports"
)

// NewCalculateTool returns the "calculate" tool, which evaluates arithmetic
// expressions with + - * / % ^, parentheses and a few math functions.
func NewCalculateTool() Tool {
	return Func{
		ToolName: "calculate",
		Desc:     "Evaluate an arithmetic expression, e.g. 2*(3+4)^2 or sqrt(16).",
		Fn: func(_ context.Context, input string) (ports.ToolResult, error) {
			value, err := Evaluate(input)
			if err != nil {
				return ports.ToolResult{}, err
			}
			return ports.ToolResult{Content: formatNumber(value)}, nil
		},
	}
}

// Evaluate computes the value of expr.
func Evaluate(expr string) (float64, error) {
	expr = strings.NewReplacer("×", "*", "÷", "/", "**", "^").Replace(expr)
	p := &exprParser{src: []rune(expr)}
	p.next()
	if p.tok.kind == tokEOF {
		return 0, fmt.Errorf("expression is empty")
	}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokEOF {
		return 0, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return value, nil
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

type exprParser struct {
	src []rune
	pos int
	tok token
	err error
}

func (p *exprParser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}
	r := p.src[p.pos]
	switch {
	case unicode.IsDigit(r) || r == '.':
		for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		// exponent suffix: 1e3, 2.5E-4
		if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
			save := p.pos
			p.pos++
			if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
				p.pos++
			}
			if p.pos < len(p.src) && unicode.IsDigit(p.src[p.pos]) {
				for p.pos < len(p.src) && unicode.IsDigit(p.src[p.pos]) {
					p.pos++
				}
			} else {
				p.pos = save
			}
		}
		text := string(p.src[start:p.pos])
		num, err := strconv.ParseFloat(text, 64)
		if err != nil && p.err == nil {
			p.err = fmt.Errorf("invalid number %q", text)
		}
		p.tok = token{kind: tokNumber, text: text, num: num, pos: start}
	case unicode.IsLetter(r):
		for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos])) {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: strings.ToLower(string(p.src[start:p.pos])), pos: start}
	default:
		p.pos++
		p.tok = token{kind: tokOp, text: string(r), pos: start}
	}
}

func (p *exprParser) isOp(ops ...string) bool {
	if p.tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if p.tok.text == op {
			return true
		}
	}
	return false
}

// expr := term { ('+'|'-') term }
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.isOp("+", "-") {
		op := p.tok.text
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

// term := unary { ('*'|'/'|'%') unary }
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for p.isOp("*", "/", "%") {
		op := p.tok.text
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "*":
			left *= right
		case "/":
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case "%":
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left = math.Mod(left, right)
		}
	}
	return left, nil
}

// unary := ('-'|'+') unary | power
func (p *exprParser) parseUnary() (float64, error) {
	if p.isOp("-", "+") {
		neg := p.tok.text == "-"
		p.next()
		v, err := p.parseUnary()
		if neg {
			v = -v
		}
		return v, err
	}
	return p.parsePower()
}

// power := primary [ '^' unary ], right associative
func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	if p.isOp("^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parsePrimary() (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	switch p.tok.kind {
	case tokNumber:
		v := p.tok.num
		p.next()
		return v, p.err
	case tokIdent:
		name := p.tok.text
		p.next()
		if c, ok := constants[name]; ok && !p.isOp("(") {
			return c, nil
		}
		return p.parseCall(name)
	case tokOp:
		if p.tok.text == "(" {
			p.next()
			v, err := p.parseExpr()
			if err != nil {
				return 0, err
			}
			if !p.isOp(")") {
				return 0, fmt.Errorf("missing closing parenthesis")
			}
			p.next()
			return v, nil
		}
		return 0, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	default:
		return 0, fmt.Errorf("unexpected end of expression")
	}
}

func (p *exprParser) parseCall(name string) (float64, error) {
	fn, ok := functions[name]
	if !ok {
		return 0, fmt.Errorf("unknown function %q", name)
	}
	if !p.isOp("(") {
		return 0, fmt.Errorf("%s requires arguments in parentheses", name)
	}
	p.next()
	var args []float64
	for !p.isOp(")") {
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		args = append(args, v)
		if p.isOp(",") {
			p.next()
			continue
		}
		if !p.isOp(")") {
			return 0, fmt.Errorf("missing closing parenthesis after %s arguments", name)
		}
	}
	p.next()
	if fn.arity >= 0 && len(args) != fn.arity {
		return 0, fmt.Errorf("%s takes %d argument(s), got %d", name, fn.arity, len(args))
	}
	if len(args) == 0 {
		return 0, fmt.Errorf("%s requires at least one argument", name)
	}
	return fn.eval(args)
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

type mathFunc struct {
	arity int // -1 for variadic
	eval  func(args []float64) (float64, error)
}

func unary(f func(float64) float64) mathFunc {
	return mathFunc{arity: 1, eval: func(a []float64) (float64, error) { return f(a[0]), nil }}
}

var functions = map[string]mathFunc{
	"sqrt": {arity: 1, eval: func(a []float64) (float64, error) {
		if a[0] < 0 {
			return 0, fmt.Errorf("sqrt of negative number")
		}
		return math.Sqrt(a[0]), nil
	}},
	"abs":   unary(math.Abs),
	"round": unary(math.Round),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"log": {arity: 1, eval: func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, fmt.Errorf("log of non-positive number")
		}
		return math.Log(a[0]), nil
	}},
	"pow": {arity: 2, eval: func(a []float64) (float64, error) { return math.Pow(a[0], a[1]), nil }},
	"min": {arity: -1, eval: func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}},
	"max": {arity: -1, eval: func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}},
}
