package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrDivisionByZero is returned for x/0 and x%0.
var ErrDivisionByZero = errors.New("division by zero")

// MathError reports a domain error such as sqrt(-1).
type MathError struct {
	Msg string
}

func (e *MathError) Error() string { return "math error: " + e.Msg }

// ExpressionError reports a malformed expression.
type ExpressionError struct {
	Pos int
	Msg string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("invalid expression at %d: %s", e.Pos, e.Msg)
}

var calcConstants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

type calcFunc struct {
	minArgs, maxArgs int // maxArgs < 0: variadic
	fn               func(args []float64) (float64, error)
}

var calcFuncs = map[string]calcFunc{
	"abs":   {1, 1, func(a []float64) (float64, error) { return math.Abs(a[0]), nil }},
	"round": {1, 2, roundArgs},
	"min":   {1, -1, func(a []float64) (float64, error) { return fold(a, math.Min), nil }},
	"max":   {1, -1, func(a []float64) (float64, error) { return fold(a, math.Max), nil }},
	"sum": {0, -1, func(a []float64) (float64, error) {
		var s float64
		for _, v := range a {
			s += v
		}
		return s, nil
	}},
	"pow": {2, 2, func(a []float64) (float64, error) { return power(a[0], a[1]) }},
	"sqrt": {1, 1, func(a []float64) (float64, error) {
		if a[0] < 0 {
			return 0, &MathError{Msg: "sqrt of a negative number"}
		}
		return math.Sqrt(a[0]), nil
	}},
	"sin": {1, 1, func(a []float64) (float64, error) { return math.Sin(a[0]), nil }},
	"cos": {1, 1, func(a []float64) (float64, error) { return math.Cos(a[0]), nil }},
	"tan": {1, 1, func(a []float64) (float64, error) { return math.Tan(a[0]), nil }},
	"log": {1, 2, func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, &MathError{Msg: "log of a non-positive number"}
		}
		if len(a) == 1 {
			return math.Log(a[0]), nil
		}
		if a[1] <= 0 || a[1] == 1 {
			return 0, &MathError{Msg: "invalid logarithm base"}
		}
		return math.Log(a[0]) / math.Log(a[1]), nil
	}},
	"log10": {1, 1, func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, &MathError{Msg: "log10 of a non-positive number"}
		}
		return math.Log10(a[0]), nil
	}},
	"ceil":  {1, 1, func(a []float64) (float64, error) { return math.Ceil(a[0]), nil }},
	"floor": {1, 1, func(a []float64) (float64, error) { return math.Floor(a[0]), nil }},
}

func fold(a []float64, f func(x, y float64) float64) float64 {
	acc := a[0]
	for _, v := range a[1:] {
		acc = f(acc, v)
	}
	return acc
}

func roundArgs(a []float64) (float64, error) {
	digits := 0.0
	if len(a) == 2 {
		digits = a[1]
	}
	p := math.Pow(10, math.Trunc(digits))
	return math.RoundToEven(a[0]*p) / p, nil
}

func power(x, y float64) (float64, error) {
	if x == 0 && y < 0 {
		return 0, ErrDivisionByZero
	}
	r := math.Pow(x, y)
	if math.IsNaN(r) {
		return 0, &MathError{Msg: "result is not a real number"}
	}
	return r, nil
}

// Calculate evaluates an arithmetic expression: + - * / % ** with
// parentheses and unary signs, the functions in calcFuncs and the constants
// pi and e. ** binds tighter than unary minus and is right associative.
func Calculate(expression string) (float64, error) {
	src := strings.TrimSpace(expression)
	if src == "" {
		return 0, &ExpressionError{Msg: "expression must be a non-empty string"}
	}
	p := &calcParser{src: src}
	p.next()
	v, err := p.expr()
	if p.err != nil {
		return 0, p.err
	}
	if err != nil {
		return 0, err
	}
	if p.tok.kind != calcEOF {
		return 0, p.errorf("unexpected %q", p.tok.text)
	}
	if math.IsInf(v, 0) {
		return 0, &MathError{Msg: "result overflows"}
	}
	return v, nil
}

type calcKind int

const (
	calcEOF calcKind = iota
	calcNum
	calcIdent
	calcOp
	calcLParen
	calcRParen
	calcComma
)

type calcToken struct {
	kind calcKind
	text string
	num  float64
	pos  int
}

type calcParser struct {
	src string
	pos int
	tok calcToken
	err error
}

func (p *calcParser) errorf(format string, args ...any) error {
	return &ExpressionError{Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

// next advances to the next token; lexing errors surface as p.err.
func (p *calcParser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = calcToken{kind: calcEOF, pos: start}
		return
	}

	c := p.src[p.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		// 科学计数法
		if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
			j := p.pos + 1
			if j < len(p.src) && (p.src[j] == '+' || p.src[j] == '-') {
				j++
			}
			if j < len(p.src) && isDigit(p.src[j]) {
				for j < len(p.src) && isDigit(p.src[j]) {
					j++
				}
				p.pos = j
			}
		}
		text := p.src[start:p.pos]
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.err = &ExpressionError{Pos: start, Msg: fmt.Sprintf("invalid number %q", text)}
			p.tok = calcToken{kind: calcEOF, pos: start}
			return
		}
		p.tok = calcToken{kind: calcNum, text: text, num: n, pos: start}

	case c == '_' || unicode.IsLetter(rune(c)):
		for p.pos < len(p.src) && (p.src[p.pos] == '_' || isDigit(p.src[p.pos]) || unicode.IsLetter(rune(p.src[p.pos]))) {
			p.pos++
		}
		p.tok = calcToken{kind: calcIdent, text: p.src[start:p.pos], pos: start}

	case c == '*' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
		p.pos += 2
		p.tok = calcToken{kind: calcOp, text: "**", pos: start}

	case strings.IndexByte("+-*/%", c) >= 0:
		p.pos++
		p.tok = calcToken{kind: calcOp, text: string(c), pos: start}

	case c == '(':
		p.pos++
		p.tok = calcToken{kind: calcLParen, text: "(", pos: start}
	case c == ')':
		p.pos++
		p.tok = calcToken{kind: calcRParen, text: ")", pos: start}
	case c == ',':
		p.pos++
		p.tok = calcToken{kind: calcComma, text: ",", pos: start}

	default:
		p.err = &ExpressionError{Pos: start, Msg: fmt.Sprintf("invalid character %q", c)}
		p.tok = calcToken{kind: calcEOF, pos: start}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *calcParser) isOp(ops ...string) bool {
	if p.tok.kind != calcOp {
		return false
	}
	for _, op := range ops {
		if p.tok.text == op {
			return true
		}
	}
	return false
}

// expr := term (('+'|'-') term)*
func (p *calcParser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.isOp("+", "-") {
		op := p.tok.text
		p.next()
		right, err := p.term()
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

// term := unary (('*'|'/'|'%') unary)*
func (p *calcParser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.isOp("*", "/", "%") {
		op := p.tok.text
		p.next()
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "*":
			left *= right
		case "/":
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			left /= right
		case "%":
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			// 结果符号与除数一致
			m := math.Mod(left, right)
			if m != 0 && (m < 0) != (right < 0) {
				m += right
			}
			left = m
		}
	}
	return left, nil
}

// unary := ('+'|'-') unary | power
func (p *calcParser) unary() (float64, error) {
	if p.isOp("-", "+") {
		neg := p.tok.text == "-"
		p.next()
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		if neg {
			v = -v
		}
		return v, nil
	}
	return p.power()
}

// power := primary ('**' unary)?
func (p *calcParser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	if p.isOp("**") {
		p.next()
		exp, err := p.unary()
		if err != nil {
			return 0, err
		}
		return power(base, exp)
	}
	return base, nil
}

func (p *calcParser) primary() (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	tok := p.tok
	switch tok.kind {
	case calcNum:
		p.next()
		return tok.num, nil

	case calcLParen:
		p.next()
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.tok.kind != calcRParen {
			return 0, p.errorf("missing closing parenthesis")
		}
		p.next()
		return v, nil

	case calcIdent:
		p.next()
		if p.tok.kind != calcLParen {
			if v, ok := calcConstants[tok.text]; ok {
				return v, nil
			}
			return 0, &ExpressionError{Pos: tok.pos, Msg: fmt.Sprintf("unknown name %q", tok.text)}
		}
		f, ok := calcFuncs[tok.text]
		if !ok {
			return 0, &ExpressionError{Pos: tok.pos, Msg: fmt.Sprintf("unknown function %q", tok.text)}
		}
		p.next()
		args, err := p.args()
		if err != nil {
			return 0, err
		}
		if len(args) < f.minArgs || (f.maxArgs >= 0 && len(args) > f.maxArgs) {
			return 0, &ExpressionError{Pos: tok.pos, Msg: fmt.Sprintf("%s takes %s arguments, got %d", tok.text, arity(f), len(args))}
		}
		return f.fn(args)

	case calcEOF:
		return 0, p.errorf("unexpected end of expression")
	default:
		return 0, p.errorf("unexpected %q", tok.text)
	}
}

// args parses a comma separated list up to and including ')'.
func (p *calcParser) args() ([]float64, error) {
	var args []float64
	if p.tok.kind == calcRParen {
		p.next()
		return args, nil
	}
	for {
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		switch p.tok.kind {
		case calcComma:
			p.next()
		case calcRParen:
			p.next()
			return args, nil
		default:
			return nil, p.errorf("expected ',' or ')'")
		}
	}
}

func arity(f calcFunc) string {
	switch {
	case f.maxArgs < 0:
		return fmt.Sprintf("at least %d", f.minArgs)
	case f.minArgs == f.maxArgs:
		return strconv.Itoa(f.minArgs)
	default:
		return fmt.Sprintf("%d to %d", f.minArgs, f.maxArgs)
	}
}

// FormatNumber renders integral values without a fraction and rounds the
// rest to six decimal places.
func FormatNumber(v float64) any {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return int64(v)
	}
	return math.Round(v*1e6) / 1e6
}
