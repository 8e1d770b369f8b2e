package dsl

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Condition is a compiled branch expression evaluated against state values.
//
// Supported operators: ==, !=, >, <, >=, <=, &&, ||, !
// Literals: numbers, quoted strings, true, false.
// Dot-notation reads nested maps: result.score -> vars["result"]["score"].
// Functions: len(x), words(x), lower(s), upper(s), contains(s, sub).
type Condition struct {
	src  string
	root exprNode
}

// CompileCondition parses src once; the result may be evaluated many times
// and is safe for concurrent use.
func CompileCondition(src string) (*Condition, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty condition")
	}
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.tokens[p.pos].value, p.pos)
	}
	return &Condition{src: src, root: root}, nil
}

// Eval reports whether the condition holds for vars.
func (c *Condition) Eval(vars map[string]any) bool {
	return toBool(c.root.eval(vars))
}

func (c *Condition) String() string { return c.src }

// --- Tokens ---

type tokenKind int

const (
	tkNumber tokenKind = iota
	tkString
	tkIdent // 变量、函数名、true/false
	tkOp
	tkLParen
	tkRParen
	tkComma
)

type token struct {
	kind  tokenKind
	value string
}

var (
	punctuation = map[rune]tokenKind{'(': tkLParen, ')': tkRParen, ',': tkComma}
	pairOps     = []string{"==", "!=", ">=", "<=", "&&", "||"}
)

// lexer splits a condition into tokens. Operators are ASCII, so rune and byte
// offsets agree for them.
type lexer struct {
	src []rune
	pos int
	out []token
}

func tokenize(expr string) ([]token, error) {
	lx := &lexer{src: []rune(expr)}
	for lx.pos < len(lx.src) {
		if err := lx.scan(); err != nil {
			return nil, err
		}
	}
	return lx.out, nil
}

func (lx *lexer) emit(kind tokenKind, value string) {
	lx.out = append(lx.out, token{kind: kind, value: value})
}

func (lx *lexer) scan() error {
	r := lx.src[lx.pos]
	if unicode.IsSpace(r) {
		lx.pos++
		return nil
	}
	if kind, ok := punctuation[r]; ok {
		lx.emit(kind, string(r))
		lx.pos++
		return nil
	}
	if r == '"' || r == '\'' {
		return lx.quoted(r)
	}
	if op := lx.operator(); op != "" {
		lx.emit(tkOp, op)
		lx.pos += len(op)
		return nil
	}
	if isDigit(r) || (r == '-' && lx.signed()) {
		lx.number()
		return nil
	}
	if unicode.IsLetter(r) || r == '_' {
		start := lx.pos
		lx.skip(isIdentPart)
		lx.emit(tkIdent, string(lx.src[start:lx.pos]))
		return nil
	}
	return fmt.Errorf("unexpected character %q at position %d", string(r), lx.pos)
}

func (lx *lexer) operator() string {
	rest := lx.src[lx.pos:]
	if len(rest) >= 2 && slices.Contains(pairOps, string(rest[:2])) {
		return string(rest[:2])
	}
	switch rest[0] {
	case '>', '<', '!':
		return string(rest[0])
	}
	return ""
}

// signed reports whether a '-' at pos starts a negative number, which is only
// the case where an operand is expected.
func (lx *lexer) signed() bool {
	if lx.pos+1 >= len(lx.src) || !isDigit(lx.src[lx.pos+1]) {
		return false
	}
	if len(lx.out) == 0 {
		return true
	}
	switch lx.out[len(lx.out)-1].kind {
	case tkOp, tkLParen, tkComma:
		return true
	}
	return false
}

func (lx *lexer) number() {
	start := lx.pos
	lx.pos++
	lx.skip(isDigit)
	if lx.pos < len(lx.src) && lx.src[lx.pos] == '.' {
		lx.pos++
		lx.skip(isDigit)
	}
	lx.emit(tkNumber, string(lx.src[start:lx.pos]))
}

func (lx *lexer) quoted(quote rune) error {
	start := lx.pos
	var sb strings.Builder
	for lx.pos++; lx.pos < len(lx.src); lx.pos++ {
		switch r := lx.src[lx.pos]; {
		case r == quote:
			lx.pos++
			lx.emit(tkString, sb.String())
			return nil
		case r == '\\' && lx.pos+1 < len(lx.src):
			lx.pos++
			sb.WriteRune(lx.src[lx.pos])
		default:
			sb.WriteRune(r)
		}
	}
	return fmt.Errorf("unterminated string starting at position %d", start)
}

func (lx *lexer) skip(keep func(rune) bool) {
	for lx.pos < len(lx.src) && keep(lx.src[lx.pos]) {
		lx.pos++
	}
}

func isDigit(r rune) bool { return '0' <= r && r <= '9' }

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// --- AST ---

type exprNode interface {
	eval(vars map[string]any) any
}

type literalNode struct{ value any }

func (n literalNode) eval(map[string]any) any { return n.value }

type varNode struct{ path []string }

func (n varNode) eval(vars map[string]any) any {
	var current any = vars
	for _, part := range n.path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = m[part]; !ok {
			return nil
		}
	}
	return current
}

type notNode struct{ x exprNode }

func (n notNode) eval(vars map[string]any) any { return !toBool(n.x.eval(vars)) }

type logicalNode struct {
	and         bool
	left, right exprNode
}

func (n logicalNode) eval(vars map[string]any) any {
	l := toBool(n.left.eval(vars))
	if n.and {
		return l && toBool(n.right.eval(vars))
	}
	return l || toBool(n.right.eval(vars))
}

type compareNode struct {
	op          string
	left, right exprNode
}

func (n compareNode) eval(vars map[string]any) any {
	return compare(n.left.eval(vars), n.op, n.right.eval(vars))
}

type callNode struct {
	fn   exprFunc
	args []exprNode
}

func (n callNode) eval(vars map[string]any) any {
	args := make([]any, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval(vars)
	}
	return n.fn.call(args)
}

type exprFunc struct {
	arity int
	call  func(args []any) any
}

var exprFuncs = map[string]exprFunc{
	"len":      {1, func(a []any) any { return float64(lengthOf(a[0])) }},
	"words":    {1, func(a []any) any { return float64(len(strings.Fields(stringOf(a[0])))) }},
	"lower":    {1, func(a []any) any { return strings.ToLower(stringOf(a[0])) }},
	"upper":    {1, func(a []any) any { return strings.ToUpper(stringOf(a[0])) }},
	"contains": {2, func(a []any) any { return strings.Contains(stringOf(a[0]), stringOf(a[1])) }},
}

// --- Recursive descent parser ---

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *exprParser) peekOp(ops ...string) (string, bool) {
	t := p.peek()
	if t == nil || t.kind != tkOp {
		return "", false
	}
	for _, op := range ops {
		if t.value == op {
			return op, true
		}
	}
	return "", false
}

func (p *exprParser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *exprParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("||"); !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logicalNode{left: left, right: right}
	}
}

func (p *exprParser) parseAnd() (exprNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = logicalNode{and: true, left: left, right: right}
	}
}

func (p *exprParser) parseComparison() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if op, ok := p.peekOp("==", "!=", ">", "<", ">=", "<="); ok {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return compareNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if _, ok := p.peekOp("!"); ok {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	switch t.kind {
	case tkNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.value, err)
		}
		return literalNode{f}, nil

	case tkString:
		p.advance()
		return literalNode{t.value}, nil

	case tkIdent:
		p.advance()
		switch t.value {
		case "true":
			return literalNode{true}, nil
		case "false":
			return literalNode{false}, nil
		}
		if next := p.peek(); next != nil && next.kind == tkLParen {
			return p.parseCall(t.value)
		}
		return varNode{path: strings.Split(t.value, ".")}, nil

	case tkLParen:
		p.advance()
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if next := p.peek(); next == nil || next.kind != tkRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.advance()
		return x, nil

	default:
		return nil, fmt.Errorf("unexpected token %q", t.value)
	}
}

func (p *exprParser) parseCall(name string) (exprNode, error) {
	fn, ok := exprFuncs[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	p.advance() // (

	var args []exprNode
	if next := p.peek(); next != nil && next.kind == tkRParen {
		p.advance()
	} else {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			next := p.peek()
			if next == nil {
				return nil, fmt.Errorf("unterminated call to %s", name)
			}
			p.advance()
			if next.kind == tkRParen {
				break
			}
			if next.kind != tkComma {
				return nil, fmt.Errorf("expected ',' or ')' in call to %s, got %q", name, next.value)
			}
		}
	}
	if len(args) != fn.arity {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", name, fn.arity, len(args))
	}
	return callNode{fn: fn, args: args}, nil
}

// --- Evaluation helpers ---

// compare orders nil below every other value; two nils are equal. Booleans
// only support equality.
func compare(left any, op string, right any) bool {
	c, ordered := order(left, right)
	switch op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	}
	if !ordered {
		return false
	}
	switch op {
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	}
	return false
}

func order(left, right any) (int, bool) {
	switch {
	case left == nil && right == nil:
		return 0, true
	case left == nil:
		return -1, true
	case right == nil:
		return 1, true
	}
	if lf, ok := toFloat64(left); ok {
		if rf, ok := toFloat64(right); ok {
			return cmp.Compare(lf, rf), true
		}
	}
	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			if lb == rb {
				return 0, false
			}
			return 1, false
		}
	}
	return cmp.Compare(stringOf(left), stringOf(right)), true
}

func toBool(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false" && val != "0"
	}
	if f, ok := toFloat64(v); ok {
		return f != 0
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

// toFloat64 accepts every numeric kind and numeric strings.
func toFloat64(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.CanFloat():
		return rv.Float(), true
	}
	return 0, false
}

func stringOf(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func lengthOf(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return utf8.RuneCountInString(val)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return len(stringOf(v))
}
