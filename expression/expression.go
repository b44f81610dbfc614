// Package expression evaluates the arithmetic/conditional formulas used by
// the pricing engine. Formulas are parsed once into an AST and evaluated
// against a map of named decimal variables; there is no dynamic code
// evaluation anywhere in this package.
//
// Grammar (precedence low to high):
//
//	expr    = or [ "?" expr ":" expr ]
//	or      = and { ("||" | "|") and }
//	and     = cmp { ("&&" | "&") cmp }
//	cmp     = sum [ ("==" | "=" | "!=" | "<>" | "<" | "<=" | ">" | ">=") sum ]
//	sum     = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = [ "-" | "!" ] primary
//	primary = number | identifier | "(" expr ")"
//
// Comparisons and logical operators produce booleans, everything else
// produces decimals; mixing the two is an evaluation error.
package expression

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseError reports an expression that failed to compile. Any character
// outside the grammar rejects the whole expression.
type ParseError struct {
	Src     string
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at offset %d: %s", e.Src, e.Pos, e.Message)
}

// EvalError reports a type mismatch, division by zero, or a non-numeric
// final result.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return e.Message
}

// Expr is a compiled expression, safe for concurrent evaluation.
type Expr struct {
	src  string
	root node
}

func (e *Expr) String() string {
	return e.src
}

// Variables returns the distinct identifiers referenced by the expression.
func (e *Expr) Variables() []string {
	seen := make(map[string]struct{})
	var names []string
	collectVars(e.root, seen, &names)
	return names
}

func collectVars(n node, seen map[string]struct{}, names *[]string) {
	switch t := n.(type) {
	case *varNode:
		if _, ok := seen[t.name]; !ok {
			seen[t.name] = struct{}{}
			*names = append(*names, t.name)
		}
	case *unaryNode:
		collectVars(t.operand, seen, names)
	case *binaryNode:
		collectVars(t.left, seen, names)
		collectVars(t.right, seen, names)
	case *condNode:
		collectVars(t.cond, seen, names)
		collectVars(t.then, seen, names)
		collectVars(t.els, seen, names)
	}
}

// Eval evaluates the expression to a decimal. Identifiers missing from vars
// evaluate to zero; each miss is reported through onMissing (may be nil).
// A boolean final result is an EvalError, callers decide how to degrade.
func (e *Expr) Eval(vars map[string]decimal.Decimal, onMissing func(name string)) (decimal.Decimal, error) {
	v, err := e.root.eval(vars, onMissing)
	if err != nil {
		return decimal.Zero, err
	}
	if v.isBool {
		return decimal.Zero, &EvalError{Message: "expression result is boolean, not numeric"}
	}
	return v.num, nil
}

// Parse compiles src. The returned Expr is immutable.
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, &ParseError{Src: src, Pos: p.peek().pos, Message: "unexpected trailing input"}
	}
	return &Expr{src: src, root: root}, nil
}

/* values */

type value struct {
	num    decimal.Decimal
	truth  bool
	isBool bool
}

func numValue(d decimal.Decimal) value {
	return value{num: d}
}

func boolValue(b bool) value {
	return value{truth: b, isBool: true}
}

/* AST */

type node interface {
	eval(vars map[string]decimal.Decimal, onMissing func(string)) (value, error)
}

type numberNode struct {
	val decimal.Decimal
}

func (n *numberNode) eval(map[string]decimal.Decimal, func(string)) (value, error) {
	return numValue(n.val), nil
}

type varNode struct {
	name string
}

func (n *varNode) eval(vars map[string]decimal.Decimal, onMissing func(string)) (value, error) {
	if v, ok := vars[n.name]; ok {
		return numValue(v), nil
	}
	if onMissing != nil {
		onMissing(n.name)
	}
	return numValue(decimal.Zero), nil
}

type unaryNode struct {
	op      string
	operand node
}

func (n *unaryNode) eval(vars map[string]decimal.Decimal, onMissing func(string)) (value, error) {
	v, err := n.operand.eval(vars, onMissing)
	if err != nil {
		return value{}, err
	}
	switch n.op {
	case "-":
		if v.isBool {
			return value{}, &EvalError{Message: "cannot negate a boolean"}
		}
		return numValue(v.num.Neg()), nil
	case "!":
		if !v.isBool {
			return value{}, &EvalError{Message: "'!' requires a boolean operand"}
		}
		return boolValue(!v.truth), nil
	}
	return value{}, &EvalError{Message: "unknown unary operator " + n.op}
}

type binaryNode struct {
	op    string
	left  node
	right node
}

func (n *binaryNode) eval(vars map[string]decimal.Decimal, onMissing func(string)) (value, error) {
	l, err := n.left.eval(vars, onMissing)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(vars, onMissing)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case "&&", "||":
		if !l.isBool || !r.isBool {
			return value{}, &EvalError{Message: "'" + n.op + "' requires boolean operands"}
		}
		if n.op == "&&" {
			return boolValue(l.truth && r.truth), nil
		}
		return boolValue(l.truth || r.truth), nil
	}

	if l.isBool || r.isBool {
		return value{}, &EvalError{Message: "'" + n.op + "' requires numeric operands"}
	}

	switch n.op {
	case "+":
		return numValue(l.num.Add(r.num)), nil
	case "-":
		return numValue(l.num.Sub(r.num)), nil
	case "*":
		return numValue(l.num.Mul(r.num)), nil
	case "/":
		if r.num.IsZero() {
			return value{}, &EvalError{Message: "division by zero"}
		}
		return numValue(l.num.Div(r.num)), nil
	case "==":
		return boolValue(l.num.Equal(r.num)), nil
	case "!=":
		return boolValue(!l.num.Equal(r.num)), nil
	case "<":
		return boolValue(l.num.LessThan(r.num)), nil
	case "<=":
		return boolValue(l.num.LessThanOrEqual(r.num)), nil
	case ">":
		return boolValue(l.num.GreaterThan(r.num)), nil
	case ">=":
		return boolValue(l.num.GreaterThanOrEqual(r.num)), nil
	}
	return value{}, &EvalError{Message: "unknown operator " + n.op}
}

type condNode struct {
	cond node
	then node
	els  node
}

func (n *condNode) eval(vars map[string]decimal.Decimal, onMissing func(string)) (value, error) {
	c, err := n.cond.eval(vars, onMissing)
	if err != nil {
		return value{}, err
	}
	if !c.isBool {
		return value{}, &EvalError{Message: "ternary condition must be boolean"}
	}
	if c.truth {
		return n.then.eval(vars, onMissing)
	}
	return n.els.eval(vars, onMissing)
}

/* lexer */

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isDigit(r byte) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentPart(r byte) bool {
	return isIdentStart(r) || isDigit(r)
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			text := src[start:i]
			if strings.Count(text, ".") > 1 {
				return nil, &ParseError{Src: src, Pos: start, Message: "malformed number " + text}
			}
			toks = append(toks, token{kind: tokNumber, text: text, pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			start := i
			two := ""
			if i+1 < len(src) {
				two = src[i : i+2]
			}
			switch two {
			case "&&", "||", "==", "!=", "<=", ">=", "<>":
				op := two
				if op == "<>" {
					op = "!="
				}
				toks = append(toks, token{kind: tokOp, text: op, pos: start})
				i += 2
				continue
			}
			switch c {
			case '+', '-', '*', '/', '(', ')', '?', ':', '<', '>', '!':
				toks = append(toks, token{kind: tokOp, text: string(c), pos: start})
			case '=':
				toks = append(toks, token{kind: tokOp, text: "==", pos: start})
			case '&':
				toks = append(toks, token{kind: tokOp, text: "&&", pos: start})
			case '|':
				toks = append(toks, token{kind: tokOp, text: "||", pos: start})
			default:
				return nil, &ParseError{Src: src, Pos: start, Message: fmt.Sprintf("illegal character %q", c)}
			}
			i++
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

/* parser */

type parser struct {
	src  string
	toks []token
	cur  int
}

func (p *parser) peek() token {
	return p.toks[p.cur]
}

func (p *parser) next() token {
	t := p.toks[p.cur]
	if t.kind != tokEOF {
		p.cur++
	}
	return t
}

func (p *parser) atEnd() bool {
	return p.peek().kind == tokEOF
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.next()
			return op, true
		}
	}
	return "", false
}

func (p *parser) expectOp(op string) error {
	if _, ok := p.acceptOp(op); !ok {
		return &ParseError{Src: p.src, Pos: p.peek().pos, Message: "expected " + op}
	}
	return nil
}

func (p *parser) parseExpr() (node, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOp("?"); !ok {
		return cond, nil
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &condNode{cond: cond, then: then, els: els}, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return &binaryNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.acceptOp("-", "!"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, &ParseError{Src: p.src, Pos: t.pos, Message: "malformed number " + t.text}
		}
		return &numberNode{val: d}, nil
	case tokIdent:
		p.next()
		return &varNode{name: t.text}, nil
	case tokOp:
		if t.text == "(" {
			p.next()
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, &ParseError{Src: p.src, Pos: t.pos, Message: "expected number, identifier or '('"}
}
