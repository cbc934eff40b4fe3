package rules

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"hvt/domain/core"
)

// samplePoints feed variables when comparing expressions numerically.
// Variable i at point j takes samplePoints[(3i+j) % len].
var samplePoints = []float64{0.7, 1.3, -0.9, 2.1, -1.7, 3.3, 0.31, -2.6, 1.9, -0.45, 4.2, 0.05}

const (
	comparePoints  = 8
	equivTolerance = 1e-9
)

// ExpressionEquivalence checks that the candidate expression equals
// metadata["reference_expression"] for every variable assignment sampled.
// Unparsable input fails the check with an "error" diagnostic.
type ExpressionEquivalence struct{}

// NewExpressionEquivalence creates the expression equivalence rule
func NewExpressionEquivalence() *ExpressionEquivalence {
	return &ExpressionEquivalence{}
}

func (r *ExpressionEquivalence) Name() string { return NameExpressionEquivalence }

func (r *ExpressionEquivalence) Check(ctx context.Context, candidate string, metadata map[string]any) (bool, map[string]any, error) {
	reference := strings.TrimSpace(stringField(metadata, MetaReferenceExpression))
	if reference == "" {
		return false, nil, core.NewRuleError(r.Name(), "metadata requires 'reference_expression'")
	}

	candExpr, err := ParseExpression(candidate)
	if err != nil {
		return false, map[string]any{"error": fmt.Sprintf("candidate: %v", err)}, nil
	}
	refExpr, err := ParseExpression(reference)
	if err != nil {
		return false, map[string]any{"error": fmt.Sprintf("reference: %v", err)}, nil
	}

	equal, diff, compared := Equivalent(candExpr, refExpr)
	diag := map[string]any{
		"candidate_simplified": candExpr.String(),
		"reference_simplified": refExpr.String(),
		"difference":           formatFloat(diff),
		"points_compared":      compared,
	}
	if compared == 0 {
		diag["error"] = "no sample point where both expressions are defined"
		return false, diag, nil
	}
	return equal, diag, nil
}

// Equivalent evaluates both expressions over the union of their variables at
// deterministic sample points. It reports equality, the largest absolute
// difference and how many points were comparable.
func Equivalent(a, b Expr) (bool, float64, int) {
	vars := map[string]struct{}{}
	a.collectVars(vars)
	b.collectVars(vars)
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	maxDiff := 0.0
	compared := 0
	equal := true
	env := make(map[string]float64, len(names))
	for j := 0; j < comparePoints; j++ {
		for i, name := range names {
			env[name] = samplePoints[(3*i+j)%len(samplePoints)]
		}
		va, vb := a.eval(env), b.eval(env)
		if !isFinite(va) || !isFinite(vb) {
			continue
		}
		compared++
		d := math.Abs(va - vb)
		maxDiff = math.Max(maxDiff, d)
		scale := math.Max(1, math.Max(math.Abs(va), math.Abs(vb)))
		if d > equivTolerance*scale {
			equal = false
		}
	}
	return equal && compared > 0, maxDiff, compared
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Expr is a parsed arithmetic expression
type Expr interface {
	eval(env map[string]float64) float64
	collectVars(into map[string]struct{})
	prec() int
	String() string
}

// Eval evaluates e with the given variable values; unbound variables are NaN
func Eval(e Expr, env map[string]float64) float64 {
	return e.eval(env)
}

const (
	precAdd = iota + 1
	precMul
	precUnary
	precPow
	precAtom
)

type numberExpr struct{ value float64 }

func (n numberExpr) eval(map[string]float64) float64 { return n.value }
func (n numberExpr) collectVars(map[string]struct{})  {}
func (n numberExpr) prec() int                        { return precAtom }
func (n numberExpr) String() string                   { return formatFloat(n.value) }

type varExpr struct{ name string }

func (v varExpr) eval(env map[string]float64) float64 {
	if x, ok := env[v.name]; ok {
		return x
	}
	return math.NaN()
}
func (v varExpr) collectVars(into map[string]struct{}) { into[v.name] = struct{}{} }
func (v varExpr) prec() int                            { return precAtom }
func (v varExpr) String() string                       { return v.name }

type constExpr struct {
	name  string
	value float64
}

func (c constExpr) eval(map[string]float64) float64 { return c.value }
func (c constExpr) collectVars(map[string]struct{})  {}
func (c constExpr) prec() int                        { return precAtom }
func (c constExpr) String() string                   { return c.name }

type negExpr struct{ operand Expr }

func (n negExpr) eval(env map[string]float64) float64 { return -n.operand.eval(env) }
func (n negExpr) collectVars(into map[string]struct{}) { n.operand.collectVars(into) }
func (n negExpr) prec() int                            { return precUnary }
func (n negExpr) String() string                       { return "-" + wrap(n.operand, precUnary) }

type binaryExpr struct {
	op          byte
	left, right Expr
}

func (b binaryExpr) eval(env map[string]float64) float64 {
	l, r := b.left.eval(env), b.right.eval(env)
	switch b.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	case '/':
		return l / r
	default:
		return math.Pow(l, r)
	}
}

func (b binaryExpr) collectVars(into map[string]struct{}) {
	b.left.collectVars(into)
	b.right.collectVars(into)
}

func (b binaryExpr) prec() int {
	switch b.op {
	case '+', '-':
		return precAdd
	case '*', '/':
		return precMul
	default:
		return precPow
	}
}

func (b binaryExpr) String() string {
	p := b.prec()
	if b.op == '^' {
		// right associative
		return wrap(b.left, p+1) + "**" + wrap(b.right, p)
	}
	return wrap(b.left, p) + " " + string(b.op) + " " + wrap(b.right, p+1)
}

type callExpr struct {
	fn   string
	arg  Expr
	impl func(float64) float64
}

func (c callExpr) eval(env map[string]float64) float64 { return c.impl(c.arg.eval(env)) }
func (c callExpr) collectVars(into map[string]struct{}) { c.arg.collectVars(into) }
func (c callExpr) prec() int                            { return precAtom }
func (c callExpr) String() string                       { return c.fn + "(" + c.arg.String() + ")" }

func wrap(e Expr, min int) string {
	if e.prec() < min {
		return "(" + e.String() + ")"
	}
	return e.String()
}

var functions = map[string]func(float64) float64{
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"exp":  math.Exp,
	"log":  math.Log,
	"ln":   math.Log,
	"sqrt": math.Sqrt,
	"abs":  math.Abs,
}

var constants = map[string]float64{
	"pi": math.Pi,
	"E":  math.E,
}

// ParseExpression parses arithmetic with + - * / ^ **, parentheses, unary
// signs, named variables, the functions sin cos tan exp log ln sqrt abs and
// implicit multiplication such as 2x or 3(x+1)
func ParseExpression(src string) (Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	p := &exprParser{tokens: tokens}
	e, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("unexpected %q at position %d", p.peek().text, p.peek().pos)
	}
	return e, nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsDigit(c) || (c == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, string(runes[start:i]), start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{tokIdent, string(runes[start:i]), start})
		case c == '*' && i+1 < len(runes) && runes[i+1] == '*':
			tokens = append(tokens, token{tokOp, "^", i})
			i += 2
		case strings.ContainsRune("+-*/^", c):
			tokens = append(tokens, token{tokOp, string(c), i})
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	return tokens, nil
}

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) done() bool { return p.pos >= len(p.tokens) }

func (p *exprParser) peek() token {
	if p.done() {
		return token{kind: -1, text: "end of input", pos: -1}
	}
	return p.tokens[p.pos]
}

func (p *exprParser) isOp(ops string) bool {
	t := p.peek()
	return t.kind == tokOp && strings.Contains(ops, t.text)
}

func (p *exprParser) parseSum() (Expr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.isOp("+-") {
		op := p.tokens[p.pos].text[0]
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseProduct() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op byte
		switch t := p.peek(); {
		case p.isOp("*/"):
			op = t.text[0]
			p.pos++
		case t.kind == tokNumber || t.kind == tokIdent || t.kind == tokLParen:
			op = '*'
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op, left: left, right: right}
	}
}

func (p *exprParser) parseUnary() (Expr, error) {
	if p.isOp("+-") {
		neg := p.tokens[p.pos].text == "-"
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if neg {
			return negExpr{operand: operand}, nil
		}
		return operand, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (Expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.isOp("^") {
		p.pos++
		exponent, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binaryExpr{op: '^', left: base, right: exponent}, nil
	}
	return base, nil
}

func (p *exprParser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.pos++
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.text, t.pos)
		}
		return numberExpr{value: v}, nil

	case tokIdent:
		p.pos++
		if impl, ok := functions[t.text]; ok && p.peek().kind == tokLParen {
			p.pos++
			arg, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			if p.peek().kind != tokRParen {
				return nil, fmt.Errorf("missing ')' after %s argument", t.text)
			}
			p.pos++
			return callExpr{fn: t.text, arg: arg, impl: impl}, nil
		}
		if v, ok := constants[t.text]; ok {
			return constExpr{name: t.text, value: v}, nil
		}
		return varExpr{name: t.text}, nil

	case tokLParen:
		p.pos++
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing ')' opened at position %d", t.pos)
		}
		p.pos++
		return inner, nil

	default:
		return nil, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
}
