package rules

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"hvt/domain/core"
)

// LogicSAT checks a candidate variable assignment such as "x=True y=False"
// against every constraint in metadata["constraints"]. Constraints use
// And/Or/Not/Xor/Implies/Equivalent calls or the operators & | ^ ~ >> <<.
type LogicSAT struct{}

// NewLogicSAT creates the boolean constraint satisfaction rule
func NewLogicSAT() *LogicSAT {
	return &LogicSAT{}
}

func (r *LogicSAT) Name() string { return NameLogicSAT }

func (r *LogicSAT) Check(ctx context.Context, candidate string, metadata map[string]any) (bool, map[string]any, error) {
	constraints, ok := constraintList(metadata[MetaConstraints])
	if !ok || len(constraints) == 0 {
		return false, nil, core.NewRuleError(r.Name(), "metadata requires a non-empty list of 'constraints'")
	}

	assignment, err := ParseAssignment(candidate)
	if err != nil {
		return false, map[string]any{"error": err.Error()}, nil
	}

	satisfied := true
	for _, src := range constraints {
		expr, err := ParseFormula(src)
		if err != nil {
			return false, map[string]any{"error": err.Error()}, nil
		}
		value, err := expr.eval(assignment)
		if err != nil {
			return false, map[string]any{"error": err.Error()}, nil
		}
		if !value {
			satisfied = false
		}
	}
	return satisfied, map[string]any{"assignment": assignment}, nil
}

func constraintList(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprint(item)
			}
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// ParseAssignment reads name=value tokens separated by spaces or commas.
// Values true, 1 and t (any case) are true; everything else is false.
func ParseAssignment(text string) (map[string]bool, error) {
	assignment := map[string]bool{}
	for _, tok := range strings.Fields(strings.ReplaceAll(text, ",", " ")) {
		name, value, found := strings.Cut(tok, "=")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "t":
			assignment[strings.TrimSpace(name)] = true
		default:
			assignment[strings.TrimSpace(name)] = false
		}
	}
	if len(assignment) == 0 {
		return nil, fmt.Errorf("no variable assignments found in candidate")
	}
	return assignment, nil
}

// Formula is a parsed boolean constraint
type Formula interface {
	eval(env map[string]bool) (bool, error)
}

// EvalFormula evaluates f under an assignment; unassigned variables are an error
func EvalFormula(f Formula, env map[string]bool) (bool, error) {
	return f.eval(env)
}

type boolLit bool

func (b boolLit) eval(map[string]bool) (bool, error) { return bool(b), nil }

type boolVar string

func (v boolVar) eval(env map[string]bool) (bool, error) {
	val, ok := env[string(v)]
	if !ok {
		return false, fmt.Errorf("variable %s has no assignment", string(v))
	}
	return val, nil
}

type boolOp struct {
	op   string
	args []Formula
}

func (o boolOp) eval(env map[string]bool) (bool, error) {
	vals := make([]bool, len(o.args))
	for i, arg := range o.args {
		v, err := arg.eval(env)
		if err != nil {
			return false, err
		}
		vals[i] = v
	}
	switch o.op {
	case "not":
		return !vals[0], nil
	case "and":
		for _, v := range vals {
			if !v {
				return false, nil
			}
		}
		return true, nil
	case "or":
		for _, v := range vals {
			if v {
				return true, nil
			}
		}
		return false, nil
	case "xor":
		odd := false
		for _, v := range vals {
			odd = odd != v
		}
		return odd, nil
	case "implies":
		return !vals[0] || vals[1], nil
	case "equivalent":
		for _, v := range vals[1:] {
			if v != vals[0] {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown operator %s", o.op)
	}
}

var formulaFuncs = map[string]struct {
	op      string
	minArgs int
	maxArgs int
}{
	"And":        {"and", 1, -1},
	"Or":         {"or", 1, -1},
	"Not":        {"not", 1, 1},
	"Xor":        {"xor", 1, -1},
	"Implies":    {"implies", 2, 2},
	"Equivalent": {"equivalent", 1, -1},
}

// ParseFormula parses a boolean constraint. Operator precedence from loosest
// to tightest is | then ^ then & then >> << then ~.
func ParseFormula(src string) (Formula, error) {
	tokens, err := tokenizeFormula(src)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty constraint")
	}
	p := &formulaParser{tokens: tokens}
	f, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected %q in constraint %q", p.tokens[p.pos], src)
	}
	return f, nil
}

func tokenizeFormula(src string) ([]string, error) {
	var tokens []string
	runes := []rune(src)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, string(runes[start:i]))
		case (c == '>' || c == '<') && i+1 < len(runes) && runes[i+1] == c:
			tokens = append(tokens, string(runes[i:i+2]))
			i += 2
		case strings.ContainsRune("&|^~(),", c):
			tokens = append(tokens, string(c))
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q in constraint", c)
		}
	}
	return tokens, nil
}

type formulaParser struct {
	tokens []string
	pos    int
}

func (p *formulaParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *formulaParser) binary(ops map[string]string, next func() (Formula, error)) (Formula, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.peek()]
		if !ok {
			return left, nil
		}
		tok := p.peek()
		p.pos++
		right, err := next()
		if err != nil {
			return nil, err
		}
		if tok == "<<" {
			left, right = right, left
		}
		left = boolOp{op: op, args: []Formula{left, right}}
	}
}

func (p *formulaParser) parseOr() (Formula, error) {
	return p.binary(map[string]string{"|": "or"}, p.parseXor)
}

func (p *formulaParser) parseXor() (Formula, error) {
	return p.binary(map[string]string{"^": "xor"}, p.parseAnd)
}

func (p *formulaParser) parseAnd() (Formula, error) {
	return p.binary(map[string]string{"&": "and"}, p.parseImplies)
}

func (p *formulaParser) parseImplies() (Formula, error) {
	return p.binary(map[string]string{">>": "implies", "<<": "implies"}, p.parseNot)
}

func (p *formulaParser) parseNot() (Formula, error) {
	if p.peek() == "~" {
		p.pos++
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return boolOp{op: "not", args: []Formula{operand}}, nil
	}
	return p.parseAtom()
}

func (p *formulaParser) parseAtom() (Formula, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of constraint")
	case tok == "(":
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("missing ')' in constraint")
		}
		p.pos++
		return inner, nil
	case tok == "True" || tok == "true":
		p.pos++
		return boolLit(true), nil
	case tok == "False" || tok == "false":
		p.pos++
		return boolLit(false), nil
	}

	r := []rune(tok)[0]
	if !unicode.IsLetter(r) && r != '_' {
		return nil, fmt.Errorf("unexpected %q in constraint", tok)
	}
	p.pos++

	fn, isFunc := formulaFuncs[tok]
	if !isFunc || p.peek() != "(" {
		return boolVar(tok), nil
	}
	p.pos++
	var args []Formula
	for p.peek() != ")" {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek() == "," {
			p.pos++
			continue
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("expected ',' or ')' in %s(...)", tok)
		}
	}
	p.pos++
	if len(args) < fn.minArgs || (fn.maxArgs > 0 && len(args) > fn.maxArgs) {
		return nil, fmt.Errorf("%s takes %d..%d arguments, got %d", tok, fn.minArgs, fn.maxArgs, len(args))
	}
	return boolOp{op: fn.op, args: args}, nil
}
