package ddbtest

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// predicate is a compiled condition or key condition expression.
type predicate func(item map[string]types.AttributeValue) bool

// compile parses the subset of the DynamoDB expression grammar that the store emits:
// comparisons, attribute_exists, attribute_not_exists, begins_with, AND, OR, NOT and parentheses.
func compile(expr string, names map[string]string, values map[string]types.AttributeValue) (predicate, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, names: names, values: values}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("unexpected token %q in %q", p.peek(), expr)
	}
	return pred, nil
}

func tokenize(s string) ([]string, error) {
	var toks []string
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(' || c == ')' || c == ',' || c == '=':
			toks = append(toks, string(c))
			i++
		case c == '<' || c == '>':
			if i+1 < len(s) && (s[i+1] == '=' || (c == '<' && s[i+1] == '>')) {
				toks = append(toks, s[i:i+2])
				i += 2
			} else {
				toks = append(toks, string(c))
				i++
			}
		case c == '#' || c == ':' || c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c):
			j := i + 1
			for j < len(s) && (s[j] == '_' || s[j] == '.' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q in %q", c, s)
		}
	}
	return toks, nil
}

type parser struct {
	toks   []string
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(tok string) error {
	if got := p.next(); got != tok {
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *parser) parseOr() (predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for strings.EqualFold(p.peek(), "OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(item map[string]types.AttributeValue) bool { return l(item) || right(item) }
	}
	return left, nil
}

func (p *parser) parseAnd() (predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for strings.EqualFold(p.peek(), "AND") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(item map[string]types.AttributeValue) bool { return l(item) && right(item) }
	}
	return left, nil
}

func (p *parser) parseUnary() (predicate, error) {
	if strings.EqualFold(p.peek(), "NOT") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return func(item map[string]types.AttributeValue) bool { return !inner(item) }, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (predicate, error) {
	tok := p.peek()
	switch {
	case tok == "(":
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return inner, p.expect(")")
	case tok == "attribute_exists" || tok == "attribute_not_exists":
		p.next()
		if err := p.expect("("); err != nil {
			return nil, err
		}
		name, err := p.path()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		want := tok == "attribute_exists"
		return func(item map[string]types.AttributeValue) bool {
			_, ok := item[name]
			return ok == want
		}, nil
	case tok == "begins_with":
		p.next()
		if err := p.expect("("); err != nil {
			return nil, err
		}
		left, err := p.operand()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		right, err := p.operand()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return func(item map[string]types.AttributeValue) bool {
			l, lok := left(item).(*types.AttributeValueMemberS)
			r, rok := right(item).(*types.AttributeValueMemberS)
			return lok && rok && strings.HasPrefix(l.Value, r.Value)
		}, nil
	}

	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	op := p.next()
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return func(item map[string]types.AttributeValue) bool {
		c, ok := compare(left(item), right(item))
		if !ok {
			return op == "<>"
		}
		switch op {
		case "=":
			return c == 0
		case "<>":
			return c != 0
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		case ">=":
			return c >= 0
		}
		return false
	}, nil
}

// path resolves an attribute name token.
func (p *parser) path() (string, error) {
	tok := p.next()
	if strings.HasPrefix(tok, "#") {
		name, ok := p.names[tok]
		if !ok {
			return "", fmt.Errorf("undefined attribute name %s", tok)
		}
		return name, nil
	}
	if tok == "" || strings.HasPrefix(tok, ":") {
		return "", fmt.Errorf("expected attribute name, got %q", tok)
	}
	return tok, nil
}

type operandFn func(item map[string]types.AttributeValue) types.AttributeValue

func (p *parser) operand() (operandFn, error) {
	tok := p.peek()
	if strings.HasPrefix(tok, ":") {
		p.next()
		v, ok := p.values[tok]
		if !ok {
			return nil, fmt.Errorf("undefined attribute value %s", tok)
		}
		return func(map[string]types.AttributeValue) types.AttributeValue { return v }, nil
	}
	name, err := p.path()
	if err != nil {
		return nil, err
	}
	return func(item map[string]types.AttributeValue) types.AttributeValue { return item[name] }, nil
}

// compare orders two scalar attribute values of the same type.
func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok || av.Value != bv.Value {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}
