package condition

import (
	"fmt"
	"strings"
	"unicode"
)

type token struct {
	text   string
	quoted bool
	pos    int
}

func (t token) keyword(word string) bool {
	return !t.quoted && strings.EqualFold(t.text, word)
}

const symbolChars = "=!<>"

func tokenize(input string) ([]token, error) {
	var tokens []token

	src := []rune(input)

	for i := 0; i < len(src); {
		r := src[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"' || r == '\'':
			quote := r
			start := i
			i++

			var b strings.Builder

			for i < len(src) && src[i] != quote {
				if src[i] == '\\' && i+1 < len(src) {
					i++
				}

				b.WriteRune(src[i])
				i++
			}

			if i >= len(src) {
				return nil, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, start)
			}

			i++

			tokens = append(tokens, token{text: b.String(), quoted: true, pos: start})
		case strings.ContainsRune(symbolChars, r):
			start := i
			for i < len(src) && strings.ContainsRune(symbolChars, src[i]) {
				i++
			}

			tokens = append(tokens, token{text: string(src[start:i]), pos: start})
		default:
			start := i
			for i < len(src) && !unicode.IsSpace(src[i]) && !strings.ContainsRune(symbolChars+`"'`, src[i]) {
				i++
			}

			tokens = append(tokens, token{text: string(src[start:i]), pos: start})
		}
	}

	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

// Parse compiles a condition string.
func Parse(input string) (*Expression, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty condition", ErrSyntax)
	}

	p := &parser{tokens: tokens}

	expr := &Expression{source: strings.TrimSpace(input)}

	for {
		all, err := p.conjunction()
		if err != nil {
			return nil, err
		}

		expr.any = append(expr.any, all)

		if p.done() {
			return expr, nil
		}

		next := p.next()
		if !next.keyword("or") {
			return nil, fmt.Errorf("%w: expected 'and' or 'or' at %d, got %q", ErrSyntax, next.pos, next.text)
		}
	}
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() (token, bool) {
	if p.done() {
		return token{}, false
	}

	return p.tokens[p.pos], true
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++

	return t
}

func (p *parser) conjunction() ([]Clause, error) {
	var clauses []Clause

	for {
		clause, err := p.clause()
		if err != nil {
			return nil, err
		}

		clauses = append(clauses, clause)

		t, ok := p.peek()
		if !ok || !t.keyword("and") {
			return clauses, nil
		}

		p.next()
	}
}

func (p *parser) clause() (Clause, error) {
	var clause Clause

	t, ok := p.peek()
	if !ok {
		return clause, fmt.Errorf("%w: expected a field at end of input", ErrSyntax)
	}

	if t.keyword("not") {
		clause.Negate = true

		p.next()

		t, ok = p.peek()
		if !ok {
			return clause, fmt.Errorf("%w: expected a field after 'not'", ErrSyntax)
		}
	}

	p.next()

	field := strings.ToLower(t.text)
	if t.quoted || !validField(field) {
		return clause, fmt.Errorf("%w: unknown field %q at %d", ErrSyntax, t.text, t.pos)
	}

	clause.Field = field

	t, ok = p.peek()
	if !ok {
		return clause, fmt.Errorf("%w: expected an operator after %q", ErrSyntax, field)
	}

	op, known := ParseOperator(t.text)
	if t.quoted || !known {
		return clause, fmt.Errorf("%w: unknown operator %q at %d", ErrSyntax, t.text, t.pos)
	}

	p.next()

	clause.Operator = op

	if op.unary() {
		return clause, nil
	}

	t, ok = p.peek()
	if !ok {
		return clause, fmt.Errorf("%w: operator %q needs a value", ErrSyntax, op)
	}

	p.next()

	clause.Literal = t.text

	return clause, nil
}
