// Package condition implements the closed predicate language of branch nodes.
//
//	expr   := and { "or" and }
//	and    := clause { "and" clause }
//	clause := ["not"] field op [literal]
//	field  := "reply" | "var." name
//
// Comparisons ignore case and accents. Ordering operators compare numbers and
// are false when either side is not numeric.
package condition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/chatflow/pkg/textmatch"
)

var ErrSyntax = errors.New("invalid condition")

// Operator is a comparison supported by a clause.
type Operator string

const (
	OpEqual      Operator = "=="
	OpNotEqual   Operator = "!="
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpGreater    Operator = ">"
	OpGreaterEq  Operator = ">="
	OpLess       Operator = "<"
	OpLessEq     Operator = "<="
	OpEmpty      Operator = "empty"
	OpNotEmpty   Operator = "not_empty"
)

var operatorAliases = map[string]Operator{
	"==":           OpEqual,
	"=":            OpEqual,
	"equals":       OpEqual,
	"eq":           OpEqual,
	"!=":           OpNotEqual,
	"not_equals":   OpNotEqual,
	"ne":           OpNotEqual,
	"contains":     OpContains,
	"starts_with":  OpStartsWith,
	"ends_with":    OpEndsWith,
	">":            OpGreater,
	"gt":           OpGreater,
	"greater_than": OpGreater,
	">=":           OpGreaterEq,
	"gte":          OpGreaterEq,
	"<":            OpLess,
	"lt":           OpLess,
	"less_than":    OpLess,
	"<=":           OpLessEq,
	"lte":          OpLessEq,
	"empty":        OpEmpty,
	"is_empty":     OpEmpty,
	"not_empty":    OpNotEmpty,
	"is_not_empty": OpNotEmpty,
}

// ParseOperator resolves an operator or one of its aliases.
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]

	return op, ok
}

func (o Operator) unary() bool {
	return o == OpEmpty || o == OpNotEmpty
}

// Values supplies the data a condition is evaluated against.
type Values struct {
	Reply     string
	Variables map[string]string
}

func (v Values) lookup(field string) string {
	if field == "reply" {
		return v.Reply
	}

	return v.Variables[strings.TrimPrefix(field, "var.")]
}

// Clause is a single field comparison.
type Clause struct {
	Negate   bool
	Field    string
	Operator Operator
	Literal  string
}

// Expression is a disjunction of conjunctions of clauses.
type Expression struct {
	source string
	any    [][]Clause
}

func (e *Expression) String() string {
	return e.source
}

// Evaluate reports whether the expression holds for values.
func (e *Expression) Evaluate(values Values) bool {
	for _, all := range e.any {
		if allHold(all, values) {
			return true
		}
	}

	return false
}

func allHold(clauses []Clause, values Values) bool {
	for _, clause := range clauses {
		if !clause.holds(values) {
			return false
		}
	}

	return true
}

func (c Clause) holds(values Values) bool {
	result := compare(c.Operator, values.lookup(c.Field), c.Literal)
	if c.Negate {
		return !result
	}

	return result
}

func compare(op Operator, actual, literal string) bool {
	a, b := textmatch.Fold(actual), textmatch.Fold(literal)

	switch op {
	case OpEqual:
		if x, y, ok := numbers(actual, literal); ok {
			return x == y
		}

		return a == b
	case OpNotEqual:
		if x, y, ok := numbers(actual, literal); ok {
			return x != y
		}

		return a != b
	case OpContains:
		return strings.Contains(a, b)
	case OpStartsWith:
		return strings.HasPrefix(a, b)
	case OpEndsWith:
		return strings.HasSuffix(a, b)
	case OpEmpty:
		return a == ""
	case OpNotEmpty:
		return a != ""
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		x, y, ok := numbers(actual, literal)
		if !ok {
			return false
		}

		switch op {
		case OpGreater:
			return x > y
		case OpGreaterEq:
			return x >= y
		case OpLess:
			return x < y
		default:
			return x <= y
		}
	}

	return false
}

func numbers(a, b string) (float64, float64, bool) {
	x, errA := parseNumber(a)
	y, errB := parseNumber(b)

	return x, y, errA == nil && errB == nil
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

// FromParts builds a single clause expression from the structured branch form.
// An empty field means the reply.
func FromParts(field, operator, value string) (*Expression, error) {
	if field == "" {
		field = "reply"
	}

	if !validField(field) {
		return nil, fmt.Errorf("%w: unknown field %q", ErrSyntax, field)
	}

	op, ok := ParseOperator(operator)
	if !ok {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, operator)
	}

	clause := Clause{Field: field, Operator: op, Literal: value}

	return &Expression{
		source: strings.TrimSpace(fmt.Sprintf("%s %s %q", field, op, value)),
		any:    [][]Clause{{clause}},
	}, nil
}

func validField(field string) bool {
	if field == "reply" {
		return true
	}

	name, ok := strings.CutPrefix(field, "var.")

	return ok && name != ""
}
