package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Evaluate(t *testing.T) {
	values := Values{
		Reply:     "Sim, quero agendar",
		Variables: map[string]string{"idade": "42", "cidade": "São Paulo", "vazio": ""},
	}

	tests := []struct {
		name      string
		condition string
		expected  bool
	}{
		{"equal ignores case and accents", `var.cidade == "sao paulo"`, true},
		{"not equal", `var.cidade != "Rio"`, true},
		{"contains", `reply contains agendar`, true},
		{"contains is accent insensitive", `reply contains "SÍM"`, true},
		{"starts with", `reply starts_with sim`, true},
		{"ends with", `reply ends_with "agendar"`, true},
		{"greater than", `var.idade > 18`, true},
		{"greater or equal", `var.idade >= 42`, true},
		{"less than", `var.idade < 18`, false},
		{"less or equal decimal comma", `var.idade <= 42,5`, true},
		{"numeric equality", `var.idade == 42.0`, true},
		{"ordering on text is false", `reply > 10`, false},
		{"empty", `var.vazio empty`, true},
		{"missing variable is empty", `var.nada empty`, true},
		{"not empty", `reply not_empty`, true},
		{"negation", `not reply contains cancelar`, true},
		{"and", `reply contains sim and var.idade > 40`, true},
		{"and short circuits false", `reply contains sim and var.idade > 50`, false},
		{"or", `reply == nao or var.idade > 40`, true},
		{"and binds tighter than or", `reply == nao and var.idade > 40 or var.cidade == "sao paulo"`, true},
		{"single quotes", `var.cidade == 'São Paulo'`, true},
		{"glued operator", `var.idade>=42`, true},
		{"alias operator", `var.idade gte 42`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.condition)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, expr.Evaluate(values))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		condition string
	}{
		{"empty", ""},
		{"unknown field", `answer == sim`},
		{"var without name", `var. == sim`},
		{"unknown operator", `reply matches sim`},
		{"missing literal", `reply ==`},
		{"missing operator", `reply`},
		{"dangling and", `reply == sim and`},
		{"unterminated string", `reply == "sim`},
		{"junk between clauses", `reply == sim reply == nao`},
		{"host code", `process.exit(1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.condition)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestFromParts(t *testing.T) {
	expr, err := FromParts("", "equals", "Sim")
	require.NoError(t, err)
	assert.True(t, expr.Evaluate(Values{Reply: "sim"}))
	assert.False(t, expr.Evaluate(Values{Reply: "não"}))

	expr, err = FromParts("var.score", "greater_than", "7")
	require.NoError(t, err)
	assert.True(t, expr.Evaluate(Values{Variables: map[string]string{"score": "8"}}))

	_, err = FromParts("reply", "like", "x")
	require.ErrorIs(t, err, ErrSyntax)

	_, err = FromParts("user", "==", "x")
	require.ErrorIs(t, err, ErrSyntax)
}

func TestParseOperator(t *testing.T) {
	op, ok := ParseOperator(" Not_Empty ")
	assert.True(t, ok)
	assert.Equal(t, OpNotEmpty, op)

	_, ok = ParseOperator("~=")
	assert.False(t, ok)
}
