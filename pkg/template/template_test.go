package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolate(t *testing.T) {
	vars := map[string]string{"nome": "Ana", "telefone": "5511999990000", "pedido.id": "42"}

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"plain text", "Olá!", "Olá!"},
		{"single variable", "Olá {{nome}}", "Olá Ana"},
		{"spaces inside braces", "Olá {{ nome }}!", "Olá Ana!"},
		{"repeated", "{{nome}}, {{nome}}", "Ana, Ana"},
		{"dotted name", "Pedido {{pedido.id}}", "Pedido 42"},
		{"var prefix", "Olá {{var.nome}}", "Olá Ana"},
		{"unknown renders empty", "Olá {{apelido}}", "Olá "},
		{"unbalanced braces untouched", "Olá {{nome", "Olá {{nome"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Interpolate(tt.text, vars))
		})
	}
}

func TestInterpolate_NilVars(t *testing.T) {
	assert.Equal(t, "Olá ", Interpolate("Olá {{nome}}", nil))
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"nome", "telefone"}, Names("{{nome}} {{ telefone }} {{var.nome}}"))
	assert.Empty(t, Names("sem variáveis"))
}
