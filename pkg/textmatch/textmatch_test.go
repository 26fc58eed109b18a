package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Não", "nao"},
		{"  CONFIRMAÇÃO  ", "confirmacao"},
		{"Olá   mundo", "ola mundo"},
		{"já", "ja"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fold(tt.input))
		})
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("Oi, tudo bem?", "OI"))
	assert.True(t, Contains("quero uma promoção", "promocao"))
	assert.False(t, Contains("tchau", "oi"))
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"sim", "confirmo"}, Words("Sim, confirmo!"))
	assert.Empty(t, Words("  ?! "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "curto", Truncate("curto", 20))
	assert.Equal(t, "Quero agendar uma c…", Truncate("Quero agendar uma consulta", 20))
	assert.Len(t, []rune(Truncate("Quero agendar uma consulta", 20)), 20)
	assert.Equal(t, "sem limite", Truncate("sem limite", 0))
}
