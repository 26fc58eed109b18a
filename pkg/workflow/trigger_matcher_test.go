package workflow

import (
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerMatcher_Match(t *testing.T) {
	matcher := NewTriggerMatcher(discardLogger())

	workflows := []*models.Workflow{
		testutil.NewWorkflow("b-greeting", "oi").Build(),
		testutil.NewWorkflow("a-greeting", "oi").Build(),
		testutil.NewWorkflow("booking", "quero agendar").Build(),
		testutil.NewWorkflow("price", "preço").Build(),
		testutil.NewWorkflow("disabled", "agendar consulta hoje").Inactive().Build(),
		testutil.NewWorkflow("blank", "  ").Build(),
	}

	tests := []struct {
		text     string
		expected string
	}{
		{"Oi, tudo bem?", "a-greeting"},
		{"oi, QUERO AGENDAR uma consulta", "booking"},
		{"qual o preco?", "price"},
		{"agendar consulta hoje", ""},
		{"bom dia", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			match := matcher.Match(tt.text, workflows)
			if tt.expected == "" {
				assert.Nil(t, match)

				return
			}

			require.NotNil(t, match)
			assert.Equal(t, tt.expected, match.ID)
		})
	}
}
