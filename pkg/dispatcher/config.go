package dispatcher

import "time"

const (
	DefaultDedupeTTL      = 10 * time.Minute
	DefaultDisplayNameTTL = time.Hour
	DefaultFallbackError  = "Desculpe, não consegui responder agora. Pode repetir em instantes?"
)

// FallbackConfig configures the assistant that answers messages no workflow
// handles.
type FallbackConfig struct {
	Enabled bool
	// SystemPrompt may reference {{nome}} and {{telefone}}.
	SystemPrompt string
	// ErrorMessage is sent when generation fails; empty sends nothing.
	ErrorMessage string
	// OwnerID identifies proposals made by the assistant.
	OwnerID string
}

type Config struct {
	// DedupeTTL is how long an inbound message id is remembered.
	DedupeTTL time.Duration
	// DisplayNameTTL is how long a contact display name is cached.
	DisplayNameTTL time.Duration

	Fallback FallbackConfig
}

func DefaultConfig() Config {
	return Config{
		DedupeTTL:      DefaultDedupeTTL,
		DisplayNameTTL: DefaultDisplayNameTTL,
		Fallback: FallbackConfig{
			ErrorMessage: DefaultFallbackError,
			OwnerID:      "assistant",
		},
	}
}

func (c Config) withDefaults() Config {
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = DefaultDedupeTTL
	}

	if c.DisplayNameTTL <= 0 {
		c.DisplayNameTTL = DefaultDisplayNameTTL
	}

	if c.Fallback.OwnerID == "" {
		c.Fallback.OwnerID = "assistant"
	}

	return c
}
