package arbitrator

import "time"

const (
	DefaultLookBack     = 2 * time.Minute
	DefaultTTL          = 10 * time.Minute
	DefaultLease        = 30 * time.Second
	DefaultReadAttempts = 3
	DefaultReadInterval = 100 * time.Millisecond
	DefaultMaxWords     = 6
)

// Messages are the replies sent to the contact. {{summary}} renders the action.
type Messages struct {
	Proposed       string
	Confirmed      string
	Cancelled      string
	AlreadyDone    string
	NothingPending string
	Expired        string
	InProgress     string
	CommitFailed   string
	CancelFailed   string
	Reminder       string
}

func DefaultMessages() Messages {
	return Messages{
		Proposed:       `Posso confirmar? {{summary}}. Responda "confirmar" ou "cancelar".`,
		Confirmed:      "Pronto! Confirmado: {{summary}}.",
		Cancelled:      "Tudo bem, cancelado: {{summary}}.",
		AlreadyDone:    "Isso já está confirmado: {{summary}}.",
		NothingPending: "Não há nada aguardando confirmação no momento.",
		Expired:        "O pedido expirou: {{summary}}. Se quiser, é só pedir de novo.",
		InProgress:     "Já estou confirmando seu pedido, só um instante.",
		CommitFailed:   `Não consegui confirmar agora. Responda "confirmar" para tentar de novo.`,
		CancelFailed:   "Não consegui cancelar agora. Tente novamente em instantes.",
		Reminder:       `Você tem um pedido aguardando confirmação: {{summary}}. Responda "confirmar" ou "cancelar".`,
	}
}

type Config struct {
	// LookBack is how far back committed actions absorb late confirmations and
	// can still be cancelled.
	LookBack time.Duration
	// TTL is how long a proposal waits for an answer.
	TTL time.Duration
	// Lease bounds how long a commit may hold the pending action.
	Lease time.Duration

	ReadAttempts int
	ReadInterval time.Duration

	ConfirmWords []string
	CancelWords  []string
	HedgeWords   []string
	MaxWords     int

	Messages Messages
}

func DefaultConfig() Config {
	return Config{
		LookBack:     DefaultLookBack,
		TTL:          DefaultTTL,
		Lease:        DefaultLease,
		ReadAttempts: DefaultReadAttempts,
		ReadInterval: DefaultReadInterval,
		ConfirmWords: DefaultConfirmWords,
		CancelWords:  DefaultCancelWords,
		HedgeWords:   DefaultHedgeWords,
		MaxWords:     DefaultMaxWords,
		Messages:     DefaultMessages(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.LookBack <= 0 {
		c.LookBack = d.LookBack
	}

	if c.TTL <= 0 {
		c.TTL = d.TTL
	}

	if c.Lease <= 0 {
		c.Lease = d.Lease
	}

	if c.ReadAttempts <= 0 {
		c.ReadAttempts = d.ReadAttempts
	}

	if c.ReadInterval <= 0 {
		c.ReadInterval = d.ReadInterval
	}

	if len(c.ConfirmWords) == 0 {
		c.ConfirmWords = d.ConfirmWords
	}

	if len(c.CancelWords) == 0 {
		c.CancelWords = d.CancelWords
	}

	if c.HedgeWords == nil {
		c.HedgeWords = d.HedgeWords
	}

	if c.MaxWords <= 0 {
		c.MaxWords = d.MaxWords
	}

	if c.Messages == (Messages{}) {
		c.Messages = d.Messages
	}

	return c
}
