package arbitrator

import (
	"slices"

	"github.com/dukex/chatflow/pkg/textmatch"
)

// Intent is what a short inbound message says about a pending action.
type Intent int

const (
	IntentNone Intent = iota
	IntentConfirm
	IntentCancel
)

func (i Intent) String() string {
	switch i {
	case IntentConfirm:
		return "confirm"
	case IntentCancel:
		return "cancel"
	default:
		return "none"
	}
}

var (
	DefaultConfirmWords = []string{"confirmar", "confirmo", "confirma", "confirmado", "sim", "ok", "okay", "yes", "confirm"}
	DefaultCancelWords  = []string{"cancelar", "cancela", "cancelo", "cancel", "não", "nao"}
	// DefaultHedgeWords mark an undecided reply such as "não sei ainda".
	DefaultHedgeWords = []string{"talvez", "sei", "acho", "ainda", "depois", "pensar", "pensando", "dúvida", "maybe"}
)

// Classifier maps messages to intents by keyword.
type Classifier struct {
	confirm  []string
	cancel   []string
	hedge    []string
	maxWords int
}

// NewClassifier folds the keyword lists once. Messages longer than maxWords are
// never keywords.
func NewClassifier(confirm, cancel, hedge []string, maxWords int) *Classifier {
	return &Classifier{
		confirm:  foldAll(confirm),
		cancel:   foldAll(cancel),
		hedge:    foldAll(hedge),
		maxWords: maxWords,
	}
}

// Classify returns an intent only when text is unambiguous: it carries words of
// one kind, and no hedge. Mixed or undecided replies are IntentNone so the
// contact is asked again instead of having the action committed or discarded.
func (c *Classifier) Classify(text string) Intent {
	words := textmatch.Words(text)
	if len(words) == 0 || (c.maxWords > 0 && len(words) > c.maxWords) {
		return IntentNone
	}

	var confirm, cancel bool

	for _, word := range words {
		switch {
		case slices.Contains(c.hedge, word):
			return IntentNone
		case slices.Contains(c.confirm, word):
			confirm = true
		case slices.Contains(c.cancel, word):
			cancel = true
		}
	}

	switch {
	case confirm && !cancel:
		return IntentConfirm
	case cancel && !confirm:
		return IntentCancel
	default:
		return IntentNone
	}
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, word := range words {
		out = append(out, textmatch.Fold(word))
	}

	return out
}
