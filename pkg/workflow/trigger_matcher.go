package workflow

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/textmatch"
)

// TriggerMatcher selects the workflow an inbound message starts.
type TriggerMatcher struct {
	logger *slog.Logger
}

func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// Match returns the active workflow whose trigger phrase occurs in text.
// The longest phrase wins; equal lengths are decided by the smaller id.
func (tm *TriggerMatcher) Match(text string, workflows []*models.Workflow) *models.Workflow {
	var (
		best       *models.Workflow
		bestLength int
	)

	for _, wf := range workflows {
		if !wf.Active || strings.TrimSpace(wf.Trigger) == "" {
			continue
		}

		if !textmatch.Contains(text, wf.Trigger) {
			continue
		}

		length := utf8.RuneCountInString(textmatch.Fold(wf.Trigger))
		if best == nil || length > bestLength || (length == bestLength && wf.ID < best.ID) {
			best = wf
			bestLength = length
		}
	}

	if best != nil {
		tm.logger.Debug("Matched workflow trigger", "workflow_id", best.ID, "trigger", best.Trigger)
	}

	return best
}
