// Package wait provides the node that holds a run for a fixed duration.
package wait

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

var units = map[string]time.Duration{
	"":         time.Second,
	"s":        time.Second,
	"second":   time.Second,
	"seconds":  time.Second,
	"segundos": time.Second,
	"m":        time.Minute,
	"minute":   time.Minute,
	"minutes":  time.Minute,
	"minutos":  time.Minute,
	"h":        time.Hour,
	"hour":     time.Hour,
	"hours":    time.Hour,
	"horas":    time.Hour,
}

// WaitNode blocks the current dispatch; the queue and other contacts keep running.
type WaitNode struct {
	id       string
	duration time.Duration
}

func NewWaitNode(id string, data map[string]any) (*WaitNode, error) {
	payload, err := models.DecodeData[models.WaitData](data)
	if err != nil {
		return nil, fmt.Errorf("wait node %s: %w", id, err)
	}

	unit, ok := units[strings.ToLower(strings.TrimSpace(payload.Unit))]
	if !ok {
		return nil, fmt.Errorf("wait node %s: unknown unit %q", id, payload.Unit)
	}

	if payload.Duration < 0 {
		return nil, fmt.Errorf("wait node %s: negative duration %d", id, payload.Duration)
	}

	return &WaitNode{id: id, duration: time.Duration(payload.Duration) * unit}, nil
}

func (n *WaitNode) ID() string {
	return n.id
}

func (n *WaitNode) Type() models.NodeType {
	return models.NodeTypeWait
}

// Duration is how long the node holds the run.
func (n *WaitNode) Duration() time.Duration {
	return n.duration
}

func (n *WaitNode) Execute(ctx context.Context, env *protocol.Env, _ *models.ExecutionContext) (protocol.Outcome, error) {
	err := env.Wait(ctx, n.duration)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("wait node %s interrupted: %w", n.id, err)
	}

	return protocol.Continue(""), nil
}
