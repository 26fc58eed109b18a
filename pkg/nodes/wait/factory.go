package wait

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// WaitNodeFactory creates WaitNode instances.
type WaitNodeFactory struct{}

func NewWaitNodeFactory() protocol.NodeFactory {
	return &WaitNodeFactory{}
}

func (f *WaitNodeFactory) Create(_ context.Context, id string, data map[string]any) (protocol.Node, error) {
	return NewWaitNode(id, data)
}

func (f *WaitNodeFactory) ID() string {
	return string(models.NodeTypeWait)
}

func (f *WaitNodeFactory) Name() string {
	return "Wait"
}

func (f *WaitNodeFactory) Description() string {
	return "Pauses the conversation for a number of seconds, minutes or hours before continuing"
}

func (f *WaitNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{
				"type":    "integer",
				"minimum": 0,
			},
			"unit": map[string]any{
				"type":    "string",
				"default": "seconds",
				"examples": []string{"seconds", "minutes", "hours"},
			},
		},
		"required": []string{"duration"},
	}
}
