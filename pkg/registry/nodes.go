package registry

import (
	"github.com/dukex/chatflow/pkg/nodes/aistep"
	"github.com/dukex/chatflow/pkg/nodes/branch"
	"github.com/dukex/chatflow/pkg/nodes/closing"
	"github.com/dukex/chatflow/pkg/nodes/message"
	"github.com/dukex/chatflow/pkg/nodes/question"
	"github.com/dukex/chatflow/pkg/nodes/trigger"
	"github.com/dukex/chatflow/pkg/nodes/wait"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
// labelLimit caps interactive choice titles; zero uses the question default.
func (r *Registry) RegisterDefaultNodes(labelLimit int) {
	if labelLimit <= 0 {
		labelLimit = question.DefaultLabelLimit
	}

	r.RegisterNode(trigger.NewTriggerNodeFactory())
	r.RegisterNode(message.NewMessageNodeFactory())
	r.RegisterNode(wait.NewWaitNodeFactory())
	r.RegisterNode(question.NewQuestionNodeFactory(labelLimit))
	r.RegisterNode(branch.NewBranchNodeFactory())
	r.RegisterNode(aistep.NewAIStepNodeFactory())

	// Terminal nodes
	r.RegisterNode(closing.NewHandoffNodeFactory())
	r.RegisterNode(closing.NewCloseNodeFactory())
}
