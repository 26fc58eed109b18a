package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOutbox_SendsInOrder(t *testing.T) {
	key := models.ConversationKey{InstanceID: "inst", ContactID: "5511999990001"}

	var sent []string

	channel := &mocks.MockChannel{}
	channel.On("Send", mock.Anything, key, mock.AnythingOfType("models.OutboundMessage")).
		Run(func(args mock.Arguments) {
			sent = append(sent, args.Get(2).(models.OutboundMessage).Text)
		}).
		Return(nil)

	outbox := NewOutbox(newTestQueue(t), channel)

	receipts := []*Receipt{
		outbox.Send(key, models.TextMessage("um")),
		outbox.Send(key, models.TextMessage("dois")),
		outbox.Send(key, models.TextMessage("três")),
	}

	require.NoError(t, WaitAll(context.Background(), receipts))
	assert.Equal(t, []string{"um", "dois", "três"}, sent)
	channel.AssertNumberOfCalls(t, "Send", 3)
}

func TestOutbox_ReportsFirstFailure(t *testing.T) {
	key := models.ConversationKey{InstanceID: "inst", ContactID: "5511999990001"}
	failure := errors.New("platform unavailable")

	channel := &mocks.MockChannel{}
	channel.On("Send", mock.Anything, key, models.TextMessage("um")).Return(failure)
	channel.On("Send", mock.Anything, key, models.TextMessage("dois")).Return(nil)

	outbox := NewOutbox(newTestQueue(t), channel)

	first := outbox.Send(key, models.TextMessage("um"))
	second := outbox.Send(key, models.TextMessage("dois"))

	err := WaitAll(context.Background(), []*Receipt{first, second})

	require.ErrorIs(t, err, failure)
	require.NoError(t, second.Wait(context.Background()))
	channel.AssertExpectations(t)
}
