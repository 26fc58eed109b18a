package mocks

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockCommitter is a mock implementation of protocol.Committer interface.
type MockCommitter struct {
	mock.Mock
}

func (m *MockCommitter) Commit(ctx context.Context, req protocol.CommitRequest) (protocol.CommitResult, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(protocol.CommitResult), args.Error(1)
}

func (m *MockCommitter) Cancel(ctx context.Context, externalRef string) error {
	args := m.Called(ctx, externalRef)

	return args.Error(0)
}

// MockGenerator is a mock implementation of protocol.Generator interface.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, opts protocol.GenerateOptions) (protocol.Generation, error) {
	args := m.Called(ctx, prompt, opts)

	return args.Get(0).(protocol.Generation), args.Error(1)
}

// MockChannel is a mock implementation of protocol.Channel interface.
type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Send(ctx context.Context, key models.ConversationKey, msg models.OutboundMessage) error {
	args := m.Called(ctx, key, msg)

	return args.Error(0)
}

func (m *MockChannel) DisplayName(ctx context.Context, key models.ConversationKey) (string, error) {
	args := m.Called(ctx, key)

	return args.String(0), args.Error(1)
}

// MockStatusUpdater is a mock implementation of protocol.StatusUpdater interface.
type MockStatusUpdater struct {
	mock.Mock
}

func (m *MockStatusUpdater) SetConversationStatus(ctx context.Context, key models.ConversationKey, status models.ConversationStatus) error {
	args := m.Called(ctx, key, status)

	return args.Error(0)
}
