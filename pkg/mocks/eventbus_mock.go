package mocks

import (
	"context"
	"sync"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, event eventbus.Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// RecordingPublisher keeps every published event in order.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *RecordingPublisher) Events() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

// Types returns the type of every published event in order.
func (p *RecordingPublisher) Types() []events.EventType {
	var types []events.EventType

	for _, event := range p.Events() {
		types = append(types, event.GetType())
	}

	return types
}
