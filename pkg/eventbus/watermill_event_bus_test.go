package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/chatflow/pkg/channels/gochannel"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)), pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)
	key := models.ConversationKey{InstanceID: "inst", ContactID: "5511"}

	var (
		mu       sync.Mutex
		received []*events.ConversationStarted
	)

	require.NoError(t, bus.Handle(events.ConversationStartedEvent, func(_ context.Context, event any) error {
		mu.Lock()
		defer mu.Unlock()

		started, ok := event.(*events.ConversationStarted)
		if !ok {
			return errors.New("unexpected event type")
		}

		received = append(received, started)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	event := events.ConversationStarted{
		BaseEvent: events.NewBaseEvent(events.ConversationStartedEvent, key),
		Trigger:   "oi",
	}
	event.WorkflowID = "greeting"

	// Events without a handler are acknowledged and skipped.
	require.NoError(t, bus.Publish(ctx, events.ConversationPaused{
		BaseEvent: events.NewBaseEvent(events.ConversationPausedEvent, key),
	}))
	require.NoError(t, bus.Publish(ctx, event))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "oi", received[0].Trigger)
	assert.Equal(t, "greeting", received[0].WorkflowID)
	assert.Equal(t, key, received[0].Key())
}

func TestWatermillEventBus_RedeliversOnHandlerError(t *testing.T) {
	bus := newTestBus(t)
	key := models.ConversationKey{InstanceID: "inst", ContactID: "5511"}

	var (
		mu       sync.Mutex
		attempts int
	)

	require.NoError(t, bus.Handle(events.InboundMessageEvent, func(context.Context, any) error {
		mu.Lock()
		defer mu.Unlock()

		attempts++
		if attempts == 1 {
			return errors.New("database down")
		}

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))
	require.NoError(t, bus.Publish(ctx, events.InboundMessage{
		BaseEvent: events.NewBaseEvent(events.InboundMessageEvent, key),
		Message:   models.InboundEvent{ID: "wamid.1", ContactID: "5511", Text: "oi"},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return attempts >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}

func TestWatermillEventBus_PublishUsesEventIdentity(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)), pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := sub.Subscribe(ctx, events.Topic)
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	spanCtx, span := provider.Tracer("test").Start(ctx, "publish")

	key := models.ConversationKey{InstanceID: "inst", ContactID: "5511"}
	event := events.ActionProposed{BaseEvent: events.NewBaseEvent(events.ActionProposedEvent, key)}

	require.NoError(t, bus.Publish(spanCtx, event))
	span.End()

	select {
	case msg := <-messages:
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, key.String(), msg.Metadata.Get(events.EventMetadataKey))
		assert.Equal(t, string(events.ActionProposedEvent), msg.Metadata.Get(events.EventTypeMetadataKey))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("event was not published")
	}

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "event_published", ended[0].Events()[0].Name)
	assert.Contains(t, ended[0].Events()[0].Attributes, attribute.String(otelhelper.EventIDKey, event.ID))
	assert.Contains(t, ended[0].Events()[0].Attributes, attribute.String(otelhelper.EventTypeKey, string(events.ActionProposedEvent)))
}
