package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/arbitrator"
	"github.com/dukex/chatflow/pkg/delivery"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/dukex/chatflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const instance = "inst"

var ana = models.ConversationKey{InstanceID: instance, ContactID: "5511999990001"}

type fixture struct {
	dispatcher *Dispatcher
	store      persistence.Persistence
	channel    *testutil.RecordingChannel
	committer  *mocks.MockCommitter
	generator  *mocks.MockGenerator
	publisher  *mocks.RecordingPublisher
	spans      *tracetest.SpanRecorder
}

func newFixture(t *testing.T, config Config, workflows ...*models.Workflow) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	queue := delivery.NewQueue(logger)
	t.Cleanup(func() {
		_ = queue.Close(context.Background())
	})

	f := &fixture{
		store:     file.NewPersistence(t.TempDir()),
		channel:   &testutil.RecordingChannel{Names: map[string]string{ana.ContactID: "Ana"}},
		committer: &mocks.MockCommitter{},
		generator: &mocks.MockGenerator{},
		publisher: &mocks.RecordingPublisher{},
		spans:     tracetest.NewSpanRecorder(),
	}

	for _, wf := range workflows {
		require.NoError(t, f.store.WorkflowRepository().Save(context.Background(), wf))
	}

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(0)

	outbox := delivery.NewOutbox(queue, f.channel)

	arbConfig := arbitrator.DefaultConfig()
	arbConfig.ReadInterval = time.Millisecond

	arb := arbitrator.New(logger, f.store, f.committer, outbox, arbConfig, arbitrator.WithPublisher(f.publisher))

	executor := workflow.NewExecutor(logger, outbox,
		workflow.WithStatusUpdater(f.channel),
		workflow.WithProposer(arb),
		workflow.WithGenerator(f.generator))

	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))

	f.dispatcher = New(logger, f.store, reg, executor, arb, f.channel, outbox, config,
		WithGenerator(f.generator),
		WithPublisher(f.publisher),
		WithTracer(provider.Tracer("test")))

	return f
}

func (f *fixture) send(t *testing.T, id, text string) {
	t.Helper()

	err := f.dispatcher.Dispatch(context.Background(), instance, models.InboundEvent{
		ID:         id,
		ContactID:  ana.ContactID,
		Text:       text,
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)
}

func (f *fixture) context(t *testing.T) *models.ExecutionContext {
	t.Helper()

	execCtx, err := f.store.ExecutionContextRepository().Get(context.Background(), ana)
	if persistence.IsExecutionContextNotFound(err) {
		return nil
	}

	require.NoError(t, err)

	return execCtx
}

func greetingWorkflow() *models.Workflow {
	return testutil.NewWorkflow("greeting", "oi").
		Message("hello", "Olá {{nome}}").
		Question("choice", "Prefere A ou B?", "", "A", "B").
		Message("okA", "ok A").
		Message("okB", "ok B").
		Chain("hello", "choice").
		ConnectHandle("choice", "A", "okA").
		ConnectHandle("choice", "B", "okB").
		Build()
}

func TestDispatch_GreetingConversation(t *testing.T) {
	f := newFixture(t, DefaultConfig(), greetingWorkflow())

	f.send(t, "m1", "oi")

	assert.Equal(t, []string{"Olá Ana", "Prefere A ou B?"}, f.channel.Texts(ana))

	execCtx := f.context(t)
	require.NotNil(t, execCtx)
	assert.Equal(t, "choice", execCtx.CurrentNodeID)
	assert.True(t, execCtx.AwaitingReply)
	assert.Equal(t, "Ana", execCtx.Variables[VarName])
	assert.Equal(t, ana.ContactID, execCtx.Variables[VarPhone])

	f.send(t, "m2", "B")

	assert.Equal(t, []string{"Olá Ana", "Prefere A ou B?", "ok B"}, f.channel.Texts(ana))
	assert.Nil(t, f.context(t))

	assert.Equal(t, []events.EventType{
		events.ConversationStartedEvent,
		events.ConversationPausedEvent,
		events.ConversationEndedEvent,
	}, f.publisher.Types())
}

func TestDispatch_RejectsAmbiguousKey(t *testing.T) {
	f := newFixture(t, DefaultConfig(), greetingWorkflow())

	err := f.dispatcher.Dispatch(context.Background(), "in:st", models.InboundEvent{ID: "m1", ContactID: "5511", Text: "oi"})

	require.ErrorIs(t, err, models.ErrInvalidConversationKey)
	assert.Empty(t, f.publisher.Events())
}

func TestDispatch_IgnoresDuplicateMessages(t *testing.T) {
	f := newFixture(t, DefaultConfig(), greetingWorkflow())

	f.send(t, "m1", "oi")
	f.send(t, "m1", "oi")

	assert.Equal(t, []string{"Olá Ana", "Prefere A ou B?"}, f.channel.Texts(ana))
}

func TestDispatch_WorkflowVariablesAndInboundName(t *testing.T) {
	wf := testutil.NewWorkflow("promo", "promo").
		Message("hello", "{{nome}}, use {{cupom}}").
		Chain("hello").
		Variable("cupom", "DESCONTO10").
		Build()

	f := newFixture(t, DefaultConfig(), wf)

	err := f.dispatcher.Dispatch(context.Background(), instance, models.InboundEvent{
		ID:          "m1",
		ContactID:   ana.ContactID,
		Text:        "quero a promo",
		DisplayName: "Aninha",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Aninha, use DESCONTO10"}, f.channel.Texts(ana))
	assert.Nil(t, f.context(t))
}

func TestDispatch_NoMatchWithoutFallbackIsIgnored(t *testing.T) {
	f := newFixture(t, DefaultConfig(), greetingWorkflow())

	f.send(t, "m1", "bom dia")

	assert.Empty(t, f.channel.Sent())
	assert.Nil(t, f.context(t))
	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_FallbackAssistantAnswers(t *testing.T) {
	config := DefaultConfig()
	config.Fallback.Enabled = true
	config.Fallback.SystemPrompt = "Atenda {{nome}}"

	f := newFixture(t, config)

	f.generator.On("Generate", mock.Anything, "qual o horário?", mock.MatchedBy(func(opts protocol.GenerateOptions) bool {
		return opts.SystemPrompt == "Atenda Ana"
	})).Return(protocol.Generation{Text: "Abrimos às 9h."}, nil).Once()

	f.send(t, "m1", "qual o horário?")

	assert.Equal(t, []string{"Abrimos às 9h."}, f.channel.Texts(ana))
	f.generator.AssertExpectations(t)
}

func TestDispatch_FallbackFailureApologises(t *testing.T) {
	config := DefaultConfig()
	config.Fallback.Enabled = true

	f := newFixture(t, config)

	f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.Generation{}, errors.New("model overloaded")).Once()

	f.send(t, "m1", "qual o horário?")

	assert.Equal(t, []string{DefaultFallbackError}, f.channel.Texts(ana))
}

func TestDispatch_FallbackProposalIsConfirmedOnce(t *testing.T) {
	config := DefaultConfig()
	config.Fallback.Enabled = true

	f := newFixture(t, config)

	proposal := &models.ActionPayload{Kind: "appointment", Title: "Corte", DurationMinutes: 30}

	f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.Generation{Text: "Tenho horário amanhã.", Proposal: proposal}, nil).Once()
	f.committer.On("Commit", mock.Anything, mock.Anything).
		Return(protocol.CommitResult{ExternalRef: "ext-1"}, nil).Once()

	f.send(t, "m1", "quero cortar o cabelo")

	pending, err := f.store.PendingActionRepository().Get(context.Background(), ana)
	require.NoError(t, err)
	assert.Equal(t, "assistant", pending.OwnerID)

	f.send(t, "m2", "confirmar")
	f.send(t, "m3", "confirmar")

	texts := f.channel.Texts(ana)
	require.Len(t, texts, 4)
	assert.Equal(t, "Tenho horário amanhã.", texts[0])
	assert.Contains(t, texts[1], "Corte - 30 min")
	assert.Contains(t, texts[2], "Confirmado")
	assert.Contains(t, texts[3], "já está confirmado")

	f.committer.AssertNumberOfCalls(t, "Commit", 1)
	f.generator.AssertNumberOfCalls(t, "Generate", 1)
}

func TestDispatch_DiscardsContextOfInactiveWorkflow(t *testing.T) {
	wf := greetingWorkflow()
	f := newFixture(t, DefaultConfig(), wf)

	f.send(t, "m1", "oi")
	require.NotNil(t, f.context(t))

	wf.Active = false
	require.NoError(t, f.store.WorkflowRepository().Save(context.Background(), wf))

	f.send(t, "m2", "B")

	assert.Nil(t, f.context(t))
	assert.Equal(t, []string{"Olá Ana", "Prefere A ou B?"}, f.channel.Texts(ana))
}

func TestDispatch_DiscardsContextAtRemovedNode(t *testing.T) {
	f := newFixture(t, DefaultConfig(), greetingWorkflow())

	execCtx := testutil.NewExecutionContext(ana, "greeting", "gone")
	execCtx.AwaitingReply = true
	require.NoError(t, f.store.ExecutionContextRepository().Create(context.Background(), execCtx))

	// The stale context is dropped and the message starts the workflow again.
	f.send(t, "m1", "oi de novo")

	assert.Equal(t, []string{"Olá Ana", "Prefere A ou B?"}, f.channel.Texts(ana))

	current := f.context(t)
	require.NotNil(t, current)
	assert.Equal(t, "choice", current.CurrentNodeID)
}

func TestDispatch_AbortedRunClearsContext(t *testing.T) {
	wf := testutil.NewWorkflow("loop", "loop").
		Message("ping", "ping").
		Chain("ping").
		Connect("ping", "ping").
		Build()

	f := newFixture(t, DefaultConfig(), wf)

	f.send(t, "m1", "loop")

	assert.Nil(t, f.context(t))
	assert.Len(t, f.channel.Texts(ana), workflow.DefaultMaxSteps-1)

	published := f.publisher.Events()
	require.NotEmpty(t, published)

	ended, ok := published[len(published)-1].(events.ConversationEnded)
	require.True(t, ok)
	assert.Equal(t, string(workflow.RunAborted), ended.State)
}

func TestDispatch_SerializesSameContact(t *testing.T) {
	f := newFixture(t, DefaultConfig(), greetingWorkflow())

	var wg sync.WaitGroup

	for _, id := range []string{"m1", "m2"} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = f.dispatcher.Dispatch(context.Background(), instance, models.InboundEvent{
				ID: id, ContactID: ana.ContactID, Text: "oi",
			})
		}()
	}

	wg.Wait()

	// The second "oi" answers the question; "oi" is no option so the first edge is taken.
	assert.Equal(t, []string{"Olá Ana", "Prefere A ou B?", "ok A"}, f.channel.Texts(ana))
	assert.Zero(t, f.dispatcher.locks.size())
}

func TestDispatch_RecordsSpan(t *testing.T) {
	f := newFixture(t, DefaultConfig(), greetingWorkflow())

	f.send(t, "m1", "oi")

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "dispatcher.dispatch", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String(otelhelper.RunStateKey, string(workflow.RunPaused)))
	assert.Contains(t, spans[0].Attributes(), attribute.String(otelhelper.NodeIDKey, "choice"))

	f.send(t, "m2", "B")

	spans = f.spans.Ended()
	require.Len(t, spans, 2)
	assert.Contains(t, spans[1].Attributes(), attribute.String(otelhelper.RunStateKey, string(workflow.RunFinished)))
}
