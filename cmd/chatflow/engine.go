package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/chatflow/pkg/arbitrator"
	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/delivery"
	"github.com/dukex/chatflow/pkg/dispatcher"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/janitor"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

// engine is everything needed to dispatch inbound messages.
type engine struct {
	logger   *slog.Logger
	store    persistence.Persistence
	registry *registry.Registry
	bus      eventbus.EventBus
	inbox    *dispatcher.Inbox
	janitor  *janitor.Janitor

	outboxQueue *delivery.Queue
	inboxQueue  *delivery.Queue
	shutdown    otelhelper.Shutdown
}

func newEngine(ctx context.Context, logger *slog.Logger, command *cli.Command) (*engine, error) {
	e := &engine{logger: logger}

	err := e.build(ctx, command)
	if err != nil {
		e.close(ctx)

		return nil, err
	}

	return e, nil
}

func (e *engine) build(ctx context.Context, command *cli.Command) error {
	var err error

	if command.Bool("tracing") {
		_, e.shutdown, err = otelhelper.NewTracer(ctx, "chatflow")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	e.store, err = cmd.NewPersistence(ctx, e.logger, command.String("database-url"))
	if err != nil {
		return err
	}

	e.bus, err = cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), e.logger)
	if err != nil {
		return err
	}

	platform, err := cmd.NewPlatform(e.logger, command.String("channel-api-url"), command.String("channel-api-token"))
	if err != nil {
		return err
	}

	generator, err := cmd.NewGenerator(
		e.logger,
		command.String("generator-url"),
		command.String("generator-api-key"),
		command.String("generator-model"),
	)
	if err != nil {
		return err
	}

	e.registry = cmd.NewRegistry(e.logger, int(command.Int("label-limit")))

	e.outboxQueue = delivery.NewQueue(e.logger, delivery.WithTaskTimeout(command.Duration("send-timeout")))
	e.inboxQueue = delivery.NewQueue(e.logger)
	outbox := delivery.NewOutbox(e.outboxQueue, platform.Channel)

	arb := arbitrator.New(e.logger, e.store, platform.Committer, outbox, arbitrator.DefaultConfig(),
		arbitrator.WithPublisher(e.bus),
	)

	executorOpts := []workflow.Option{
		workflow.WithStatusUpdater(platform.Status),
		workflow.WithProposer(arb),
		workflow.WithStrictHandles(command.Bool("strict-handles")),
	}

	dispatcherOpts := []dispatcher.Option{
		dispatcher.WithPublisher(e.bus),
		dispatcher.WithTracer(otelhelper.Tracer("chatflow/dispatcher")),
	}

	if generator != nil {
		executorOpts = append(executorOpts, workflow.WithGenerator(generator))
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithGenerator(generator))
	}

	executor := workflow.NewExecutor(e.logger, outbox, executorOpts...)

	config := dispatcher.DefaultConfig()
	config.Fallback.Enabled = command.Bool("fallback") && generator != nil
	config.Fallback.SystemPrompt = command.String("fallback-prompt")

	d := dispatcher.New(e.logger, e.store, e.registry, executor, arb, platform.Channel, outbox, config, dispatcherOpts...)
	e.inbox = dispatcher.NewInbox(e.logger, d, e.inboxQueue)

	e.janitor, err = janitor.New(e.logger, e.store, command.String("janitor-schedule"), command.Duration("janitor-retention"))
	if err != nil {
		return err
	}

	return e.janitor.Start(ctx)
}

// close drains the inbound lanes before the outbound ones since dispatches
// still send replies.
func (e *engine) close(ctx context.Context) {
	var errs []error

	if e.janitor != nil {
		errs = append(errs, e.janitor.Stop(ctx))
	}

	if e.inboxQueue != nil {
		errs = append(errs, e.inboxQueue.Close(ctx))
	}

	if e.outboxQueue != nil {
		errs = append(errs, e.outboxQueue.Close(ctx))
	}

	if e.bus != nil {
		errs = append(errs, e.bus.Close())
	}

	if e.store != nil {
		errs = append(errs, e.store.Close(ctx))
	}

	if e.shutdown != nil {
		errs = append(errs, e.shutdown(ctx))
	}

	err := errors.Join(errs...)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to shut down cleanly", "error", err)
	}
}
