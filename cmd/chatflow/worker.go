package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/chatflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func WorkerCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
	}

	flags = append(flags, eventBusFlags()...)
	flags = append(flags, engineFlags()...)

	return &cli.Command{
		Name:    "worker",
		Aliases: []string{"w"},
		Usage:   "Dispatch inbound messages published on the event bus",
		Flags:   flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("worker").With("worker_id", workerID)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing chatflow worker")

			engine, err := newEngine(ctx, logger, command)
			if err != nil {
				return err
			}

			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				engine.close(closeCtx)
			}()

			err = engine.inbox.Consume(engine.bus)
			if err != nil {
				return err
			}

			err = engine.bus.Subscribe(ctx)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Worker started, waiting for inbound messages")

			<-ctx.Done()

			logger.Info("Shutting down worker")

			return nil
		},
	}
}
