package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/chatflow/pkg/dispatcher"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/dukex/chatflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 30 * time.Second
)

func ServeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.BoolFlag{
			Name:    "forward",
			Usage:   "Publish inbound messages to the event bus for workers instead of dispatching them here",
			Sources: cli.EnvVars("FORWARD_INBOUND"),
		},
	}

	flags = append(flags, eventBusFlags()...)
	flags = append(flags, engineFlags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP API and dispatch inbound messages",
		Flags:   flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("serve")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing chatflow API")

			engine, err := newEngine(ctx, logger, command)
			if err != nil {
				return err
			}

			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				engine.close(closeCtx)
			}()

			var inbound web.Inbound = engine.inbox
			if command.Bool("forward") {
				inbound = dispatcher.NewForwarder(engine.bus)
			}

			handlers := web.NewAPIHandlers(
				workflow.NewRepository(engine.store, engine.registry),
				inbound,
				validator.New(validator.WithRequiredStructEnabled()),
				engine.registry,
			)

			app := web.NewApp(handlers)

			addr := fmt.Sprintf(":%d", command.Int("port"))
			logger.InfoContext(ctx, "Starting API server", "addr", addr, "forward", command.Bool("forward"))

			err = app.Listen(addr, fiber.ListenConfig{
				DisableStartupMessage: true,
				GracefulContext:       ctx,
			})
			if err != nil {
				return fmt.Errorf("API server failed: %w", err)
			}

			return nil
		},
	}
}
