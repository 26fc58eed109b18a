package main

import (
	"context"
	"os"

	"github.com/dukex/chatflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "chatflow",
		Usage:                 "Run conversational workflows over messaging channels",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (postgres://, redis:// or a directory path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			ServeCommand(),
			WorkerCommand(),
			ValidateCommand(),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("chatflow").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
