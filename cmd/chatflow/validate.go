package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/nodes/question"
	"github.com/dukex/chatflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

var ErrInvalidWorkflows = errors.New("some workflows are invalid")

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Compile every stored workflow and report the broken ones",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "label-limit",
				Usage:   "Maximum length of interactive choice titles",
				Value:   question.DefaultLabelLimit,
				Sources: cli.EnvVars("LABEL_LIMIT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("validate")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			repository := workflow.NewRepository(store, cmd.NewRegistry(logger, int(command.Int("label-limit"))))

			return validateWorkflows(ctx, repository, command.Root().Writer)
		},
	}
}

func validateWorkflows(ctx context.Context, repository *workflow.Repository, out io.Writer) error {
	workflows, err := repository.FetchAll(ctx)
	if err != nil {
		return err
	}

	invalid := 0

	for _, wf := range workflows {
		err := repository.Validate(ctx, wf)
		if err != nil {
			invalid++

			_, _ = fmt.Fprintf(out, "INVALID %s (%s): %v\n", wf.ID, wf.Name, err)

			continue
		}

		_, _ = fmt.Fprintf(out, "OK      %s (%s)\n", wf.ID, wf.Name)
	}

	_, _ = fmt.Fprintf(out, "%d workflows, %d invalid\n", len(workflows), invalid)

	if invalid > 0 {
		return ErrInvalidWorkflows
	}

	return nil
}
