// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/providers/console"
	"github.com/dukex/chatflow/pkg/providers/httpapi"
	"github.com/dukex/chatflow/pkg/providers/openai"
	"github.com/dukex/chatflow/pkg/registry"
)

// Platform bundles the collaborators backed by the messaging platform.
type Platform struct {
	Channel   protocol.Channel
	Status    protocol.StatusUpdater
	Committer protocol.Committer
}

// NewPlatform talks to the platform API at baseURL, or prints to stdout when
// baseURL is empty.
func NewPlatform(logger *slog.Logger, baseURL, token string) (*Platform, error) {
	if baseURL == "" {
		provider := console.New(logger, os.Stdout)

		return &Platform{Channel: provider, Status: provider, Committer: provider}, nil
	}

	client, err := httpapi.NewClient(logger, httpapi.Config{BaseURL: baseURL, Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}

	return &Platform{Channel: client, Status: client, Committer: client}, nil
}

// NewGenerator returns nil when no API key is configured, which disables
// generated replies.
//
// nolint:ireturn // callers depend on the protocol, not on the backend
func NewGenerator(logger *slog.Logger, baseURL, apiKey, model string) (protocol.Generator, error) {
	if apiKey == "" {
		logger.Info("No generator API key configured, generated replies are disabled")

		return nil, nil
	}

	generator, err := openai.NewGenerator(logger, openai.Config{BaseURL: baseURL, APIKey: apiKey, Model: model})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	return generator, nil
}

func NewRegistry(logger *slog.Logger, labelLimit int) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(labelLimit)

	return reg
}
