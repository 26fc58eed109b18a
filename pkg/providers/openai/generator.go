// Package openai implements protocol.Generator on top of an OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	// ProposeActionTool is the function the model calls to ask for a
	// confirmation-gated action.
	ProposeActionTool = "propose_action"

	defaultTimeout  = 60 * time.Second
	defaultAttempts = 3
)

var (
	ErrEmptyCompletion  = errors.New("completion returned no choices")
	ErrCompletionFailed = errors.New("chat completion request failed")
)

type Config struct {
	BaseURL       string        `validate:"omitempty,url"`
	APIKey        string        `validate:"required"`
	Model         string        `validate:"required"`
	Timeout       time.Duration `validate:"gte=0"`
	Attempts      int           `validate:"gte=0"`
	RetryInterval time.Duration `validate:"gte=0"`

	// DisableProposals leaves the propose_action tool out of requests.
	DisableProposals bool
}

type Generator struct {
	logger    *slog.Logger
	config    Config
	http      *http.Client
	validator *validator.Validate
}

func NewGenerator(logger *slog.Logger, config Config) (*Generator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	err := validate.Struct(config)
	if err != nil {
		return nil, fmt.Errorf("invalid generator configuration: %w", err)
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	if config.Attempts == 0 {
		config.Attempts = defaultAttempts
	}

	return &Generator{
		logger:    logger.With("module", "openai_generator"),
		config:    config,
		http:      &http.Client{Timeout: config.Timeout},
		validator: validate,
	}, nil
}

type message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Tools       []tool    `json:"tools,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

var proposeAction = tool{
	Type: "function",
	Function: toolFunction{
		Name:        ProposeActionTool,
		Description: "Propose an action, such as a booking, that the contact must confirm with yes or no.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind":             map[string]any{"type": "string"},
				"title":            map[string]any{"type": "string"},
				"starts_at":        map[string]any{"type": "string", "format": "date-time"},
				"duration_minutes": map[string]any{"type": "integer", "minimum": 0},
				"details": map[string]any{
					"type":                 "object",
					"additionalProperties": map[string]any{"type": "string"},
				},
			},
			"required": []string{"kind", "title"},
		},
	},
}

func (g *Generator) Generate(ctx context.Context, prompt string, opts protocol.GenerateOptions) (protocol.Generation, error) {
	request := completionRequest{
		Model:       g.config.Model,
		Messages:    messages(prompt, opts),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	if !g.config.DisableProposals {
		request.Tools = []tool{proposeAction}
	}

	response, err := g.complete(ctx, request)
	if err != nil {
		return protocol.Generation{}, err
	}

	if len(response.Choices) == 0 {
		return protocol.Generation{}, ErrEmptyCompletion
	}

	reply := response.Choices[0].Message
	generation := protocol.Generation{Text: strings.TrimSpace(reply.Content)}

	for _, call := range reply.ToolCalls {
		if call.Function.Name != ProposeActionTool {
			continue
		}

		payload, err := g.proposal(call.Function.Arguments)
		if err != nil {
			g.logger.WarnContext(ctx, "Ignoring malformed proposal", "error", err)

			continue
		}

		generation.Proposal = payload

		break
	}

	return generation, nil
}

func messages(prompt string, opts protocol.GenerateOptions) []message {
	result := make([]message, 0, len(opts.History)+2)

	if opts.SystemPrompt != "" {
		result = append(result, message{Role: "system", Content: opts.SystemPrompt})
	}

	for _, turn := range opts.History {
		result = append(result, message{Role: string(turn.Role), Content: turn.Text})
	}

	if prompt != "" {
		result = append(result, message{Role: "user", Content: prompt})
	}

	return result
}

func (g *Generator) proposal(arguments string) (*models.ActionPayload, error) {
	var payload models.ActionPayload

	err := json.Unmarshal([]byte(arguments), &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s arguments: %w", ProposeActionTool, err)
	}

	err = g.validator.Struct(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid %s arguments: %w", ProposeActionTool, err)
	}

	return &payload, nil
}

func (g *Generator) complete(ctx context.Context, request completionRequest) (*completionResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	exponential := backoff.NewExponentialBackOff()
	if g.config.RetryInterval > 0 {
		exponential.InitialInterval = g.config.RetryInterval
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(g.config.Attempts-1)), ctx)

	return backoff.RetryWithData(func() (*completionResponse, error) {
		return g.post(ctx, body)
	}, policy)
}

func (g *Generator) post(ctx context.Context, body []byte) (*completionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build completion request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			g.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: status %d: %s", ErrCompletionFailed, resp.StatusCode, strings.TrimSpace(string(raw)))

		// Rate limits and server errors are worth another attempt.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, err
		}

		return nil, backoff.Permanent(err)
	}

	var response completionResponse

	err = json.Unmarshal(raw, &response)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode completion response: %w", err))
	}

	return &response, nil
}
