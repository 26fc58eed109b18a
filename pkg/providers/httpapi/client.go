// Package httpapi talks JSON over HTTP to the messaging platform and booking
// backend: sends, contact profiles, conversation status and action commits.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/go-playground/validator/v10"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
)

var (
	// ErrHTTPServerError is returned when the API keeps answering with 5xx.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrUnexpectedStatus is returned for any other non-2xx answer.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

type Config struct {
	BaseURL  string        `validate:"required,url"`
	Token    string        `validate:"omitempty"`
	Timeout  time.Duration `validate:"gte=0"`
	Attempts int           `validate:"gte=0"`
	// RetryInterval is the first retry delay; later ones grow exponentially.
	RetryInterval time.Duration `validate:"gte=0"`
}

// Client implements protocol.Channel, protocol.StatusUpdater and
// protocol.Committer against the platform API.
type Client struct {
	logger   *slog.Logger
	baseURL  string
	token    string
	http     *http.Client
	attempts int
	interval time.Duration
}

func NewClient(logger *slog.Logger, config Config) (*Client, error) {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(config)
	if err != nil {
		return nil, fmt.Errorf("invalid platform API configuration: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	attempts := config.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}

	return &Client{
		logger:   logger.With("module", "platform_api"),
		baseURL:  strings.TrimSuffix(config.BaseURL, "/"),
		token:    config.Token,
		http:     &http.Client{Timeout: timeout},
		attempts: attempts,
		interval: config.RetryInterval,
	}, nil
}

type sendRequest struct {
	To      string          `json:"to"`
	Kind    string          `json:"kind"`
	Text    string          `json:"text"`
	Media   *models.Media   `json:"media,omitempty"`
	Choices []models.Choice `json:"choices,omitempty"`
}

func (c *Client) Send(ctx context.Context, key models.ConversationKey, msg models.OutboundMessage) error {
	body := sendRequest{
		To:      key.ContactID,
		Kind:    string(msg.Kind),
		Text:    msg.Text,
		Media:   msg.Media,
		Choices: msg.Choices,
	}

	return c.do(ctx, http.MethodPost, c.instancePath(key, "messages"), nil, body, nil)
}

type contactResponse struct {
	Name string `json:"name"`
}

// DisplayName returns "" for contacts the platform does not know.
func (c *Client) DisplayName(ctx context.Context, key models.ConversationKey) (string, error) {
	var contact contactResponse

	err := c.do(ctx, http.MethodGet, c.instancePath(key, "contacts", key.ContactID), nil, nil, &contact)
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) && status.Code == http.StatusNotFound {
			return "", nil
		}

		return "", err
	}

	return contact.Name, nil
}

type statusRequest struct {
	Status models.ConversationStatus `json:"status"`
}

func (c *Client) SetConversationStatus(ctx context.Context, key models.ConversationKey, status models.ConversationStatus) error {
	path := c.instancePath(key, "contacts", key.ContactID, "status")

	return c.do(ctx, http.MethodPut, path, nil, statusRequest{Status: status}, nil)
}

type commitRequest struct {
	InstanceID string               `json:"instance_id"`
	ContactID  string               `json:"contact_id"`
	OwnerID    string               `json:"owner_id"`
	Payload    models.ActionPayload `json:"payload"`
}

type commitResponse struct {
	ExternalRef string `json:"external_ref"`
}

// Commit sends the idempotency key as the Idempotency-Key header so retried
// requests are recognised by the backend.
func (c *Client) Commit(ctx context.Context, req protocol.CommitRequest) (protocol.CommitResult, error) {
	var response commitResponse

	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	body := commitRequest{
		InstanceID: req.Key.InstanceID,
		ContactID:  req.Key.ContactID,
		OwnerID:    req.OwnerID,
		Payload:    req.Payload,
	}

	err := c.do(ctx, http.MethodPost, "/actions", headers, body, &response)
	if err != nil {
		return protocol.CommitResult{}, err
	}

	return protocol.CommitResult{ExternalRef: response.ExternalRef}, nil
}

func (c *Client) Cancel(ctx context.Context, externalRef string) error {
	return c.do(ctx, http.MethodDelete, "/actions/"+url.PathEscape(externalRef), nil, nil, nil)
}

func (c *Client) instancePath(key models.ConversationKey, parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "instances", url.PathEscape(key.InstanceID))

	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}

	return "/" + strings.Join(escaped, "/")
}

// StatusError carries a non-2xx answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code >= http.StatusInternalServerError {
		return ErrHTTPServerError
	}

	return ErrUnexpectedStatus
}

// do sends a JSON request, retrying transport failures and 5xx answers.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	exponential := backoff.NewExponentialBackOff()
	if c.interval > 0 {
		exponential.InitialInterval = c.interval
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(c.attempts-1)), ctx)

	attempt := 0

	return backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			c.logger.InfoContext(ctx, "Retrying platform request", "method", method, "path", path, "attempt", attempt)
		}

		err := c.roundTrip(ctx, method, path, headers, payload, out)

		var status *StatusError
		if errors.As(err, &status) && status.Code < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}

		return err
	}, policy)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, headers map[string]string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	req.Header.Set("Accept", "application/json")

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}
