package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ana = models.ConversationKey{InstanceID: "inst", ContactID: "5511999990001"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		BaseURL:       server.URL,
		Token:         "secret",
		Attempts:      3,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)

	return client
}

func TestNewClient_ValidatesConfig(t *testing.T) {
	_, err := NewClient(slog.Default(), Config{BaseURL: "not a url"})
	require.Error(t, err)
}

func TestClient_Send(t *testing.T) {
	var received sendRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/instances/inst/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusAccepted)
	})

	err := client.Send(context.Background(), ana, models.OutboundMessage{
		Kind:    models.MessageKindInteractive,
		Text:    "Prefere A ou B?",
		Choices: []models.Choice{{ID: "a", Title: "A"}},
	})
	require.NoError(t, err)

	assert.Equal(t, ana.ContactID, received.To)
	assert.Equal(t, "interactive", received.Kind)
	assert.Equal(t, []models.Choice{{ID: "a", Title: "A"}}, received.Choices)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.Send(context.Background(), ana, models.TextMessage("oi")))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Send(context.Background(), ana, models.TextMessage("oi"))

	require.ErrorIs(t, err, ErrHTTPServerError)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad contact", http.StatusBadRequest)
	})

	err := client.Send(context.Background(), ana, models.TextMessage("oi"))

	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "bad contact")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_DisplayName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instances/inst/contacts/5511999990001" {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write([]byte(`{"name":"Ana"}`))
	})

	name, err := client.DisplayName(context.Background(), ana)
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)

	name, err = client.DisplayName(context.Background(), models.ConversationKey{InstanceID: "inst", ContactID: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestClient_SetConversationStatus(t *testing.T) {
	var received statusRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/instances/inst/contacts/5511999990001/status", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	})

	require.NoError(t, client.SetConversationStatus(context.Background(), ana, models.ConversationStatusWaitingHuman))
	assert.Equal(t, models.ConversationStatusWaitingHuman, received.Status)
}

func TestClient_CommitAndCancel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/actions":
			assert.Equal(t, "pending-1", r.Header.Get("Idempotency-Key"))

			var body commitRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Corte", body.Payload.Title)

			_, _ = w.Write([]byte(`{"external_ref":"booking-9"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/actions/booking-9":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})

	result, err := client.Commit(context.Background(), protocol.CommitRequest{
		IdempotencyKey: "pending-1",
		Key:            ana,
		Payload:        models.ActionPayload{Kind: "appointment", Title: "Corte"},
	})
	require.NoError(t, err)
	assert.Equal(t, "booking-9", result.ExternalRef)

	require.NoError(t, client.Cancel(context.Background(), "booking-9"))
}
