package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/dukex/chatflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type accepted struct {
	instanceID string
	inbound    models.InboundEvent
}

type recordingInbound struct {
	mu       sync.Mutex
	accepted []accepted
	err      error
}

func (r *recordingInbound) Accept(_ context.Context, instanceID string, inbound models.InboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	r.accepted = append(r.accepted, accepted{instanceID: instanceID, inbound: inbound})

	return nil
}

func setupTestApp(t *testing.T) (*fiber.App, *workflow.Repository, *recordingInbound) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.RegisterDefaultNodes(0)

	repository := workflow.NewRepository(store, reg)
	inbound := &recordingInbound{}

	handlers := web.NewAPIHandlers(repository, inbound, validator.New(validator.WithRequiredStructEnabled()), reg)

	return web.NewApp(handlers), repository, inbound
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, raw
}

func greetingRequest() web.WorkflowRequest {
	wf := testutil.NewWorkflow("", "oi").
		Message("hello", "Olá {{nome}}").
		Chain("hello").
		Build()

	return web.WorkflowRequest{
		Name:        "Saudação",
		Trigger:     wf.Trigger,
		Active:      true,
		Nodes:       wf.Nodes,
		Connections: wf.Connections,
	}
}

func TestReceiveMessage(t *testing.T) {
	tests := []struct {
		name           string
		instance       string
		body           any
		acceptErr      error
		expectedStatus int
	}{
		{
			name:           "accepted",
			body:           web.InboundMessageRequest{ID: "m1", ContactID: "5511999990001", Text: "oi"},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "missing contact",
			body:           web.InboundMessageRequest{ID: "m1", Text: "oi"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "instance with key separator",
			instance:       "in:st",
			body:           web.InboundMessageRequest{ID: "m1", ContactID: "5511999990001", Text: "oi"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "dispatch unavailable",
			body:           web.InboundMessageRequest{ID: "m1", ContactID: "5511999990001", Text: "oi"},
			acceptErr:      errors.New("bus down"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, inbound := setupTestApp(t)
			inbound.err = tt.acceptErr

			instance := tt.instance
			if instance == "" {
				instance = "inst"
			}

			resp, _ := doJSON(t, app, http.MethodPost, "/instances/"+instance+"/messages", tt.body)

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusBadRequest {
				assert.Empty(t, inbound.accepted)
			}

			if tt.expectedStatus == http.StatusAccepted {
				require.Len(t, inbound.accepted, 1)
				assert.Equal(t, "inst", inbound.accepted[0].instanceID)
				assert.Equal(t, "5511999990001", inbound.accepted[0].inbound.ContactID)
				assert.Equal(t, "oi", inbound.accepted[0].inbound.Text)
				assert.False(t, inbound.accepted[0].inbound.ReceivedAt.IsZero())
			}
		})
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	app, repository, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", greetingRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Saudação", created.Name)

	resp, body = doJSON(t, app, http.MethodGet, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Workflow
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Len(t, fetched.Nodes, 2)

	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/"+created.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/workflows?active=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Workflows  []*models.Workflow `json:"workflows"`
		TotalCount int                `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Zero(t, list.TotalCount)

	resp, _ = doJSON(t, app, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	all, err := repository.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateWorkflow_RejectsInvalidGraph(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := greetingRequest()
	req.Nodes = append(req.Nodes, &models.WorkflowNode{ID: "trigger", Type: models.NodeTypeMessage})

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", req)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_workflow")
}

func TestCreateWorkflow_RequiresNodes(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows", web.WorkflowRequest{Name: "vazio", Trigger: "oi"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "workflow_not_found")
}

func TestGetNodeTypes(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/node-types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var nodeTypes []web.NodeTypeResponse
	require.NoError(t, json.Unmarshal(body, &nodeTypes))
	require.Len(t, nodeTypes, 8)
	assert.Equal(t, "ai_step", nodeTypes[0].ID)
}

func TestHealthCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}

func setupMockApp(t *testing.T, store *mocks.MockPersistence) *fiber.App {
	t.Helper()

	reg := registry.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.RegisterDefaultNodes(0)

	handlers := web.NewAPIHandlers(
		workflow.NewRepository(store, reg),
		&recordingInbound{},
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
	)

	return web.NewApp(handlers)
}

func TestGetWorkflows_StoreFailure(t *testing.T) {
	workflows := &mocks.MockWorkflowRepository{}
	workflows.On("List", mock.Anything, persistence.WorkflowFilter{}).Return(nil, errors.New("connection refused"))

	app := setupMockApp(t, &mocks.MockPersistence{Workflows: workflows})

	resp, body := doJSON(t, app, http.MethodGet, "/workflows", nil)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "internal_error")
	workflows.AssertExpectations(t)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("HealthCheck", mock.Anything).Return(errors.New("disk full"))

	app := setupMockApp(t, store)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "disk full")
	store.AssertExpectations(t)
}
