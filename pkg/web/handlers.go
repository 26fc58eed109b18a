package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Inbound accepts contact messages for dispatch.
type Inbound interface {
	Accept(ctx context.Context, instanceID string, inbound models.InboundEvent) error
}

type APIHandlers struct {
	workflows *workflow.Repository
	inbound   Inbound
	validator *validator.Validate
	registry  *registry.Registry
	now       func() time.Time
}

func NewAPIHandlers(
	workflows *workflow.Repository,
	inbound Inbound,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflows: workflows,
		inbound:   inbound,
		validator: validator,
		registry:  registry,
		now:       time.Now,
	}
}

func (h *APIHandlers) ReceiveMessage(c fiber.Ctx) error {
	instanceID := c.Params("instance")
	if instanceID == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req InboundMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	key := models.ConversationKey{InstanceID: instanceID, ContactID: req.ContactID}
	if err := key.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.inbound.Accept(c.Context(), instanceID, models.InboundEvent{
		ID:          req.ID,
		ContactID:   req.ContactID,
		Text:        req.Text,
		DisplayName: req.DisplayName,
		ReceivedAt:  h.now().UTC(),
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	activeOnly := false

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		activeOnly = active
	}

	var (
		workflows []*models.Workflow
		err       error
	)

	if activeOnly {
		workflows, err = h.workflows.FetchActive(c.Context())
	} else {
		workflows, err = h.workflows.FetchAll(c.Context())
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := h.workflows.FetchByID(c.Context(), id)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflows.Create(c.Context(), req.toWorkflow())
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflows.Update(c.Context(), id, req.toWorkflow())
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *APIHandlers) setActive(c fiber.Ctx, active bool) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := h.workflows.SetActive(c.Context(), id, active)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.workflows.Delete(c.Context(), id)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	factories := h.registry.GetAvailableNodes()

	nodeTypes := make([]NodeTypeResponse, 0, len(factories))
	for _, factory := range factories {
		nodeTypes = append(nodeTypes, NodeTypeResponse{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(nodeTypes)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "chatflow is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "chatflow is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": h.now().UTC(),
	})
}
