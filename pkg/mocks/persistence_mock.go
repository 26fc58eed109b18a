package mocks

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPendingActionRepository is a mock implementation of persistence.PendingActionRepository interface.
type MockPendingActionRepository struct {
	mock.Mock
}

func (m *MockPendingActionRepository) Get(ctx context.Context, key models.ConversationKey) (*models.PendingAction, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.PendingAction), args.Error(1)
}

func (m *MockPendingActionRepository) Create(ctx context.Context, action *models.PendingAction) error {
	args := m.Called(ctx, action)

	return args.Error(0)
}

func (m *MockPendingActionRepository) Lock(ctx context.Context, key models.ConversationKey, actionID string, now, until time.Time) (bool, error) {
	args := m.Called(ctx, key, actionID, now, until)

	return args.Bool(0), args.Error(1)
}

func (m *MockPendingActionRepository) Unlock(ctx context.Context, key models.ConversationKey, actionID string) error {
	args := m.Called(ctx, key, actionID)

	return args.Error(0)
}

func (m *MockPendingActionRepository) Delete(ctx context.Context, key models.ConversationKey, actionID string) (bool, error) {
	args := m.Called(ctx, key, actionID)

	return args.Bool(0), args.Error(1)
}

// MockPersistence serves the repositories it was given. Unset repositories
// fall back to Base when it is set.
type MockPersistence struct {
	mock.Mock

	Base             persistence.Persistence
	Workflows        persistence.WorkflowRepository
	Contexts         persistence.ExecutionContextRepository
	PendingActions   persistence.PendingActionRepository
	CommittedActions persistence.CommittedActionRepository
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	if m.Workflows == nil && m.Base != nil {
		return m.Base.WorkflowRepository()
	}

	return m.Workflows
}

func (m *MockPersistence) ExecutionContextRepository() persistence.ExecutionContextRepository {
	if m.Contexts == nil && m.Base != nil {
		return m.Base.ExecutionContextRepository()
	}

	return m.Contexts
}

func (m *MockPersistence) PendingActionRepository() persistence.PendingActionRepository {
	if m.PendingActions == nil && m.Base != nil {
		return m.Base.PendingActionRepository()
	}

	return m.PendingActions
}

func (m *MockPersistence) CommittedActionRepository() persistence.CommittedActionRepository {
	if m.CommittedActions == nil && m.Base != nil {
		return m.Base.CommittedActionRepository()
	}

	return m.CommittedActions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
