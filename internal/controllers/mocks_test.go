package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

type MockDefinitionService struct {
	CreateFunc     func(actor string, def domain.WorkflowDefinition) (*domain.WorkflowDefinition, error)
	GetFunc        func(id string) (*domain.WorkflowDefinition, error)
	ListActiveFunc func() ([]domain.WorkflowDefinition, error)
	VersionsFunc   func(key string) ([]domain.WorkflowDefinition, error)
	DeactivateFunc func(actor, id string) error
}

func (m *MockDefinitionService) Create(ctx context.Context, actor string, def domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(actor, def)
	}
	return &def, nil
}
func (m *MockDefinitionService) Get(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	if m.GetFunc != nil {
		return m.GetFunc(id)
	}
	return nil, domain.NewError(domain.ErrNotFound, "get", "definition %s not found", id)
}
func (m *MockDefinitionService) ListActive(ctx context.Context) ([]domain.WorkflowDefinition, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc()
	}
	return nil, nil
}
func (m *MockDefinitionService) Versions(ctx context.Context, key string) ([]domain.WorkflowDefinition, error) {
	if m.VersionsFunc != nil {
		return m.VersionsFunc(key)
	}
	return nil, nil
}
func (m *MockDefinitionService) Deactivate(ctx context.Context, actor, id string) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(actor, id)
	}
	return nil
}

type MockWorkflowService struct {
	StartWorkflowFunc     func(req engine.StartRequest) (*engine.ExecutionResult, error)
	ExecuteTransitionFunc func(req engine.TransitionRequest) (*engine.ExecutionResult, error)
	UpdateFieldValuesFunc func(req engine.FieldUpdateRequest) (*engine.ExecutionResult, error)
	CancelInstanceFunc    func(user, instanceID, reason string) (*domain.WorkflowInstance, error)
	GetInstanceFunc       func(user, instanceID string) (*domain.WorkflowInstance, error)
	ListInstancesFunc     func(user string, filter domain.InstanceFilter) ([]domain.WorkflowInstance, error)
	GetHistoryFunc        func(user, instanceID string) ([]domain.HistoryEntry, error)
	CastVoteFunc          func(req engine.VoteRequest) (*domain.VoteRecord, error)
	GetVoteFunc           func(instanceID, transitionID string) (*domain.VoteRecord, error)
}

func (m *MockWorkflowService) StartWorkflow(ctx context.Context, req engine.StartRequest) (*engine.ExecutionResult, error) {
	if m.StartWorkflowFunc != nil {
		return m.StartWorkflowFunc(req)
	}
	return nil, nil
}
func (m *MockWorkflowService) ExecuteTransition(ctx context.Context, req engine.TransitionRequest) (*engine.ExecutionResult, error) {
	if m.ExecuteTransitionFunc != nil {
		return m.ExecuteTransitionFunc(req)
	}
	return nil, nil
}
func (m *MockWorkflowService) UpdateFieldValues(ctx context.Context, req engine.FieldUpdateRequest) (*engine.ExecutionResult, error) {
	if m.UpdateFieldValuesFunc != nil {
		return m.UpdateFieldValuesFunc(req)
	}
	return nil, nil
}
func (m *MockWorkflowService) CancelInstance(ctx context.Context, user, instanceID, reason string) (*domain.WorkflowInstance, error) {
	if m.CancelInstanceFunc != nil {
		return m.CancelInstanceFunc(user, instanceID, reason)
	}
	return nil, nil
}
func (m *MockWorkflowService) GetInstance(ctx context.Context, user, instanceID string) (*domain.WorkflowInstance, error) {
	if m.GetInstanceFunc != nil {
		return m.GetInstanceFunc(user, instanceID)
	}
	return &domain.WorkflowInstance{ID: instanceID}, nil
}
func (m *MockWorkflowService) ListInstances(ctx context.Context, user string, filter domain.InstanceFilter) ([]domain.WorkflowInstance, error) {
	if m.ListInstancesFunc != nil {
		return m.ListInstancesFunc(user, filter)
	}
	return nil, nil
}
func (m *MockWorkflowService) GetHistory(ctx context.Context, user, instanceID string) ([]domain.HistoryEntry, error) {
	if m.GetHistoryFunc != nil {
		return m.GetHistoryFunc(user, instanceID)
	}
	return nil, nil
}
func (m *MockWorkflowService) CastVote(ctx context.Context, req engine.VoteRequest) (*domain.VoteRecord, error) {
	if m.CastVoteFunc != nil {
		return m.CastVoteFunc(req)
	}
	return nil, nil
}
func (m *MockWorkflowService) GetVote(ctx context.Context, instanceID, transitionID string) (*domain.VoteRecord, error) {
	if m.GetVoteFunc != nil {
		return m.GetVoteFunc(instanceID, transitionID)
	}
	return nil, nil
}

type MockSuggestionService struct {
	SuggestFunc   func(mc domain.MatchContext) ([]domain.WorkflowSuggestion, error)
	AutoStartFunc func(mc domain.MatchContext, req engine.StartRequest) (*engine.ExecutionResult, error)
}

func (m *MockSuggestionService) Suggest(ctx context.Context, mc domain.MatchContext) ([]domain.WorkflowSuggestion, error) {
	if m.SuggestFunc != nil {
		return m.SuggestFunc(mc)
	}
	return nil, nil
}
func (m *MockSuggestionService) AutoStart(ctx context.Context, mc domain.MatchContext, req engine.StartRequest) (*engine.ExecutionResult, error) {
	if m.AutoStartFunc != nil {
		return m.AutoStartFunc(mc, req)
	}
	return nil, nil
}

// MockAccess grants every action to the users listed in Allowed.
type MockAccess struct {
	Allowed map[string]bool
}

func (m *MockAccess) GetUserPermissions(ctx context.Context, username string) (*domain.Permissions, error) {
	return &domain.Permissions{Username: username}, nil
}
func (m *MockAccess) CanAccessResource(ctx context.Context, username, resource, action string) (bool, error) {
	return m.Allowed[username], nil
}

// authed returns a request that already passed RequireAuth as username.
func authed(req *http.Request, username string) *http.Request {
	return req.WithContext(core.WithUsername(req.Context(), username))
}

// apiKeyAuth resolves "key-<name>" to user <name>.
func apiKeyAuth() AuthController {
	return *NewBaseController(&MockUserRepo{
		FindByApiKeyFunc: func(apiKey string) (*domain.User, error) {
			if len(apiKey) > 4 && apiKey[:4] == "key-" {
				return &domain.User{Username: apiKey[4:]}, nil
			}
			return nil, nil
		},
	}, nil)
}

func serve(mux *http.ServeMux, req *http.Request, user string) *httptest.ResponseRecorder {
	if user != "" {
		req.Header.Set("X-API-Key", "key-"+user)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}
