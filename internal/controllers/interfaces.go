package controllers

import (
	"context"

	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// DefinitionService is implemented by engine.DefinitionStore.
type DefinitionService interface {
	Create(ctx context.Context, actor string, def domain.WorkflowDefinition) (*domain.WorkflowDefinition, error)
	Get(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	ListActive(ctx context.Context) ([]domain.WorkflowDefinition, error)
	Versions(ctx context.Context, key string) ([]domain.WorkflowDefinition, error)
	Deactivate(ctx context.Context, actor, id string) error
}

// WorkflowService is implemented by engine.Engine.
type WorkflowService interface {
	StartWorkflow(ctx context.Context, req engine.StartRequest) (*engine.ExecutionResult, error)
	ExecuteTransition(ctx context.Context, req engine.TransitionRequest) (*engine.ExecutionResult, error)
	UpdateFieldValues(ctx context.Context, req engine.FieldUpdateRequest) (*engine.ExecutionResult, error)
	CancelInstance(ctx context.Context, user, instanceID, reason string) (*domain.WorkflowInstance, error)
	GetInstance(ctx context.Context, user, instanceID string) (*domain.WorkflowInstance, error)
	ListInstances(ctx context.Context, user string, filter domain.InstanceFilter) ([]domain.WorkflowInstance, error)
	GetHistory(ctx context.Context, user, instanceID string) ([]domain.HistoryEntry, error)
	CastVote(ctx context.Context, req engine.VoteRequest) (*domain.VoteRecord, error)
	GetVote(ctx context.Context, instanceID, transitionID string) (*domain.VoteRecord, error)
}

// SuggestionService is implemented by engine.Router.
type SuggestionService interface {
	Suggest(ctx context.Context, mc domain.MatchContext) ([]domain.WorkflowSuggestion, error)
	AutoStart(ctx context.Context, mc domain.MatchContext, req engine.StartRequest) (*engine.ExecutionResult, error)
}
