package engine

import (
	"context"
	"time"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// DefinitionRepo defines the interface for definition persistence, matching repository.DefinitionRepository.
type DefinitionRepo interface {
	Save(ctx context.Context, def *domain.WorkflowDefinition) error
	FindByID(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	FindActive(ctx context.Context) ([]domain.WorkflowDefinition, error)
	FindVersions(ctx context.Context, key string) ([]domain.WorkflowDefinition, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// InstanceRepo defines the interface for instance persistence, matching repository.InstanceRepository.
// Update must fail with domain.ErrVersionConflict when the stored version differs from expectedVersion.
type InstanceRepo interface {
	Create(ctx context.Context, inst *domain.WorkflowInstance, history []domain.HistoryEntry) error
	Update(ctx context.Context, inst *domain.WorkflowInstance, expectedVersion int64, history []domain.HistoryEntry) error
	FindByID(ctx context.Context, id string) (*domain.WorkflowInstance, error)
	Search(ctx context.Context, filter domain.InstanceFilter) ([]domain.WorkflowInstance, error)
	FindHistory(ctx context.Context, instanceID string) ([]domain.HistoryEntry, error)
}

// VoteRepo defines the interface for ballot box persistence, matching repository.VoteRepository.
type VoteRepo interface {
	Find(ctx context.Context, instanceID, transitionID string, stateVisit int) (*domain.WorkflowVote, error)
	Create(ctx context.Context, v *domain.WorkflowVote) error
	Update(ctx context.Context, v *domain.WorkflowVote, expectedVersion int64) error
}

// AuditSink records audit events; an event whose idempotency key was already recorded returns false.
type AuditSink interface {
	RecordEvent(ctx context.Context, ev domain.AuditEvent) (bool, error)
}

// AccessControl answers who a user is and what they may do.
type AccessControl interface {
	GetUserPermissions(ctx context.Context, username string) (*domain.Permissions, error)
	CanAccessResource(ctx context.Context, username, resource, action string) (bool, error)
}

// MembershipDirectory sizes the electorate of a vote.
type MembershipDirectory interface {
	CountEligibleVoters(ctx context.Context, committee string, roles []string) (int, error)
}

// DocumentService is the document management system that owns document state.
type DocumentService interface {
	UpdateDocumentState(ctx context.Context, ref domain.DocumentRef, state, actor string) error
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type WebhookClient interface {
	Send(ctx context.Context, hook domain.WebhookAction, payload any) error
}

// UserRepo defines the interface for user persistence used by authentication.
type UserRepo interface {
	FindBySessionID(ctx context.Context, sessionID string, now time.Time) (*domain.User, error)
	FindByApiKey(ctx context.Context, apiKey string) (*domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
	Save(ctx context.Context, user *domain.User) (int64, error)
	FindById(ctx context.Context, id int64) (*domain.User, error)
	DeleteById(ctx context.Context, id int64) error
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateSession(ctx context.Context, userID int64, sessionID string, expiry time.Time) error
	ClearSessionBySessionID(ctx context.Context, sessionID string) error
}
