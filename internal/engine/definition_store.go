package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/govflow/internal/cache"
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/google/uuid"
)

const activeKey = "active"

// DefinitionStore persists workflow definitions and serves reads from a TTL cache.
// Every write drops the whole cache.
type DefinitionStore struct {
	repo   DefinitionRepo
	audit  AuditSink
	clock  core.Clock
	byID   *cache.TTLCache[string, *domain.WorkflowDefinition]
	active *cache.TTLCache[string, []domain.WorkflowDefinition]
}

func NewDefinitionStore(repo DefinitionRepo, audit AuditSink, clock core.Clock, ttl time.Duration) *DefinitionStore {
	return &DefinitionStore{
		repo:   repo,
		audit:  audit,
		clock:  clock,
		byID:   cache.NewTTLCache[string, *domain.WorkflowDefinition](ttl, clock),
		active: cache.NewTTLCache[string, []domain.WorkflowDefinition](ttl, clock),
	}
}

// Create validates and publishes a definition. A definition whose key already
// exists becomes the next version of that key.
func (s *DefinitionStore) Create(ctx context.Context, actor string, def domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
	def.Normalize()
	if violations := def.Validate(); len(violations) > 0 {
		return nil, domain.NewValidationError("CreateDefinition", "invalid workflow definition", violations)
	}
	def.ID = uuid.NewString()
	def.IsActive = true
	def.CreatedBy = actor
	def.Created = s.clock.Now().UTC()

	if err := s.repo.Save(ctx, &def); err != nil {
		return nil, err
	}
	s.Invalidate()

	recordEvent(ctx, s.audit, s.clock, domain.AuditEvent{
		Type:           domain.AuditDefinitionCreated,
		Actor:          actor,
		DefinitionID:   def.ID,
		IdempotencyKey: domain.AuditDefinitionCreated + ":" + def.ID,
		Payload:        map[string]any{"key": def.Key, "version": def.Version},
	})
	slog.InfoContext(ctx, "Definition created", "id", def.ID, "key", def.Key, "version", def.Version)
	return &def, nil
}

// Get resolves any version by id, including inactive ones so running instances keep working.
func (s *DefinitionStore) Get(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	if def, ok := s.byID.Get(id); ok {
		return def, nil
	}
	def, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.byID.Put(id, def)
	return def, nil
}

// ListActive returns the active latest version of every definition key in creation order.
func (s *DefinitionStore) ListActive(ctx context.Context) ([]domain.WorkflowDefinition, error) {
	if defs, ok := s.active.Get(activeKey); ok {
		return defs, nil
	}
	defs, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	s.active.Put(activeKey, defs)
	return defs, nil
}

func (s *DefinitionStore) Versions(ctx context.Context, key string) ([]domain.WorkflowDefinition, error) {
	return s.repo.FindVersions(ctx, key)
}

// FindMatching returns the active definitions with at least one assignment rule
// matching mc, best match first.
func (s *DefinitionStore) FindMatching(ctx context.Context, mc domain.MatchContext) ([]domain.WorkflowDefinition, error) {
	defs, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ranked := rank(defs, mc)
	out := make([]domain.WorkflowDefinition, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, *r.Definition)
	}
	return out, nil
}

// Deactivate hides a definition from routing and new starts. Running instances are unaffected.
func (s *DefinitionStore) Deactivate(ctx context.Context, actor, id string) error {
	def, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !def.IsActive {
		return nil
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.Invalidate()

	recordEvent(ctx, s.audit, s.clock, domain.AuditEvent{
		Type:           domain.AuditDefinitionDeactivated,
		Actor:          actor,
		DefinitionID:   id,
		IdempotencyKey: domain.AuditDefinitionDeactivated + ":" + id,
	})
	slog.InfoContext(ctx, "Definition deactivated", "id", id, "key", def.Key)
	return nil
}

// Invalidate drops every cached read.
func (s *DefinitionStore) Invalidate() {
	s.byID.Invalidate()
	s.active.Invalidate()
}
