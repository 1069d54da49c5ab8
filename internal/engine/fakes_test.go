package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/RealZimboGuy/govflow/test/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type memDefinitionRepo struct {
	mu        sync.Mutex
	defs      []domain.WorkflowDefinition
	findCalls int
}

func (m *memDefinitionRepo) Save(_ context.Context, def *domain.WorkflowDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	version := 0
	for i := range m.defs {
		if m.defs[i].Key == def.Key {
			m.defs[i].IsLatest = false
			if m.defs[i].Version > version {
				version = m.defs[i].Version
			}
		}
	}
	def.Version = version + 1
	def.IsLatest = true
	m.defs = append(m.defs, *def)
	return nil
}

func (m *memDefinitionRepo) FindByID(_ context.Context, id string) (*domain.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	for i := range m.defs {
		if m.defs[i].ID == id {
			def := m.defs[i]
			return &def, nil
		}
	}
	return nil, domain.NewError(domain.ErrNotFound, "FindByID", "definition %s not found", id)
}

func (m *memDefinitionRepo) FindActive(_ context.Context) ([]domain.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkflowDefinition
	for _, d := range m.defs {
		if d.IsActive && d.IsLatest {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDefinitionRepo) FindVersions(_ context.Context, key string) ([]domain.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkflowDefinition
	for _, d := range m.defs {
		if d.Key == key {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDefinitionRepo) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.defs {
		if m.defs[i].ID == id {
			m.defs[i].IsActive = active
			return nil
		}
	}
	return domain.NewError(domain.ErrNotFound, "SetActive", "definition %s not found", id)
}

type memInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]*domain.WorkflowInstance
	history   map[string][]domain.HistoryEntry
	// beforeUpdate runs ahead of every compare-and-set, letting tests inject races
	beforeUpdate func(inst *domain.WorkflowInstance)
	updates      int
}

func newMemInstanceRepo() *memInstanceRepo {
	return &memInstanceRepo{instances: map[string]*domain.WorkflowInstance{}, history: map[string][]domain.HistoryEntry{}}
}

func (m *memInstanceRepo) Create(_ context.Context, inst *domain.WorkflowInstance, history []domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst.Version = 1
	m.instances[inst.ID] = inst.Clone()
	m.appendLocked(inst.ID, history)
	return nil
}

func (m *memInstanceRepo) Update(_ context.Context, inst *domain.WorkflowInstance, expectedVersion int64, history []domain.HistoryEntry) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate(inst)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.instances[inst.ID]
	if !ok || stored.Version != expectedVersion {
		return domain.NewError(domain.ErrVersionConflict, "Update", "instance %s was modified concurrently", inst.ID)
	}
	m.updates++
	inst.Version = expectedVersion + 1
	m.instances[inst.ID] = inst.Clone()
	m.appendLocked(inst.ID, history)
	return nil
}

func (m *memInstanceRepo) appendLocked(id string, history []domain.HistoryEntry) {
	for _, h := range history {
		h.ID = uuid.NewString()
		h.InstanceID = id
		h.Sequence = int64(len(m.history[id]) + 1)
		m.history[id] = append(m.history[id], h)
	}
}

// bump simulates a concurrent writer.
func (m *memInstanceRepo) bump(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[id].Version++
}

func (m *memInstanceRepo) FindByID(_ context.Context, id string) (*domain.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "FindByID", "instance %s not found", id)
	}
	return inst.Clone(), nil
}

func (m *memInstanceRepo) Search(_ context.Context, filter domain.InstanceFilter) ([]domain.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkflowInstance
	for _, inst := range m.instances {
		if filter.DefinitionID != "" && inst.DefinitionID != filter.DefinitionID {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		if a := filter.After; a != nil && (inst.Created.Before(a.Created) || (inst.Created.Equal(a.Created) && inst.ID <= a.ID)) {
			continue
		}
		out = append(out, *inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memInstanceRepo) FindHistory(_ context.Context, id string) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.HistoryEntry(nil), m.history[id]...), nil
}

type memVoteRepo struct {
	mu    sync.Mutex
	votes map[string]*domain.WorkflowVote
}

func newMemVoteRepo() *memVoteRepo {
	return &memVoteRepo{votes: map[string]*domain.WorkflowVote{}}
}

func voteKey(instanceID, transitionID string, visit int) string {
	return fmt.Sprintf("%s/%s/%d", instanceID, transitionID, visit)
}

func copyVote(v *domain.WorkflowVote) *domain.WorkflowVote {
	c := *v
	c.Ballots = make(map[string]domain.Ballot, len(v.Ballots))
	for k, b := range v.Ballots {
		c.Ballots[k] = b
	}
	return &c
}

func (m *memVoteRepo) Find(_ context.Context, instanceID, transitionID string, visit int) (*domain.WorkflowVote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.votes[voteKey(instanceID, transitionID, visit)]
	if !ok {
		return nil, nil
	}
	return copyVote(v), nil
}

func (m *memVoteRepo) Create(_ context.Context, v *domain.WorkflowVote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := voteKey(v.InstanceID, v.TransitionID, v.StateVisit)
	if _, exists := m.votes[key]; exists {
		return domain.NewError(domain.ErrVersionConflict, "Create", "vote already open")
	}
	v.Version = 1
	m.votes[key] = copyVote(v)
	return nil
}

func (m *memVoteRepo) Update(_ context.Context, v *domain.WorkflowVote, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := voteKey(v.InstanceID, v.TransitionID, v.StateVisit)
	stored, ok := m.votes[key]
	if !ok || stored.Version != expectedVersion {
		return domain.NewError(domain.ErrVersionConflict, "Update", "vote modified concurrently")
	}
	v.Version = expectedVersion + 1
	m.votes[key] = copyVote(v)
	return nil
}

type memAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	keys   map[string]bool
}

func (m *memAudit) RecordEvent(_ context.Context, ev domain.AuditEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[ev.IdempotencyKey] {
		return false, nil
	}
	m.keys[ev.IdempotencyKey] = true
	m.events = append(m.events, ev)
	return true, nil
}

func (m *memAudit) ofType(kind string) []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range m.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

// fakeAccess grants capabilities by access level: update needs write, cancel needs approve.
type fakeAccess struct {
	users map[string]domain.Permissions
}

func (f *fakeAccess) GetUserPermissions(_ context.Context, username string) (*domain.Permissions, error) {
	p, ok := f.users[username]
	if !ok {
		return &domain.Permissions{Username: username}, nil
	}
	return &p, nil
}

func (f *fakeAccess) CanAccessResource(ctx context.Context, username, _ string, action string) (bool, error) {
	p, _ := f.GetUserPermissions(ctx, username)
	switch action {
	case "update":
		return p.AccessLevel.AtLeast(domain.AccessWrite), nil
	case "cancel":
		return p.AccessLevel.AtLeast(domain.AccessApprove), nil
	}
	return p.AccessLevel.AtLeast(domain.AccessRead), nil
}

type MockMembership struct {
	CountEligibleVotersFunc func(committee string, roles []string) (int, error)
}

func (m *MockMembership) CountEligibleVoters(_ context.Context, committee string, roles []string) (int, error) {
	if m.CountEligibleVotersFunc != nil {
		return m.CountEligibleVotersFunc(committee, roles)
	}
	return 0, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) templates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Template)
	}
	return out
}

type MockDocumentService struct {
	UpdateDocumentStateFunc func(ref domain.DocumentRef, state, actor string) error
}

func (m *MockDocumentService) UpdateDocumentState(_ context.Context, ref domain.DocumentRef, state, actor string) error {
	if m.UpdateDocumentStateFunc != nil {
		return m.UpdateDocumentStateFunc(ref, state, actor)
	}
	return nil
}

type MockWebhookClient struct {
	SendFunc func(hook domain.WebhookAction, payload any) error
}

func (m *MockWebhookClient) Send(_ context.Context, hook domain.WebhookAction, payload any) error {
	if m.SendFunc != nil {
		return m.SendFunc(hook, payload)
	}
	return nil
}

var errDMSDown = errors.New("dms unavailable")

type harness struct {
	clock     *integration.FakeClock
	defs      *memDefinitionRepo
	instances *memInstanceRepo
	votes     *memVoteRepo
	audit     *memAudit
	access    *fakeAccess
	members   *MockMembership
	notifier  *recordingNotifier
	documents *MockDocumentService
	webhooks  *MockWebhookClient
	store     *DefinitionStore
	engine    *Engine
	router    *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	config.Reset()
	h := &harness{
		clock:     integration.NewFakeClock(t0),
		defs:      &memDefinitionRepo{},
		instances: newMemInstanceRepo(),
		votes:     newMemVoteRepo(),
		audit:     &memAudit{},
		access: &fakeAccess{users: map[string]domain.Permissions{
			"alice": {Username: "alice", AccessLevel: domain.AccessWrite, Roles: []string{"author"}},
			"bob":   {Username: "bob", AccessLevel: domain.AccessApprove, Roles: []string{"reviewer"}, Committees: []string{"ethics"}},
			"carol": {Username: "carol", AccessLevel: domain.AccessApprove, Roles: []string{"reviewer"}, Committees: []string{"ethics"}},
			"dave":  {Username: "dave", AccessLevel: domain.AccessApprove, Roles: []string{"reviewer"}, Committees: []string{"ethics"}},
			"eve":   {Username: "eve", AccessLevel: domain.AccessRead},
			"admin": {Username: "admin", AccessLevel: domain.AccessAdmin},
		}},
		members:   &MockMembership{},
		notifier:  &recordingNotifier{},
		documents: &MockDocumentService{},
		webhooks:  &MockWebhookClient{},
	}
	h.store = NewDefinitionStore(h.defs, h.audit, h.clock, 5*time.Minute)
	actions := NewActionRunner(h.notifier, h.documents, h.webhooks, h.audit, h.clock)
	h.engine = NewEngine(h.store, h.instances, h.votes, h.audit, h.access, h.members, actions, h.clock)
	h.router = NewRouter(h.store, h.engine)
	return h
}

func (h *harness) publish(t *testing.T, def domain.WorkflowDefinition) *domain.WorkflowDefinition {
	t.Helper()
	created, err := h.store.Create(context.Background(), "admin", def)
	require.NoError(t, err)
	return created
}

func (h *harness) start(t *testing.T, def *domain.WorkflowDefinition, fields map[string]any) *domain.WorkflowInstance {
	t.Helper()
	res, err := h.engine.StartWorkflow(context.Background(), StartRequest{User: "alice", DefinitionID: def.ID, Fields: fields, Committee: "ethics"})
	require.NoError(t, err)
	return res.Instance
}

func floatPtr(f float64) *float64 { return &f }

// approvalFlow is draft -> review -> approved, with a rejection path back to draft.
func approvalFlow() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		Name: "Document Approval",
		States: []domain.WorkflowState{
			{ID: "draft", Label: "Draft", IsInitial: true},
			{ID: "review", Label: "In Review", OnEnter: domain.Actions{
				domain.AssignAction{Committee: "ethics"},
				domain.NotifyAction{Targets: []string{"committee"}, Template: "review-requested"},
			}},
			{ID: "approved", Label: "Approved", IsFinal: true},
		},
		Transitions: []domain.WorkflowTransition{
			{ID: "submit", From: "draft", To: "review", Permission: domain.TransitionPermission{Roles: []string{"author"}}},
			{ID: "approve", From: "review", To: "approved", Permission: domain.TransitionPermission{Roles: []string{"reviewer"}}},
			{ID: "reject", From: "review", To: "draft", RequiresComment: true, Permission: domain.TransitionPermission{Roles: []string{"reviewer"}}},
		},
		Fields: []domain.WorkflowField{
			{Name: "title", Label: "Title", Type: domain.FieldText, Required: true, Validation: &domain.FieldValidation{Max: floatPtr(80)}},
			{Name: "amount", Label: "Amount", Type: domain.FieldNumber, Validation: &domain.FieldValidation{Min: floatPtr(0)}},
			{Name: "decision", Label: "Decision", Type: domain.FieldSelect, EditableInStates: []string{"review"},
				Validation: &domain.FieldValidation{Options: []string{"accept", "decline"}}},
		},
		Settings: domain.WorkflowSettings{NotifyOnComplete: true},
	}
}
