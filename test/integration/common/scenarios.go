package common

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/internal/util"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ContractDefinition is a board approval process with an SLA on legal review.
func ContractDefinition(key string) map[string]any {
	return map[string]any{
		"key":  key,
		"name": "Contract Review",
		"states": []map[string]any{
			{"id": "draft", "label": "Draft", "isInitial": true},
			{"id": "legal", "label": "Legal review", "sla": map[string]any{"maxDurationHours": 48, "warningAtHours": 24}},
			{"id": "board", "label": "Board vote"},
			{"id": "signed", "label": "Signed", "isFinal": true},
			{"id": "rejected", "label": "Rejected", "isFinal": true},
		},
		"transitions": []map[string]any{
			{"id": "submit", "label": "Submit", "from": "draft", "to": "legal",
				"permission": map[string]any{"minAccessLevel": "write"}, "requiresAttachments": true},
			{"id": "clear", "label": "Clear", "from": "legal", "to": "board",
				"permission": map[string]any{"roles": []string{"counsel"}}},
			{"id": "approve", "label": "Approve", "from": "board", "to": "signed",
				"permission": map[string]any{"roles": []string{"board-member"}},
				"requiresVote": true, "voteType": "two-thirds",
				"conditions": []map[string]any{{"type": "field", "field": "value", "operator": "greaterThan", "value": 0}}},
			{"id": "reject", "label": "Reject", "from": "board", "to": "rejected", "requiresComment": true},
		},
		"fields": []map[string]any{
			{"name": "counterparty", "label": "Counterparty", "type": "text", "required": true},
			{"name": "value", "label": "Value", "type": "number", "required": true, "validation": map[string]any{"min": 0}},
		},
		"assignmentRules": []map[string]any{
			{"id": "contracts", "documentTypes": []string{"contract"}, "priority": 5},
		},
	}
}

func addContractUsers(h *Harness) {
	h.AddUser("admin", domain.AccessAdmin, nil, nil)
	h.AddUser("clerk", domain.AccessWrite, nil, nil)
	h.AddUser("counsel", domain.AccessApprove, []string{"counsel"}, nil)
	for _, name := range []string{"b1", "b2", "b3"} {
		h.AddUser(name, domain.AccessApprove, []string{"board-member"}, []string{"board"})
	}
}

func startContract(h *Harness, defID string) domain.WorkflowInstance {
	h.T.Helper()
	var res engine.ExecutionResult
	require.Equal(h.T, http.StatusCreated, h.Do("clerk", "POST", "/api/instances", map[string]any{
		"definitionId": defID,
		"fields":       map[string]any{"counterparty": "Acme", "value": 250000},
	}, &res))
	return *res.Instance
}

func transition(h *Harness, user, instanceID, transitionID string, body any) (int, domain.WorkflowInstance) {
	h.T.Helper()
	var res engine.ExecutionResult
	code := h.Do(user, "POST", "/api/instances/"+instanceID+"/transitions/"+transitionID, body, &res)
	if res.Instance == nil {
		return code, domain.WorkflowInstance{}
	}
	return code, *res.Instance
}

// RunContractApproval walks a contract from draft to signed through guards,
// SLA escalation and a two-thirds board vote.
func RunContractApproval(h *Harness) {
	t := h.T
	ctx := context.Background()
	addContractUsers(h)

	assert.Equal(t, http.StatusForbidden, h.Do("clerk", "POST", "/api/definitions", ContractDefinition("contract-review"), nil))
	def := h.CreateDefinition("admin", ContractDefinition("contract-review"))
	assert.Equal(t, 1, def.Version)

	var suggestions []domain.WorkflowSuggestion
	require.Equal(t, http.StatusOK, h.Do("clerk", "POST", "/api/suggestions", map[string]any{"documentType": "contract"}, &suggestions))
	require.NotEmpty(t, suggestions)
	assert.Equal(t, def.ID, suggestions[0].Definition.ID)

	assert.Equal(t, http.StatusBadRequest, h.Do("clerk", "POST", "/api/instances", map[string]any{
		"definitionId": def.ID, "fields": map[string]any{"value": 10},
	}, nil), "counterparty is required")

	inst := startContract(h, def.ID)
	assert.Equal(t, "draft", inst.CurrentState)
	assert.Equal(t, domain.StatusActive, inst.Status)

	code, _ := transition(h, "clerk", inst.ID, "submit", nil)
	assert.Equal(t, http.StatusBadRequest, code, "attachments are required")
	code, _ = transition(h, "clerk", inst.ID, "clear", nil)
	assert.Equal(t, http.StatusConflict, code, "clear is not available from draft")

	code, moved := transition(h, "clerk", inst.ID, "submit", map[string]any{
		"attachments": []map[string]any{{"id": "doc-1", "name": "contract.pdf"}},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "legal", moved.CurrentState)

	// SLA: one warning after 24h, one breach after 48h, never repeated
	h.Clock.Add(30 * time.Hour)
	fired, err := h.Server.SLA.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	fired, err = h.Server.SLA.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
	h.Clock.AdvanceTo(h.Clock.Now().Add(20 * time.Hour))
	fired, err = h.Server.SLA.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	events, err := h.Server.Audit.FindByInstanceID(ctx, inst.ID, 100)
	require.NoError(t, err)
	var slaEvents []string
	for _, ev := range events {
		if ev.Type == domain.AuditSLAWarning || ev.Type == domain.AuditSLABreach {
			slaEvents = append(slaEvents, ev.Type)
		}
	}
	assert.ElementsMatch(t, []string{domain.AuditSLAWarning, domain.AuditSLABreach}, slaEvents)

	code, _ = transition(h, "clerk", inst.ID, "clear", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, moved = transition(h, "counsel", inst.ID, "clear", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "board", moved.CurrentState)

	code, _ = transition(h, "b1", inst.ID, "approve", nil)
	assert.Equal(t, http.StatusAccepted, code, "approve waits for the vote")

	votePath := "/api/instances/" + inst.ID + "/votes/approve"
	var rec domain.VoteRecord
	require.Equal(t, http.StatusOK, h.Do("b1", "POST", votePath, map[string]any{"vote": "for"}, &rec))
	assert.Equal(t, domain.VotePending, rec.Vote.Status)
	assert.Equal(t, 3, rec.Vote.EligibleVoters)

	// re-voting replaces the ballot
	require.Equal(t, http.StatusOK, h.Do("b1", "POST", votePath, map[string]any{"vote": "for", "comment": "fine"}, &rec))
	assert.Equal(t, 1, rec.Tally.For)
	assert.Equal(t, http.StatusForbidden, h.Do("counsel", "POST", votePath, map[string]any{"vote": "for"}, nil))

	require.Equal(t, http.StatusOK, h.Do("b2", "POST", votePath, map[string]any{"vote": "for"}, &rec))
	assert.False(t, rec.Transitioned)
	require.Equal(t, http.StatusOK, h.Do("b3", "POST", votePath, map[string]any{"vote": "against"}, &rec))
	assert.Equal(t, domain.VotePassed, rec.Vote.Status)
	require.True(t, rec.Transitioned, rec.TransitionError)

	var final domain.WorkflowInstance
	require.Equal(t, http.StatusOK, h.Do("clerk", "GET", "/api/instances/"+inst.ID, nil, &final))
	assert.Equal(t, "signed", final.CurrentState)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, 4, final.StateVisit)

	var history []domain.HistoryEntry
	require.Equal(t, http.StatusOK, h.Do("clerk", "GET", "/api/instances/"+inst.ID+"/history", nil, &history))
	require.NotEmpty(t, history)
	assert.Equal(t, domain.HistoryStarted, history[0].Type)
	var transitions []string
	for _, e := range history {
		if e.Type == domain.HistoryTransition {
			transitions = append(transitions, e.TransitionID)
		}
	}
	assert.Equal(t, []string{"submit", "clear", "approve"}, transitions)

	var unchanged domain.WorkflowInstance
	require.Equal(t, http.StatusOK, h.Do("admin", "POST", "/api/instances/"+inst.ID+"/cancel", map[string]any{"reason": "late"}, &unchanged))
	assert.Equal(t, domain.StatusCompleted, unchanged.Status, "cancelling a finished instance is a no-op")
}

// RunDefinitionVersioning checks that running instances stay on their version.
func RunDefinitionVersioning(h *Harness) {
	t := h.T
	addContractUsers(h)

	v1 := h.CreateDefinition("admin", ContractDefinition("versioned"))
	inst := startContract(h, v1.ID)
	v2 := h.CreateDefinition("admin", ContractDefinition("versioned"))
	assert.Equal(t, 2, v2.Version)

	var versions []domain.WorkflowDefinition
	require.Equal(t, http.StatusOK, h.Do("clerk", "GET", "/api/definitions?key=versioned", nil, &versions))
	assert.Len(t, versions, 2)

	assert.Equal(t, http.StatusForbidden, h.Do("clerk", "POST", "/api/definitions/"+v1.ID+"/deactivate", nil, nil))
	require.Equal(t, http.StatusOK, h.Do("admin", "POST", "/api/definitions/"+v1.ID+"/deactivate", nil, nil))

	var got domain.WorkflowInstance
	require.Equal(t, http.StatusOK, h.Do("clerk", "GET", "/api/instances/"+inst.ID, nil, &got))
	assert.Equal(t, 1, got.DefinitionVersion)
	code, moved := transition(h, "clerk", inst.ID, "submit", map[string]any{
		"attachments": []map[string]any{{"id": "doc-1"}},
	})
	require.Equal(t, http.StatusOK, code, "instances of a deactivated version keep running")
	assert.Equal(t, "legal", moved.CurrentState)

	assert.Equal(t, http.StatusNotFound, h.Do("clerk", "POST", "/api/instances", map[string]any{
		"definitionId": v1.ID, "fields": map[string]any{"counterparty": "Acme", "value": 1},
	}, nil))

	var cancelled domain.WorkflowInstance
	require.Equal(t, http.StatusOK, h.Do("admin", "POST", "/api/instances/"+inst.ID+"/cancel", map[string]any{"reason": "superseded"}, &cancelled))
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
}

// RunConcurrentFieldUpdates races field updates on one instance; the version
// check and retry keep every update.
func RunConcurrentFieldUpdates(h *Harness) {
	t := h.T
	addContractUsers(h)
	def := h.CreateDefinition("admin", ContractDefinition("concurrent"))
	inst := startContract(h, def.ID)

	var wg sync.WaitGroup
	codes := make([]int, 3)
	for i, value := range []int{1, 2, 3} {
		wg.Add(1)
		go func(i, value int) {
			defer wg.Done()
			_, err := h.Server.Engine.UpdateFieldValues(context.Background(), engine.FieldUpdateRequest{
				User: "clerk", InstanceID: inst.ID, Values: map[string]any{"value": value},
			})
			if err != nil {
				codes[i] = -1
			}
		}(i, value)
	}
	wg.Wait()

	got, err := h.Server.Engine.GetInstance(context.Background(), "clerk", inst.ID)
	require.NoError(t, err)
	successes := 0
	for _, c := range codes {
		if c == 0 {
			successes++
		}
	}
	assert.EqualValues(t, 1+successes, got.Version, "every successful update bumps the version once")

	var history []domain.HistoryEntry
	require.Equal(t, http.StatusOK, h.Do("clerk", "GET", "/api/instances/"+inst.ID+"/history", nil, &history))
	changes := 0
	for _, e := range history {
		if e.Type == domain.HistoryFieldChange {
			changes++
		}
	}
	assert.LessOrEqual(t, changes, successes)
}

// RunSessionLogin logs in with a password and follows the session cookie until it expires.
func RunSessionLogin(h *Harness) {
	t := h.T
	h.AddUser("alice", domain.AccessWrite, nil, nil)

	login := func(password string) *http.Response {
		body := strings.NewReader(`{"username":"alice","password":"` + password + `"}`)
		resp, err := http.Post(h.URL+"/api/login", "application/json", body)
		require.NoError(t, err)
		return resp
	}
	denied := login("wrong")
	denied.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, denied.StatusCode)

	resp := login("pw-alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session, err := util.DecodeJSONBodyResponse[map[string]any](resp)
	require.NoError(t, err)
	assert.Equal(t, "alice", session["username"])
	require.NotEmpty(t, resp.Cookies())
	cookie := resp.Cookies()[0]

	me := func() int {
		req, err := http.NewRequest("GET", h.URL+"/api/me", nil)
		require.NoError(t, err)
		req.AddCookie(cookie)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, me())
	h.Clock.Add(2 * time.Hour)
	assert.Equal(t, http.StatusUnauthorized, me(), "sessions expire")
}
