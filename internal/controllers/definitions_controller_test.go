package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDefinition = `{
  "key": "board-approval",
  "name": "Board Approval",
  "states": [
    {"id": "draft", "label": "Draft", "isInitial": true},
    {"id": "approved", "label": "Approved", "isFinal": true, "onEnter": [{"type": "notify", "targets": ["creator"], "template": "done"}]}
  ],
  "transitions": [
    {"id": "approve", "label": "Approve", "from": "draft", "to": "approved", "permission": {"minAccessLevel": "approve"},
     "conditions": [{"type": "field", "field": "amount", "operator": "lessThan", "value": 1000}]}
  ],
  "settings": {}
}`

func definitionsMux(defs *MockDefinitionService) *http.ServeMux {
	mux := http.NewServeMux()
	c := NewDefinitionsController(defs, &MockAccess{Allowed: map[string]bool{"root": true}}, apiKeyAuth())
	c.RegisterRoutes(mux)
	return mux
}

func TestDefinitionsController_Create(t *testing.T) {
	var actor string
	var got domain.WorkflowDefinition
	mux := definitionsMux(&MockDefinitionService{
		CreateFunc: func(a string, def domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
			actor, got = a, def
			def.ID, def.Version = "def-1", 1
			return &def, nil
		},
	})

	w := serve(mux, httptest.NewRequest("POST", "/api/definitions", strings.NewReader(minimalDefinition)), "root")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "root", actor)
	require.Len(t, got.States, 2)
	require.Len(t, got.States[1].OnEnter, 1)
	assert.Equal(t, domain.NotifyAction{Targets: []string{"creator"}, Template: "done"}, got.States[1].OnEnter[0])
	require.Len(t, got.Transitions[0].Conditions, 1)

	var created domain.WorkflowDefinition
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "def-1", created.ID)
}

func TestDefinitionsController_CreateRequiresAdmin(t *testing.T) {
	called := false
	mux := definitionsMux(&MockDefinitionService{
		CreateFunc: func(string, domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
			called = true
			return nil, nil
		},
	})
	w := serve(mux, httptest.NewRequest("POST", "/api/definitions", strings.NewReader(minimalDefinition)), "alice")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, called)

	w = serve(mux, httptest.NewRequest("POST", "/api/definitions", strings.NewReader(minimalDefinition)), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDefinitionsController_CreateValidationErrors(t *testing.T) {
	mux := definitionsMux(&MockDefinitionService{
		CreateFunc: func(string, domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
			return nil, domain.NewValidationError("definitions.create", "invalid definition", []domain.Violation{
				{Field: "states", Message: "exactly one initial state required"},
				{Field: "transitions[0].to", Message: "unknown state"},
			})
		},
	})
	w := serve(mux, httptest.NewRequest("POST", "/api/definitions", strings.NewReader(minimalDefinition)), "root")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Len(t, body.Violations, 2)

	w = serve(mux, httptest.NewRequest("POST", "/api/definitions", strings.NewReader(`{"bogus": true}`)), "root")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDefinitionsController_GetAndList(t *testing.T) {
	mux := definitionsMux(&MockDefinitionService{
		GetFunc: func(id string) (*domain.WorkflowDefinition, error) {
			if id == "def-1" {
				return &domain.WorkflowDefinition{ID: "def-1", Key: "board-approval"}, nil
			}
			return nil, domain.NewError(domain.ErrNotFound, "get", "definition %s not found", id)
		},
		ListActiveFunc: func() ([]domain.WorkflowDefinition, error) {
			return []domain.WorkflowDefinition{{ID: "def-1"}}, nil
		},
		VersionsFunc: func(key string) ([]domain.WorkflowDefinition, error) {
			return []domain.WorkflowDefinition{{ID: "def-1", Key: key}, {ID: "def-2", Key: key}}, nil
		},
	})

	w := serve(mux, httptest.NewRequest("GET", "/api/definitions/def-1", nil), "alice")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(mux, httptest.NewRequest("GET", "/api/definitions/missing", nil), "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(mux, httptest.NewRequest("GET", "/api/definitions", nil), "alice")
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.WorkflowDefinition
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Len(t, list, 1)

	w = serve(mux, httptest.NewRequest("GET", "/api/definitions?key=board-approval", nil), "alice")
	require.Equal(t, http.StatusOK, w.Code)
	list = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Len(t, list, 2)
}

func TestDefinitionsController_Deactivate(t *testing.T) {
	var deactivated string
	mux := definitionsMux(&MockDefinitionService{
		DeactivateFunc: func(actor, id string) error {
			deactivated = id
			return nil
		},
	})
	w := serve(mux, httptest.NewRequest("POST", "/api/definitions/def-1/deactivate", nil), "alice")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, deactivated)

	w = serve(mux, httptest.NewRequest("POST", "/api/definitions/def-1/deactivate", nil), "root")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "def-1", deactivated)
}

func TestDefinitionsController_Schema(t *testing.T) {
	mux := definitionsMux(&MockDefinitionService{})
	w := serve(mux, httptest.NewRequest("GET", "/api/definitions/schema", nil), "alice")
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "states")
	assert.Contains(t, props, "transitions")
	raw, err := json.Marshal(DefinitionSchema())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"oneOf"`)
	assert.Contains(t, string(raw), `"const":"timeInState"`)
	assert.Contains(t, string(raw), `"const":"webhook"`)
}
