package controllers

import (
	"net/http"

	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/internal/util"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

type DefinitionsController struct {
	AuthController
	Definitions DefinitionService
	Access      engine.AccessControl
}

func NewDefinitionsController(definitions DefinitionService, access engine.AccessControl, auth AuthController) *DefinitionsController {
	return &DefinitionsController{AuthController: auth, Definitions: definitions, Access: access}
}

func (c *DefinitionsController) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := util.DecodeJSONBody[domain.WorkflowDefinition](r)
	if err != nil {
		badRequest(w, "invalid definition payload: "+err.Error())
		return
	}
	if !c.allowed(w, r, "definition:"+def.Key, "admin") {
		return
	}
	created, err := c.Definitions.Create(r.Context(), currentUser(r), def)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, created)
}

func (c *DefinitionsController) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	var (
		defs []domain.WorkflowDefinition
		err  error
	)
	if key := r.URL.Query().Get("key"); key != "" {
		defs, err = c.Definitions.Versions(r.Context(), key)
	} else {
		defs, err = c.Definitions.ListActive(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if defs == nil {
		defs = []domain.WorkflowDefinition{}
	}
	util.WriteJSONResponse(w, http.StatusOK, defs)
}

func (c *DefinitionsController) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := c.Definitions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, def)
}

func (c *DefinitionsController) handleDeactivateDefinition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !c.allowed(w, r, "definition:"+id, "deactivate") {
		return
	}
	if err := c.Definitions.Deactivate(r.Context(), currentUser(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "deactivated", "id": id})
}

func (c *DefinitionsController) handleDefinitionSchema(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONResponse(w, http.StatusOK, DefinitionSchema())
}

// allowed writes a 403 and returns false when the caller may not perform action.
func (c *DefinitionsController) allowed(w http.ResponseWriter, r *http.Request, resource, action string) bool {
	ok, err := c.Access.CanAccessResource(r.Context(), currentUser(r), resource, action)
	if err != nil {
		writeError(w, r, err)
		return false
	}
	if !ok {
		writeError(w, r, domain.NewError(domain.ErrForbidden, "definitions", "%s on %s not permitted", action, resource))
		return false
	}
	return true
}
