package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *DefinitionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/definitions", c.RequireAuth(c.handleListDefinitions))
	mux.HandleFunc("POST /api/definitions", c.RequireAuth(c.handleCreateDefinition))
	mux.HandleFunc("GET /api/definitions/schema", c.RequireAuth(c.handleDefinitionSchema))
	mux.HandleFunc("GET /api/definitions/{id}", c.RequireAuth(c.handleGetDefinition))
	mux.HandleFunc("POST /api/definitions/{id}/deactivate", c.RequireAuth(c.handleDeactivateDefinition))
}
func (c *SuggestionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/suggestions", c.RequireAuth(c.handleSuggest))
	mux.HandleFunc("POST /api/suggestions/autostart", c.RequireAuth(c.handleAutoStart))
}
func (c *InstancesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/instances", c.RequireAuth(c.handleListInstances))
	mux.HandleFunc("POST /api/instances", c.RequireAuth(c.handleStartInstance))
	mux.HandleFunc("GET /api/instances/{id}", c.RequireAuth(c.handleGetInstance))
	mux.HandleFunc("GET /api/instances/{id}/history", c.RequireAuth(c.handleGetHistory))
	mux.HandleFunc("POST /api/instances/{id}/transitions/{transitionId}", c.RequireAuth(c.handleExecuteTransition))
	mux.HandleFunc("POST /api/instances/{id}/fields", c.RequireAuth(c.handleUpdateFields))
	mux.HandleFunc("POST /api/instances/{id}/cancel", c.RequireAuth(c.handleCancelInstance))
	mux.HandleFunc("POST /api/instances/{id}/votes/{transitionId}", c.RequireAuth(c.handleCastVote))
	mux.HandleFunc("GET /api/instances/{id}/votes/{transitionId}", c.RequireAuth(c.handleGetVote))
}
func (c *UsersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", c.RequireAuth(c.handleGetUsers))
	mux.HandleFunc("POST /api/users", c.RequireAuth(c.handleCreateUser))
	mux.HandleFunc("GET /api/users/{id}", c.RequireAuth(c.handleGetUserById))
	mux.HandleFunc("DELETE /api/users/{id}", c.RequireAuth(c.handleDeleteUser))
}
