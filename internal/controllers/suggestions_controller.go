package controllers

import (
	"net/http"

	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/internal/util"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

type autoStartRequest struct {
	Context     domain.MatchContext `json:"context"`
	Fields      map[string]any      `json:"fields,omitempty"`
	DocumentRef *domain.DocumentRef `json:"documentRef,omitempty"`
	Committee   string              `json:"committee,omitempty"`
}

type SuggestionsController struct {
	AuthController
	Router SuggestionService
}

func NewSuggestionsController(router SuggestionService, auth AuthController) *SuggestionsController {
	return &SuggestionsController{AuthController: auth, Router: router}
}

func (c *SuggestionsController) handleSuggest(w http.ResponseWriter, r *http.Request) {
	mc, err := util.DecodeJSONBody[domain.MatchContext](r)
	if err != nil {
		badRequest(w, "invalid JSON payload")
		return
	}
	suggestions, err := c.Router.Suggest(r.Context(), mc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if suggestions == nil {
		suggestions = []domain.WorkflowSuggestion{}
	}
	util.WriteJSONResponse(w, http.StatusOK, suggestions)
}

// handleAutoStart answers 204 when no rule opted into auto start.
func (c *SuggestionsController) handleAutoStart(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[autoStartRequest](r)
	if err != nil {
		badRequest(w, "invalid JSON payload")
		return
	}
	res, err := c.Router.AutoStart(r.Context(), req.Context, engine.StartRequest{
		User:        currentUser(r),
		Fields:      req.Fields,
		DocumentRef: req.DocumentRef,
		Committee:   req.Committee,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, res)
}
