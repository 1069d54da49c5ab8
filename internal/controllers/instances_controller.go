package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/internal/util"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

type startInstanceRequest struct {
	DefinitionID string              `json:"definitionId"`
	Fields       map[string]any      `json:"fields"`
	DocumentRef  *domain.DocumentRef `json:"documentRef,omitempty"`
	Committee    string              `json:"committee,omitempty"`
}

type transitionRequest struct {
	Comment     string              `json:"comment,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type fieldsRequest struct {
	Values map[string]any `json:"values"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type voteRequest struct {
	Vote    domain.VoteChoice `json:"vote"`
	Comment string            `json:"comment,omitempty"`
}

// InstancesController exposes workflow instances, their history and votes.
type InstancesController struct {
	AuthController
	Workflows WorkflowService
}

func NewInstancesController(workflows WorkflowService, auth AuthController) *InstancesController {
	return &InstancesController{AuthController: auth, Workflows: workflows}
}

func (c *InstancesController) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[startInstanceRequest](r)
	if err != nil {
		badRequest(w, "invalid JSON payload")
		return
	}
	if req.DefinitionID == "" {
		badRequest(w, "definitionId is required")
		return
	}
	res, err := c.Workflows.StartWorkflow(r.Context(), engine.StartRequest{
		User:         currentUser(r),
		DefinitionID: req.DefinitionID,
		Fields:       req.Fields,
		DocumentRef:  req.DocumentRef,
		Committee:    req.Committee,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, res)
}

func (c *InstancesController) handleListInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.InstanceFilter{
		DefinitionID: q.Get("definitionId"),
		Status:       domain.InstanceStatus(q.Get("status")),
	}
	filter.Limit = config.GetSystemSettingInteger(config.WEB_INSTANCE_PAGE_SIZE)
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	afterCreated, afterID := q.Get("afterCreated"), q.Get("afterId")
	if afterCreated != "" || afterID != "" {
		created, err := time.Parse(time.RFC3339Nano, afterCreated)
		if err != nil || afterID == "" {
			badRequest(w, "afterCreated (RFC 3339) and afterId must be given together")
			return
		}
		filter.After = &domain.InstanceCursor{Created: created, ID: afterID}
	}
	list, err := c.Workflows.ListInstances(r.Context(), currentUser(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.WorkflowInstance{}
	}
	util.WriteJSONResponse(w, http.StatusOK, list)
}

func (c *InstancesController) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := c.Workflows.GetInstance(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, inst)
}

func (c *InstancesController) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := c.Workflows.GetHistory(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	util.WriteJSONResponse(w, http.StatusOK, history)
}

// handleExecuteTransition answers 202 with the VOTING_REQUIRED code when the
// transition waits on a vote.
func (c *InstancesController) handleExecuteTransition(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[transitionRequest](r)
	if err != nil {
		badRequest(w, "invalid JSON payload")
		return
	}
	res, err := c.Workflows.ExecuteTransition(r.Context(), engine.TransitionRequest{
		User:         currentUser(r),
		InstanceID:   r.PathValue("id"),
		TransitionID: r.PathValue("transitionId"),
		Comment:      req.Comment,
		Attachments:  req.Attachments,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, res)
}

func (c *InstancesController) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[fieldsRequest](r)
	if err != nil {
		badRequest(w, "invalid JSON payload")
		return
	}
	if len(req.Values) == 0 {
		badRequest(w, "values are required")
		return
	}
	res, err := c.Workflows.UpdateFieldValues(r.Context(), engine.FieldUpdateRequest{
		User:       currentUser(r),
		InstanceID: r.PathValue("id"),
		Values:     req.Values,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, res)
}

func (c *InstancesController) handleCancelInstance(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[cancelRequest](r)
	if err != nil {
		badRequest(w, "invalid JSON payload")
		return
	}
	inst, err := c.Workflows.CancelInstance(r.Context(), currentUser(r), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, inst)
}

func (c *InstancesController) handleCastVote(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[voteRequest](r)
	if err != nil {
		badRequest(w, "invalid JSON payload")
		return
	}
	rec, err := c.Workflows.CastVote(r.Context(), engine.VoteRequest{
		User:         currentUser(r),
		InstanceID:   r.PathValue("id"),
		TransitionID: r.PathValue("transitionId"),
		Vote:         req.Vote,
		Comment:      req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, rec)
}

func (c *InstancesController) handleGetVote(w http.ResponseWriter, r *http.Request) {
	user, id := currentUser(r), r.PathValue("id")
	// the ballot box is visible to whoever may view the instance
	if _, err := c.Workflows.GetInstance(r.Context(), user, id); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := c.Workflows.GetVote(r.Context(), id, r.PathValue("transitionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, rec)
}
