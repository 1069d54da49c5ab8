package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/govflow/internal/util"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

type errorBody struct {
	Error      string             `json:"error"`
	Code       domain.ErrorCode   `json:"code"`
	Violations []domain.Violation `json:"violations,omitempty"`
	Condition  string             `json:"condition,omitempty"`
}

// statusFor maps workflow error codes to HTTP status codes.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrValidation, domain.ErrCommentRequired, domain.ErrAttachmentsRequired:
		return http.StatusBadRequest
	case domain.ErrConditionNotMet:
		return http.StatusUnprocessableEntity
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrInvalidState, domain.ErrInvalidTransition, domain.ErrVersionConflict:
		return http.StatusConflict
	case domain.ErrVotingRequired:
		return http.StatusAccepted
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *domain.Error
	if !errors.As(err, &e) {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		util.WriteJSONResponse(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: domain.ErrUnknown})
		return
	}
	status := statusFor(e.Code)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "code", e.Code, "error", err)
	}
	util.WriteJSONResponse(w, status, errorBody{
		Error:      e.Error(),
		Code:       e.Code,
		Violations: e.Violations,
		Condition:  e.Condition,
	})
}

func badRequest(w http.ResponseWriter, message string) {
	util.WriteJSONResponse(w, http.StatusBadRequest, errorBody{Error: message, Code: domain.ErrValidation})
}
