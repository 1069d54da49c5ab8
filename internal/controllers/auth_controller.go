package controllers

import (
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/internal/util"
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
)

const SessionCookieName = "sessionId"

type AuthController struct {
	UserRepo engine.UserRepo
	Clock    core.Clock
}

func NewBaseController(userRepo engine.UserRepo, clock core.Clock) *AuthController {
	return &AuthController{UserRepo: userRepo, Clock: core.OrReal(clock)}
}

func (wc *AuthController) clock() core.Clock {
	return core.OrReal(wc.Clock)
}

// RequireAuth resolves the caller from the session cookie or the X-API-Key
// header and stores the username in the request context.
func (wc *AuthController) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 1) Try session cookie
		if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
			u, err := wc.UserRepo.FindBySessionID(r.Context(), c.Value, wc.clock().Now().UTC())
			if err != nil {
				slog.ErrorContext(r.Context(), "Session lookup failed", "error", err)
			}
			if err == nil && u != nil && enabled(u.Enabled.Valid, u.Enabled.Bool) {
				next(w, r.WithContext(core.WithUsername(r.Context(), u.Username)))
				return
			}
		}
		// 2) Try API key from headers
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			u, err := wc.UserRepo.FindByApiKey(r.Context(), apiKey)
			if err != nil {
				slog.ErrorContext(r.Context(), "API key lookup failed", "error", err)
			}
			if err == nil && u != nil && enabled(u.Enabled.Valid, u.Enabled.Bool) {
				next(w, r.WithContext(core.WithUsername(r.Context(), u.Username)))
				return
			}
		}
		util.WriteJSONResponse(w, http.StatusUnauthorized, errorBody{Error: "authentication required", Code: "UNAUTHORIZED"})
	}
}

func enabled(valid, value bool) bool {
	return !valid || value
}

// currentUser is only meaningful behind RequireAuth.
func currentUser(r *http.Request) string {
	return core.UsernameFromContext(r.Context())
}
