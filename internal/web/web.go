package web

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/internal/controllers"
	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/internal/util"
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
)

// WebController handles session login for browser and script clients.
type WebController struct {
	controllers.AuthController
	userRepo engine.UserRepo
	access   engine.AccessControl
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type message struct {
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func NewWebController(userRepo engine.UserRepo, access engine.AccessControl, clock core.Clock) *WebController {
	return &WebController{
		AuthController: *controllers.NewBaseController(userRepo, clock),
		userRepo:       userRepo,
		access:         access,
	}
}

func (wc *WebController) clock() core.Clock {
	return core.OrReal(wc.Clock)
}

func (wc *WebController) loginSubmitHandler(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[loginRequest](r)
	if err != nil {
		util.WriteJSONResponse(w, http.StatusBadRequest, message{Error: "invalid JSON payload", Code: "VALIDATION"})
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		util.WriteJSONResponse(w, http.StatusUnauthorized, message{Error: "username and password are required", Code: "UNAUTHORIZED"})
		return
	}
	u, err := wc.userRepo.FindByUsername(r.Context(), username)
	if err != nil {
		slog.ErrorContext(r.Context(), "FindByUsername failed", "error", err)
		util.WriteJSONResponse(w, http.StatusInternalServerError, message{Error: "server error"})
		return
	}
	if u == nil || (u.Enabled.Valid && !u.Enabled.Bool) || !util.CheckPassword(u.Password, req.Password) {
		util.WriteJSONResponse(w, http.StatusUnauthorized, message{Error: "invalid username or password", Code: "UNAUTHORIZED"})
		return
	}
	sessionID, err := util.NewSessionID()
	if err != nil {
		slog.ErrorContext(r.Context(), "Session id generation failed", "error", err)
		util.WriteJSONResponse(w, http.StatusInternalServerError, message{Error: "server error"})
		return
	}
	expiryHours := config.GetSystemSettingInteger(config.WEB_SESSION_EXPIRY_HOURS)
	if expiryHours <= 0 {
		expiryHours = 1
	}
	expires := wc.clock().Now().UTC().Add(time.Duration(expiryHours) * time.Hour)
	if err := wc.userRepo.UpdateSession(r.Context(), u.ID, sessionID, expires); err != nil {
		slog.ErrorContext(r.Context(), "UpdateSession failed", "error", err)
		util.WriteJSONResponse(w, http.StatusInternalServerError, message{Error: "server error"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     controllers.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	slog.InfoContext(r.Context(), "User logged in", "username", u.Username)
	util.WriteJSONResponse(w, http.StatusOK, sessionResponse{Username: u.Username, ExpiresAt: expires})
}

// logoutHandler clears the current user's session.
func (wc *WebController) logoutHandler(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(controllers.SessionCookieName)
	if err == nil && c.Value != "" {
		// Best-effort clear in DB
		if err := wc.userRepo.ClearSessionBySessionID(r.Context(), c.Value); err != nil {
			slog.WarnContext(r.Context(), "Failed to clear session in DB during logout", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     controllers.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

// meHandler returns the permissions of the authenticated caller.
func (wc *WebController) meHandler(w http.ResponseWriter, r *http.Request) {
	perms, err := wc.access.GetUserPermissions(r.Context(), core.UsernameFromContext(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "GetUserPermissions failed", "error", err)
		util.WriteJSONResponse(w, http.StatusInternalServerError, message{Error: "server error"})
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, perms)
}
