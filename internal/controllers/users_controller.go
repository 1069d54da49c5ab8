package controllers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/internal/util"
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

type createUserRequest struct {
	Username    string             `json:"username"`
	Password    string             `json:"password"`
	AccessLevel domain.AccessLevel `json:"accessLevel"`
	Roles       []string           `json:"roles,omitempty"`
	Committees  []string           `json:"committees,omitempty"`
}

// userView is the API shape of a user; the api key is only shown on creation.
type userView struct {
	ID          int64              `json:"id"`
	Username    string             `json:"username"`
	AccessLevel domain.AccessLevel `json:"accessLevel"`
	Roles       []string           `json:"roles"`
	Committees  []string           `json:"committees"`
	Enabled     bool               `json:"enabled"`
	Created     *time.Time         `json:"created,omitempty"`
	ApiKey      string             `json:"apiKey,omitempty"`
}

func toUserView(u *domain.User) userView {
	v := userView{
		ID:          u.ID,
		Username:    u.Username,
		AccessLevel: u.AccessLevel,
		Roles:       u.Roles,
		Committees:  u.Committees,
		Enabled:     enabled(u.Enabled.Valid, u.Enabled.Bool),
	}
	if u.Created.Valid {
		created := u.Created.Time
		v.Created = &created
	}
	return v
}

type UsersController struct {
	AuthController
	Access engine.AccessControl
}

func NewUsersController(userRepo engine.UserRepo, access engine.AccessControl, clock core.Clock) *UsersController {
	return &UsersController{
		Access:         access,
		AuthController: *NewBaseController(userRepo, clock),
	}
}

// handleGetUsers returns all users
func (c *UsersController) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	if !c.isAdmin(w, r) {
		return
	}
	users, err := c.UserRepo.FindAll(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to get users", "error", err)
		writeError(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, toUserView(&users[i]))
	}
	util.WriteJSONResponse(w, http.StatusOK, views)
}

// handleCreateUser creates a new user with a bcrypt password hash and a fresh api key
func (c *UsersController) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !c.isAdmin(w, r) {
		return
	}
	req, err := util.DecodeJSONBody[createUserRequest](r)
	if err != nil {
		badRequest(w, "Invalid user data")
		return
	}
	user, err := NewUser(req.Username, req.Password, req.AccessLevel, req.Roles, req.Committees)
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := c.UserRepo.FindByUsername(r.Context(), user.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil {
		writeError(w, r, domain.NewError(domain.ErrInvalidState, "users.create", "user %q already exists", user.Username))
		return
	}
	id, err := c.UserRepo.Save(r.Context(), user)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create user", "error", err)
		writeError(w, r, err)
		return
	}
	user.ID = id
	view := toUserView(user)
	view.ApiKey = user.ApiKey.String
	util.WriteJSONResponse(w, http.StatusCreated, view)
}

// handleGetUserById gets a user by their ID
func (c *UsersController) handleGetUserById(w http.ResponseWriter, r *http.Request) {
	if !c.isAdmin(w, r) {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "Invalid user ID")
		return
	}
	user, err := c.UserRepo.FindById(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to get user", "error", err)
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, r, domain.NewError(domain.ErrNotFound, "users.get", "user %d not found", id))
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, toUserView(user))
}

// handleDeleteUser deletes a user by ID
func (c *UsersController) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !c.isAdmin(w, r) {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "Invalid user ID")
		return
	}
	if err := c.UserRepo.DeleteById(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "Failed to delete user", "error", err)
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *UsersController) isAdmin(w http.ResponseWriter, r *http.Request) bool {
	ok, err := c.Access.CanAccessResource(r.Context(), currentUser(r), "user:*", "admin")
	if err != nil {
		writeError(w, r, err)
		return false
	}
	if !ok {
		writeError(w, r, domain.NewError(domain.ErrForbidden, "users", "user management requires admin access"))
		return false
	}
	return true
}

// NewUser validates the input and builds an enabled user with a hashed
// password and a generated api key. The CLI uses it as well.
func NewUser(username, password string, level domain.AccessLevel, roles, committees []string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	var violations []domain.Violation
	if username == "" {
		violations = append(violations, domain.Violation{Field: "username", Message: "is required"})
	}
	if password == "" {
		violations = append(violations, domain.Violation{Field: "password", Message: "is required"})
	}
	if level == "" {
		level = domain.AccessRead
	}
	if !level.Valid() {
		violations = append(violations, domain.Violation{Field: "accessLevel", Message: "must be read, write, approve or admin"})
	}
	if len(violations) > 0 {
		return nil, domain.NewValidationError("users.create", "invalid user", violations)
	}
	hashed, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &domain.User{
		Username:    username,
		Password:    hashed,
		ApiKey:      sql.NullString{String: util.NewAPIKey(), Valid: true},
		Enabled:     sql.NullBool{Bool: true, Valid: true},
		AccessLevel: level,
		Roles:       roles,
		Committees:  committees,
	}, nil
}
