package integrations

import (
	"context"
	"strings"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// UserStore is the subset of the user repository the directory reads.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
}

// UserDirectory answers access control and membership questions from the users table.
type UserDirectory struct {
	users UserStore
}

func NewUserDirectory(users UserStore) *UserDirectory {
	return &UserDirectory{users: users}
}

// actionLevels maps resource actions to the access level they need.
var actionLevels = map[string]domain.AccessLevel{
	"read":       domain.AccessRead,
	"start":      domain.AccessWrite,
	"update":     domain.AccessWrite,
	"vote":       domain.AccessApprove,
	"cancel":     domain.AccessApprove,
	"deactivate": domain.AccessAdmin,
	"admin":      domain.AccessAdmin,
}

// GetUserPermissions returns empty permissions for unknown or disabled users.
func (d *UserDirectory) GetUserPermissions(ctx context.Context, username string) (*domain.Permissions, error) {
	u, err := d.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !enabled(u) {
		return &domain.Permissions{Username: username}, nil
	}
	return permissionsOf(u), nil
}

// CanAccessResource checks action on resource, e.g. ("instance:42", "cancel").
// Definitions and users can only be changed by administrators.
func (d *UserDirectory) CanAccessResource(ctx context.Context, username, resource, action string) (bool, error) {
	perms, err := d.GetUserPermissions(ctx, username)
	if err != nil {
		return false, err
	}
	if !perms.AccessLevel.Valid() {
		return false, nil
	}
	need, ok := actionLevels[action]
	if !ok {
		return false, nil
	}
	kind, _, _ := strings.Cut(resource, ":")
	if (kind == "definition" || kind == "user") && action != "read" {
		need = domain.AccessAdmin
	}
	return perms.AccessLevel.AtLeast(need), nil
}

// CountEligibleVoters counts enabled users holding any of roles, restricted to
// committee when both are given. With no roles the committee members count.
func (d *UserDirectory) CountEligibleVoters(ctx context.Context, committee string, roles []string) (int, error) {
	if committee == "" && len(roles) == 0 {
		return 0, nil
	}
	all, err := d.users.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range all {
		if !enabled(&all[i]) {
			continue
		}
		p := permissionsOf(&all[i])
		if len(roles) > 0 && !p.HasAnyRole(roles) {
			continue
		}
		if committee != "" && !p.MemberOf(committee) {
			continue
		}
		n++
	}
	return n, nil
}

func permissionsOf(u *domain.User) *domain.Permissions {
	return &domain.Permissions{
		Username:    u.Username,
		AccessLevel: u.AccessLevel,
		Roles:       u.Roles,
		Committees:  u.Committees,
	}
}

func enabled(u *domain.User) bool {
	return !u.Enabled.Valid || u.Enabled.Bool
}
