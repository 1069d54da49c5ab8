package domain

import (
	"database/sql"
)

// AccessLevel is ordered read < write < approve < admin.
type AccessLevel string

const (
	AccessRead    AccessLevel = "read"
	AccessWrite   AccessLevel = "write"
	AccessApprove AccessLevel = "approve"
	AccessAdmin   AccessLevel = "admin"
)

func (l AccessLevel) Rank() int {
	switch l {
	case AccessRead:
		return 1
	case AccessWrite:
		return 2
	case AccessApprove:
		return 3
	case AccessAdmin:
		return 4
	}
	return 0
}

func (l AccessLevel) Valid() bool { return l.Rank() > 0 }

// AtLeast reports whether l grants everything min grants.
func (l AccessLevel) AtLeast(min AccessLevel) bool {
	if min == "" {
		return true
	}
	return l.Rank() >= min.Rank()
}

type User struct {
	ID            int64          `json:"id"`
	Username      string         `json:"username"`
	Password      string         `json:"password,omitempty"`
	RetryCount    sql.NullInt32  `json:"retryCount"`
	SessionID     sql.NullString `json:"-"`
	ApiKey        sql.NullString `json:"apiKey"`
	SessionExpiry sql.NullTime   `json:"sessionExpiry"`
	Created       sql.NullTime   `json:"created"`
	Enabled       sql.NullBool   `json:"enabled"`
	AccessLevel   AccessLevel    `json:"accessLevel"`
	Roles         []string       `json:"roles"`
	Committees    []string       `json:"committees"`
}

// Permissions is what the access control service knows about a user.
type Permissions struct {
	Username    string      `json:"username"`
	AccessLevel AccessLevel `json:"accessLevel"`
	Roles       []string    `json:"roles"`
	Committees  []string    `json:"committees"`
}

func (p *Permissions) HasRole(role string) bool {
	return contains(p.Roles, role)
}

func (p *Permissions) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

func (p *Permissions) MemberOf(committee string) bool {
	return committee != "" && contains(p.Committees, committee)
}
