package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// UserRepository provides persistence methods for the users table.
type UserRepository struct {
	db      *sql.DB
	dialect Dialect
	clock   core.Clock
}

func NewUserRepository(db *sql.DB, dialect Dialect, clock core.Clock) *UserRepository {
	return &UserRepository{db: db, dialect: dialect, clock: clock}
}

const userColumns = ` id, username, password, retry_count, session_id, api_key, sessionExpiry, created, enabled,
		access_level, roles, committees `

// Save inserts a new user and returns its generated id.
// It will set Created to now if it's not provided (null or zero).
func (r *UserRepository) Save(ctx context.Context, u *domain.User) (int64, error) {
	if !u.Created.Valid {
		u.Created = sql.NullTime{Time: r.clock.Now().UTC(), Valid: true}
	}
	if u.AccessLevel == "" {
		u.AccessLevel = domain.AccessRead
	}
	roles, err := toJSON(nonNil(u.Roles))
	if err != nil {
		return 0, err
	}
	committees, err := toJSON(nonNil(u.Committees))
	if err != nil {
		return 0, err
	}

	base := `
        INSERT INTO users (username, password, retry_count, session_id, api_key, sessionExpiry, created, enabled,
            access_level, roles, committees)
        VALUES (` + r.dialect.placeholders(11) + `)`
	args := []any{
		u.Username,
		u.Password,
		u.RetryCount,
		u.SessionID,
		u.ApiKey,
		r.nullTime(u.SessionExpiry),
		r.nullTime(u.Created),
		u.Enabled,
		string(u.AccessLevel),
		roles,
		committees,
	}

	var id int64
	if r.dialect.supportsReturning() {
		err = r.db.QueryRowContext(ctx, base+" RETURNING id", args...).Scan(&id)
	} else {
		res, e := r.db.ExecContext(ctx, base, args...)
		if e != nil {
			err = e
		} else {
			id, err = res.LastInsertId()
		}
	}
	if err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

// FindByUsername fetches a user by exact username. Returns (nil, nil) if not found.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, `WHERE username = `+r.dialect.placeholder(1), username)
}

// FindBySessionID fetches a user by session_id and ensures sessionExpiry is in the future.
func (r *UserRepository) FindBySessionID(ctx context.Context, sessionID string, now time.Time) (*domain.User, error) {
	p := r.dialect.placeholder
	return r.findOne(ctx, `WHERE session_id = `+p(1)+` AND sessionExpiry > `+p(2), sessionID, r.dialect.formatDateInDatabase(now))
}

// FindByApiKey fetches a user by api_key (exact match). Returns (nil, nil) if not found.
func (r *UserRepository) FindByApiKey(ctx context.Context, apiKey string) (*domain.User, error) {
	return r.findOne(ctx, `WHERE api_key = `+r.dialect.placeholder(1), apiKey)
}

func (r *UserRepository) FindById(ctx context.Context, id int64) (*domain.User, error) {
	return r.findOne(ctx, `WHERE id = `+r.dialect.placeholder(1), id)
}

// UpdateSession sets session_id and sessionExpiry for a user by id.
func (r *UserRepository) UpdateSession(ctx context.Context, userID int64, sessionID string, expiry time.Time) error {
	p := r.dialect.placeholder
	_, err := r.db.ExecContext(ctx, `UPDATE users SET session_id = `+p(1)+`, sessionExpiry = `+p(2)+` WHERE id = `+p(3),
		sessionID, r.dialect.formatDateInDatabase(expiry), userID)
	return err
}

// ClearSessionBySessionID nulls session_id and sessionExpiry for the user with the given current session_id.
func (r *UserRepository) ClearSessionBySessionID(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET session_id = NULL, sessionExpiry = NULL WHERE session_id = `+r.dialect.placeholder(1), sessionID)
	return err
}

func (r *UserRepository) DeleteById(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = `+r.dialect.placeholder(1), id)
	return err
}

// FindAll returns all users ordered by id ascending.
func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, args ...any) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where+` LIMIT 1`, args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) nullTime(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return r.dialect.formatDateInDatabase(t.Time)
}

func scanUser(s scanner) (*domain.User, error) {
	var (
		u                 domain.User
		level             string
		roles, committees sql.NullString
	)
	err := s.Scan(
		&u.ID,
		&u.Username,
		&u.Password,
		&u.RetryCount,
		&u.SessionID,
		&u.ApiKey,
		&u.SessionExpiry,
		&u.Created,
		&u.Enabled,
		&level,
		&roles,
		&committees,
	)
	if err != nil {
		return nil, err
	}
	u.AccessLevel = domain.AccessLevel(level)
	if err := fromJSON(roles, &u.Roles); err != nil {
		return nil, err
	}
	if err := fromJSON(committees, &u.Committees); err != nil {
		return nil, err
	}
	return &u, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
