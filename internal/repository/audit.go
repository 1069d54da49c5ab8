package repository

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/google/uuid"
)

// AuditRepository is the audit sink backed by the audit_events table.
type AuditRepository struct {
	db      *sql.DB
	dialect Dialect
	clock   core.Clock
}

func NewAuditRepository(db *sql.DB, dialect Dialect, clock core.Clock) *AuditRepository {
	return &AuditRepository{db: db, dialect: dialect, clock: clock}
}

const auditColumns = ` id, type, actor, instance_id, definition_id, idempotency_key, payload, created `

// RecordEvent stores ev unless an event with the same idempotency key exists.
// It reports whether the event was newly recorded.
func (r *AuditRepository) RecordEvent(ctx context.Context, ev domain.AuditEvent) (bool, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.IdempotencyKey == "" {
		ev.IdempotencyKey = ev.ID
	}
	if ev.Created.IsZero() {
		ev.Created = r.clock.Now().UTC()
	}
	var payload any
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}
	body, err := toNullJSON(payload)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, r.dialect.insertIgnore("audit_events", auditColumns, "idempotency_key", 8),
		ev.ID, ev.Type, ev.Actor, nullString(ev.InstanceID), nullString(ev.DefinitionID), ev.IdempotencyKey,
		body, r.dialect.formatDateInDatabase(ev.Created))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FindByInstanceID lists the audit trail of an instance, oldest first.
func (r *AuditRepository) FindByInstanceID(ctx context.Context, instanceID string, limit int) ([]domain.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events WHERE instance_id = ` + r.dialect.placeholder(1) + ` ORDER BY created ASC`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}
	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var (
			ev                         domain.AuditEvent
			instance, definition, body sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Actor, &instance, &definition, &ev.IdempotencyKey, &body, &ev.Created); err != nil {
			return nil, err
		}
		ev.InstanceID = instance.String
		ev.DefinitionID = definition.String
		if err := fromJSON(body, &ev.Payload); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
