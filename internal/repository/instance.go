package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// InstanceRepository persists workflow instances together with their history.
type InstanceRepository struct {
	db      *sql.DB
	dialect Dialect
	clock   core.Clock
	history *HistoryRepository
}

func NewInstanceRepository(db *sql.DB, dialect Dialect, clock core.Clock) *InstanceRepository {
	return &InstanceRepository{db: db, dialect: dialect, clock: clock, history: NewHistoryRepository(db, dialect)}
}

const instanceColumns = ` id, definition_id, definition_version, current_state, state_entered_at, state_visit,
		       field_values, document_ref, committee, assigned_to, assigned_committee,
		       status, created_by, created, modified, version `

// Create inserts a new instance at version 1 and its initial history in one transaction.
func (r *InstanceRepository) Create(ctx context.Context, inst *domain.WorkflowInstance, history []domain.HistoryEntry) error {
	fields, err := toJSON(inst.FieldValues)
	if err != nil {
		return err
	}
	var ref any
	if inst.DocumentRef != nil {
		ref = inst.DocumentRef
	}
	docRef, err := toNullJSON(ref)
	if err != nil {
		return err
	}
	inst.Version = 1
	inst.Modified = r.clock.Now().UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO workflow_instances (`+instanceColumns+`) VALUES (`+r.dialect.placeholders(16)+`)`,
			inst.ID, inst.DefinitionID, inst.DefinitionVersion, inst.CurrentState,
			r.dialect.formatDateInDatabase(inst.StateEnteredAt), inst.StateVisit,
			fields, docRef, nullString(inst.Committee), nullString(inst.AssignedTo), nullString(inst.AssignedCommittee),
			string(inst.Status), inst.CreatedBy, r.dialect.formatDateInDatabase(inst.Created),
			r.dialect.formatDateInDatabase(inst.Modified), inst.Version)
		if err != nil {
			return err
		}
		return r.history.appendTx(ctx, tx, inst.ID, history)
	})
}

// Update writes inst if the stored version still equals expectedVersion and appends history
// in the same transaction. On success inst.Version is advanced; otherwise ErrVersionConflict.
func (r *InstanceRepository) Update(ctx context.Context, inst *domain.WorkflowInstance, expectedVersion int64, history []domain.HistoryEntry) error {
	fields, err := toJSON(inst.FieldValues)
	if err != nil {
		return err
	}
	var ref any
	if inst.DocumentRef != nil {
		ref = inst.DocumentRef
	}
	docRef, err := toNullJSON(ref)
	if err != nil {
		return err
	}
	modified := r.clock.Now().UTC()
	p := r.dialect.placeholder

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE workflow_instances
		SET current_state = `+p(1)+`, state_entered_at = `+p(2)+`, state_visit = `+p(3)+`,
		    field_values = `+p(4)+`, document_ref = `+p(5)+`, committee = `+p(6)+`,
		    assigned_to = `+p(7)+`, assigned_committee = `+p(8)+`, status = `+p(9)+`,
		    modified = `+p(10)+`, version = `+p(11)+`
		WHERE id = `+p(12)+` AND version = `+p(13),
			inst.CurrentState, r.dialect.formatDateInDatabase(inst.StateEnteredAt), inst.StateVisit,
			fields, docRef, nullString(inst.Committee),
			nullString(inst.AssignedTo), nullString(inst.AssignedCommittee), string(inst.Status),
			r.dialect.formatDateInDatabase(modified), expectedVersion+1,
			inst.ID, expectedVersion)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return versionConflict("InstanceRepository.Update", "instance", inst.ID)
		}
		return r.history.appendTx(ctx, tx, inst.ID, history)
	})
	if err != nil {
		return err
	}
	inst.Version = expectedVersion + 1
	inst.Modified = modified
	return nil
}

func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM workflow_instances WHERE id = `+r.dialect.placeholder(1), id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("InstanceRepository.FindByID", "instance", id)
	}
	return inst, err
}

// Search lists instances matching the filter, oldest first.
func (r *InstanceRepository) Search(ctx context.Context, filter domain.InstanceFilter) ([]domain.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE 1=1`
	args := make([]any, 0, 5)
	if filter.DefinitionID != "" {
		args = append(args, filter.DefinitionID)
		query += ` AND definition_id = ` + r.dialect.placeholder(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = ` + r.dialect.placeholder(len(args))
	}
	if filter.After != nil {
		created := r.dialect.formatDateInDatabase(filter.After.Created)
		args = append(args, created, created, filter.After.ID)
		n := len(args)
		query += ` AND (created > ` + r.dialect.placeholder(n-2) +
			` OR (created = ` + r.dialect.placeholder(n-1) + ` AND id > ` + r.dialect.placeholder(n) + `))`
	}
	query += ` ORDER BY created ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.WorkflowInstance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *InstanceRepository) FindHistory(ctx context.Context, instanceID string) ([]domain.HistoryEntry, error) {
	return r.history.FindByInstanceID(ctx, instanceID)
}

func scanInstance(s scanner) (*domain.WorkflowInstance, error) {
	var (
		inst              domain.WorkflowInstance
		fields, docRef    sql.NullString
		committee         sql.NullString
		assignedTo        sql.NullString
		assignedCommittee sql.NullString
		status            string
	)
	err := s.Scan(
		&inst.ID,
		&inst.DefinitionID,
		&inst.DefinitionVersion,
		&inst.CurrentState,
		&inst.StateEnteredAt,
		&inst.StateVisit,
		&fields,
		&docRef,
		&committee,
		&assignedTo,
		&assignedCommittee,
		&status,
		&inst.CreatedBy,
		&inst.Created,
		&inst.Modified,
		&inst.Version,
	)
	if err != nil {
		return nil, err
	}
	inst.FieldValues = map[string]any{}
	if err := fromJSON(fields, &inst.FieldValues); err != nil {
		return nil, err
	}
	if docRef.Valid {
		inst.DocumentRef = &domain.DocumentRef{}
		if err := fromJSON(docRef, inst.DocumentRef); err != nil {
			return nil, err
		}
	}
	inst.Committee = committee.String
	inst.AssignedTo = assignedTo.String
	inst.AssignedCommittee = assignedCommittee.String
	inst.Status = domain.InstanceStatus(status)
	return &inst, nil
}
