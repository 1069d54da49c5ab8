package repository

import (
	"context"
	"database/sql"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/google/uuid"
)

// HistoryRepository is the append-only log of everything that happened to an instance.
// Writes only happen inside the instance transaction.
type HistoryRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewHistoryRepository(db *sql.DB, dialect Dialect) *HistoryRepository {
	return &HistoryRepository{db: db, dialect: dialect}
}

const historyColumns = ` id, instance_id, sequence, type, actor, from_state, to_state, transition_id,
		field, old_value, new_value, comment, vote, created `

// appendTx numbers entries after the highest stored sequence. The caller holds the
// instance row through its version check, so sequences cannot interleave.
func (r *HistoryRepository) appendTx(ctx context.Context, tx *sql.Tx, instanceID string, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sequence) FROM workflow_history WHERE instance_id = `+r.dialect.placeholder(1), instanceID).Scan(&last); err != nil {
		return err
	}
	seq := last.Int64
	query := `INSERT INTO workflow_history (` + historyColumns + `) VALUES (` + r.dialect.placeholders(14) + `)`
	for i := range entries {
		e := &entries[i]
		seq++
		e.Sequence = seq
		e.InstanceID = instanceID
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		oldValue, err := toNullJSON(e.OldValue)
		if err != nil {
			return err
		}
		newValue, err := toNullJSON(e.NewValue)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query,
			e.ID, e.InstanceID, e.Sequence, string(e.Type), e.Actor,
			nullString(e.FromState), nullString(e.ToState), nullString(e.TransitionID), nullString(e.Field),
			oldValue, newValue, nullString(e.Comment), nullString(string(e.Vote)),
			r.dialect.formatDateInDatabase(e.Timestamp))
		if err != nil {
			return err
		}
	}
	return nil
}

// FindByInstanceID returns the history of an instance in sequence order.
func (r *HistoryRepository) FindByInstanceID(ctx context.Context, instanceID string) ([]domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+historyColumns+` FROM workflow_history
		WHERE instance_id = `+r.dialect.placeholder(1)+` ORDER BY sequence ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var (
			e                                    domain.HistoryEntry
			typ                                  string
			from, to, transition, field, comment sql.NullString
			vote, oldValue, newValue             sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.InstanceID, &e.Sequence, &typ, &e.Actor, &from, &to, &transition,
			&field, &oldValue, &newValue, &comment, &vote, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = domain.HistoryType(typ)
		e.FromState = from.String
		e.ToState = to.String
		e.TransitionID = transition.String
		e.Field = field.String
		e.Comment = comment.String
		e.Vote = domain.VoteChoice(vote.String)
		if err := fromJSON(oldValue, &e.OldValue); err != nil {
			return nil, err
		}
		if err := fromJSON(newValue, &e.NewValue); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
