package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// DefinitionRepository stores every published version of every definition.
type DefinitionRepository struct {
	db      *sql.DB
	dialect Dialect
	clock   core.Clock
}

func NewDefinitionRepository(db *sql.DB, dialect Dialect, clock core.Clock) *DefinitionRepository {
	return &DefinitionRepository{db: db, dialect: dialect, clock: clock}
}

const definitionColumns = ` id, definition_key, name, description, version, is_active, is_latest, body, created_by, created `

// Save publishes def as the next version of its key. Earlier versions lose their latest flag.
// def.Version, IsLatest and Created are set on success.
func (r *DefinitionRepository) Save(ctx context.Context, def *domain.WorkflowDefinition) error {
	p := r.dialect.placeholder
	if def.Created.IsZero() {
		def.Created = r.clock.Now().UTC()
	}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var current sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM workflow_definitions WHERE definition_key = `+p(1), def.Key).Scan(&current)
		if err != nil {
			return err
		}
		def.Version = int(current.Int64) + 1
		def.IsLatest = true

		if _, err := tx.ExecContext(ctx, `UPDATE workflow_definitions SET is_latest = `+p(1)+` WHERE definition_key = `+p(2), false, def.Key); err != nil {
			return err
		}

		body, err := toJSON(def)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO workflow_definitions (`+definitionColumns+`) VALUES (`+r.dialect.placeholders(10)+`)`,
			def.ID, def.Key, def.Name, def.Description, def.Version, def.IsActive, def.IsLatest, body,
			nullString(def.CreatedBy), r.dialect.formatDateInDatabase(def.Created))
		return err
	})
	if isUniqueViolation(err) {
		return versionConflict("DefinitionRepository.Save", "definition", def.Key)
	}
	return err
}

func (r *DefinitionRepository) FindByID(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions WHERE id = `+r.dialect.placeholder(1), id)
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("DefinitionRepository.FindByID", "definition", id)
	}
	return def, err
}

// FindActive returns the latest version of every active definition in creation order.
func (r *DefinitionRepository) FindActive(ctx context.Context) ([]domain.WorkflowDefinition, error) {
	p := r.dialect.placeholder
	return r.query(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions
		WHERE is_active = `+p(1)+` AND is_latest = `+p(2)+`
		ORDER BY created ASC, id ASC`, true, true)
}

// FindVersions returns every version of a definition key, newest first.
func (r *DefinitionRepository) FindVersions(ctx context.Context, key string) ([]domain.WorkflowDefinition, error) {
	return r.query(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions
		WHERE definition_key = `+r.dialect.placeholder(1)+`
		ORDER BY version DESC`, key)
}

func (r *DefinitionRepository) SetActive(ctx context.Context, id string, active bool) error {
	p := r.dialect.placeholder
	res, err := r.db.ExecContext(ctx, `UPDATE workflow_definitions SET is_active = `+p(1)+` WHERE id = `+p(2), active, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("DefinitionRepository.SetActive", "definition", id)
	}
	return nil
}

func (r *DefinitionRepository) query(ctx context.Context, query string, args ...any) ([]domain.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.WorkflowDefinition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanDefinition decodes the stored body and lets the row columns win for the mutable flags.
func scanDefinition(s scanner) (*domain.WorkflowDefinition, error) {
	var (
		def         domain.WorkflowDefinition
		id, key     string
		name        string
		description sql.NullString
		version     int
		active      bool
		latest      bool
		body        sql.NullString
		createdBy   sql.NullString
	)
	if err := s.Scan(&id, &key, &name, &description, &version, &active, &latest, &body, &createdBy, &def.Created); err != nil {
		return nil, err
	}
	created := def.Created
	if err := fromJSON(body, &def); err != nil {
		return nil, err
	}
	def.ID = id
	def.Key = key
	def.Name = name
	def.Description = description.String
	def.Version = version
	def.IsActive = active
	def.IsLatest = latest
	def.CreatedBy = createdBy.String
	def.Created = created
	return &def, nil
}
