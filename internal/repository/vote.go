package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// VoteRepository stores ballot boxes, one per instance, transition and state visit.
type VoteRepository struct {
	db      *sql.DB
	dialect Dialect
	clock   core.Clock
}

func NewVoteRepository(db *sql.DB, dialect Dialect, clock core.Clock) *VoteRepository {
	return &VoteRepository{db: db, dialect: dialect, clock: clock}
}

const voteColumns = ` id, instance_id, transition_id, state_visit, state_entered_at, vote_type,
		ballots, required_votes, eligible_voters, status, created, modified, version `

// Find returns the ballot box for a state visit, or (nil, nil) when none was opened yet.
func (r *VoteRepository) Find(ctx context.Context, instanceID, transitionID string, stateVisit int) (*domain.WorkflowVote, error) {
	p := r.dialect.placeholder
	row := r.db.QueryRowContext(ctx, `SELECT `+voteColumns+` FROM workflow_votes
		WHERE instance_id = `+p(1)+` AND transition_id = `+p(2)+` AND state_visit = `+p(3),
		instanceID, transitionID, stateVisit)
	v, err := scanVote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// Create opens a ballot box. A concurrent open of the same box yields ErrVersionConflict.
func (r *VoteRepository) Create(ctx context.Context, v *domain.WorkflowVote) error {
	ballots, err := toJSON(v.Ballots)
	if err != nil {
		return err
	}
	now := r.clock.Now().UTC()
	v.Created, v.Modified, v.Version = now, now, 1
	_, err = r.db.ExecContext(ctx, `INSERT INTO workflow_votes (`+voteColumns+`) VALUES (`+r.dialect.placeholders(13)+`)`,
		v.ID, v.InstanceID, v.TransitionID, v.StateVisit, r.dialect.formatDateInDatabase(v.StateEnteredAt),
		string(v.VoteType), ballots, v.RequiredVotes, v.EligibleVoters, string(v.Status),
		r.dialect.formatDateInDatabase(v.Created), r.dialect.formatDateInDatabase(v.Modified), v.Version)
	if isUniqueViolation(err) {
		return versionConflict("VoteRepository.Create", "vote", v.InstanceID+"/"+v.TransitionID)
	}
	return err
}

// Update writes ballots and status if the stored version still equals expectedVersion.
func (r *VoteRepository) Update(ctx context.Context, v *domain.WorkflowVote, expectedVersion int64) error {
	ballots, err := toJSON(v.Ballots)
	if err != nil {
		return err
	}
	modified := r.clock.Now().UTC()
	p := r.dialect.placeholder
	res, err := r.db.ExecContext(ctx, `
		UPDATE workflow_votes
		SET ballots = `+p(1)+`, required_votes = `+p(2)+`, status = `+p(3)+`, modified = `+p(4)+`, version = `+p(5)+`
		WHERE id = `+p(6)+` AND version = `+p(7),
		ballots, v.RequiredVotes, string(v.Status), r.dialect.formatDateInDatabase(modified), expectedVersion+1,
		v.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return versionConflict("VoteRepository.Update", "vote", v.ID)
	}
	v.Version = expectedVersion + 1
	v.Modified = modified
	return nil
}

func scanVote(s scanner) (*domain.WorkflowVote, error) {
	var (
		v        domain.WorkflowVote
		voteType string
		status   string
		ballots  sql.NullString
	)
	err := s.Scan(&v.ID, &v.InstanceID, &v.TransitionID, &v.StateVisit, &v.StateEnteredAt, &voteType,
		&ballots, &v.RequiredVotes, &v.EligibleVoters, &status, &v.Created, &v.Modified, &v.Version)
	if err != nil {
		return nil, err
	}
	v.VoteType = domain.VoteType(voteType)
	v.Status = domain.VoteStatus(status)
	v.Ballots = map[string]domain.Ballot{}
	if err := fromJSON(ballots, &v.Ballots); err != nil {
		return nil, err
	}
	return &v, nil
}
