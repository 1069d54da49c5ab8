package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/google/uuid"
)

type VoteRequest struct {
	User         string
	InstanceID   string
	TransitionID string
	Vote         domain.VoteChoice
	Comment      string
}

// CastVote records a ballot on a vote-gated transition for the current state visit.
// The write that decides the vote as passed executes the transition for the
// deciding voter; concurrent final ballots lose the version race and never
// transition twice.
func (e *Engine) CastVote(ctx context.Context, req VoteRequest) (*domain.VoteRecord, error) {
	const op = "CastVote"
	if !req.Vote.Valid() {
		return nil, domain.NewValidationError(op, "invalid ballot", []domain.Violation{
			{Field: "vote", Message: fmt.Sprintf("must be one of for, against, abstain, got %q", req.Vote)},
		})
	}

	var box *domain.WorkflowVote
	err := e.withRetry(ctx, op, func() error {
		inst, tr, err := e.votingTarget(ctx, op, req.InstanceID, req.TransitionID)
		if err != nil {
			return err
		}
		perms, err := e.access.GetUserPermissions(ctx, req.User)
		if err != nil {
			return err
		}
		if err := authorize(op, perms, tr, inst); err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		ballot := domain.Ballot{Vote: req.Vote, Comment: req.Comment, Cast: now}

		current, err := e.votes.Find(ctx, inst.ID, tr.ID, inst.StateVisit)
		if err != nil {
			return err
		}
		if current == nil {
			current, err = e.openBallotBox(ctx, inst, tr)
			if err != nil {
				return err
			}
			current.Ballots[req.User] = ballot
			current.Status = current.Decide()
			if err := e.votes.Create(ctx, current); err != nil {
				return err
			}
			box = current
			return nil
		}

		if current.Status != domain.VotePending {
			return domain.NewError(domain.ErrInvalidState, op, "vote on %s is already %s", tr.ID, current.Status)
		}
		expected := current.Version
		if current.Ballots == nil {
			current.Ballots = map[string]domain.Ballot{}
		}
		current.Ballots[req.User] = ballot
		current.Status = current.Decide()
		if err := e.votes.Update(ctx, current, expected); err != nil {
			return err
		}
		box = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	tally := box.Tally()
	e.appendVoteHistory(ctx, req, box)
	recordEvent(ctx, e.audit, e.clock, domain.AuditEvent{
		Type:           domain.AuditVoteCast,
		Actor:          req.User,
		InstanceID:     box.InstanceID,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", domain.AuditVoteCast, box.ID, box.Version),
		Payload:        map[string]any{"transition": box.TransitionID, "vote": req.Vote, "for": tally.For, "against": tally.Against, "abstain": tally.Abstain},
	})
	slog.InfoContext(ctx, "Vote cast", "instance", box.InstanceID, "transition", box.TransitionID,
		"user", req.User, "vote", req.Vote, "status", box.Status)

	record := &domain.VoteRecord{Vote: box, Tally: tally}
	if box.Status == domain.VotePending {
		return record, nil
	}

	recordEvent(ctx, e.audit, e.clock, domain.AuditEvent{
		Type:           domain.AuditVoteDecided,
		Actor:          req.User,
		InstanceID:     box.InstanceID,
		IdempotencyKey: domain.AuditVoteDecided + ":" + box.ID,
		Payload:        map[string]any{"transition": box.TransitionID, "status": box.Status},
	})
	if box.Status != domain.VotePassed {
		return record, nil
	}

	res, err := e.transition(ctx, TransitionRequest{
		User:         req.User,
		InstanceID:   box.InstanceID,
		TransitionID: box.TransitionID,
		Comment:      req.Comment,
	}, true)
	if err != nil {
		// the vote stays passed, so a later ExecuteTransition can still complete it
		slog.WarnContext(ctx, "Passed vote could not execute its transition", "instance", box.InstanceID,
			"transition", box.TransitionID, "error", err)
		record.TransitionError = err.Error()
		return record, nil
	}
	record.Transitioned = true
	record.Instance = res.Instance
	return record, nil
}

// GetVote returns the ballot box of a transition for the instance's current state visit.
func (e *Engine) GetVote(ctx context.Context, instanceID, transitionID string) (*domain.VoteRecord, error) {
	const op = "GetVote"
	inst, err := e.instances.FindByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	box, err := e.votes.Find(ctx, inst.ID, transitionID, inst.StateVisit)
	if err != nil {
		return nil, err
	}
	if box == nil {
		return nil, domain.NewError(domain.ErrNotFound, op, "no vote on %s for instance %s", transitionID, instanceID)
	}
	return &domain.VoteRecord{Vote: box, Tally: box.Tally()}, nil
}

func (e *Engine) votingTarget(ctx context.Context, op, instanceID, transitionID string) (*domain.WorkflowInstance, *domain.WorkflowTransition, error) {
	inst, err := e.instances.FindByID(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	if inst.Status != domain.StatusActive {
		return nil, nil, domain.NewError(domain.ErrInvalidState, op, "instance %s is %s", inst.ID, inst.Status)
	}
	def, err := e.definitionOf(ctx, op, inst)
	if err != nil {
		return nil, nil, err
	}
	tr, ok := def.Transition(transitionID, inst.CurrentState)
	if !ok {
		return nil, nil, domain.NewError(domain.ErrInvalidTransition, op, "transition %s is not available from state %s", transitionID, inst.CurrentState)
	}
	if !tr.RequiresVote {
		return nil, nil, domain.NewError(domain.ErrInvalidTransition, op, "transition %s does not take votes", tr.ID)
	}
	return inst, tr, nil
}

// openBallotBox sizes a new vote. Without an explicit quorum every eligible member must vote.
// The electorate is the set authorize admits: role holders, narrowed to the
// instance committee when the transition requires membership.
func (e *Engine) openBallotBox(ctx context.Context, inst *domain.WorkflowInstance, tr *domain.WorkflowTransition) (*domain.WorkflowVote, error) {
	eligible := 0
	if e.members != nil {
		committee := ""
		if tr.Permission.RequireCommitteeMember || len(tr.Permission.Roles) == 0 {
			committee = instanceCommittee(inst)
		}
		n, err := e.members.CountEligibleVoters(ctx, committee, tr.Permission.Roles)
		if err != nil {
			return nil, err
		}
		eligible = n
	}
	required := tr.Quorum
	if required <= 0 {
		required = eligible
	}
	if required < 1 {
		required = 1
	}
	voteType := tr.VoteType
	if voteType == "" {
		voteType = domain.VoteSimpleMajority
	}
	now := e.clock.Now().UTC()
	return &domain.WorkflowVote{
		ID:             uuid.NewString(),
		InstanceID:     inst.ID,
		TransitionID:   tr.ID,
		StateVisit:     inst.StateVisit,
		StateEnteredAt: inst.StateEnteredAt,
		VoteType:       voteType,
		Ballots:        map[string]domain.Ballot{},
		RequiredVotes:  required,
		EligibleVoters: eligible,
		Status:         domain.VotePending,
		Created:        now,
		Modified:       now,
	}, nil
}

// appendVoteHistory adds the ballot to the instance history. The ballot itself is
// already persisted, so a failure here is logged rather than returned.
func (e *Engine) appendVoteHistory(ctx context.Context, req VoteRequest, box *domain.WorkflowVote) {
	err := e.withRetry(ctx, "CastVote", func() error {
		inst, err := e.instances.FindByID(ctx, box.InstanceID)
		if err != nil {
			return err
		}
		entry := e.entry(inst, domain.HistoryVote, req.User, func(h *domain.HistoryEntry) {
			h.TransitionID = box.TransitionID
			h.FromState = inst.CurrentState
			h.Vote = req.Vote
			h.Comment = req.Comment
		})
		return e.instances.Update(ctx, inst, inst.Version, []domain.HistoryEntry{entry})
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to record vote in instance history", "instance", box.InstanceID, "error", err)
	}
}
