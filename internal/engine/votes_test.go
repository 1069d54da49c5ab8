package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func votingFlow(voteType domain.VoteType, quorum int) domain.WorkflowDefinition {
	def := approvalFlow()
	def.Name = "Board Resolution"
	def.Transitions[1].RequiresVote = true
	def.Transitions[1].VoteType = voteType
	def.Transitions[1].Quorum = quorum
	return def
}

// inReview starts an instance of def and submits it for review.
func (h *harness) inReview(t *testing.T, def *domain.WorkflowDefinition) *domain.WorkflowInstance {
	t.Helper()
	inst := h.start(t, def, map[string]any{"title": "Resolution 7"})
	res, err := h.engine.ExecuteTransition(context.Background(), TransitionRequest{User: "alice", InstanceID: inst.ID, TransitionID: "submit"})
	require.NoError(t, err)
	return res.Instance
}

func (h *harness) cast(t *testing.T, inst *domain.WorkflowInstance, user string, vote domain.VoteChoice) *domain.VoteRecord {
	t.Helper()
	rec, err := h.engine.CastVote(context.Background(), VoteRequest{User: user, InstanceID: inst.ID, TransitionID: "approve", Vote: vote})
	require.NoError(t, err)
	return rec
}

func transitionsTo(t *testing.T, h *harness, id, state string) int {
	t.Helper()
	history, err := h.instances.FindHistory(context.Background(), id)
	require.NoError(t, err)
	n := 0
	for _, e := range history {
		if e.Type == domain.HistoryTransition && e.ToState == state {
			n++
		}
	}
	return n
}

func TestCastVote_SimpleMajorityPassesAndTransitionsOnce(t *testing.T) {
	h := newHarness(t)
	var asked []string
	h.members.CountEligibleVotersFunc = func(committee string, roles []string) (int, error) {
		asked = roles
		return 3, nil
	}
	def := h.publish(t, votingFlow(domain.VoteSimpleMajority, 0))
	inst := h.inReview(t, def)
	ctx := context.Background()

	_, err := h.engine.ExecuteTransition(ctx, TransitionRequest{User: "bob", InstanceID: inst.ID, TransitionID: "approve"})
	assert.True(t, errors.Is(err, domain.VotingRequired))

	rec := h.cast(t, inst, "bob", domain.VoteFor)
	assert.Equal(t, domain.VotePending, rec.Vote.Status)
	assert.Equal(t, 3, rec.Vote.RequiredVotes)
	assert.Equal(t, []string{"reviewer"}, asked)

	rec = h.cast(t, inst, "carol", domain.VoteFor)
	assert.Equal(t, domain.VotePending, rec.Vote.Status)
	assert.False(t, rec.Transitioned)

	rec = h.cast(t, inst, "dave", domain.VoteAgainst)
	assert.Equal(t, domain.VotePassed, rec.Vote.Status)
	assert.Equal(t, domain.Tally{For: 2, Against: 1}, rec.Tally)
	require.True(t, rec.Transitioned)
	assert.Equal(t, "approved", rec.Instance.CurrentState)
	assert.Equal(t, domain.StatusCompleted, rec.Instance.Status)

	assert.Equal(t, 1, transitionsTo(t, h, inst.ID, "approved"))
	assert.Len(t, h.audit.ofType(domain.AuditVoteDecided), 1)
	assert.Len(t, h.audit.ofType(domain.AuditVoteCast), 3)

	_, err = h.engine.CastVote(ctx, VoteRequest{User: "bob", InstanceID: inst.ID, TransitionID: "approve", Vote: domain.VoteFor})
	assert.True(t, errors.Is(err, domain.InvalidState))
}

func TestCastVote_RevoteReplacesBallot(t *testing.T) {
	h := newHarness(t)
	h.members.CountEligibleVotersFunc = func(string, []string) (int, error) { return 3, nil }
	def := h.publish(t, votingFlow(domain.VoteSimpleMajority, 0))
	inst := h.inReview(t, def)

	h.cast(t, inst, "bob", domain.VoteFor)
	rec := h.cast(t, inst, "bob", domain.VoteAgainst)

	assert.Len(t, rec.Vote.Ballots, 1)
	assert.Equal(t, domain.Tally{Against: 1}, rec.Tally)
	assert.Equal(t, domain.VotePending, rec.Vote.Status)

	history, err := h.instances.FindHistory(context.Background(), inst.ID)
	require.NoError(t, err)
	votes := 0
	for _, e := range history {
		if e.Type == domain.HistoryVote {
			votes++
		}
	}
	assert.Equal(t, 2, votes, "every ballot is recorded in history")
}

func TestCastVote_UnanimousFailsOnAgainst(t *testing.T) {
	h := newHarness(t)
	h.members.CountEligibleVotersFunc = func(string, []string) (int, error) { return 2, nil }
	def := h.publish(t, votingFlow(domain.VoteUnanimous, 0))
	inst := h.inReview(t, def)
	ctx := context.Background()

	h.cast(t, inst, "bob", domain.VoteFor)
	rec := h.cast(t, inst, "carol", domain.VoteAgainst)
	assert.Equal(t, domain.VoteFailed, rec.Vote.Status)
	assert.False(t, rec.Transitioned)

	_, err := h.engine.CastVote(ctx, VoteRequest{User: "dave", InstanceID: inst.ID, TransitionID: "approve", Vote: domain.VoteFor})
	assert.True(t, errors.Is(err, domain.InvalidState))

	_, err = h.engine.ExecuteTransition(ctx, TransitionRequest{User: "bob", InstanceID: inst.ID, TransitionID: "approve"})
	assert.True(t, errors.Is(err, domain.InvalidState))

	got, err := h.engine.GetInstance(ctx, "alice", inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "review", got.CurrentState)
}

func TestCastVote_ExplicitQuorum(t *testing.T) {
	h := newHarness(t)
	h.members.CountEligibleVotersFunc = func(string, []string) (int, error) { return 9, nil }
	def := h.publish(t, votingFlow(domain.VoteTwoThirds, 1))
	inst := h.inReview(t, def)

	rec := h.cast(t, inst, "bob", domain.VoteFor)
	assert.Equal(t, 1, rec.Vote.RequiredVotes)
	assert.Equal(t, domain.VotePassed, rec.Vote.Status)
	assert.True(t, rec.Transitioned)
}

func TestCastVote_Guards(t *testing.T) {
	h := newHarness(t)
	def := h.publish(t, votingFlow(domain.VoteSimpleMajority, 0))
	inst := h.inReview(t, def)
	ctx := context.Background()

	_, err := h.engine.CastVote(ctx, VoteRequest{User: "bob", InstanceID: inst.ID, TransitionID: "approve", Vote: "maybe"})
	assert.True(t, errors.Is(err, domain.Validation))

	_, err = h.engine.CastVote(ctx, VoteRequest{User: "alice", InstanceID: inst.ID, TransitionID: "approve", Vote: domain.VoteFor})
	assert.True(t, errors.Is(err, domain.Forbidden))

	_, err = h.engine.CastVote(ctx, VoteRequest{User: "bob", InstanceID: inst.ID, TransitionID: "reject", Vote: domain.VoteFor})
	assert.True(t, errors.Is(err, domain.InvalidTransition))

	_, err = h.engine.GetVote(ctx, inst.ID, "approve")
	assert.True(t, errors.Is(err, domain.NotFound))

	h.members.CountEligibleVotersFunc = func(string, []string) (int, error) { return 2, nil }
	rec := h.cast(t, inst, "bob", domain.VoteFor)
	got, err := h.engine.GetVote(ctx, inst.ID, "approve")
	require.NoError(t, err)
	assert.Equal(t, rec.Vote.ID, got.Vote.ID)
	assert.Equal(t, 1, got.Tally.For)
}

func TestCastVote_EmptyElectorateNeedsOneBallot(t *testing.T) {
	h := newHarness(t)
	def := h.publish(t, votingFlow(domain.VoteSimpleMajority, 0))
	inst := h.inReview(t, def)

	rec := h.cast(t, inst, "bob", domain.VoteFor)
	assert.Equal(t, 1, rec.Vote.RequiredVotes)
	assert.True(t, rec.Transitioned)
}

func TestCastVote_ConcurrentFinalBallotsTransitionOnce(t *testing.T) {
	h := newHarness(t)
	h.members.CountEligibleVotersFunc = func(string, []string) (int, error) { return 3, nil }
	def := h.publish(t, votingFlow(domain.VoteSimpleMajority, 0))
	inst := h.inReview(t, def)
	h.cast(t, inst, "bob", domain.VoteFor)

	var wg sync.WaitGroup
	records := make([]*domain.VoteRecord, 2)
	errs := make([]error, 2)
	for i, user := range []string{"carol", "dave"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			records[i], errs[i] = h.engine.CastVote(context.Background(), VoteRequest{
				User: user, InstanceID: inst.ID, TransitionID: "approve", Vote: domain.VoteFor,
			})
		}(i, user)
	}
	wg.Wait()

	transitioned := 0
	for i := range records {
		require.NoError(t, errs[i])
		if records[i].Transitioned {
			transitioned++
		}
	}
	assert.Equal(t, 1, transitioned)
	assert.Equal(t, 1, transitionsTo(t, h, inst.ID, "approved"))
}

func TestCastVote_CommitteeVoteCountsOnlyCommitteeReviewers(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"frank", "gina", "hank"} {
		h.access.users[name] = domain.Permissions{Username: name, AccessLevel: domain.AccessApprove, Roles: []string{"reviewer"}, Committees: []string{"finance"}}
	}
	h.members.CountEligibleVotersFunc = func(committee string, roles []string) (int, error) {
		n := 0
		for _, p := range h.access.users {
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
	flow := votingFlow(domain.VoteSimpleMajority, 0)
	flow.Transitions[1].Permission.RequireCommitteeMember = true
	def := h.publish(t, flow)
	inst := h.inReview(t, def)

	_, err := h.engine.CastVote(context.Background(), VoteRequest{User: "frank", InstanceID: inst.ID, TransitionID: "approve", Vote: domain.VoteFor})
	assert.True(t, errors.Is(err, domain.Forbidden), "finance reviewers cannot vote on an ethics case")

	rec := h.cast(t, inst, "bob", domain.VoteFor)
	assert.Equal(t, 3, rec.Vote.RequiredVotes)
	assert.Equal(t, 3, rec.Vote.EligibleVoters)
	h.cast(t, inst, "carol", domain.VoteFor)
	rec = h.cast(t, inst, "dave", domain.VoteFor)
	assert.Equal(t, domain.VotePassed, rec.Vote.Status)
	assert.True(t, rec.Transitioned)
}
