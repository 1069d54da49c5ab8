package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ballots(choices ...VoteChoice) map[string]Ballot {
	out := map[string]Ballot{}
	for i, c := range choices {
		out[fmt.Sprintf("user%d", i)] = Ballot{Vote: c}
	}
	return out
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		voteType VoteType
		required int
		choices  []VoteChoice
		want     VoteStatus
	}{
		{"majority pending below quorum", VoteSimpleMajority, 3, []VoteChoice{VoteFor, VoteFor}, VotePending},
		{"majority passes", VoteSimpleMajority, 3, []VoteChoice{VoteFor, VoteFor, VoteAgainst}, VotePassed},
		{"majority tie fails", VoteSimpleMajority, 2, []VoteChoice{VoteFor, VoteAgainst}, VoteFailed},
		{"two thirds exact", VoteTwoThirds, 3, []VoteChoice{VoteFor, VoteFor, VoteAgainst}, VotePassed},
		{"two thirds abstain counts", VoteTwoThirds, 3, []VoteChoice{VoteFor, VoteAbstain, VoteAgainst}, VoteFailed},
		{"unanimous fails on against", VoteUnanimous, 2, []VoteChoice{VoteFor, VoteAgainst}, VoteFailed},
		{"unanimous fails on abstain", VoteUnanimous, 2, []VoteChoice{VoteFor, VoteAbstain}, VoteFailed},
		{"unanimous passes", VoteUnanimous, 2, []VoteChoice{VoteFor, VoteFor}, VotePassed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &WorkflowVote{VoteType: tt.voteType, RequiredVotes: tt.required, Ballots: ballots(tt.choices...)}
			assert.Equal(t, tt.want, v.Decide())
		})
	}
}

func TestDecide_QuorumBelowMembership(t *testing.T) {
	v := &WorkflowVote{VoteType: VoteSimpleMajority, RequiredVotes: 2, EligibleVoters: 5,
		Ballots: ballots(VoteFor, VoteAgainst)}
	assert.Equal(t, VotePending, v.Decide(), "three more members can still carry the vote")

	v.Ballots = ballots(VoteAgainst, VoteAgainst, VoteAgainst)
	assert.Equal(t, VoteFailed, v.Decide())
}

func TestOperatorEvaluate(t *testing.T) {
	assert.True(t, OpEquals.Evaluate(float64(3), 3))
	assert.True(t, OpGreaterThan.Evaluate(1500.0, 1000))
	assert.False(t, OpGreaterThan.Evaluate("abc", 1000))
	assert.True(t, OpLessThan.Evaluate("2024-01-01", "2024-06-30"))
	assert.True(t, OpContains.Evaluate([]any{"a", "b"}, "b"))
	assert.True(t, OpContains.Evaluate("governance board", "board"))
	assert.True(t, OpIn.Evaluate("high", []any{"high", "critical"}))
	assert.True(t, OpIsEmpty.Evaluate("", nil))
	assert.True(t, OpIsEmpty.Evaluate([]any{}, nil))
	assert.True(t, OpIsNotEmpty.Evaluate(false, nil))
	assert.True(t, OpNotEquals.Evaluate(nil, "x"))
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(ErrNotFound, "GetInstance", "instance %s not found", "abc"))
	assert.True(t, errors.Is(err, NotFound))
	assert.False(t, errors.Is(err, Forbidden))
	assert.Equal(t, ErrNotFound, CodeOf(err))
	assert.Equal(t, "GetInstance: instance abc not found", errors.Unwrap(err).Error())

	v := NewValidationError("StartWorkflow", "invalid field values", []Violation{{Field: "title", Message: "is required"}})
	assert.Equal(t, "StartWorkflow: invalid field values (title: is required)", v.Error())
	assert.Len(t, ViolationsOf(v), 1)
}
