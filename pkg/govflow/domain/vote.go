package domain

import "time"

type VoteChoice string

const (
	VoteFor     VoteChoice = "for"
	VoteAgainst VoteChoice = "against"
	VoteAbstain VoteChoice = "abstain"
)

func (c VoteChoice) Valid() bool {
	return c == VoteFor || c == VoteAgainst || c == VoteAbstain
}

type VoteStatus string

const (
	VotePending VoteStatus = "pending"
	VotePassed  VoteStatus = "passed"
	VoteFailed  VoteStatus = "failed"
)

type Ballot struct {
	Vote    VoteChoice `json:"vote"`
	Comment string     `json:"comment,omitempty"`
	Cast    time.Time  `json:"cast"`
}

type Tally struct {
	For     int `json:"for"`
	Against int `json:"against"`
	Abstain int `json:"abstain"`
}

func (t Tally) Total() int { return t.For + t.Against + t.Abstain }

// WorkflowVote is the ballot box of one vote-gated transition for one state visit.
type WorkflowVote struct {
	ID             string            `json:"id"`
	InstanceID     string            `json:"instanceId"`
	TransitionID   string            `json:"transitionId"`
	StateVisit     int               `json:"stateVisit"`
	StateEnteredAt time.Time         `json:"stateEnteredAt"`
	VoteType       VoteType          `json:"voteType"`
	Ballots        map[string]Ballot `json:"ballots"`
	RequiredVotes  int               `json:"requiredVotes"`
	EligibleVoters int               `json:"eligibleVoters"`
	Status         VoteStatus        `json:"status"`
	Created        time.Time         `json:"created"`
	Modified       time.Time         `json:"modified"`
	Version        int64             `json:"version"`
}

func (v *WorkflowVote) Tally() Tally {
	var t Tally
	for _, b := range v.Ballots {
		switch b.Vote {
		case VoteFor:
			t.For++
		case VoteAgainst:
			t.Against++
		case VoteAbstain:
			t.Abstain++
		}
	}
	return t
}

// Decide evaluates the pass rule once enough ballots are in. It returns VotePending
// while fewer than RequiredVotes ballots were cast, or while the eligible members who
// have not voted yet could still carry the vote.
func (v *WorkflowVote) Decide() VoteStatus {
	t := v.Tally()
	if t.Total() < v.RequiredVotes {
		return VotePending
	}
	if v.passes(t) {
		return VotePassed
	}
	if remaining := v.EligibleVoters - t.Total(); remaining > 0 {
		best := t
		best.For += remaining
		if v.passes(best) {
			return VotePending
		}
	}
	return VoteFailed
}

func (v *WorkflowVote) passes(t Tally) bool {
	total := t.Total()
	switch v.VoteType {
	case VoteTwoThirds:
		return t.For*3 >= total*2
	case VoteUnanimous:
		return t.For == total && t.Against == 0
	default:
		return t.For > t.Against
	}
}

// VoteRecord is the caller facing view of a ballot box.
type VoteRecord struct {
	Vote            *WorkflowVote     `json:"vote"`
	Tally           Tally             `json:"tally"`
	Transitioned    bool              `json:"transitioned"`
	TransitionError string            `json:"transitionError,omitempty"`
	Instance        *WorkflowInstance `json:"instance,omitempty"`
}
