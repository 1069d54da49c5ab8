package engine

import (
	"context"
	"testing"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routedFlow(name string, rules ...domain.AssignmentRule) domain.WorkflowDefinition {
	def := approvalFlow()
	def.Name = name
	def.AssignmentRules = rules
	return def
}

func TestScoreRule(t *testing.T) {
	tests := []struct {
		name  string
		rule  domain.AssignmentRule
		mc    domain.MatchContext
		want  int
		match bool
	}{
		{"type match", domain.AssignmentRule{DocumentTypes: []string{"complaint"}}, domain.MatchContext{DocumentType: "complaint"}, 10, true},
		{"type mismatch disqualifies", domain.AssignmentRule{DocumentTypes: []string{"complaint"}}, domain.MatchContext{DocumentType: "contract"}, 0, false},
		{"priority added", domain.AssignmentRule{DocumentTypes: []string{"complaint"}, Priority: 4}, domain.MatchContext{DocumentType: "complaint"}, 14, true},
		{"category and committee", domain.AssignmentRule{DocumentCategories: []string{"hr"}, Committees: []string{"ethics"}},
			domain.MatchContext{DocumentCategory: "hr", Committee: "ethics"}, 10, true},
		{"each tag counts", domain.AssignmentRule{Tags: []string{"urgent", "public", "legal"}},
			domain.MatchContext{Tags: []string{"urgent", "legal", "other"}}, 2, true},
		{"no tag overlap disqualifies", domain.AssignmentRule{Tags: []string{"urgent"}}, domain.MatchContext{Tags: []string{"other"}}, 0, false},
		{"custom field predicate", domain.AssignmentRule{CustomFields: []domain.CustomFieldPredicate{{Field: "amount", Operator: domain.OpGreaterThan, Value: 1000}}},
			domain.MatchContext{CustomFields: map[string]any{"amount": 5000.0}}, 3, true},
		{"failing predicate disqualifies", domain.AssignmentRule{CustomFields: []domain.CustomFieldPredicate{{Field: "amount", Operator: domain.OpGreaterThan, Value: 1000}}},
			domain.MatchContext{CustomFields: map[string]any{"amount": 10.0}}, 0, false},
		{"criterion absent from context is skipped", domain.AssignmentRule{DocumentTypes: []string{"complaint"}, Committees: []string{"ethics"}},
			domain.MatchContext{DocumentType: "complaint"}, 10, true},
		{"nothing checked does not match", domain.AssignmentRule{Committees: []string{"ethics"}}, domain.MatchContext{DocumentType: "complaint"}, 0, false},
		{"unconstrained rule never matches", domain.AssignmentRule{Priority: 50}, domain.MatchContext{DocumentType: "complaint"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := scoreRule(tt.rule, tt.mc)
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, tt.want, s.score)
			}
		})
	}
}

func TestRouter_SuggestComplaintOverContract(t *testing.T) {
	h := newHarness(t)
	complaint := h.publish(t, routedFlow("Complaint Handling",
		domain.AssignmentRule{ID: "complaints", DocumentTypes: []string{"complaint"}}))
	h.publish(t, routedFlow("Contract Review",
		domain.AssignmentRule{ID: "contracts", DocumentTypes: []string{"contract"}}))

	suggestions, err := h.router.Suggest(context.Background(), domain.MatchContext{DocumentType: "complaint"})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, complaint.ID, suggestions[0].Definition.ID)
	assert.GreaterOrEqual(t, suggestions[0].Score, 10)
	assert.Equal(t, "complaints", suggestions[0].RuleID)
	assert.NotEmpty(t, suggestions[0].Reasons)
}

func TestRouter_BestRuleAndTieBreaks(t *testing.T) {
	h := newHarness(t)
	older := h.publish(t, routedFlow("Older",
		domain.AssignmentRule{ID: "a", Committees: []string{"ethics"}, Priority: 1}))
	newer := h.publish(t, routedFlow("Newer",
		domain.AssignmentRule{ID: "b", Committees: []string{"ethics"}, Priority: 1}))
	best := h.publish(t, routedFlow("Best",
		domain.AssignmentRule{ID: "weak", Tags: []string{"x"}},
		domain.AssignmentRule{ID: "strong", Committees: []string{"ethics"}, Tags: []string{"x"}, Priority: 2}))

	suggestions, err := h.router.Suggest(context.Background(), domain.MatchContext{Committee: "ethics", Tags: []string{"x"}})
	require.NoError(t, err)
	require.Len(t, suggestions, 3)
	assert.Equal(t, best.ID, suggestions[0].Definition.ID)
	assert.Equal(t, "strong", suggestions[0].RuleID)
	assert.Equal(t, 8, suggestions[0].Score)
	assert.Equal(t, older.ID, suggestions[1].Definition.ID, "equal scores keep creation order")
	assert.Equal(t, newer.ID, suggestions[2].Definition.ID)

	matching, err := h.store.FindMatching(context.Background(), domain.MatchContext{Committee: "ethics", Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Len(t, matching, 3)
}

func TestRouter_AutoStartRequiresOptIn(t *testing.T) {
	h := newHarness(t)
	h.publish(t, routedFlow("Manual", domain.AssignmentRule{ID: "manual", DocumentTypes: []string{"complaint"}}))
	ctx := context.Background()
	req := StartRequest{User: "alice", Fields: map[string]any{"title": "Noise complaint"}}

	res, err := h.router.AutoStart(ctx, domain.MatchContext{DocumentType: "complaint"}, req)
	require.NoError(t, err)
	assert.Nil(t, res)

	auto := h.publish(t, routedFlow("Automatic",
		domain.AssignmentRule{ID: "auto", DocumentTypes: []string{"complaint"}, Priority: 1, AutoStart: true}))
	res, err = h.router.AutoStart(ctx, domain.MatchContext{DocumentType: "complaint", Committee: "ethics"}, req)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, auto.ID, res.Instance.DefinitionID)
	assert.Equal(t, "ethics", res.Instance.Committee)
	assert.Equal(t, "draft", res.Instance.CurrentState)
}
