package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// Score bonuses added to a rule's priority for each matching criterion.
const (
	scoreDocumentType     = 10
	scoreDocumentCategory = 5
	scoreCommittee        = 5
	scoreTag              = 1
	scoreCustomField      = 3
)

// Router picks the best-fit active definition for a document or request.
type Router struct {
	store  *DefinitionStore
	engine *Engine
}

func NewRouter(store *DefinitionStore, engine *Engine) *Router {
	return &Router{store: store, engine: engine}
}

// Suggest ranks every active definition with a matching rule, highest score first.
func (r *Router) Suggest(ctx context.Context, mc domain.MatchContext) ([]domain.WorkflowSuggestion, error) {
	defs, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return rank(defs, mc), nil
}

// AutoStart starts the best suggestion when its winning rule opts in to auto start.
// req carries the starting user and initial fields. It returns nil, nil when nothing
// matched or the winner does not auto start.
func (r *Router) AutoStart(ctx context.Context, mc domain.MatchContext, req StartRequest) (*ExecutionResult, error) {
	suggestions, err := r.Suggest(ctx, mc)
	if err != nil {
		return nil, err
	}
	if len(suggestions) == 0 || !suggestions[0].AutoStart {
		return nil, nil
	}
	best := suggestions[0]
	slog.InfoContext(ctx, "Auto starting workflow", "definition", best.Definition.ID, "rule", best.RuleID, "score", best.Score)

	req.DefinitionID = best.Definition.ID
	if req.Committee == "" {
		req.Committee = mc.Committee
	}
	return r.engine.StartWorkflow(ctx, req)
}

type ruleScore struct {
	score   int
	reasons []string
}

// scoreRule returns false when the rule is disqualified by a populated criterion
// that the context contradicts, or when none of its criteria could be checked.
func scoreRule(rule domain.AssignmentRule, mc domain.MatchContext) (ruleScore, bool) {
	s := ruleScore{score: rule.Priority}
	matched := 0

	if len(rule.DocumentTypes) > 0 && mc.DocumentType != "" {
		if !contains(rule.DocumentTypes, mc.DocumentType) {
			return s, false
		}
		s.score += scoreDocumentType
		s.reasons = append(s.reasons, fmt.Sprintf("document type %q", mc.DocumentType))
		matched++
	}
	if len(rule.DocumentCategories) > 0 && mc.DocumentCategory != "" {
		if !contains(rule.DocumentCategories, mc.DocumentCategory) {
			return s, false
		}
		s.score += scoreDocumentCategory
		s.reasons = append(s.reasons, fmt.Sprintf("document category %q", mc.DocumentCategory))
		matched++
	}
	if len(rule.Committees) > 0 && mc.Committee != "" {
		if !contains(rule.Committees, mc.Committee) {
			return s, false
		}
		s.score += scoreCommittee
		s.reasons = append(s.reasons, fmt.Sprintf("committee %q", mc.Committee))
		matched++
	}
	if len(rule.Tags) > 0 && len(mc.Tags) > 0 {
		hits := 0
		for _, tag := range mc.Tags {
			if contains(rule.Tags, tag) {
				hits++
				s.reasons = append(s.reasons, fmt.Sprintf("tag %q", tag))
			}
		}
		if hits == 0 {
			return s, false
		}
		s.score += hits * scoreTag
		matched++
	}
	for _, p := range rule.CustomFields {
		actual, present := mc.CustomFields[p.Field]
		if !present {
			continue
		}
		if !p.Operator.Evaluate(actual, p.Value) {
			return s, false
		}
		s.score += scoreCustomField
		s.reasons = append(s.reasons, fmt.Sprintf("field %s %s", p.Field, p.Operator))
		matched++
	}
	return s, matched > 0
}

// rank scores each definition by its best surviving rule. Ties fall back to rule
// priority, then to the order of defs, which is creation order.
func rank(defs []domain.WorkflowDefinition, mc domain.MatchContext) []domain.WorkflowSuggestion {
	type candidate struct {
		suggestion domain.WorkflowSuggestion
		priority   int
		order      int
	}
	var candidates []candidate
	for i := range defs {
		def := &defs[i]
		var best *candidate
		for _, rule := range def.AssignmentRules {
			s, ok := scoreRule(rule, mc)
			if !ok {
				continue
			}
			if best == nil || s.score > best.suggestion.Score ||
				(s.score == best.suggestion.Score && rule.Priority > best.priority) {
				best = &candidate{
					suggestion: domain.WorkflowSuggestion{
						Definition: def,
						RuleID:     rule.ID,
						Score:      s.score,
						Reasons:    s.reasons,
						AutoStart:  rule.AutoStart,
					},
					priority: rule.Priority,
					order:    i,
				}
			}
		}
		if best != nil {
			candidates = append(candidates, *best)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.suggestion.Score != b.suggestion.Score {
			return a.suggestion.Score > b.suggestion.Score
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.order < b.order
	})

	out := make([]domain.WorkflowSuggestion, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.suggestion)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
