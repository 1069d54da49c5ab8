package engine

import (
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// authorize checks the transition's permission predicate for one user.
func authorize(op string, p *domain.Permissions, tr *domain.WorkflowTransition, inst *domain.WorkflowInstance) error {
	perm := tr.Permission
	if !p.AccessLevel.AtLeast(perm.MinAccessLevel) {
		return domain.NewError(domain.ErrForbidden, op, "transition %s requires access level %s", tr.ID, perm.MinAccessLevel)
	}
	if len(perm.Roles) > 0 && !p.HasAnyRole(perm.Roles) {
		return domain.NewError(domain.ErrForbidden, op, "transition %s requires one of roles %v", tr.ID, perm.Roles)
	}
	if perm.RequireCommitteeMember {
		committee := instanceCommittee(inst)
		if !p.MemberOf(committee) {
			return domain.NewError(domain.ErrForbidden, op, "transition %s requires membership of committee %q", tr.ID, committee)
		}
	}
	return nil
}

// checkConditions returns ErrConditionNotMet naming the first failing condition.
func checkConditions(op string, clock core.Clock, p *domain.Permissions, tr *domain.WorkflowTransition, inst *domain.WorkflowInstance) error {
	for _, c := range tr.Conditions {
		if conditionHolds(clock, p, c, inst) {
			continue
		}
		return &domain.Error{
			Code:      domain.ErrConditionNotMet,
			Op:        op,
			Message:   "condition not met: " + c.Describe(),
			Condition: c.Describe(),
		}
	}
	return nil
}

func conditionHolds(clock core.Clock, p *domain.Permissions, c domain.Condition, inst *domain.WorkflowInstance) bool {
	switch cond := c.(type) {
	case domain.FieldCondition:
		return cond.Operator.Evaluate(inst.FieldValues[cond.Field], cond.Value)
	case domain.RoleCondition:
		return p.HasAnyRole(cond.Roles)
	case domain.TimeInStateCondition:
		hours := core.HoursSince(clock, inst.StateEnteredAt)
		if cond.MinHours != nil && hours < *cond.MinHours {
			return false
		}
		if cond.MaxHours != nil && hours > *cond.MaxHours {
			return false
		}
		return true
	}
	return false
}

// instanceCommittee is the committee that owns the instance right now.
func instanceCommittee(inst *domain.WorkflowInstance) string {
	if inst.AssignedCommittee != "" {
		return inst.AssignedCommittee
	}
	return inst.Committee
}
