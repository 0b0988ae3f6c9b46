package authorization

import (
	"time"

	"github.com/mizutama/torii/internal/entities"
)

// Verdict is the outcome of resolving one rule set for one request.
// NoMatch (no rule applied) is distinct from Inherit (rules applied and all
// of them defer): both fall through to inheritance, but the distinction
// matters for tracing and must never collapse silently.
type Verdict int

const (
	VerdictNoMatch Verdict = iota
	VerdictAllow
	VerdictDeny
	VerdictInherit
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictDeny:
		return "deny"
	case VerdictInherit:
		return "inherit"
	default:
		return "no_match"
	}
}

// RuleSetResolver computes the local verdict of a single rule set
type RuleSetResolver struct {
	conditions *ConditionEvaluator
}

// NewRuleSetResolver creates a new RuleSetResolver
func NewRuleSetResolver(conditions *ConditionEvaluator) *RuleSetResolver {
	return &RuleSetResolver{conditions: conditions}
}

// ResolveLocal resolves the given rules for one (action, principal) request.
//
// A rule applies when it is effective at now, its action matches the request,
// and its subject addresses the principal: user rules by identifier, role
// rules by role membership, policy rules by evaluating their attribute
// condition against the context. Precedence over the applicable set is
// absolute and order-independent: any Deny wins, else any Allow wins, else
// everything left is Inherit.
func (r *RuleSetResolver) ResolveLocal(
	rules []*entities.PermissionRule,
	action entities.Action,
	principal *entities.Principal,
	evalCtx *entities.EvaluationContext,
	now time.Time,
) Verdict {
	if principal == nil {
		return VerdictNoMatch
	}

	var hasDeny, hasAllow, hasInherit bool

	for _, rule := range rules {
		if rule == nil || !rule.IsEffective(now) || !rule.Action.Matches(action) {
			continue
		}
		if !r.applies(rule, principal, evalCtx) {
			continue
		}
		switch rule.Effect {
		case entities.EffectDeny:
			hasDeny = true
		case entities.EffectAllow:
			hasAllow = true
		case entities.EffectInherit:
			hasInherit = true
		}
	}

	switch {
	case hasDeny:
		return VerdictDeny
	case hasAllow:
		return VerdictAllow
	case hasInherit:
		return VerdictInherit
	default:
		return VerdictNoMatch
	}
}

// applies reports whether the rule's subject addresses the principal
func (r *RuleSetResolver) applies(rule *entities.PermissionRule, principal *entities.Principal, evalCtx *entities.EvaluationContext) bool {
	switch rule.SubjectKind {
	case entities.SubjectUser:
		return rule.SubjectTarget == principal.ID
	case entities.SubjectRole:
		return principal.HasRole(rule.SubjectTarget)
	case entities.SubjectPolicy:
		return r.conditions.Evaluate(rule.Condition, evalCtx)
	default:
		return false
	}
}
