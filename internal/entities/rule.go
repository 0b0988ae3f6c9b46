package entities

import (
	"fmt"
	"time"
)

// SubjectKind identifies which addressing scheme a rule uses
type SubjectKind string

const (
	// SubjectRole addresses every principal carrying a named role
	SubjectRole SubjectKind = "role"
	// SubjectUser addresses a single principal by identifier
	SubjectUser SubjectKind = "user"
	// SubjectPolicy addresses principals matched by an attribute condition
	SubjectPolicy SubjectKind = "policy"
)

// Effect is the verdict a single rule contributes
type Effect string

const (
	EffectAllow   Effect = "allow"
	EffectDeny    Effect = "deny"
	EffectInherit Effect = "inherit"
)

// PermissionRule represents one grant/deny/inherit statement attached to a
// catalogue or a template. Rules are immutable values; they have no identity
// beyond their attribute tuple.
type PermissionRule struct {
	SubjectKind   SubjectKind `json:"subject_kind"`
	SubjectTarget string      `json:"subject_target"` // role name, user id, or policy name
	Action        Action      `json:"action"`
	Effect        Effect      `json:"effect"`
	Condition     *Condition  `json:"condition,omitempty"` // only meaningful for policy rules
	Enabled       bool        `json:"enabled"`
	EffectiveFrom *time.Time  `json:"effective_from,omitempty"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
	Description   string      `json:"description,omitempty"`
}

// IsEffective reports whether the rule is active at the given instant.
// A disabled rule or one outside its time window never applies. A rule whose
// window is contradictory (effective_from not before expires_at) is never active.
func (r *PermissionRule) IsEffective(now time.Time) bool {
	if !r.Enabled {
		return false
	}
	if r.EffectiveFrom != nil && r.ExpiresAt != nil && !r.EffectiveFrom.Before(*r.ExpiresAt) {
		return false
	}
	if r.EffectiveFrom != nil && now.Before(*r.EffectiveFrom) {
		return false
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return false
	}
	return true
}

// Validate checks if the rule is well-formed
func (r *PermissionRule) Validate() error {
	switch r.SubjectKind {
	case SubjectRole, SubjectUser, SubjectPolicy:
	default:
		return fmt.Errorf("invalid subject kind: %s", r.SubjectKind)
	}
	if r.SubjectTarget == "" {
		return fmt.Errorf("subject target is required")
	}
	if !r.Action.IsValid() {
		return fmt.Errorf("invalid action: %s", r.Action)
	}
	switch r.Effect {
	case EffectAllow, EffectDeny, EffectInherit:
	default:
		return fmt.Errorf("invalid effect: %s", r.Effect)
	}
	if r.EffectiveFrom != nil && r.ExpiresAt != nil && !r.EffectiveFrom.Before(*r.ExpiresAt) {
		return fmt.Errorf("effective_from must be before expires_at")
	}
	return nil
}

// String returns a string representation of the rule
// Format: subject_kind:subject_target action=effect
func (r *PermissionRule) String() string {
	return fmt.Sprintf("%s:%s %s=%s", r.SubjectKind, r.SubjectTarget, r.Action, r.Effect)
}
