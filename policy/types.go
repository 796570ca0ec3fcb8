// Package policy implements the kernel's policy engine (C9): it maps a
// risk assessment to an ApprovalRequirement and a set of constraints, and
// owns the PolicyConfiguration the mapping is parameterized by. The
// configuration is never runtime-mutable without a valid
// PolicyAuthorizationToken presented to UpdateConfiguration.
package policy

import (
	"time"

	"github.com/quaylabs/capkernel/intent"
)

// Version identifies a PolicyConfiguration schema revision.
type Version string

// SupportedVersions enumerates the schema versions this package can load.
var SupportedVersions = []Version{"v1"}

// IsValid reports whether v is a known, loadable schema version.
func (v Version) IsValid() bool {
	for _, sv := range SupportedVersions {
		if v == sv {
			return true
		}
	}
	return false
}

// ConstraintKind is the closed set of constraints a PolicyDecision may
// attach beyond the bare approval requirement.
type ConstraintKind string

const (
	ConstraintAuditRequired ConstraintKind = "audit_required"
	ConstraintRateLimit     ConstraintKind = "rate_limit"
	ConstraintCooldown      ConstraintKind = "cooldown"
	ConstraintTimeWindow    ConstraintKind = "time_window"
)

func (c ConstraintKind) String() string { return string(c) }

// Constraint is one attached condition on an approved plan's execution.
type Constraint struct {
	Kind string `yaml:"kind" json:"kind"`
	// Soft constraints are advisory (logged, surfaced to the approver) but
	// do not themselves block execution; hard constraints (audit, cooldown,
	// rate limit) do.
	Soft bool `yaml:"soft" json:"soft"`
}

// ApprovalRequirement is the tier-specific approval posture: how many
// distinct approvals are needed, whether a biometric signature is
// mandatory, how long the post-approval cooldown must be, how many
// distinct signer types are required, and whether the approver must be
// shown a preview of the plan before approving.
type ApprovalRequirement struct {
	RequiredApprovals int           `yaml:"requiredApprovals" json:"requiredApprovals"`
	RequireBiometric  bool          `yaml:"requireBiometric" json:"requireBiometric"`
	MinCooldown       time.Duration `yaml:"minCooldown" json:"minCooldown"`
	RequiredSigners   int           `yaml:"requiredSigners" json:"requiredSigners"`
	RequirePreview    bool          `yaml:"requirePreview" json:"requirePreview"`
}

// PolicyDecision is the policy engine's output for a single risk assessment.
type PolicyDecision struct {
	Tier        intent.Tier          `json:"tier"`
	Approval    ApprovalRequirement  `json:"approval"`
	Constraints []Constraint         `json:"constraints"`
}

// TierMatrix maps each RiskTier to its ApprovalRequirement. A
// PolicyConfiguration carries one of these; presets (Default, Strict) are
// the kernel's two shipped starting points (spec §6).
type TierMatrix map[intent.Tier]ApprovalRequirement

// PolicyConfiguration is the policy engine's full, load/save-able
// parameterization.
type PolicyConfiguration struct {
	Version Version    `yaml:"version" json:"version"`
	Name    string     `yaml:"name" json:"name"`
	Matrix  TierMatrix `yaml:"matrix" json:"matrix"`
}

// Scope is the closed set of authorities a PolicyAuthorizationToken may
// grant over the running configuration.
type Scope string

const (
	ScopePolicyUpdate      Scope = "policy_update"
	ScopeEmergencyOverride Scope = "emergency_override"
	ScopeFullAccess        Scope = "full_access"
)

func (s Scope) IsValid() bool {
	switch s {
	case ScopePolicyUpdate, ScopeEmergencyOverride, ScopeFullAccess:
		return true
	}
	return false
}

// AuthorizationToken grants the bearer the right to mutate the running
// PolicyConfiguration. UpdateConfiguration fails closed unless a token
// with a matching scope and an unexpired expiresAt is presented.
type AuthorizationToken struct {
	Scope     Scope     `json:"scope"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsValidFor reports whether t authorizes a configuration update at now.
func (t AuthorizationToken) IsValidFor(now time.Time) bool {
	if !t.Scope.IsValid() {
		return false
	}
	if t.Scope != ScopePolicyUpdate && t.Scope != ScopeFullAccess {
		return false
	}
	return now.Before(t.ExpiresAt)
}
