package policy

import (
	"time"

	"github.com/quaylabs/capkernel/intent"
)

// Engine is the policy engine (C9): a PolicyConfiguration plus the pure
// mapping functions that consult it. It holds no mutable decision state —
// only the configuration, which itself changes solely through
// UpdateConfiguration.
type Engine struct {
	cfg PolicyConfiguration
}

// NewEngine builds a policy engine around cfg.
func NewEngine(cfg PolicyConfiguration) *Engine {
	return &Engine{cfg: cfg}
}

// Configuration returns the engine's current configuration.
func (e *Engine) Configuration() PolicyConfiguration {
	return e.cfg
}

// UpdateConfiguration replaces the running configuration. It fails closed:
// a config update requires a token whose scope authorizes policy_update
// and which has not expired.
func (e *Engine) UpdateConfiguration(cfg PolicyConfiguration, token AuthorizationToken, now time.Time) error {
	if !token.IsValidFor(now) {
		return ErrUnauthorizedConfigUpdate
	}
	if !cfg.Version.IsValid() {
		return ErrUnsupportedVersion
	}
	e.cfg = cfg
	return nil
}

// BaseApprovalForIntent exposes the intent-only approval floor (spec §4.3
// contract baseApprovalForIntent).
func (e *Engine) BaseApprovalForIntent(typ intent.Type) ApprovalRequirement {
	return baseApprovalForIntent(e.cfg, typ)
}

// MapToApproval is the policy engine's primary contract: map a RiskAssessment
// to a PolicyDecision (spec §4.3 mapToApproval).
func (e *Engine) MapToApproval(assessment intent.Assessment) PolicyDecision {
	req := resolveForTier(e.cfg, assessment.Tier)

	// Escalation rule: reversibility dimension > 50 at tier high forces
	// biometric + >=10s cooldown + preview, regardless of configuration.
	if assessment.Tier == intent.TierHigh && assessment.Dimensions.Reversibility > 50 {
		req.RequireBiometric = true
		req.RequirePreview = true
		if req.MinCooldown < 10*time.Second {
			req.MinCooldown = 10 * time.Second
		}
	}

	return PolicyDecision{
		Tier:        assessment.Tier,
		Approval:    req,
		Constraints: constraintsFor(assessment, req),
	}
}

// constraintsFor attaches the fixed set of constraints spec §4.3 names:
// audit is always attached; rate limiting above 50 external exposure;
// cooldown above 70 reversibility; a soft time window at high/critical.
func constraintsFor(assessment intent.Assessment, req ApprovalRequirement) []Constraint {
	constraints := []Constraint{{Kind: ConstraintAuditRequired.String(), Soft: false}}

	if assessment.Dimensions.ExternalExposure > 50 {
		constraints = append(constraints, Constraint{Kind: ConstraintRateLimit.String(), Soft: false})
	}
	if assessment.Dimensions.Reversibility > 70 {
		constraints = append(constraints, Constraint{Kind: ConstraintCooldown.String(), Soft: false})
	}
	if assessment.Tier == intent.TierHigh || assessment.Tier == intent.TierCritical {
		constraints = append(constraints, Constraint{Kind: ConstraintTimeWindow.String(), Soft: true})
	}

	return constraints
}
