package policy

import (
	"time"

	"github.com/quaylabs/capkernel/intent"
)

// DefaultPreset is the approval matrix from spec §4.3's published table.
func DefaultPreset() PolicyConfiguration {
	return PolicyConfiguration{
		Version: "v1",
		Name:    "default",
		Matrix: TierMatrix{
			intent.TierLow: {
				RequiredApprovals: 0,
				RequireBiometric:  false,
				MinCooldown:       0,
				RequiredSigners:   0,
				RequirePreview:    false,
			},
			intent.TierMedium: {
				RequiredApprovals: 1,
				RequireBiometric:  false,
				MinCooldown:       0,
				RequiredSigners:   1,
				RequirePreview:    true,
			},
			intent.TierHigh: {
				RequiredApprovals: 1,
				RequireBiometric:  true,
				MinCooldown:       0,
				RequiredSigners:   1,
				RequirePreview:    true,
			},
			intent.TierCritical: {
				RequiredApprovals: 2,
				RequireBiometric:  true,
				MinCooldown:       30 * time.Second,
				RequiredSigners:   2,
				RequirePreview:    true,
			},
		},
	}
}

// StrictPreset tightens the medium, high and critical tiers above the
// published minimums (biometric from medium up, longer cooldowns, more
// signers at high and critical); the low tier is the same as in
// DefaultPreset.
func StrictPreset() PolicyConfiguration {
	cfg := DefaultPreset()
	cfg.Name = "strict"
	cfg.Matrix[intent.TierMedium] = ApprovalRequirement{
		RequiredApprovals: 1,
		RequireBiometric:  true,
		MinCooldown:       5 * time.Second,
		RequiredSigners:   1,
		RequirePreview:    true,
	}
	cfg.Matrix[intent.TierHigh] = ApprovalRequirement{
		RequiredApprovals: 1,
		RequireBiometric:  true,
		MinCooldown:       20 * time.Second,
		RequiredSigners:   2,
		RequirePreview:    true,
	}
	cfg.Matrix[intent.TierCritical] = ApprovalRequirement{
		RequiredApprovals: 2,
		RequireBiometric:  true,
		MinCooldown:       60 * time.Second,
		RequiredSigners:   3,
		RequirePreview:    true,
	}
	return cfg
}

// floors is the hard lower bound every configuration is clamped to
// regardless of what an operator sets, so that no PolicyConfiguration can
// loosen the matrix's published guarantees (spec §4.3: "Tier critical is
// always enforced to at least the values above, regardless of configured
// values being looser").
var floors = TierMatrix{
	intent.TierLow: {
		RequiredApprovals: 0, RequireBiometric: false, MinCooldown: 0, RequiredSigners: 0, RequirePreview: false,
	},
	intent.TierMedium: {
		RequiredApprovals: 1, RequireBiometric: false, MinCooldown: 0, RequiredSigners: 1, RequirePreview: true,
	},
	intent.TierHigh: {
		RequiredApprovals: 1, RequireBiometric: true, MinCooldown: 0, RequiredSigners: 1, RequirePreview: true,
	},
	intent.TierCritical: {
		RequiredApprovals: 2, RequireBiometric: true, MinCooldown: 30 * time.Second, RequiredSigners: 2, RequirePreview: true,
	},
}

// enforceFloor raises req to at least floor on every field; biometric and
// preview are OR'd, never weakened.
func enforceFloor(req, floor ApprovalRequirement) ApprovalRequirement {
	if req.RequiredApprovals < floor.RequiredApprovals {
		req.RequiredApprovals = floor.RequiredApprovals
	}
	if floor.RequireBiometric {
		req.RequireBiometric = true
	}
	if req.MinCooldown < floor.MinCooldown {
		req.MinCooldown = floor.MinCooldown
	}
	if req.RequiredSigners < floor.RequiredSigners {
		req.RequiredSigners = floor.RequiredSigners
	}
	if floor.RequirePreview {
		req.RequirePreview = true
	}
	return req
}

// baseApprovalForIntent returns a minimal ApprovalRequirement from the
// intent type alone, before any risk-based escalation — used by callers
// that need a quick posture check ahead of a full risk assessment.
func baseApprovalForIntent(cfg PolicyConfiguration, typ intent.Type) ApprovalRequirement {
	tier := intent.TierLow
	if typ.IsExternalCommunication() || typ == intent.TypeDatabaseMutation || typ == intent.TypeSystemConfig {
		tier = intent.TierMedium
	}
	return resolveForTier(cfg, tier)
}

func resolveForTier(cfg PolicyConfiguration, tier intent.Tier) ApprovalRequirement {
	req := cfg.Matrix[tier]
	return enforceFloor(req, floors[tier])
}
