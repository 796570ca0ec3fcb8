// Package risk implements the kernel's risk engine (C8): a pure, stateless,
// deterministic scorer over six weighted dimensions. Assess never performs
// I/O and never consults wall-clock time, so the same RiskContext always
// produces the same Assessment.
package risk

import "github.com/quaylabs/capkernel/intent"

// rule is one fixed contribution to a dimension's score, evaluated against
// a RiskContext. The rule table below is the engine's entire decision
// surface — no dimension score comes from anywhere else.
type rule struct {
	dimension   intent.Dimension
	description string
	contributes func(ctx intent.RiskContext) int
}

// ruleTable is the fixed, ordered scoring table (spec §4.2). Order matters
// only for the deterministic ordering of the resulting Reason slice, not
// for the score itself.
var ruleTable = []rule{
	{
		dimension:   intent.DimensionFinancialImpact,
		description: "action involves a payment or financial transaction",
		contributes: func(ctx intent.RiskContext) int {
			if ctx.InvolvesPayment {
				return 80
			}
			return 0
		},
	},
	{
		dimension:   intent.DimensionExternalExposure,
		description: "action communicates with a recipient outside the host",
		contributes: func(ctx intent.RiskContext) int {
			if ctx.IntentType.IsExternalCommunication() {
				return 40
			}
			return 0
		},
	},
	{
		dimension:   intent.DimensionExternalExposure,
		description: "each external recipient beyond the first adds exposure",
		contributes: func(ctx intent.RiskContext) int {
			extra := ctx.ExternalRecipients - 1
			if extra <= 0 {
				return 0
			}
			if extra > 3 {
				extra = 3
			}
			return extra * 10
		},
	},
	{
		dimension:   intent.DimensionDataSensitivity,
		description: "action touches personally identifiable information",
		contributes: func(ctx intent.RiskContext) int {
			if ctx.InvolvesPII {
				return 50
			}
			return 0
		},
	},
	{
		dimension:   intent.DimensionDataSensitivity,
		description: "content sensitivity marker raises handling requirements",
		contributes: func(ctx intent.RiskContext) int {
			switch ctx.Sensitivity {
			case intent.SensitivityCritical:
				return 60
			case intent.SensitivityHigh:
				return 40
			case intent.SensitivityMedium:
				return 20
			default:
				return 0
			}
		},
	},
	{
		dimension:   intent.DimensionSystemMutation,
		description: "action mutates host or application state",
		contributes: func(ctx intent.RiskContext) int {
			if ctx.IntentType.IsMutation() {
				return 30
			}
			return 0
		},
	},
	{
		dimension:   intent.DimensionSystemMutation,
		description: "action changes system configuration",
		contributes: func(ctx intent.RiskContext) int {
			if ctx.AffectsSystemConfig {
				return 50
			}
			return 0
		},
	},
	{
		dimension:   intent.DimensionReversibility,
		description: "action is irreversible once executed",
		contributes: func(ctx intent.RiskContext) int {
			if ctx.IsIrreversible {
				return 60
			}
			return 0
		},
	},
	{
		dimension:   intent.DimensionReversibility,
		description: "no rollback plan exists and the action is not reversible",
		contributes: func(ctx intent.RiskContext) int {
			if !ctx.HasRollbackPlan && ctx.IsIrreversible {
				return 20
			}
			return 0
		},
	},
	{
		dimension:   intent.DimensionScope,
		description: "action spans multiple distinct resources",
		contributes: func(ctx intent.RiskContext) int {
			if ctx.ScopeBreadth <= 1 {
				return 0
			}
			n := ctx.ScopeBreadth - 1
			if n > 10 {
				n = 10
			}
			return n * 10
		},
	},
}

// Assess scores ctx against the fixed rule table, clips each dimension to
// [0,100], and reduces to a weighted total and tier. It performs no I/O.
func Assess(ctx intent.RiskContext) intent.Assessment {
	dimScores := map[intent.Dimension]int{}
	var reasons []intent.Reason

	for _, r := range ruleTable {
		contribution := r.contributes(ctx)
		if contribution == 0 {
			continue
		}

		before := dimScores[r.dimension]
		after := before + contribution
		clipped := after
		if clipped > 100 {
			clipped = 100
		}
		actualContribution := clipped - before
		if actualContribution <= 0 {
			continue
		}
		dimScores[r.dimension] = clipped
		reasons = append(reasons, intent.Reason{
			Dimension:         r.dimension,
			Description:       r.description,
			ScoreContribution: actualContribution,
		})
	}

	dims := intent.RiskDimensions{
		FinancialImpact:  dimScores[intent.DimensionFinancialImpact],
		ExternalExposure: dimScores[intent.DimensionExternalExposure],
		DataSensitivity:  dimScores[intent.DimensionDataSensitivity],
		SystemMutation:   dimScores[intent.DimensionSystemMutation],
		Reversibility:    dimScores[intent.DimensionReversibility],
		Scope:            dimScores[intent.DimensionScope],
	}

	total := weightedTotal(dims)

	return intent.Assessment{
		Dimensions: dims,
		Reasons:    reasons,
		Total:      total,
		Tier:       intent.TierFromScore(total),
	}
}

// weightedTotal computes Σ dim_i × weight_i ÷ 100, rounded half-to-zero at
// the division (spec P8): adding 49 before the integer division rounds a
// remainder above one half up and a remainder of one half or less down.
func weightedTotal(d intent.RiskDimensions) int {
	sum := 0
	for _, dim := range intent.AllDimensions {
		sum += d.Get(dim) * dim.Weight()
	}
	return (sum + 49) / 100
}
