package kernel

import (
	"strconv"

	"github.com/quaylabs/capkernel/intent"
)

// paramBool reads a caller-supplied boolean hint from an ExecutionIntent's
// opaque Parameters map, defaulting to false for any missing or
// unparseable value. The kernel never infers these signals from free text
// — they are declared by the caller at intake.
func paramBool(params map[string]string, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func paramInt(params map[string]string, key string) int {
	v, ok := params[key]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// buildRiskContext assembles the risk engine's input from the classified
// intent type, its derived sensitivity, and the caller's declared
// parameters. isIrreversible is read off the type's fixed default rather
// than the later reversibility_check phase's richer, context-aware class —
// the pipeline's ordering guarantee forbids risk_score from observing a
// later phase's output (spec §4.1).
func buildRiskContext(it intent.ExecutionIntent, typ intent.Type, sensitivity intent.Sensitivity, revCtx intent.ReversibilityContext) intent.RiskContext {
	return intent.RiskContext{
		IntentType:          typ,
		Sensitivity:          sensitivity,
		InvolvesPayment:      paramBool(it.Parameters, "involvesPayment"),
		InvolvesPII:          paramBool(it.Parameters, "involvesPII"),
		IsIrreversible:       typ.DefaultReversibility() == intent.Irreversible,
		HasRollbackPlan:      revCtx.HasRollbackPlan,
		ExternalRecipients:   paramInt(it.Parameters, "externalRecipients"),
		AffectsSystemConfig:  paramBool(it.Parameters, "affectsSystemConfig"),
		ScopeBreadth:         paramInt(it.Parameters, "scopeBreadth"),
	}
}

// intentKey returns the cooldown/dedup key for an intent: its type paired
// with its target, matching the "intent's hashable key" cooldowns are
// recorded against (spec §4.1 step 8).
func intentKey(typ intent.Type, target string) string {
	if target == "" {
		return string(typ)
	}
	return string(typ) + ":" + target
}
