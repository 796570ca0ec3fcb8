package kernel

import (
	"time"

	"github.com/quaylabs/capkernel/intent"
	"github.com/quaylabs/capkernel/policy"
	"github.com/quaylabs/capkernel/quorum"
)

// PendingPlanContext parks a ToolPlan awaiting human approval (spec §3).
// Its lifetime runs from parking until authorize/deny resolves it or
// emergencyStop discards it.
type PendingPlanContext struct {
	Plan                intent.ToolPlan
	RiskAssessment      intent.Assessment
	VerificationResult  intent.VerificationResult
	PolicyDecision      policy.PolicyDecision
	CreatedAt           time.Time
	CollectedSignatures []quorum.CollectedSignature
}
