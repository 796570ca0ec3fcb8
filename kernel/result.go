package kernel

import (
	"github.com/quaylabs/capkernel/intent"
	"github.com/quaylabs/capkernel/token"
)

// Status is the closed set of outcomes execute/authorize/deny can return
// to the caller. A denial is never silent: every Status here pairs with
// a user-displayable Reason drawn from a fixed enumeration, never
// fabricated text (spec §7).
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusPendingApproval  Status = "pending_approval"
	StatusEscalated        Status = "escalated"
	StatusFailed           Status = "failed"
	StatusDenied           Status = "denied"
	StatusCooldownActive   Status = "cooldown_active"
)

func (s Status) String() string { return string(s) }

// ExecutionResult is the pipeline's answer to execute/authorize/deny.
type ExecutionResult struct {
	Status           Status                     `json:"status"`
	PlanID           string                     `json:"planId"`
	Phase            Phase                      `json:"phase"`
	Reason           string                     `json:"reason,omitempty"`
	RemainingSeconds int                        `json:"remainingSeconds,omitempty"`
	Assessment       intent.Assessment          `json:"assessment,omitempty"`
	Verification     intent.VerificationResult  `json:"verification,omitempty"`
	Token            *token.AuthorizationToken  `json:"token,omitempty"`
}
