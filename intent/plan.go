package intent

import (
	"time"

	"github.com/google/uuid"
)

// NewPlanID generates a new plan ID. Plan IDs and token IDs are durable,
// externally-presented identifiers (spec's `planId.uuid` accessor), unlike
// the short-lived 16-hex correlation IDs minted by intent.NewID.
func NewPlanID() string {
	return uuid.NewString()
}

// ValidatePlanID reports whether id is a well-formed plan ID.
func ValidatePlanID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ProbeType is the closed set of read-only verification kinds C10 can run.
type ProbeType string

const (
	ProbePermissionCheck  ProbeType = "permission_check"
	ProbeObjectExists     ProbeType = "object_exists"
	ProbeEndpointHealth   ProbeType = "endpoint_health"
	ProbeQuotaCheck       ProbeType = "quota_check"
	ProbeConnectionValid  ProbeType = "connection_valid"
	ProbeResourceAvailable ProbeType = "resource_available"
)

// IsValid reports whether t is a known ProbeType.
func (t ProbeType) IsValid() bool {
	switch t {
	case ProbePermissionCheck, ProbeObjectExists, ProbeEndpointHealth,
		ProbeQuotaCheck, ProbeConnectionValid, ProbeResourceAvailable:
		return true
	}
	return false
}

func (t ProbeType) String() string { return string(t) }

// ProbeDefinition describes a single read-only verification. Probes MUST be
// idempotent and retry-safe; they MUST NOT mutate any state they inspect.
type ProbeDefinition struct {
	Type       ProbeType `json:"type"`
	Target     string    `json:"target"`
	IsRequired bool      `json:"isRequired"`
}

// ExecutionStep is one ordered step of a ToolPlan's execution sequence.
type ExecutionStep struct {
	Order          int    `json:"order"`
	Action         string `json:"action"`
	Description    string `json:"description"`
	IsMutation     bool   `json:"isMutation"`
	RollbackAction string `json:"rollbackAction,omitempty"`
}

// IntentSummary is the compact description of the originating intent that
// travels with the plan so that downstream components never need to hold
// a reference back to the original ExecutionIntent.
type IntentSummary struct {
	Type                Type   `json:"type"`
	Summary             string `json:"summary"`
	TargetDescription   string `json:"targetDescription,omitempty"`
	OriginatingAction   string `json:"originatingAction"`
}

// ToolPlan is the canonical object representing a candidate action. Once
// its Signature verifies, a ToolPlan is treated as immutable for the rest
// of its lifetime (spec §3): no component may rewrite any of its fields
// after the signature check in the verification phase.
type ToolPlan struct {
	ID                  string              `json:"id"`
	Intent              IntentSummary       `json:"intent"`
	RiskScore           int                 `json:"riskScore"`
	RiskReasons         []Reason            `json:"riskReasons"`
	ReversibilityClass  ReversibilityClass  `json:"reversibilityClass"`
	ReversibilityReason string              `json:"reversibilityReason"`
	Steps               []ExecutionStep     `json:"steps"`
	Probes              []ProbeDefinition   `json:"probes"`
	CreatedAt           time.Time           `json:"createdAt"`
	Signature           string              `json:"signature"`
}

// CanonicalHeader returns the stable, length-prefixed byte form of the plan
// fields that must never change post-signature: identity, risk posture,
// reversibility, every step, and every probe. Field order is fixed by this
// function rather than left to a generic marshaler, so that adding a field
// elsewhere in ToolPlan never silently changes what earlier signatures
// covered (the canonical-plan-hashing choice recorded in DESIGN.md).
func (p ToolPlan) CanonicalHeader() []byte {
	var buf []byte
	writeField := func(s string) {
		buf = append(buf, byte(len(s)>>24), byte(len(s)>>16), byte(len(s)>>8), byte(len(s)))
		buf = append(buf, s...)
	}

	writeInt := func(n int) {
		buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}

	writeField(p.ID)
	writeField(string(p.Intent.Type))
	writeField(p.Intent.Summary)
	writeField(p.Intent.TargetDescription)
	writeField(p.Intent.OriginatingAction)
	writeInt(p.RiskScore)
	for _, reason := range p.RiskReasons {
		writeField(string(reason.Dimension))
		writeField(reason.Description)
		writeInt(reason.ScoreContribution)
	}
	writeField(string(p.ReversibilityClass))
	for _, step := range p.Steps {
		writeField(step.Action)
		writeField(step.Description)
		writeField(step.RollbackAction)
	}
	for _, probe := range p.Probes {
		writeField(string(probe.Type))
		writeField(probe.Target)
	}
	return buf
}

// StepCount returns the number of execution steps.
func (p ToolPlan) StepCount() int {
	return len(p.Steps)
}

// ReversibilityAssessment is C10's informational classification result.
type ReversibilityAssessment struct {
	Class  ReversibilityClass `json:"class"`
	Reason string             `json:"reason"`
}

// ReversibilityContext carries the per-request facts the reversibility
// table needs beyond the bare IntentType (spec §4.4): whether a rollback
// plan or backup exists for delete/file/mutation operations.
type ReversibilityContext struct {
	HasRollbackPlan bool
	HasBackup       bool
}

// VerificationResult is C10's overall verdict on a ToolPlan.
type VerificationResult struct {
	SignatureValid  bool                     `json:"signatureValid"`
	Reversibility   ReversibilityAssessment  `json:"reversibility"`
	ProbeResults    []ProbeResult            `json:"probeResults"`
	Confidence      float64                  `json:"confidence"`
	Passed          bool                     `json:"passed"`
}

// ProbeResult is the outcome of running a single ProbeDefinition.
type ProbeResult struct {
	Probe      ProbeDefinition `json:"probe"`
	Passed     bool            `json:"passed"`
	RetryCount int             `json:"retryCount"`
	Err        string          `json:"error,omitempty"`
}
