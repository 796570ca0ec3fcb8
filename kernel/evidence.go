package kernel

import (
	"time"

	"github.com/quaylabs/capkernel/intent"
	"github.com/quaylabs/capkernel/ledger"
)

// executionEvidence is the payload shape for an EntryExecutionChain
// record: a compact, self-contained summary of one pipeline decision,
// independent of the in-memory ExecutionResult it accompanied.
type executionEvidence struct {
	PlanID             string          `json:"planId"`
	Status             Status          `json:"status"`
	Tier               intent.Tier     `json:"tier"`
	RiskTotal          int             `json:"riskTotal"`
	ReversibilityClass string          `json:"reversibilityClass"`
	Confidence         float64         `json:"confidence"`
	ProbesPassed       bool            `json:"probesPassed"`
}

// logEvidence appends one ExecutionEvidenceChain entry for a resolved
// pipeline outcome. A ledger append failure forces the integrity guard
// into lockdown — the evidence trail is part of the kernel's own safety
// net, so a fault signing or writing it is treated exactly like any
// other fatal integrity condition (spec §4.9).
func (k *Kernel) logEvidence(planID string, status Status, assessment intent.Assessment, verification intent.VerificationResult, now time.Time) {
	payload := executionEvidence{
		PlanID:             planID,
		Status:             status,
		Tier:               assessment.Tier,
		RiskTotal:          assessment.Total,
		ReversibilityClass: verification.Reversibility.Class.String(),
		Confidence:         verification.Confidence,
		ProbesPassed:       verification.Passed,
	}
	k.append(planID, ledger.EntryExecutionChain, payload, now)
}

type violationEvidence struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

func (k *Kernel) logViolation(chainID, category, detail string, now time.Time) {
	k.append(chainID, ledger.EntryViolation, violationEvidence{Category: category, Detail: detail}, now)
}

type artifactEvidence struct {
	Kind string `json:"kind"`
}

func (k *Kernel) logArtifact(chainID, kind string, now time.Time) {
	k.append(chainID, ledger.EntryArtifact, artifactEvidence{Kind: kind}, now)
}

type systemEventEvidence struct {
	Kind string `json:"kind"`
}

func (k *Kernel) logSystemEvent(chainID, kind string, now time.Time) {
	k.append(chainID, ledger.EntrySystemEvent, systemEventEvidence{Kind: kind}, now)
}

func (k *Kernel) append(chainID string, typ ledger.EntryType, payload any, now time.Time) {
	if _, err := k.cfg.Ledger.Append(intent.NewID(), chainID, typ, payload, now); err != nil {
		k.cfg.IntegrityGuard.ForceLockdown("evidence ledger append failed: " + err.Error())
		k.halted = true
		k.phase = PhaseHalted
	}
}
