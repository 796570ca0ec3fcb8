// Package kernel implements the capability kernel's decision pipeline
// (C11): the phase machine that orchestrates classification, risk
// scoring, reversibility assessment, probe verification, and policy
// mapping into a single execute/authorize/deny contract, backed by the
// evidence ledger and gated by the integrity guard. It is the
// composition root wiring C3 through C10, C12, C13, and C14 together;
// it holds no cryptographic material itself and performs no side
// effects — it only ever records that a side effect may proceed.
package kernel

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/quaylabs/capkernel/consumed"
	"github.com/quaylabs/capkernel/device"
	"github.com/quaylabs/capkernel/epoch"
	"github.com/quaylabs/capkernel/integrity"
	"github.com/quaylabs/capkernel/intent"
	"github.com/quaylabs/capkernel/kernelerrors"
	"github.com/quaylabs/capkernel/ledger"
	"github.com/quaylabs/capkernel/mirror"
	"github.com/quaylabs/capkernel/policy"
	"github.com/quaylabs/capkernel/primitives"
	"github.com/quaylabs/capkernel/quorum"
	"github.com/quaylabs/capkernel/risk"
	"github.com/quaylabs/capkernel/token"
	"github.com/quaylabs/capkernel/vault"
	"github.com/quaylabs/capkernel/verify"
)

// Config wires every collaborator the decision pipeline composes. All
// fields are required except Mirror, Checker and EmergencyOverrides: a nil
// Mirror makes PushEvidence a no-op, a nil Checker defaults to
// verify.StubChecker, and a nil EmergencyOverrides disables the
// emergency-override rate limit.
type Config struct {
	Vault              *vault.Vault
	EpochManager       *epoch.Manager
	Devices            *device.Registry
	ConsumedTokens     *consumed.Store
	Ledger             *ledger.Ledger
	Mirror             *mirror.Mirror
	PolicyEngine       *policy.Engine
	IntegrityGuard     *integrity.Guard
	Checker            verify.Checker
	DeviceFingerprint  string

	// EmergencyOverrides rate-limits how often a given signer may
	// contribute an emergency_override signature (spec's critical-tier
	// signer set). Nil disables the check entirely.
	EmergencyOverrides     *quorum.EmergencyOverrideTracker
	EmergencyOverridePolicy quorum.EmergencyOverridePolicy
}

// Kernel is the concrete C11 decision pipeline.
type Kernel struct {
	mu     sync.Mutex
	cfg    Config
	phase  Phase
	halted bool

	// pending holds plans parked awaiting human approval (phase
	// awaiting_approval). resolved holds plans that have cleared approval
	// (automatic or quorum-satisfied) but have not yet had a token minted
	// against them — "the kernel records authorization only" (spec §4.1
	// step 9).
	pending  map[string]*PendingPlanContext
	resolved map[string]*resolvedPlan

	cooldowns map[string]time.Time
}

type resolvedPlan struct {
	ctx          PendingPlanContext
	approvalType string
}

// New constructs a Kernel around cfg, starting in phase idle. Checker
// defaults to verify.StubChecker when nil, matching C10's documented
// seam for environments with no real probe backend wired yet.
func New(cfg Config) *Kernel {
	if cfg.Checker == nil {
		cfg.Checker = verify.StubChecker
	}
	return &Kernel{
		cfg:       cfg,
		phase:     PhaseIdle,
		pending:   map[string]*PendingPlanContext{},
		resolved:  map[string]*resolvedPlan{},
		cooldowns: map[string]time.Time{},
	}
}

// Phase returns the pipeline's current phase.
func (k *Kernel) Phase() Phase {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.phase
}

func (k *Kernel) integrityChecker() integrity.VaultChecker {
	return vaultEpochChecker{vault: k.cfg.Vault, epoch: k.cfg.EpochManager}
}

func (k *Kernel) deviceChecker() integrity.DeviceRegistryChecker {
	return deviceRegistryChecker{registry: k.cfg.Devices}
}

// refreshIntegrity re-runs C13's full check set against the kernel's own
// collaborators. The decision pipeline calls this at the top of every
// public entry point rather than trusting a posture computed earlier —
// lockdown must block the very next call that observes it.
func (k *Kernel) refreshIntegrity() integrity.Posture {
	return k.cfg.IntegrityGuard.PerformFullCheck(k.integrityChecker(), k.cfg.EpochManager, k.deviceChecker(), k.cfg.DeviceFingerprint)
}

// Execute runs intake through policy_mapping and either records an
// automatic approval, parks the plan for human approval, escalates,
// fails, or rejects on an active cooldown (spec §4.1 steps 1-8, 10).
func (k *Kernel) Execute(ctx context.Context, it intent.ExecutionIntent, revCtx intent.ReversibilityContext, now time.Time) (ExecutionResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.halted {
		return ExecutionResult{Status: StatusFailed, Phase: PhaseHalted, Reason: "kernel is halted; call resumeFromHalt"}, nil
	}

	if k.refreshIntegrity() == integrity.PostureLockdown {
		k.phase = PhaseHalted
		return ExecutionResult{Status: StatusFailed, Phase: PhaseHalted, Reason: kernelerrors.NewLockdownError("integrity guard reported lockdown at intake").Error()}, nil
	}

	// 1. intake
	k.phase = PhaseIntake
	if it.IsEmpty() {
		k.logViolation(it.ID, "bypassAttempt", kernelerrors.NewBypassAttemptError("intent carries no actionable action").Error(), now)
		return ExecutionResult{Status: StatusDenied, Phase: PhaseIntake, Reason: "empty action"}, nil
	}

	// 2. classify
	k.phase = PhaseClassify
	typ := intent.Classify(it.Action)
	sensitivity := intent.ClassifySensitivity(it.Action, it.Target, typ)

	// 3. risk_score
	k.phase = PhaseRiskScore
	riskCtx := buildRiskContext(it, typ, sensitivity, revCtx)
	assessment := risk.Assess(riskCtx)

	// 4. reversibility_check
	k.phase = PhaseReversibilityCheck
	reversibility := verify.ClassifyReversibility(typ, revCtx)

	// 5. build plan
	k.phase = PhaseProbes // plan construction feeds directly into probe execution below
	plan := intent.ToolPlan{
		ID: intent.NewPlanID(),
		Intent: intent.IntentSummary{
			Type:              typ,
			Summary:           it.Action,
			TargetDescription: it.Target,
			OriginatingAction: it.Action,
		},
		RiskScore:           assessment.Total,
		RiskReasons:         assessment.Reasons,
		ReversibilityClass:  reversibility.Class,
		ReversibilityReason: reversibility.Reason,
		Steps:               BuildExecutionSteps(typ),
		Probes:              verify.GenerateProbes(typ, it.Target),
		CreatedAt:           now,
	}
	signedPlan, err := k.signPlan(plan)
	if err != nil {
		k.logViolation(it.ID, "systemFault", fmt.Sprintf("failed to sign plan: %v", err), now)
		return ExecutionResult{Status: StatusFailed, Phase: PhaseProbes, Reason: "unable to sign plan"}, nil
	}
	plan = signedPlan

	// 6. probes
	verification := verify.Verify(ctx, plan, revCtx, k.verifySignature, k.cfg.Checker)
	if requiredProbeFailed(plan, verification) {
		k.logEvidence(plan.ID, StatusFailed, assessment, verification, now)
		return ExecutionResult{Status: StatusFailed, Phase: PhaseProbes, PlanID: plan.ID, Reason: "a required probe failed", Assessment: assessment, Verification: verification}, nil
	}
	if verification.Confidence < verify.RequiredConfidence {
		k.logEvidence(plan.ID, StatusEscalated, assessment, verification, now)
		return ExecutionResult{Status: StatusEscalated, Phase: PhaseProbes, PlanID: plan.ID, Reason: kernelerrors.NewConfidenceError(verification.Confidence, verify.RequiredConfidence).Error(), Assessment: assessment, Verification: verification}, nil
	}

	// 7. policy_mapping
	k.phase = PhasePolicyMapping
	decision := k.cfg.PolicyEngine.MapToApproval(assessment)

	// cooldown gate, evaluated before any auto-approval or parking
	k.phase = PhaseApproval
	key := intentKey(typ, it.Target)
	if until, active := k.cooldowns[key]; active && now.Before(until) {
		k.logEvidence(plan.ID, StatusCooldownActive, assessment, verification, now)
		return ExecutionResult{Status: StatusCooldownActive, Phase: PhaseApproval, PlanID: plan.ID, RemainingSeconds: int(until.Sub(now).Seconds()) + 1, Assessment: assessment, Verification: verification}, nil
	}

	ppc := PendingPlanContext{
		Plan:               plan,
		RiskAssessment:     assessment,
		VerificationResult: verification,
		PolicyDecision:     decision,
		CreatedAt:          now,
	}

	if assessment.Tier == intent.TierLow && !decision.Approval.RequirePreview {
		k.phase = PhaseExecute
		// An automatic approval still counts as the device operator's own
		// signature: low tier requires zero *additional* signers (spec's
		// approval matrix), but the quorum check at mint time still demands
		// {device_operator} be present (spec §4.6 step 5), so record it here
		// rather than leaving the collected set empty.
		ppc.CollectedSignatures = append(ppc.CollectedSignatures, quorum.CollectedSignature{
			SignerID:   k.cfg.DeviceFingerprint,
			SignerType: quorum.SignerDeviceOperator,
			SignedAt:   now.Unix(),
		})
		k.resolved[plan.ID] = &resolvedPlan{ctx: ppc, approvalType: "automatic"}
		k.applyCooldown(key, decision, reversibility, now)
		k.phase = PhaseLogEvidence
		k.logEvidence(plan.ID, StatusCompleted, assessment, verification, now)
		if k.halted {
			return ExecutionResult{Status: StatusFailed, Phase: PhaseHalted, PlanID: plan.ID, Reason: "evidence logging failed", Assessment: assessment, Verification: verification}, nil
		}
		k.phase = PhaseComplete
		return ExecutionResult{Status: StatusCompleted, Phase: PhaseComplete, PlanID: plan.ID, Assessment: assessment, Verification: verification}, nil
	}

	k.phase = PhaseAwaitingApproval
	k.pending[plan.ID] = &ppc
	k.logEvidence(plan.ID, StatusPendingApproval, assessment, verification, now)
	if k.halted {
		return ExecutionResult{Status: StatusFailed, Phase: PhaseHalted, PlanID: plan.ID, Reason: "evidence logging failed", Assessment: assessment, Verification: verification}, nil
	}
	return ExecutionResult{Status: StatusPendingApproval, Phase: PhaseAwaitingApproval, PlanID: plan.ID, Assessment: assessment, Verification: verification}, nil
}

// Approval carries one signer's contribution toward a parked plan's
// required quorum, plus an optional biometric human signature over the
// plan's hash.
type Approval struct {
	SignerID      string
	SignerType    quorum.SignerType
	SignatureData []byte
	Sign          token.HumanSigner
}

// Authorize resolves a parked plan with one more collected signature. Once
// the plan's tier quorum is satisfied it moves from pendingApproval to
// completed (recording authorization only, still minting no token); until
// then it remains parked and Authorize returns pendingApproval again.
func (k *Kernel) Authorize(planID string, approval Approval, now time.Time) (ExecutionResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.halted {
		return ExecutionResult{Status: StatusFailed, Phase: PhaseHalted, Reason: "kernel is halted; call resumeFromHalt"}, nil
	}
	if k.refreshIntegrity() == integrity.PostureLockdown {
		return ExecutionResult{Status: StatusFailed, Phase: PhaseHalted, PlanID: planID, Reason: kernelerrors.NewLockdownError("integrity guard reported lockdown").Error()}, nil
	}

	ppc, ok := k.pending[planID]
	if !ok {
		return ExecutionResult{Status: StatusFailed, PlanID: planID, Reason: "unknown or already-resolved plan"}, nil
	}

	if approval.SignerType == quorum.SignerEmergencyOverride && k.cfg.EmergencyOverrides != nil {
		check := k.cfg.EmergencyOverrides.Check(k.cfg.EmergencyOverridePolicy, approval.SignerID, now)
		if !check.Allowed {
			return ExecutionResult{Status: StatusFailed, PlanID: planID, Reason: check.Reason, RemainingSeconds: int(check.RetryAfter.Seconds())}, nil
		}
		k.cfg.EmergencyOverrides.Record(approval.SignerID, now)
	}

	ppc.CollectedSignatures = append(ppc.CollectedSignatures, quorum.CollectedSignature{
		SignerID:      approval.SignerID,
		SignerType:    approval.SignerType,
		SignatureData: approval.SignatureData,
		SignedAt:      now.Unix(),
	})

	result := quorum.Validate(ppc.RiskAssessment.Tier, ppc.CollectedSignatures)
	if !result.Satisfied {
		return ExecutionResult{Status: StatusPendingApproval, Phase: PhaseAwaitingApproval, PlanID: planID, Reason: kernelerrors.NewQuorumError(result.Have, result.Need, signerNames(result.Missing)).Error()}, nil
	}

	k.phase = PhaseExecute
	delete(k.pending, planID)
	k.resolved[planID] = &resolvedPlan{ctx: *ppc, approvalType: "quorum"}
	key := intentKey(ppc.Plan.Intent.Type, ppc.Plan.Intent.TargetDescription)
	k.applyCooldown(key, ppc.PolicyDecision, ppc.VerificationResult.Reversibility, now)
	k.phase = PhaseLogEvidence
	k.logEvidence(planID, StatusCompleted, ppc.RiskAssessment, ppc.VerificationResult, now)
	if k.halted {
		return ExecutionResult{Status: StatusFailed, Phase: PhaseHalted, PlanID: planID, Reason: "evidence logging failed", Assessment: ppc.RiskAssessment, Verification: ppc.VerificationResult}, nil
	}
	k.phase = PhaseComplete
	return ExecutionResult{Status: StatusCompleted, Phase: PhaseComplete, PlanID: planID, Assessment: ppc.RiskAssessment, Verification: ppc.VerificationResult}, nil
}

// Deny resolves a parked plan as denied, discarding it and logging the
// reason as evidence.
func (k *Kernel) Deny(planID string, reason string, now time.Time) (ExecutionResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	ppc, ok := k.pending[planID]
	if !ok {
		return ExecutionResult{Status: StatusFailed, PlanID: planID, Reason: "unknown or already-resolved plan"}, nil
	}
	delete(k.pending, planID)
	k.logEvidence(planID, StatusDenied, ppc.RiskAssessment, ppc.VerificationResult, now)
	if k.halted {
		return ExecutionResult{Status: StatusFailed, Phase: PhaseHalted, PlanID: planID, Reason: "evidence logging failed"}, nil
	}
	return ExecutionResult{Status: StatusDenied, PlanID: planID, Reason: reason}, nil
}

// ListPending returns every plan currently parked awaiting approval.
func (k *Kernel) ListPending() []PendingPlanContext {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]PendingPlanContext, 0, len(k.pending))
	for _, ppc := range k.pending {
		out = append(out, *ppc)
	}
	return out
}

// MintParams carries what the token mint needs beyond the resolved plan
// itself: device trust and approval-session facts the executor attests
// to at presentation time.
type MintParams struct {
	DeviceFingerprint    string
	ApprovalSessionID    string
	ApprovalSessionValid bool
	Sign                 token.HumanSigner
}

// MintToken is the kernel's token-minting entry point (spec §4.6): it
// takes a plan the pipeline has already recorded as authorized (automatic
// or quorum-satisfied) and produces the one-use AuthorizationToken an
// executor must present before performing the side effect.
func (k *Kernel) MintToken(planID string, params MintParams, now time.Time) (ExecutionResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	rp, ok := k.resolved[planID]
	if !ok {
		return ExecutionResult{Status: StatusFailed, PlanID: planID, Reason: "plan is not in an authorized state"}, nil
	}

	posture := k.refreshIntegrity()
	pre := token.Preconditions{
		IntegrityOK:          posture != integrity.PostureLockdown,
		DeviceTrusted:        k.cfg.Devices.IsDeviceTrusted(params.DeviceFingerprint),
		ApprovalSessionValid: params.ApprovalSessionValid,
	}

	keyVersion := k.cfg.EpochManager.ActiveKeyVersion()
	hmacKey, err := k.cfg.Vault.GetHMACKey(keyVersion)
	if err != nil {
		return ExecutionResult{Status: StatusFailed, PlanID: planID, Reason: fmt.Sprintf("unable to load signing key: %v", err)}, nil
	}

	tok, err := token.Mint(now, pre, token.MintParams{
		Plan:                  rp.ctx.Plan,
		Tier:                  rp.ctx.RiskAssessment.Tier,
		ApprovalType:          rp.approvalType,
		ApprovedScopes:        nil,
		ReversibilityRequired: rp.ctx.Plan.ReversibilityClass != intent.Reversible,
		ApprovalSessionID:     params.ApprovalSessionID,
		RequireBiometric:      rp.ctx.PolicyDecision.Approval.RequireBiometric,
		CollectedSignatures:   rp.ctx.CollectedSignatures,
		KeyVersion:            keyVersion,
		Epoch:                 k.cfg.EpochManager.TrustEpoch(),
		HMACKey:               hmacKey,
		Sign:                  params.Sign,
	})
	if err != nil {
		k.logViolation(planID, "mintDenied", err.Error(), now)
		return ExecutionResult{Status: StatusDenied, PlanID: planID, Reason: err.Error()}, nil
	}

	delete(k.resolved, planID)
	k.logArtifact(planID, "authorizationToken", now)
	return ExecutionResult{Status: StatusCompleted, PlanID: planID, Token: &tok}, nil
}

// EmergencyStop cancels every parked plan with a synthetic EMERGENCY_STOP
// denial, discards every resolved-but-unminted plan, and moves the
// pipeline into the absorbing halted phase (spec §4.1 "Emergency stop").
func (k *Kernel) EmergencyStop(reason string, now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for planID, ppc := range k.pending {
		k.logEvidence(planID, StatusDenied, ppc.RiskAssessment, ppc.VerificationResult, now)
	}
	k.pending = map[string]*PendingPlanContext{}
	k.resolved = map[string]*resolvedPlan{}
	k.halted = true
	k.phase = PhaseHalted
	k.logViolation("EMERGENCY_STOP", "emergencyStop", reason, now)
}

// ResumeFromHalt explicitly recovers the pipeline from halted back to
// idle. It is rejected while the pipeline is not halted.
func (k *Kernel) ResumeFromHalt() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.halted {
		return errNotHalted
	}
	k.halted = false
	k.phase = PhaseIdle
	return nil
}

// EscalatePendingPlans logs a system event nudging every currently parked
// plan toward mandatory human review without resolving it — the pipeline
// itself never auto-resolves an escalation.
func (k *Kernel) EscalatePendingPlans(now time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	for planID := range k.pending {
		k.logSystemEvent(planID, "planEscalated", now)
	}
	return len(k.pending)
}

func (k *Kernel) applyCooldown(key string, decision policy.PolicyDecision, reversibility intent.ReversibilityAssessment, now time.Time) {
	if reversibility.Class == intent.Irreversible && decision.Approval.MinCooldown > 0 {
		k.cooldowns[key] = now.Add(decision.Approval.MinCooldown)
	}
}

func (k *Kernel) signPlan(plan intent.ToolPlan) (intent.ToolPlan, error) {
	key, err := k.cfg.Vault.GetHMACKey(k.cfg.EpochManager.ActiveKeyVersion())
	if err != nil {
		return plan, err
	}
	sig, err := primitives.HMACSign(plan.CanonicalHeader(), key)
	if err != nil {
		return plan, err
	}
	plan.Signature = hex.EncodeToString(sig)
	return plan, nil
}

func (k *Kernel) verifySignature(plan intent.ToolPlan) bool {
	key, err := k.cfg.Vault.GetHMACKey(k.cfg.EpochManager.ActiveKeyVersion())
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(plan.Signature)
	if err != nil {
		return false
	}
	ok, err := primitives.HMACVerify(plan.CanonicalHeader(), key, sig)
	return err == nil && ok
}

func requiredProbeFailed(plan intent.ToolPlan, result intent.VerificationResult) bool {
	for i, pr := range result.ProbeResults {
		if i < len(plan.Probes) && plan.Probes[i].IsRequired && !pr.Passed {
			return true
		}
	}
	return false
}

// VerifyToken checks an AuthorizationToken a would-be executor presents
// against plan, consuming it exactly once on success (spec §4.6
// presentation/verification sequence). This is the counterpart to
// MintToken: minting and verifying are the only two ways a token's
// lifecycle advances.
func (k *Kernel) VerifyToken(now time.Time, tok token.AuthorizationToken, plan intent.ToolPlan) error {
	resolveKey := func(version int) ([]byte, error) { return k.cfg.Vault.GetHMACKey(version) }
	humanVerify := func(planHash string, signature []byte) (bool, error) { return k.cfg.Vault.Verify(planHash, signature) }
	return token.Verify(now, tok, plan, k.cfg.EpochManager, resolveKey, humanVerify, k.cfg.ConsumedTokens)
}

// PushEvidence signs the evidence ledger's current tail hash and pushes
// the attestation to the remote witness via C7. Any push error forces the
// integrity guard into lockdown immediately; a reported divergence also
// logs a dataCorruption violation and advances the trust epoch — the mirror is
// the kernel's only cross-check against a compromised local ledger, so a
// disagreement is never just logged and ignored.
func (k *Kernel) PushEvidence(ctx context.Context, chainID string, now time.Time) error {
	k.mu.Lock()
	mirrorClient := k.cfg.Mirror
	tailHash := k.cfg.Ledger.TailHash()
	count := k.cfg.Ledger.Count()
	deviceFP := k.cfg.DeviceFingerprint
	k.mu.Unlock()

	if mirrorClient == nil {
		return nil
	}

	sign := func(material []byte) ([]byte, error) { return k.cfg.Vault.Sign(string(material)) }
	_, err := mirrorClient.Push(ctx, sign, deviceFP, chainID, tailHash, count, now)
	if err != nil {
		k.mu.Lock()
		k.cfg.IntegrityGuard.ForceLockdown("evidence mirror: " + err.Error())
		k.halted = true
		k.phase = PhaseHalted
		if err == mirror.ErrDivergence {
			k.logViolation(chainID, "dataCorruption", err.Error(), now)
			if epochErr := k.cfg.EpochManager.AdvanceEpoch(now); epochErr != nil {
				k.logViolation(chainID, "systemFault", "advancing trust epoch after divergence: "+epochErr.Error(), now)
			}
		}
		k.mu.Unlock()
	}
	return err
}

func signerNames(types []quorum.SignerType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

var errNotHalted = fmt.Errorf("kernel: resumeFromHalt called while not halted")
