package kernel

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/byteness/keyring"

	"github.com/quaylabs/capkernel/consumed"
	"github.com/quaylabs/capkernel/device"
	"github.com/quaylabs/capkernel/epoch"
	"github.com/quaylabs/capkernel/integrity"
	"github.com/quaylabs/capkernel/intent"
	"github.com/quaylabs/capkernel/ledger"
	"github.com/quaylabs/capkernel/policy"
	"github.com/quaylabs/capkernel/quorum"
	"github.com/quaylabs/capkernel/vault"
)

const testFingerprint = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"

// testKernel wires every collaborator against a temp directory and
// registers the calling device as trusted, matching a freshly bootstrapped
// installation past its first launch.
func testKernel(t *testing.T) *Kernel {
	t.Helper()
	dir := t.TempDir()

	v, err := vault.Open(vault.Config{
		ServiceName:     "capkernel-test",
		FileDir:         dir,
		AllowedBackends: []keyring.BackendType{keyring.FileBackend},
		FilePasswordFunc: func(string) (string, error) {
			return "test-passphrase-not-for-production", nil
		},
	})
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}

	em, err := epoch.Open(filepath.Join(dir, "trust_epoch_state.json"), v)
	if err != nil {
		t.Fatalf("epoch.Open: %v", err)
	}

	devices, err := device.Open(filepath.Join(dir, "trusted_device_registry.json"))
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	if _, err := devices.RegisterDevice("dev-1", testFingerprint, "machine-1", "test device", time.Now()); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	consumedStore, err := consumed.Open(filepath.Join(dir, "consumed_auth_tokens.json"), time.Now())
	if err != nil {
		t.Fatalf("consumed.Open: %v", err)
	}

	hmacKey, err := v.GenerateHMACKey(1)
	if err != nil {
		t.Fatalf("GenerateHMACKey: %v", err)
	}
	ledgerPath := filepath.Join(dir, "evidence_ledger.jsonl")
	l, err := ledger.Open(ledgerPath, hmacKey)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	policyEngine := policy.NewEngine(policy.DefaultPreset())
	guard := integrity.New(ledgerPath, hmacKey)

	return New(Config{
		Vault:             v,
		EpochManager:      em,
		Devices:           devices,
		ConsumedTokens:    consumedStore,
		Ledger:            l,
		PolicyEngine:      policyEngine,
		IntegrityGuard:    guard,
		DeviceFingerprint: testFingerprint,
	})
}

func mustExecute(t *testing.T, k *Kernel, it intent.ExecutionIntent, revCtx intent.ReversibilityContext, now time.Time) ExecutionResult {
	t.Helper()
	result, err := k.Execute(context.Background(), it, revCtx, now)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return result
}

// S1: an auto-approved low-risk read completes with one evidence chain
// appended and no token minted — MintToken must still be called
// separately before an executor receives anything to present.
func TestExecuteAutoApprovesLowRiskRead(t *testing.T) {
	k := testKernel(t)
	now := time.Now()

	it := intent.New("read calendar", "personal-calendar", nil, now)
	result := mustExecute(t, k, it, intent.ReversibilityContext{}, now)

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Reason)
	}
	if result.Assessment.Tier != intent.TierLow {
		t.Fatalf("expected low tier, got %s", result.Assessment.Tier)
	}
	if result.Token != nil {
		t.Fatalf("Execute must never mint a token itself")
	}
	if len(k.ListPending()) != 0 {
		t.Fatalf("a low-risk read should never be parked for approval")
	}

	rp, ok := k.resolved[result.PlanID]
	if !ok {
		t.Fatalf("expected the completed plan to be resolved and awaiting a mint")
	}
	if rp.approvalType != "automatic" {
		t.Fatalf("expected automatic approval type, got %q", rp.approvalType)
	}
}

// Low risk followed by a mint call produces a token an executor can
// present and verify exactly once.
func TestMintTokenAfterAutoApprovalRoundTrips(t *testing.T) {
	k := testKernel(t)
	now := time.Now()

	it := intent.New("read calendar", "personal-calendar", nil, now)
	result := mustExecute(t, k, it, intent.ReversibilityContext{}, now)
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}

	mintResult, err := k.MintToken(result.PlanID, MintParams{
		DeviceFingerprint:    testFingerprint,
		ApprovalSessionID:    "session-1",
		ApprovalSessionValid: true,
	}, now)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if mintResult.Status != StatusCompleted || mintResult.Token == nil {
		t.Fatalf("expected a minted token, got status=%s token=%v", mintResult.Status, mintResult.Token)
	}

	if _, stillResolved := k.resolved[result.PlanID]; stillResolved {
		t.Fatalf("plan should be removed from resolved once minted")
	}
}

// A medium-tier intent requiring preview parks pending approval rather
// than auto-completing.
func TestExecuteParksMediumTierForApproval(t *testing.T) {
	k := testKernel(t)
	now := time.Now()

	it := intent.New("update calendar", "team-standup", map[string]string{
		"externalRecipients": "3",
	}, now)
	result := mustExecute(t, k, it, intent.ReversibilityContext{HasRollbackPlan: true}, now)

	if result.Status != StatusPendingApproval {
		t.Fatalf("expected pendingApproval, got %s (%s)", result.Status, result.Reason)
	}
	if len(k.ListPending()) != 1 {
		t.Fatalf("expected exactly one parked plan, got %d", len(k.ListPending()))
	}
}

// Authorize moves a parked plan to completed once its tier quorum is
// satisfied, and not before.
func TestAuthorizeRequiresQuorum(t *testing.T) {
	k := testKernel(t)
	now := time.Now()

	it := intent.New("update calendar", "team-standup", nil, now)
	result := mustExecute(t, k, it, intent.ReversibilityContext{HasRollbackPlan: true}, now)
	if result.Status != StatusPendingApproval {
		t.Fatalf("expected pendingApproval, got %s", result.Status)
	}

	approval := Approval{
		SignerID:   "operator-1",
		SignerType: quorum.SignerDeviceOperator,
	}
	authResult, err := k.Authorize(result.PlanID, approval, now)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if authResult.Status != StatusCompleted {
		t.Fatalf("expected completed once the medium-tier quorum is satisfied, got %s (%s)", authResult.Status, authResult.Reason)
	}
	if len(k.ListPending()) != 0 {
		t.Fatalf("plan should no longer be parked after authorization")
	}
}

// S4: a second irreversible send within its cooldown window is rejected
// with the remaining seconds, rather than re-entering approval.
func TestCooldownBlocksRepeatIrreversibleSend(t *testing.T) {
	k := testKernel(t)
	now := time.Now()

	it := intent.New("send email", "ops@example.com", nil, now)
	revCtx := intent.ReversibilityContext{}

	first := mustExecute(t, k, it, revCtx, now)
	approval := Approval{SignerID: "operator-1", SignerType: quorum.SignerDeviceOperator}
	if first.Status == StatusPendingApproval {
		authResult, err := k.Authorize(first.PlanID, approval, now)
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		if authResult.Status != StatusCompleted {
			t.Fatalf("expected first send to complete, got %s (%s)", authResult.Status, authResult.Reason)
		}
	}

	second := mustExecute(t, k, it, revCtx, now.Add(time.Second))
	if second.Status != StatusCooldownActive {
		t.Fatalf("expected cooldownActive on repeat send, got %s (%s)", second.Status, second.Reason)
	}
	if second.RemainingSeconds <= 0 {
		t.Fatalf("expected a positive remaining cooldown, got %d", second.RemainingSeconds)
	}
}

// EmergencyStop cancels every parked plan and halts the pipeline; no
// entry point accepts further work until an explicit resume.
func TestEmergencyStopHaltsAndDeniesPending(t *testing.T) {
	k := testKernel(t)
	now := time.Now()

	it := intent.New("update calendar", "team-standup", nil, now)
	result := mustExecute(t, k, it, intent.ReversibilityContext{HasRollbackPlan: true}, now)
	if result.Status != StatusPendingApproval {
		t.Fatalf("expected pendingApproval, got %s", result.Status)
	}

	k.EmergencyStop("operator panic button", now)

	if len(k.ListPending()) != 0 {
		t.Fatalf("emergency stop must clear every parked plan")
	}
	if k.Phase() != PhaseHalted {
		t.Fatalf("expected phase halted after emergency stop")
	}

	again := mustExecute(t, k, it, intent.ReversibilityContext{}, now)
	if again.Status != StatusFailed || again.Phase != PhaseHalted {
		t.Fatalf("expected Execute to fail closed while halted, got %+v", again)
	}

	if err := k.ResumeFromHalt(); err != nil {
		t.Fatalf("ResumeFromHalt: %v", err)
	}
	if k.Phase() != PhaseIdle {
		t.Fatalf("expected phase idle after resume")
	}
	if err := k.ResumeFromHalt(); err == nil {
		t.Fatalf("expected a second resume with no active halt to fail")
	}
}

// A ledger append failure during evidence logging is treated as a fatal
// integrity condition: it forces lockdown and halts the pipeline rather
// than being swallowed.
func TestLedgerAppendFailureForcesLockdownAndHalt(t *testing.T) {
	k := testKernel(t)
	now := time.Now()

	// A ledger opened with an undersized HMAC key fails every Append
	// closed (see ledger_test.go TestAppendFailsClosedOnUndersizedKey) —
	// swap it in to force the evidence-logging failure path.
	k.cfg.Ledger = mustFailingLedger(t)

	it := intent.New("read calendar", "personal-calendar", nil, now)
	result := mustExecute(t, k, it, intent.ReversibilityContext{}, now)

	if result.Status != StatusFailed {
		t.Fatalf("expected Execute to report failed once evidence logging fails, got %s", result.Status)
	}
	if !k.halted {
		t.Fatalf("expected the kernel to halt after a ledger append failure")
	}
	if k.cfg.IntegrityGuard.Posture() != integrity.PostureLockdown {
		t.Fatalf("expected the integrity guard to be forced into lockdown")
	}
}

// A critical-tier plan requires an emergency_override signature; repeated
// use of the same signer within its cooldown is rejected rather than
// silently accepted.
func TestEmergencyOverrideCooldownBlocksRepeatSigner(t *testing.T) {
	k := testKernel(t)
	k.cfg.EmergencyOverrides = quorum.NewEmergencyOverrideTracker()
	k.cfg.EmergencyOverridePolicy = quorum.EmergencyOverridePolicy{Cooldown: time.Hour, MaxPerWindow: 3, Window: 24 * time.Hour}
	now := time.Now()

	it := intent.New("send payment", "vendor-invoice-42", map[string]string{"involvesPayment": "true"}, now)
	result := mustExecute(t, k, it, intent.ReversibilityContext{}, now)
	if result.Status != StatusPendingApproval {
		t.Fatalf("expected a payment to park for approval, got %s (%s)", result.Status, result.Reason)
	}
	if result.Assessment.Tier != intent.TierCritical {
		t.Fatalf("expected critical tier, got %s", result.Assessment.Tier)
	}

	override := Approval{SignerID: "oncall-1", SignerType: quorum.SignerEmergencyOverride}
	first, err := k.Authorize(result.PlanID, override, now)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if first.Status == StatusFailed {
		t.Fatalf("expected the override signature itself to be accepted (quorum may still be unsatisfied), got failed: %s", first.Reason)
	}

	it2 := intent.New("send payment", "vendor-invoice-43", map[string]string{"involvesPayment": "true"}, now)
	result2 := mustExecute(t, k, it2, intent.ReversibilityContext{}, now)
	second, err := k.Authorize(result2.PlanID, Approval{SignerID: "oncall-1", SignerType: quorum.SignerEmergencyOverride}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if second.Status != StatusFailed {
		t.Fatalf("expected the repeat override within cooldown to be rejected, got %s (%s)", second.Status, second.Reason)
	}
	if second.RemainingSeconds <= 0 {
		t.Fatalf("expected a positive remaining cooldown, got %d", second.RemainingSeconds)
	}
}

// mustFailingLedger returns a Ledger opened against an undersized HMAC
// key, which the ledger package documents as its own fail-closed Append
// trigger.
func mustFailingLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "undersized.jsonl"), []byte("too-short"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	return l
}
