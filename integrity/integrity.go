// Package integrity implements the kernel's integrity guard (C13): a
// launch-time self-check over the vault, trust epoch, device registry,
// and evidence ledger, and the lockdown posture that check can force the
// whole kernel into. Lockdown is absorbing — it blocks every token mint,
// every execution, and every model call until an explicit recovery call
// observes no remaining critical failures. There is no silent recovery
// and no degraded-execution mode (spec §4.9).
package integrity

import (
	"fmt"
	"os"
	"sync"

	"github.com/quaylabs/capkernel/ledger"
)

// Severity classifies a single check's outcome.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Posture is the guard's overall state.
type Posture string

const (
	PostureNominal  Posture = "nominal"
	PostureDegraded Posture = "degraded"
	PostureLockdown Posture = "lockdown"
)

// CheckResult records one named check's outcome.
type CheckResult struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail,omitempty"`
}

// VaultChecker is the subset of vault.Vault / epoch.Manager the guard
// depends on for checks 1 and 2 (active key exists, active key not
// revoked).
type VaultChecker interface {
	ActiveKeyExists() (bool, error)
	ActiveKeyRevoked() (bool, error)
}

// EpochChecker is the subset of epoch.Manager used for check 3
// (trust-epoch state consistency).
type EpochChecker interface {
	VerifyIntegrity() error
}

// DeviceRegistryChecker reports the device-registry integrity check's
// three-way classification (spec §4.9 check 4): a missing fingerprint or
// a first-launch race are warnings (degraded); a fingerprint present on
// the host but absent from the registry on a later launch is critical.
type DeviceRegistryChecker interface {
	// Check returns (foundInRegistry, isFirstLaunch, err).
	Check(currentFingerprint string) (foundInRegistry bool, isFirstLaunch bool, err error)
}

// Guard owns the current posture and every check result from the most
// recent run. It is single-writer, matching the kernel's convention for
// the vault and the integrity guard itself (spec §5 scheduling model).
type Guard struct {
	mu       sync.Mutex
	posture  Posture
	results  []CheckResult
	ledgerPath string
	ledgerKey  []byte
}

// New constructs a Guard bound to the evidence ledger file and HMAC key
// check 5 verifies against.
func New(ledgerPath string, ledgerKey []byte) *Guard {
	return &Guard{posture: PostureLockdown, ledgerPath: ledgerPath, ledgerKey: ledgerKey}
}

// PerformFullCheck runs all five launch-time checks and sets the
// resulting posture: nominal if every check is ok, degraded if the worst
// result is a warning, lockdown if any check is critical.
func (g *Guard) PerformFullCheck(vault VaultChecker, epochChecker EpochChecker, device DeviceRegistryChecker, currentFingerprint string) Posture {
	g.mu.Lock()
	defer g.mu.Unlock()

	var results []CheckResult

	if exists, err := vault.ActiveKeyExists(); err != nil || !exists {
		detail := "active HMAC key not found in vault"
		if err != nil {
			detail = err.Error()
		}
		results = append(results, CheckResult{Name: "active_key_exists", Severity: SeverityCritical, Detail: detail})
	} else {
		results = append(results, CheckResult{Name: "active_key_exists", Severity: SeverityOK})
	}

	if revoked, err := vault.ActiveKeyRevoked(); err != nil {
		results = append(results, CheckResult{Name: "active_key_not_revoked", Severity: SeverityCritical, Detail: err.Error()})
	} else if revoked {
		results = append(results, CheckResult{Name: "active_key_not_revoked", Severity: SeverityCritical, Detail: "active key version is in the revoked set"})
	} else {
		results = append(results, CheckResult{Name: "active_key_not_revoked", Severity: SeverityOK})
	}

	if err := epochChecker.VerifyIntegrity(); err != nil {
		results = append(results, CheckResult{Name: "trust_epoch_consistent", Severity: SeverityCritical, Detail: err.Error()})
	} else {
		results = append(results, CheckResult{Name: "trust_epoch_consistent", Severity: SeverityOK})
	}

	results = append(results, g.checkDeviceRegistry(device, currentFingerprint))
	results = append(results, g.checkLedger())

	g.results = results
	g.posture = worstPosture(results)
	return g.posture
}

func (g *Guard) checkDeviceRegistry(device DeviceRegistryChecker, currentFingerprint string) CheckResult {
	found, firstLaunch, err := device.Check(currentFingerprint)
	if err != nil {
		return CheckResult{Name: "device_registry_integrity", Severity: SeverityCritical, Detail: err.Error()}
	}
	if currentFingerprint == "" {
		return CheckResult{Name: "device_registry_integrity", Severity: SeverityWarning, Detail: "no device fingerprint available yet"}
	}
	if firstLaunch {
		return CheckResult{Name: "device_registry_integrity", Severity: SeverityWarning, Detail: "first-launch registration race"}
	}
	if !found {
		return CheckResult{Name: "device_registry_integrity", Severity: SeverityCritical, Detail: "current device fingerprint is not registered"}
	}
	return CheckResult{Name: "device_registry_integrity", Severity: SeverityOK}
}

func (g *Guard) checkLedger() CheckResult {
	if info, err := os.Stat(g.ledgerPath); err != nil || info.Size() == 0 {
		// A missing or empty ledger is never silently nominal: it is
		// indistinguishable from a wiped chain, and is only expected on
		// what may be a fresh install (spec §4.9 check 5).
		return CheckResult{Name: "ledger_integrity", Severity: SeverityWarning, Detail: "evidence chain has no entries; expected only on a fresh install"}
	}

	violations, err := ledger.VerifyChainIntegrity(g.ledgerPath, g.ledgerKey)
	if err != nil {
		return CheckResult{Name: "ledger_integrity", Severity: SeverityWarning, Detail: fmt.Sprintf("ledger may be a fresh install: %v", err)}
	}
	if len(violations) == 0 {
		return CheckResult{Name: "ledger_integrity", Severity: SeverityOK}
	}
	return CheckResult{Name: "ledger_integrity", Severity: SeverityCritical, Detail: fmt.Sprintf("%d integrity violation(s) found", len(violations))}
}

func worstPosture(results []CheckResult) Posture {
	hasWarning := false
	for _, r := range results {
		if r.Severity == SeverityCritical {
			return PostureLockdown
		}
		if r.Severity == SeverityWarning {
			hasWarning = true
		}
	}
	if hasWarning {
		return PostureDegraded
	}
	return PostureNominal
}

// ForceLockdown immediately sets the guard's posture to lockdown,
// recording reason as a synthetic critical check result. Used by other
// components (evidence divergence in the mirror, a forced device
// revocation) that detect a fatal condition C13 did not itself observe
// at launch.
func (g *Guard) ForceLockdown(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posture = PostureLockdown
	g.results = append(g.results, CheckResult{Name: "forced_lockdown", Severity: SeverityCritical, Detail: reason})
}

// AttemptRecovery re-runs the full check and returns the resulting
// posture. The guard only leaves lockdown if the fresh run reports no
// remaining critical failures — there is no partial or silent recovery.
func (g *Guard) AttemptRecovery(vault VaultChecker, epochChecker EpochChecker, device DeviceRegistryChecker, currentFingerprint string) Posture {
	return g.PerformFullCheck(vault, epochChecker, device, currentFingerprint)
}

// ResetIntegrityState forcibly clears lockdown without re-running the
// checks. This requires explicit caller intent (it is never called from
// inside the guard itself) and the caller is responsible for logging the
// resulting violation to the evidence ledger — spec §4.9's "forced
// recovery ... requires explicit caller intent and logs a violation".
func (g *Guard) ResetIntegrityState(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posture = PostureNominal
	g.results = []CheckResult{{Name: "reset_integrity_state", Severity: SeverityWarning, Detail: reason}}
}

// IsLocked reports whether the guard's current posture is lockdown.
func (g *Guard) IsLocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.posture == PostureLockdown
}

// Posture returns the guard's current posture.
func (g *Guard) Posture() Posture {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.posture
}

// Results returns a copy of the most recent check results.
func (g *Guard) Results() []CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]CheckResult, len(g.results))
	copy(out, g.results)
	return out
}
