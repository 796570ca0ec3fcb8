// Package epoch implements the kernel's trust epoch manager (C3): a
// monotonically increasing epoch counter plus the HMAC key-version
// lifecycle it gates. State is persisted atomically to
// KernelSecurity/trust_epoch_state.json (spec §6) and recovered on launch.
package epoch

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/quaylabs/capkernel/atomicfile"
)

// State is the persisted form of the trust epoch (spec §3 TrustEpochState).
type State struct {
	TrustEpoch         int        `json:"trustEpoch"`
	ActiveKeyVersion    int        `json:"activeKeyVersion"`
	RevokedKeyVersions  []int      `json:"revokedKeyVersions"`
	LastRotatedAt       *time.Time `json:"lastRotatedAt,omitempty"`
	EpochAdvancedAt     *time.Time `json:"epochAdvancedAt,omitempty"`
}

// KeyVault is the subset of vault.Vault the epoch manager depends on: it
// generates and checks for HMAC keys but never reads their material.
type KeyVault interface {
	GenerateHMACKey(version int) ([]byte, error)
	HasHMACKey(version int) bool
}

// Manager owns the trust epoch state file and every mutation to it.
// Mutations are serialized by mu and persisted with an atomic file
// replace, matching the kernel's single-writer-per-component convention.
type Manager struct {
	mu    sync.Mutex
	path  string
	vault KeyVault
	state State
}

// Open loads the trust epoch state from path, initializing a fresh state
// (epoch 1, key version 1) if the file does not yet exist — and, on first
// launch, asking vault to generate key version 1.
func Open(path string, vault KeyVault) (*Manager, error) {
	m := &Manager{path: path, vault: vault}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("epoch: reading state: %w", err)
		}
		if _, genErr := vault.GenerateHMACKey(1); genErr != nil {
			return nil, fmt.Errorf("epoch: generating initial key: %w", genErr)
		}
		m.state = State{TrustEpoch: 1, ActiveKeyVersion: 1, RevokedKeyVersions: []int{}}
		if err := m.persistLocked(); err != nil {
			return nil, err
		}
		return m, nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("epoch: decoding state: %w", err)
	}
	m.state = state
	return m, nil
}

// State returns a snapshot of the current trust epoch state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TrustEpoch returns the current epoch counter.
func (m *Manager) TrustEpoch() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TrustEpoch
}

// ActiveKeyVersion returns the currently active HMAC key version.
func (m *Manager) ActiveKeyVersion() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ActiveKeyVersion
}

// IsRevoked reports whether version has been revoked.
func (m *Manager) IsRevoked(version int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.state.RevokedKeyVersions {
		if v == version {
			return true
		}
	}
	return false
}

// RotateKey generates a new HMAC key at activeKeyVersion+1, revokes the
// prior version, and advances the epoch. Both activeKeyVersion and
// trustEpoch are strictly greater afterward (spec P6).
func (m *Manager) RotateKey(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.ActiveKeyVersion + 1
	if _, err := m.vault.GenerateHMACKey(next); err != nil {
		return fmt.Errorf("epoch: generating key v%d: %w", next, err)
	}

	m.state.RevokedKeyVersions = append(m.state.RevokedKeyVersions, m.state.ActiveKeyVersion)
	m.state.ActiveKeyVersion = next
	m.state.TrustEpoch++
	m.state.LastRotatedAt = &now
	m.state.EpochAdvancedAt = &now

	return m.persistLocked()
}

// AdvanceEpoch advances the epoch without rotating the key — permitted on
// security events (device revocation, evidence divergence, integrity
// failure) per spec §4.8. This alone invalidates every outstanding token
// bound to the prior epoch.
func (m *Manager) AdvanceEpoch(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.TrustEpoch++
	m.state.EpochAdvancedAt = &now
	return m.persistLocked()
}

// VerifyIntegrity holds iff the active key exists in the vault, is not
// revoked, and the persisted state is internally consistent (the active
// version never appears in the revoked set) — the checks C12's mint
// preconditions and C13's integrity guard both depend on.
func (m *Manager) VerifyIntegrity() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.state.RevokedKeyVersions {
		if v == m.state.ActiveKeyVersion {
			return ErrActiveKeyRevoked
		}
	}
	if !m.vault.HasHMACKey(m.state.ActiveKeyVersion) {
		return ErrActiveKeyMissing
	}
	return nil
}

// RotationSchedule answers whether a key rotation is due, given a fixed
// interval since the last rotation. It holds no timer and starts no
// goroutine — a host polls it on whatever cadence it likes (health check,
// cron, CLI command), matching the "no unscheduled background work" rule
// the kernel holds itself to; the window/remaining-time math mirrors
// ratelimit's sliding-window accounting.
type RotationSchedule struct {
	Interval time.Duration
}

// Due reports whether a rotation is overdue as of now. A key that has
// never been rotated is always due.
func (s RotationSchedule) Due(m *Manager, now time.Time) bool {
	return s.Remaining(m, now) <= 0
}

// Remaining returns the time left before the next rotation is due; zero
// or negative means a rotation is due now.
func (s RotationSchedule) Remaining(m *Manager, now time.Time) time.Duration {
	state := m.State()
	if state.LastRotatedAt == nil {
		return 0
	}
	return state.LastRotatedAt.Add(s.Interval).Sub(now)
}

func (m *Manager) persistLocked() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("epoch: encoding state: %w", err)
	}
	return atomicfile.WriteFile(m.path, data, 0o600)
}
