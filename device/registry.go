package device

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/quaylabs/capkernel/atomicfile"
)

// TrustState is the closed lifecycle a TrustedDevice moves through.
// Revocation is terminal; suspension is recoverable.
type TrustState string

const (
	TrustStateTrusted   TrustState = "trusted"
	TrustStateSuspended TrustState = "suspended"
	TrustStateRevoked   TrustState = "revoked"
)

func (s TrustState) String() string { return string(s) }

// IsValid reports whether s is a known TrustState.
func (s TrustState) IsValid() bool {
	switch s {
	case TrustStateTrusted, TrustStateSuspended, TrustStateRevoked:
		return true
	}
	return false
}

// TrustedDevice is one entry in the registry, keyed by the C2 public-key
// fingerprint.
type TrustedDevice struct {
	ID                   string     `json:"id"`
	PublicKeyFingerprint string     `json:"publicKeyFingerprint"`
	MachineID            string     `json:"machineId,omitempty"`
	TrustState           TrustState `json:"trustState"`
	DisplayName          string     `json:"displayName,omitempty"`
	RegisteredAt         time.Time  `json:"registeredAt"`
	RevokedAt            *time.Time `json:"revokedAt,omitempty"`
	RevocationReason     string     `json:"revocationReason,omitempty"`
	SuspendedAt          *time.Time `json:"suspendedAt,omitempty"`
	SuspensionReason     string     `json:"suspensionReason,omitempty"`
}

// Registry owns the trusted_device_registry.json file (spec §6).
type Registry struct {
	path    string
	devices []TrustedDevice
}

// Open loads the device registry from path, or starts empty if the file
// does not yet exist — the first RegisterDevice call populates it.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.devices = []TrustedDevice{}
			return r, nil
		}
		return nil, fmt.Errorf("device: reading registry: %w", err)
	}
	if err := json.Unmarshal(data, &r.devices); err != nil {
		return nil, fmt.Errorf("device: decoding registry: %w", err)
	}
	return r, nil
}

// Devices returns a snapshot of every registered device.
func (r *Registry) Devices() []TrustedDevice {
	out := make([]TrustedDevice, len(r.devices))
	copy(out, r.devices)
	return out
}

// RegisterDevice adds a new device as trusted, keyed by its fingerprint.
// Re-registering an existing fingerprint is a no-op that returns the
// existing record rather than duplicating it.
func (r *Registry) RegisterDevice(id, fingerprint, machineID, displayName string, now time.Time) (TrustedDevice, error) {
	if existing, ok := r.findByFingerprint(fingerprint); ok {
		return existing, nil
	}

	dev := TrustedDevice{
		ID:                   id,
		PublicKeyFingerprint: fingerprint,
		MachineID:            machineID,
		DisplayName:          displayName,
		TrustState:           TrustStateTrusted,
		RegisteredAt:         now,
	}
	r.devices = append(r.devices, dev)
	if err := r.persist(); err != nil {
		return TrustedDevice{}, err
	}
	return dev, nil
}

// IsDeviceTrusted reports whether fingerprint belongs to a device
// currently in the trusted state.
func (r *Registry) IsDeviceTrusted(fingerprint string) bool {
	dev, ok := r.findByFingerprint(fingerprint)
	return ok && dev.TrustState == TrustStateTrusted
}

// RevokeDevice terminally revokes a device. Revocation also requires the
// caller to advance the trust epoch (spec §4.8); this registry does not
// reach into epoch itself, so the kernel's composition root is responsible
// for sequencing that call after RevokeDevice succeeds.
func (r *Registry) RevokeDevice(fingerprint, reason string, now time.Time) error {
	idx, ok := r.indexByFingerprint(fingerprint)
	if !ok {
		return ErrDeviceNotFound
	}
	if r.devices[idx].TrustState == TrustStateRevoked {
		return nil
	}
	r.devices[idx].TrustState = TrustStateRevoked
	r.devices[idx].RevokedAt = &now
	r.devices[idx].RevocationReason = reason
	return r.persist()
}

// SuspendDevice recoverably suspends a device. Suspending an already
// revoked device is rejected — revocation is terminal.
func (r *Registry) SuspendDevice(fingerprint, reason string, now time.Time) error {
	idx, ok := r.indexByFingerprint(fingerprint)
	if !ok {
		return ErrDeviceNotFound
	}
	if r.devices[idx].TrustState == TrustStateRevoked {
		return ErrDeviceRevoked
	}
	r.devices[idx].TrustState = TrustStateSuspended
	r.devices[idx].SuspendedAt = &now
	r.devices[idx].SuspensionReason = reason
	return r.persist()
}

// ReinstateDevice moves a suspended device back to trusted. Reinstating a
// revoked device is rejected — revocation is terminal.
func (r *Registry) ReinstateDevice(fingerprint string) error {
	idx, ok := r.indexByFingerprint(fingerprint)
	if !ok {
		return ErrDeviceNotFound
	}
	if r.devices[idx].TrustState == TrustStateRevoked {
		return ErrDeviceRevoked
	}
	r.devices[idx].TrustState = TrustStateTrusted
	r.devices[idx].SuspendedAt = nil
	r.devices[idx].SuspensionReason = ""
	return r.persist()
}

// VerifyIntegrity holds iff the registry is non-empty and currentFingerprint
// names a device present in it (spec §4.8). An empty registry or a
// fingerprint absent from it both fail the check; the integrity guard
// classifies the failure further (first-launch race vs. later-launch
// absence).
func (r *Registry) VerifyIntegrity(currentFingerprint string) error {
	if len(r.devices) == 0 {
		return ErrRegistryEmpty
	}
	if _, ok := r.findByFingerprint(currentFingerprint); !ok {
		return ErrCurrentDeviceNotRegistered
	}
	return nil
}

func (r *Registry) findByFingerprint(fingerprint string) (TrustedDevice, bool) {
	idx, ok := r.indexByFingerprint(fingerprint)
	if !ok {
		return TrustedDevice{}, false
	}
	return r.devices[idx], true
}

func (r *Registry) indexByFingerprint(fingerprint string) (int, bool) {
	for i, d := range r.devices {
		if d.PublicKeyFingerprint == fingerprint {
			return i, true
		}
	}
	return 0, false
}

func (r *Registry) persist() error {
	data, err := json.MarshalIndent(r.devices, "", "  ")
	if err != nil {
		return fmt.Errorf("device: encoding registry: %w", err)
	}
	return atomicfile.WriteFile(r.path, data, 0o600)
}
