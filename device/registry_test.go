package device

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRegisterDeviceIsTrustedAndIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_device_registry.json")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Now()
	dev, err := r.RegisterDevice("dev1", "fp-abc", "machine-1", "laptop", now)
	if err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	if dev.TrustState != TrustStateTrusted {
		t.Fatalf("expected newly registered device to be trusted, got %q", dev.TrustState)
	}
	if !r.IsDeviceTrusted("fp-abc") {
		t.Fatalf("IsDeviceTrusted should report true for a freshly registered device")
	}

	again, err := r.RegisterDevice("dev1", "fp-abc", "machine-1", "laptop", now)
	if err != nil {
		t.Fatalf("RegisterDevice (re-register): %v", err)
	}
	if len(r.Devices()) != 1 {
		t.Fatalf("re-registering the same fingerprint should not duplicate, got %d devices", len(r.Devices()))
	}
	if again.ID != dev.ID {
		t.Fatalf("re-register should return the existing record")
	}
}

func TestRevokeDeviceIsTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_device_registry.json")
	r, _ := Open(path)
	now := time.Now()
	r.RegisterDevice("dev1", "fp-abc", "", "", now)

	if err := r.RevokeDevice("fp-abc", "lost device", now); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}
	if r.IsDeviceTrusted("fp-abc") {
		t.Fatalf("revoked device should not be trusted")
	}
	if err := r.ReinstateDevice("fp-abc"); err != ErrDeviceRevoked {
		t.Fatalf("expected ErrDeviceRevoked on reinstating a revoked device, got %v", err)
	}
	if err := r.SuspendDevice("fp-abc", "x", now); err != ErrDeviceRevoked {
		t.Fatalf("expected ErrDeviceRevoked on suspending a revoked device, got %v", err)
	}
}

func TestSuspendAndReinstateDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_device_registry.json")
	r, _ := Open(path)
	now := time.Now()
	r.RegisterDevice("dev1", "fp-abc", "", "", now)

	if err := r.SuspendDevice("fp-abc", "suspicious activity", now); err != nil {
		t.Fatalf("SuspendDevice: %v", err)
	}
	if r.IsDeviceTrusted("fp-abc") {
		t.Fatalf("suspended device should not be trusted")
	}
	if err := r.ReinstateDevice("fp-abc"); err != nil {
		t.Fatalf("ReinstateDevice: %v", err)
	}
	if !r.IsDeviceTrusted("fp-abc") {
		t.Fatalf("reinstated device should be trusted again")
	}
}

func TestVerifyIntegrity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_device_registry.json")
	r, _ := Open(path)

	if err := r.VerifyIntegrity("fp-abc"); err != ErrRegistryEmpty {
		t.Fatalf("expected ErrRegistryEmpty on an empty registry, got %v", err)
	}

	r.RegisterDevice("dev1", "fp-abc", "", "", time.Now())
	if err := r.VerifyIntegrity("fp-abc"); err != nil {
		t.Fatalf("VerifyIntegrity should pass for the registered current device: %v", err)
	}
	if err := r.VerifyIntegrity("fp-other"); err != ErrCurrentDeviceNotRegistered {
		t.Fatalf("expected ErrCurrentDeviceNotRegistered, got %v", err)
	}
}

func TestRegistryPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_device_registry.json")
	r1, _ := Open(path)
	r1.RegisterDevice("dev1", "fp-abc", "", "laptop", time.Now())

	r2, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	if !r2.IsDeviceTrusted("fp-abc") {
		t.Fatalf("expected persisted registry to recover the trusted device")
	}
}
