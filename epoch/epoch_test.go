package epoch

import (
	"path/filepath"
	"testing"
	"time"
)

type fakeVault struct {
	keys map[int][]byte
}

func newFakeVault() *fakeVault {
	return &fakeVault{keys: map[int][]byte{}}
}

func (v *fakeVault) GenerateHMACKey(version int) ([]byte, error) {
	key := make([]byte, 32)
	v.keys[version] = key
	return key, nil
}

func (v *fakeVault) HasHMACKey(version int) bool {
	_, ok := v.keys[version]
	return ok
}

func TestOpenInitializesFreshState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust_epoch_state.json")
	vault := newFakeVault()

	m, err := Open(path, vault)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.TrustEpoch() != 1 || m.ActiveKeyVersion() != 1 {
		t.Fatalf("expected epoch=1 version=1, got epoch=%d version=%d", m.TrustEpoch(), m.ActiveKeyVersion())
	}
	if !vault.HasHMACKey(1) {
		t.Fatalf("expected vault to have generated key v1 on first launch")
	}
}

func TestOpenRecoversPersistedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust_epoch_state.json")
	vault := newFakeVault()

	m1, err := Open(path, vault)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m1.RotateKey(time.Now()); err != nil {
		t.Fatalf("RotateKey: %v", err)
	}

	m2, err := Open(path, vault)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	if m2.TrustEpoch() != m1.TrustEpoch() || m2.ActiveKeyVersion() != m1.ActiveKeyVersion() {
		t.Fatalf("recovered state mismatch: %+v vs %+v", m2.State(), m1.State())
	}
}

func TestRotateKeyStrictlyAdvancesEpochAndVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust_epoch_state.json")
	vault := newFakeVault()
	m, _ := Open(path, vault)

	beforeEpoch, beforeVersion := m.TrustEpoch(), m.ActiveKeyVersion()
	if err := m.RotateKey(time.Now()); err != nil {
		t.Fatalf("RotateKey: %v", err)
	}
	if m.TrustEpoch() <= beforeEpoch {
		t.Fatalf("epoch did not strictly advance: %d -> %d", beforeEpoch, m.TrustEpoch())
	}
	if m.ActiveKeyVersion() <= beforeVersion {
		t.Fatalf("key version did not strictly advance: %d -> %d", beforeVersion, m.ActiveKeyVersion())
	}
	if !m.IsRevoked(beforeVersion) {
		t.Fatalf("prior key version should be revoked after rotation")
	}
}

func TestAdvanceEpochWithoutRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust_epoch_state.json")
	vault := newFakeVault()
	m, _ := Open(path, vault)

	beforeEpoch, beforeVersion := m.TrustEpoch(), m.ActiveKeyVersion()
	if err := m.AdvanceEpoch(time.Now()); err != nil {
		t.Fatalf("AdvanceEpoch: %v", err)
	}
	if m.TrustEpoch() <= beforeEpoch {
		t.Fatalf("epoch did not advance")
	}
	if m.ActiveKeyVersion() != beforeVersion {
		t.Fatalf("key version should be unchanged by AdvanceEpoch")
	}
}

func TestVerifyIntegrityDetectsMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust_epoch_state.json")
	vault := newFakeVault()
	m, _ := Open(path, vault)

	delete(vault.keys, m.ActiveKeyVersion())
	if err := m.VerifyIntegrity(); err != ErrActiveKeyMissing {
		t.Fatalf("expected ErrActiveKeyMissing, got %v", err)
	}
}

func TestVerifyIntegrityOKAfterRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust_epoch_state.json")
	vault := newFakeVault()
	m, _ := Open(path, vault)

	if err := m.RotateKey(time.Now()); err != nil {
		t.Fatalf("RotateKey: %v", err)
	}
	if err := m.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity after rotation: %v", err)
	}
}

func TestRotationScheduleDueBeforeFirstRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust_epoch_state.json")
	m, _ := Open(path, newFakeVault())

	sched := RotationSchedule{Interval: 30 * 24 * time.Hour}
	if !sched.Due(m, time.Now()) {
		t.Fatalf("expected a never-rotated key to be due immediately")
	}
}

func TestRotationScheduleRemainingAfterRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust_epoch_state.json")
	m, _ := Open(path, newFakeVault())

	now := time.Now()
	if err := m.RotateKey(now); err != nil {
		t.Fatalf("RotateKey: %v", err)
	}

	sched := RotationSchedule{Interval: 30 * 24 * time.Hour}
	if sched.Due(m, now.Add(time.Hour)) {
		t.Fatalf("expected rotation not due one hour after rotating")
	}
	if !sched.Due(m, now.Add(31*24*time.Hour)) {
		t.Fatalf("expected rotation due after the interval elapses")
	}
}
