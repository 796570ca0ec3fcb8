package kernel

import (
	"errors"

	"github.com/quaylabs/capkernel/device"
	"github.com/quaylabs/capkernel/epoch"
	"github.com/quaylabs/capkernel/vault"
)

// vaultEpochChecker adapts vault.Vault + epoch.Manager to the narrow
// integrity.VaultChecker interface (C13 checks 1 and 2), so the guard
// never needs to know either concrete type.
type vaultEpochChecker struct {
	vault *vault.Vault
	epoch *epoch.Manager
}

func (c vaultEpochChecker) ActiveKeyExists() (bool, error) {
	return c.vault.HasHMACKey(c.epoch.ActiveKeyVersion()), nil
}

func (c vaultEpochChecker) ActiveKeyRevoked() (bool, error) {
	return c.epoch.IsRevoked(c.epoch.ActiveKeyVersion()), nil
}

// deviceRegistryChecker adapts device.Registry to integrity.DeviceRegistryChecker,
// distinguishing a genuine first-launch registration race (registry still
// empty) from a later-launch absence (registry populated, fingerprint missing).
type deviceRegistryChecker struct {
	registry *device.Registry
}

func (c deviceRegistryChecker) Check(currentFingerprint string) (found bool, isFirstLaunch bool, err error) {
	if len(c.registry.Devices()) == 0 {
		return false, true, nil
	}
	verifyErr := c.registry.VerifyIntegrity(currentFingerprint)
	if verifyErr == nil {
		return true, false, nil
	}
	if errors.Is(verifyErr, device.ErrCurrentDeviceNotRegistered) {
		return false, false, nil
	}
	return false, false, verifyErr
}
