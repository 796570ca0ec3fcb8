package device

import "errors"

// ErrDeviceNotFound is returned when an operation names a fingerprint with
// no matching registry entry.
var ErrDeviceNotFound = errors.New("device: no registry entry for fingerprint")

// ErrDeviceRevoked is returned when an operation attempts to move a
// terminally revoked device back into a recoverable state.
var ErrDeviceRevoked = errors.New("device: device is revoked, revocation is terminal")

// ErrRegistryEmpty is returned by VerifyIntegrity when no device has ever
// been registered.
var ErrRegistryEmpty = errors.New("device: registry is empty")

// ErrCurrentDeviceNotRegistered is returned by VerifyIntegrity when the
// current device's fingerprint has no registry entry.
var ErrCurrentDeviceNotRegistered = errors.New("device: current device fingerprint not found in registry")
