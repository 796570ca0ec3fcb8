// Package device implements the kernel's trusted device registry (C4): it
// binds the C2 hardware fingerprint to a machine-stable secondary
// identifier and tracks each device's trust lifecycle (trusted, suspended,
// revoked).
package device

import (
	"regexp"

	"github.com/denisbrodbeck/machineid"
)

// AppID is the application-specific key for HMAC hashing of machine IDs.
// This ensures the machine identifier is unique to this kernel deployment
// and cannot be correlated with other applications using the same
// machine ID library.
const AppID = "capkernel-device-binding"

// machineIdentifierRegex matches valid machine identifiers (64 lowercase
// hex chars). SHA256 output = 32 bytes = 64 hex characters.
var machineIdentifierRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// MachineID returns a stable, hashed secondary identifier for the host
// machine. It supplements (never replaces) the C2 ECDSA public-key
// fingerprint: the fingerprint identifies the hardware-protected key a
// device actually signs with, while MachineID binds a TrustedDevice record
// to a specific piece of hardware even across key regeneration.
//
//   - Uses machineid.ProtectedID(AppID), HMAC-SHA256 of the raw machine ID.
//   - The raw machine ID is never exposed.
func MachineID() (string, error) {
	id, err := machineid.ProtectedID(AppID)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ValidateMachineIdentifier reports whether id is a well-formed machine
// identifier (64 lowercase hex characters, SHA256 output).
func ValidateMachineIdentifier(id string) bool {
	return machineIdentifierRegex.MatchString(id)
}
