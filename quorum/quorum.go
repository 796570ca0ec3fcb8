// Package quorum implements the kernel's per-risk-tier signer requirements
// (C14): which distinct signer types a token must carry signatures from
// before it satisfies its tier's quorum, and the validator that checks a
// collected-signature set against that requirement.
package quorum

import "github.com/quaylabs/capkernel/intent"

// SignerType is the closed enumeration of who can contribute a signature
// to a token's quorum.
type SignerType string

const (
	SignerDeviceOperator    SignerType = "device_operator"
	SignerOrgAuthority      SignerType = "org_authority"
	SignerEmergencyOverride SignerType = "emergency_override"
)

// IsValid reports whether s is a known SignerType.
func (s SignerType) IsValid() bool {
	switch s {
	case SignerDeviceOperator, SignerOrgAuthority, SignerEmergencyOverride:
		return true
	}
	return false
}

func (s SignerType) String() string { return string(s) }

// CollectedSignature records one signer's contribution toward a token's quorum.
type CollectedSignature struct {
	SignerID      string     `json:"signerId"`
	SignerType    SignerType `json:"signerType"`
	SignatureData []byte     `json:"signatureData"`
	SignedAt      int64      `json:"signedAt"`
}

// requiredSignerSets is the fixed per-tier required signer-type set (spec
// §4.6 step 5): low/medium require only the device operator; high adds the
// org authority; critical additionally requires an emergency override
// signer.
var requiredSignerSets = map[intent.Tier][]SignerType{
	intent.TierLow:      {SignerDeviceOperator},
	intent.TierMedium:   {SignerDeviceOperator},
	intent.TierHigh:     {SignerDeviceOperator, SignerOrgAuthority},
	intent.TierCritical: {SignerDeviceOperator, SignerOrgAuthority, SignerEmergencyOverride},
}

// RequiredSigners returns the set of signer types a token of the given tier
// must carry signatures from.
func RequiredSigners(tier intent.Tier) []SignerType {
	set := requiredSignerSets[tier]
	out := make([]SignerType, len(set))
	copy(out, set)
	return out
}

// RequiredCount returns the minimum number of distinct signer types
// required at tier.
func RequiredCount(tier intent.Tier) int {
	return len(requiredSignerSets[tier])
}

// Result is the outcome of validating a collected-signature set against a
// tier's quorum requirement.
type Result struct {
	Satisfied bool
	Have      int
	Need      int
	Missing   []SignerType
}

// Validate checks whether collected covers every signer type required at
// tier. Extra signatures from signer types beyond the required set are
// tolerated but do not substitute for a missing required type.
func Validate(tier intent.Tier, collected []CollectedSignature) Result {
	required := requiredSignerSets[tier]

	have := map[SignerType]bool{}
	for _, sig := range collected {
		have[sig.SignerType] = true
	}

	var missing []SignerType
	haveCount := 0
	for _, req := range required {
		if have[req] {
			haveCount++
		} else {
			missing = append(missing, req)
		}
	}

	return Result{
		Satisfied: len(missing) == 0 && len(collected) >= len(required),
		Have:      haveCount,
		Need:      len(required),
		Missing:   missing,
	}
}
