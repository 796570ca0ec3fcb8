// Package token implements the kernel's token mint and verifier (C12):
// the sole credential construction point for AuthorizationToken, the
// credential every side effect must present before execution. A token is
// constructible only through Mint, and every field is read-only once
// minted (spec §3's AuthorizationToken invariant).
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/quaylabs/capkernel/intent"
	"github.com/quaylabs/capkernel/primitives"
	"github.com/quaylabs/capkernel/quorum"
)

// Lifetime is the fixed validity window: expiresAt = issuedAt + Lifetime.
const Lifetime = 60 * time.Second

// Preconditions must all hold before Mint will construct a token. Every
// field here corresponds to one of C12's mint-time checks; Mint fails
// closed (returns an error, mints nothing) if any is false.
type Preconditions struct {
	IntegrityOK           bool // C13 reports a posture other than lockdown
	DeviceTrusted         bool // the originating device is trusted in C4
	ApprovalSessionValid  bool // the approval session named below has not expired or been revoked
}

var (
	ErrIntegrityLockdown       = errors.New("token: integrity guard is in lockdown, minting is blocked")
	ErrDeviceNotTrusted        = errors.New("token: originating device is not trusted")
	ErrApprovalSessionInvalid  = errors.New("token: approval session is invalid or expired")
	ErrQuorumNotSatisfied      = errors.New("token: collected signatures do not satisfy the tier's quorum")
	ErrHumanSignatureRequired  = errors.New("token: this tier requires a human signature and none was provided")
	ErrTokenExpired            = errors.New("token: expired")
	ErrTokenAlreadyConsumed    = errors.New("token: already consumed (replay)")
	ErrPlanHashMismatch        = errors.New("token: presented plan does not match the hash bound at mint time")
	ErrSignatureInvalid        = errors.New("token: HMAC signature does not verify")
	ErrHumanSignatureInvalid   = errors.New("token: human (ECDSA) signature does not verify")
	ErrKeyVersionRevoked       = errors.New("token: bound key version has been revoked")
	ErrEpochMismatch           = errors.New("token: bound trust epoch no longer matches the current epoch")
)

// AuthorizationToken is the sole credential for side effects (spec §3).
type AuthorizationToken struct {
	ID                    string                       `json:"id"`
	PlanID                string                       `json:"planId"`
	RiskTier              intent.Tier                  `json:"riskTier"`
	ApprovalType          string                       `json:"approvalType"`
	IssuedAt              time.Time                    `json:"issuedAt"`
	ExpiresAt             time.Time                    `json:"expiresAt"`
	Signature             string                       `json:"signature"`
	PlanHash              string                       `json:"planHash"`
	ApprovedScopes        []string                     `json:"approvedScopes"`
	ReversibilityRequired bool                         `json:"reversibilityRequired"`
	ApprovalSessionID     string                       `json:"approvalSessionId"`
	HumanSignature        string                       `json:"humanSignature,omitempty"`
	RequiredSigners       []quorum.SignerType          `json:"requiredSigners"`
	CollectedSignatures   []quorum.CollectedSignature  `json:"collectedSignatures"`
	KeyVersion            int                          `json:"keyVersion"`
	Epoch                 int                           `json:"epoch"`
}

// PlanHash returns hex(SHA-256(plan.CanonicalHeader())) — the binding
// between a token and the exact plan it authorizes.
func PlanHash(plan intent.ToolPlan) string {
	sum := sha256.Sum256(plan.CanonicalHeader())
	return hex.EncodeToString(sum[:])
}

// signingMaterial is the fixed byte form an AuthorizationToken's HMAC
// signature covers: planId | issuedAt | expiresAt (spec §3).
func signingMaterial(planID string, issuedAt, expiresAt time.Time) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", planID, issuedAt.UTC().Format(time.RFC3339Nano), expiresAt.UTC().Format(time.RFC3339Nano)))
}

// HumanSigner produces an ECDSA signature over planHash, biometrically
// gated. A (nil, nil) return means the human declined or the gate was
// unavailable — not a fault (vault.Sign's contract) — and Mint treats it
// as "no human signature obtained" rather than propagating an error.
type HumanSigner func(planHash string) ([]byte, error)

// MintParams carries everything Mint needs beyond the preconditions.
type MintParams struct {
	Plan                  intent.ToolPlan
	Tier                  intent.Tier
	ApprovalType          string
	ApprovedScopes        []string
	ReversibilityRequired bool
	ApprovalSessionID     string
	RequireBiometric      bool
	CollectedSignatures   []quorum.CollectedSignature
	KeyVersion            int
	Epoch                 int
	HMACKey               []byte
	Sign                  HumanSigner
}

// Mint constructs a new AuthorizationToken. It is the only function in
// the kernel that may produce one. Every precondition in pre must hold;
// the quorum for params.Tier must be satisfied by CollectedSignatures;
// and if RequireBiometric is set, Sign must yield a non-nil signature —
// otherwise Mint fails closed with a descriptive error and mints nothing.
func Mint(now time.Time, pre Preconditions, params MintParams) (AuthorizationToken, error) {
	if !pre.IntegrityOK {
		return AuthorizationToken{}, ErrIntegrityLockdown
	}
	if !pre.DeviceTrusted {
		return AuthorizationToken{}, ErrDeviceNotTrusted
	}
	if !pre.ApprovalSessionValid {
		return AuthorizationToken{}, ErrApprovalSessionInvalid
	}

	quorumResult := quorum.Validate(params.Tier, params.CollectedSignatures)
	if !quorumResult.Satisfied {
		return AuthorizationToken{}, fmt.Errorf("%w: missing %v", ErrQuorumNotSatisfied, quorumResult.Missing)
	}

	planHash := PlanHash(params.Plan)

	var humanSig string
	if params.Sign != nil {
		sig, err := params.Sign(planHash)
		if err != nil {
			return AuthorizationToken{}, fmt.Errorf("token: obtaining human signature: %w", err)
		}
		if sig != nil {
			humanSig = hex.EncodeToString(sig)
		}
	}
	if params.RequireBiometric && humanSig == "" {
		return AuthorizationToken{}, ErrHumanSignatureRequired
	}

	planID := params.Plan.ID
	issuedAt := now
	expiresAt := now.Add(Lifetime)

	sigBytes, err := primitives.HMACSign(signingMaterial(planID, issuedAt, expiresAt), params.HMACKey)
	if err != nil {
		return AuthorizationToken{}, fmt.Errorf("token: signing token: %w", err)
	}

	return AuthorizationToken{
		ID:                    intent.NewPlanID(),
		PlanID:                planID,
		RiskTier:              params.Tier,
		ApprovalType:          params.ApprovalType,
		IssuedAt:              issuedAt,
		ExpiresAt:             expiresAt,
		Signature:             hex.EncodeToString(sigBytes),
		PlanHash:              planHash,
		ApprovedScopes:        params.ApprovedScopes,
		ReversibilityRequired: params.ReversibilityRequired,
		ApprovalSessionID:     params.ApprovalSessionID,
		HumanSignature:        humanSig,
		RequiredSigners:       quorum.RequiredSigners(params.Tier),
		CollectedSignatures:   params.CollectedSignatures,
		KeyVersion:            params.KeyVersion,
		Epoch:                 params.Epoch,
	}, nil
}
