package token

import (
	"encoding/hex"
	"time"

	"github.com/quaylabs/capkernel/intent"
	"github.com/quaylabs/capkernel/primitives"
	"github.com/quaylabs/capkernel/quorum"
)

// EpochChecker is the subset of epoch.Manager the verifier depends on.
type EpochChecker interface {
	TrustEpoch() int
	IsRevoked(version int) bool
}

// KeyResolver returns the HMAC key material for a given key version.
type KeyResolver func(version int) ([]byte, error)

// HumanVerifier checks an ECDSA signature over a plan hash against the
// stored identity's public key (vault.Vault.Verify's signature).
type HumanVerifier func(planHash string, signature []byte) (bool, error)

// ConsumedStore is the subset of consumed.Store the verifier depends on.
type ConsumedStore interface {
	Consume(tokenID string, expiresAt time.Time) (bool, error)
}

// Verify checks every invariant an AuthorizationToken must satisfy before
// the side effect it authorizes may run, then consumes it — exactly once,
// across the process and its restarts (spec P3). Verification fails
// closed: the first failing check returns immediately and the token is
// never consumed on a failed verification, so a rejected presentation
// does not burn the caller's one legitimate attempt.
func Verify(now time.Time, tok AuthorizationToken, plan intent.ToolPlan, epochChecker EpochChecker, resolveKey KeyResolver, humanVerify HumanVerifier, consumed ConsumedStore) error {
	if !now.Before(tok.ExpiresAt) {
		return ErrTokenExpired
	}
	if epochChecker.IsRevoked(tok.KeyVersion) {
		return ErrKeyVersionRevoked
	}
	if tok.Epoch != epochChecker.TrustEpoch() {
		return ErrEpochMismatch
	}
	if PlanHash(plan) != tok.PlanHash {
		return ErrPlanHashMismatch
	}

	key, err := resolveKey(tok.KeyVersion)
	if err != nil {
		return err
	}
	sigBytes, err := hex.DecodeString(tok.Signature)
	if err != nil {
		return ErrSignatureInvalid
	}
	ok, err := primitives.HMACVerify(signingMaterial(tok.PlanID, tok.IssuedAt, tok.ExpiresAt), key, sigBytes)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureInvalid
	}

	if tok.HumanSignature != "" {
		humanSigBytes, err := hex.DecodeString(tok.HumanSignature)
		if err != nil {
			return ErrHumanSignatureInvalid
		}
		valid, err := humanVerify(tok.PlanHash, humanSigBytes)
		if err != nil {
			return err
		}
		if !valid {
			return ErrHumanSignatureInvalid
		}
	}

	quorumResult := quorum.Validate(tok.RiskTier, tok.CollectedSignatures)
	if !quorumResult.Satisfied {
		return ErrQuorumNotSatisfied
	}

	consumedFirstTime, err := consumed.Consume(tok.ID, tok.ExpiresAt)
	if err != nil {
		return err
	}
	if !consumedFirstTime {
		return ErrTokenAlreadyConsumed
	}

	return nil
}
