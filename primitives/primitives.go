// Package primitives wraps the cryptographic building blocks the kernel
// depends on (C1): HMAC-SHA-256, SHA-256, and ECDSA P-256 sign/verify.
// Spec §1 treats these as "assumed available from a vetted library" — this
// package is a thin, constant-time-aware wrapper over Go's standard
// crypto library, which is that vetted library; no third-party crypto
// package in the example pack offers anything beyond what crypto/* already
// provides for these three primitives, so reaching outside the standard
// library here would add an unjustified dependency rather than remove one.
package primitives

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"errors"
)

// MinHMACKeyLength is the minimum required length for HMAC-SHA256 secret
// keys. 32 bytes (256 bits) matches the SHA-256 output size.
const MinHMACKeyLength = 32

// ErrKeyTooShort is returned when an HMAC secret key is shorter than
// MinHMACKeyLength.
var ErrKeyTooShort = errors.New("primitives: secret key must be at least 32 bytes")

// ErrInvalidSignature is returned by Verify-style functions only for
// infrastructure failures (malformed key material); an invalid signature
// itself is reported as (false, nil), not as an error — matching the
// policy signer convention that a validation outcome is not an error.
var ErrInvalidSignature = errors.New("primitives: invalid signature encoding")

// Sum256 computes the SHA-256 digest of data.
func Sum256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HMACSign computes HMAC-SHA256 over payload using key.
func HMACSign(payload, key []byte) ([]byte, error) {
	if len(key) < MinHMACKeyLength {
		return nil, ErrKeyTooShort
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil), nil
}

// HMACVerify recomputes the HMAC over payload and compares it to signature
// in constant time. Returns (true, nil) on match, (false, nil) on mismatch,
// (false, err) only if the key itself is invalid.
func HMACVerify(payload, key, signature []byte) (bool, error) {
	expected, err := HMACSign(payload, key)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(expected, signature) == 1, nil
}

// GenerateHMACKey returns a cryptographically random key suitable for
// HMAC-SHA256, sized at exactly MinHMACKeyLength bytes.
func GenerateHMACKey() ([]byte, error) {
	key := make([]byte, MinHMACKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateECDSAKey generates a new P-256 ECDSA key pair.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// ECDSASignDigest produces a DER-encoded ECDSA signature over the SHA-256
// digest of message, using priv. This is the primitive C2 calls after a
// successful biometric gate.
func ECDSASignDigest(priv *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ecdsa.SignASN1(rand.Reader, priv, digest[:])
}

// ECDSAVerifyDigest verifies a DER-encoded ECDSA signature over the
// SHA-256 digest of message against pub. Verification requires no secret
// material and may run on any goroutine.
func ECDSAVerifyDigest(pub *ecdsa.PublicKey, message, signature []byte) bool {
	digest := sha256.Sum256(message)
	return ecdsa.VerifyASN1(pub, digest[:], signature)
}

// MarshalPublicKey serializes an ECDSA public key to its DER SubjectPublicKeyInfo form.
func MarshalPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(pub)
}

// ParsePublicKey parses a DER SubjectPublicKeyInfo-encoded ECDSA public key.
func ParsePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrInvalidSignature
	}
	return ecPub, nil
}

// Fingerprint computes hex(SHA-256(publicKeyDER)) — the device identity
// binding used throughout C4 and signed evidence (spec §4.7).
func Fingerprint(publicKeyDER []byte) string {
	sum := sha256.Sum256(publicKeyDER)
	return hex.EncodeToString(sum[:])
}
