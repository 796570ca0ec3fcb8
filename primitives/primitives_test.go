package primitives

import "testing"

func TestHMACSignVerifyRoundTrip(t *testing.T) {
	key, err := GenerateHMACKey()
	if err != nil {
		t.Fatalf("GenerateHMACKey: %v", err)
	}
	payload := []byte("plan-id|1700000000|1700000060")

	sig, err := HMACSign(payload, key)
	if err != nil {
		t.Fatalf("HMACSign: %v", err)
	}

	ok, err := HMACVerify(payload, key, sig)
	if err != nil || !ok {
		t.Fatalf("HMACVerify valid sig: ok=%v err=%v", ok, err)
	}

	tampered := append([]byte{}, payload...)
	tampered[0] ^= 0xFF
	ok, err = HMACVerify(tampered, key, sig)
	if err != nil || ok {
		t.Fatalf("HMACVerify tampered payload should fail: ok=%v err=%v", ok, err)
	}
}

func TestHMACSignKeyTooShort(t *testing.T) {
	if _, err := HMACSign([]byte("x"), make([]byte, 16)); err != ErrKeyTooShort {
		t.Fatalf("expected ErrKeyTooShort, got %v", err)
	}
}

func TestECDSASignVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateECDSAKey()
	if err != nil {
		t.Fatalf("GenerateECDSAKey: %v", err)
	}
	msg := []byte("plan-hash-abc123")

	sig, err := ECDSASignDigest(priv, msg)
	if err != nil {
		t.Fatalf("ECDSASignDigest: %v", err)
	}

	if !ECDSAVerifyDigest(&priv.PublicKey, msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if ECDSAVerifyDigest(&priv.PublicKey, []byte("different-hash"), sig) {
		t.Fatalf("signature should not verify against a different message")
	}
}

func TestFingerprintIsStableAndDistinct(t *testing.T) {
	privA, _ := GenerateECDSAKey()
	privB, _ := GenerateECDSAKey()

	derA, err := MarshalPublicKey(&privA.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPublicKey: %v", err)
	}
	derB, err := MarshalPublicKey(&privB.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPublicKey: %v", err)
	}

	fpA1 := Fingerprint(derA)
	fpA2 := Fingerprint(derA)
	fpB := Fingerprint(derB)

	if fpA1 != fpA2 {
		t.Fatalf("fingerprint not stable: %s != %s", fpA1, fpA2)
	}
	if fpA1 == fpB {
		t.Fatalf("distinct keys produced the same fingerprint")
	}
	if len(fpA1) != 64 {
		t.Fatalf("expected 64 hex chars (SHA-256), got %d", len(fpA1))
	}
}

func TestParsePublicKeyRoundTrip(t *testing.T) {
	priv, err := GenerateECDSAKey()
	if err != nil {
		t.Fatalf("GenerateECDSAKey: %v", err)
	}
	der, err := MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPublicKey: %v", err)
	}
	pub, err := ParsePublicKey(der)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if !pub.Equal(&priv.PublicKey) {
		t.Fatalf("parsed public key does not match original")
	}
}
