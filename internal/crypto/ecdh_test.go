package crypto

import "testing"

func TestEphemeralECDHAgreement(t *testing.T) {
	privA, pubA, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatalf("GenerateEphemeralKeyPair() error = %v", err)
	}
	privB, pubB, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatalf("GenerateEphemeralKeyPair() error = %v", err)
	}

	secretA, err := DeriveSessionKey(privA, pubB)
	if err != nil {
		t.Fatalf("DeriveSessionKey(A) error = %v", err)
	}
	secretB, err := DeriveSessionKey(privB, pubA)
	if err != nil {
		t.Fatalf("DeriveSessionKey(B) error = %v", err)
	}
	if len(secretA) != 32 {
		t.Fatalf("shared secret length = %d, want 32", len(secretA))
	}
	if string(secretA) != string(secretB) {
		t.Error("ECDH shared secrets differ between peers")
	}
}

func TestRawPublicKeyRoundTrip(t *testing.T) {
	_, pub, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatalf("GenerateEphemeralKeyPair() error = %v", err)
	}
	raw := MarshalRawPublicKey(pub)
	if len(raw) != 64 {
		t.Fatalf("raw public key length = %d, want 64", len(raw))
	}
	parsed, err := ParseRawPublicKey(raw)
	if err != nil {
		t.Fatalf("ParseRawPublicKey() error = %v", err)
	}
	if !parsed.Equal(pub) {
		t.Error("parsed public key does not equal original")
	}
}

func TestParseRawPublicKeyWrongLength(t *testing.T) {
	_, err := ParseRawPublicKey(make([]byte, 63))
	if err == nil {
		t.Error("expected error for wrong-length raw public key")
	}
}
