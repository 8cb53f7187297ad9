package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveIVDeterministic(t *testing.T) {
	seed := []byte{0x01, 0x02, 0x03, 0x04}
	iv1 := DeriveIV(seed)
	iv2 := DeriveIV(seed)
	if len(iv1) != 16 {
		t.Fatalf("DeriveIV() length = %d, want 16", len(iv1))
	}
	if !bytes.Equal(iv1, iv2) {
		t.Error("DeriveIV() not deterministic for the same seed")
	}
}

func TestReverseBytes(t *testing.T) {
	got := ReverseBytes([]byte{0x01, 0x02, 0x03, 0x04})
	want := []byte{0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("ReverseBytes() = %x, want %x", got, want)
	}
}

func TestXORBytes(t *testing.T) {
	a := []byte{0xFF, 0x00, 0xAA}
	b := []byte{0x0F, 0xF0, 0x55}
	want := []byte{0xF0, 0xF0, 0xFF}
	got := XORBytes(a, b)
	if !bytes.Equal(got, want) {
		t.Errorf("XORBytes() = %x, want %x", got, want)
	}
}
