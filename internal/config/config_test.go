package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Client.MTU != 20 {
		t.Errorf("Client.MTU = %d, want 20", cfg.Client.MTU)
	}
	if cfg.Client.MaxRegistersPerRequest != 7 {
		t.Errorf("Client.MaxRegistersPerRequest = %d, want 7", cfg.Client.MaxRegistersPerRequest)
	}
	if cfg.Client.ResponseTimeout != 5000*time.Millisecond {
		t.Errorf("Client.ResponseTimeout = %v, want 5s", cfg.Client.ResponseTimeout)
	}
	if !cfg.KeyBundle.Empty() {
		t.Error("expected an empty key bundle with no configuration supplied")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadKeyBundleFromEnv(t *testing.T) {
	t.Setenv("PWRSCAN_KEY_BUNDLE_SIGNING_KEY_HEX", "aa")
	t.Setenv("PWRSCAN_KEY_BUNDLE_VERIFY_KEY_HEX", "bb")
	t.Setenv("PWRSCAN_KEY_BUNDLE_SHARED_SECRET_HEX", "cc")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.KeyBundle.SigningKeyHex != "aa" || cfg.KeyBundle.VerifyKeyHex != "bb" || cfg.KeyBundle.SharedSecretHex != "cc" {
		t.Errorf("KeyBundle = %+v, want {aa bb cc}", cfg.KeyBundle)
	}
}

func TestValidateRejectsPartialKeyBundle(t *testing.T) {
	cfg := &Config{
		KeyBundle: KeyBundleConfig{SigningKeyHex: "aa"},
		Client: ClientConfig{
			MTU:                    20,
			MaxRegistersPerRequest: 7,
			ResponseTimeout:        time.Second,
			EncryptionWindow:       time.Second,
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a partially-set key bundle")
	}
}

func TestValidateRejectsNonPositiveTunables(t *testing.T) {
	cfg := &Config{
		Client: ClientConfig{
			MTU:                    0,
			MaxRegistersPerRequest: 7,
			ResponseTimeout:        time.Second,
			EncryptionWindow:       time.Second,
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a zero MTU")
	}
}
