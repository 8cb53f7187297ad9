// Package config loads pwrscan's runtime configuration: the key bundle
// used for the encryption handshake, and the BLE client's tunables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration structure.
type Config struct {
	KeyBundle KeyBundleConfig `mapstructure:"key_bundle"`
	Client    ClientConfig    `mapstructure:"client"`
	LogLevel  string          `mapstructure:"log_level"`
}

// KeyBundleConfig carries the three hex-encoded handshake inputs
// described by spec §6. All three are empty for a plaintext device.
type KeyBundleConfig struct {
	SigningKeyHex   string `mapstructure:"signing_key_hex"`
	VerifyKeyHex    string `mapstructure:"verify_key_hex"`
	SharedSecretHex string `mapstructure:"shared_secret_hex"`
}

// Empty reports whether no key bundle was configured.
func (k KeyBundleConfig) Empty() bool {
	return k.SigningKeyHex == "" && k.VerifyKeyHex == "" && k.SharedSecretHex == ""
}

// ClientConfig holds the BLE client's tunables, defaulting to spec §6's
// bit-exact constants.
type ClientConfig struct {
	ResponseTimeout        time.Duration `mapstructure:"response_timeout"`
	EncryptionWindow       time.Duration `mapstructure:"encryption_window"`
	MTU                    int           `mapstructure:"mtu"`
	MaxRegistersPerRequest int           `mapstructure:"max_registers_per_request"`
}

// Load reads configuration from configFile (or the default search path
// if empty), overlaying environment variables prefixed PWRSCAN_ (for
// example PWRSCAN_KEY_BUNDLE_SHARED_SECRET_HEX).
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pwrscan")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/pwrscan/")
		v.AddConfigPath("$HOME/.pwrscan")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PWRSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("key_bundle.signing_key_hex", "")
	v.SetDefault("key_bundle.verify_key_hex", "")
	v.SetDefault("key_bundle.shared_secret_hex", "")
	v.SetDefault("client.response_timeout", 5000*time.Millisecond)
	v.SetDefault("client.encryption_window", 500*time.Millisecond)
	v.SetDefault("client.mtu", 20)
	v.SetDefault("client.max_registers_per_request", 7)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
		// No config file is fine: the key bundle and tunables may arrive
		// entirely through PWRSCAN_ environment variables.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the key bundle, if any field is set, is fully
// set, and that the client tunables are positive.
func (c *Config) Validate() error {
	kb := c.KeyBundle
	if !kb.Empty() {
		if kb.SigningKeyHex == "" || kb.VerifyKeyHex == "" || kb.SharedSecretHex == "" {
			return fmt.Errorf("config: key_bundle: all three of signing_key_hex, verify_key_hex, shared_secret_hex must be set together")
		}
	}
	if c.Client.MTU <= 0 {
		return fmt.Errorf("config: client.mtu must be positive")
	}
	if c.Client.MaxRegistersPerRequest <= 0 {
		return fmt.Errorf("config: client.max_registers_per_request must be positive")
	}
	if c.Client.ResponseTimeout <= 0 {
		return fmt.Errorf("config: client.response_timeout must be positive")
	}
	if c.Client.EncryptionWindow <= 0 {
		return fmt.Errorf("config: client.encryption_window must be positive")
	}
	return nil
}
