package configs

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

const (
	StoreBackendFile   = "file"
	StoreBackendBadger = "badger"
	StoreBackendMemory = "memory"
)

type Config struct {
	Store  StoreConfig  `toml:"store"`
	Keys   KeysConfig   `toml:"keys"`
	Device DeviceConfig `toml:"device"`
}

type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path,omitempty"`
}

type KeysConfig struct {
	RSABits  int    `toml:"rsa_bits"`
	OAEPHash string `toml:"oaep_hash"`

	// Argon2id cost for sealing device keys at rest. Zero means the vault default.
	KDFTime      uint32 `toml:"kdf_time,omitempty"`
	KDFMemoryKiB uint32 `toml:"kdf_memory_kib,omitempty"`
}

type DeviceConfig struct {
	InstallationID string `toml:"installation_id"`
}

// DefaultConfig returns the configuration used when no config.toml exists.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{Backend: StoreBackendFile},
		Keys: KeysConfig{
			RSABits:  4096,
			OAEPHash: "sha1",
		},
	}
}

// Validate checks the values a user can get wrong by hand-editing config.toml.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendFile, StoreBackendBadger, StoreBackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q (expected file, badger or memory)", c.Store.Backend)
	}
	if c.Keys.RSABits < 2048 {
		return fmt.Errorf("keys.rsa_bits must be at least 2048, got %d", c.Keys.RSABits)
	}
	switch c.Keys.OAEPHash {
	case "sha1", "sha256":
	default:
		return fmt.Errorf("keys.oaep_hash must be sha1 or sha256, got %q", c.Keys.OAEPHash)
	}
	return nil
}

// LoadConfig loads config.toml, falling back to defaults for a missing file
// or missing fields.
func LoadConfig() (*Config, error) {
	configPath := TiakiSettings.ConfigFilePath()
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	if err := LoadTOML(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config at %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig saves config.toml.
func SaveConfig(config *Config) error {
	if err := SaveTOML(TiakiSettings.ConfigFilePath(), config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GenerateInstallationID generates a new UUID for this installation.
func GenerateInstallationID() string {
	return uuid.New().String()
}

// EnsureConfig loads the config and persists it with an installation id if
// it does not have one yet.
func EnsureConfig() (*Config, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	if config.Device.InstallationID == "" {
		config.Device.InstallationID = GenerateInstallationID()
		if err := SaveConfig(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}
