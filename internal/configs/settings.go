package configs

import (
	"log"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/tiaki/internal/utils"
)

const (
	// EnvDataDir overrides the data directory.
	EnvDataDir = "TIAKI_DATA_DIR"

	// EnvPassphrase supplies the vault passphrase non-interactively.
	EnvPassphrase = "TIAKI_PASSPHRASE"
)

type Settings struct {
	DataPath   string
	ConfigPath string
	Username   string
}

var TiakiSettings *Settings

func init() {
	settings, err := DefaultSettings()
	if err != nil {
		log.Fatalf("error resolving tiaki directories: %s", err)
	}
	TiakiSettings = settings
}

// DefaultSettings resolves directories from the environment:
// $TIAKI_DATA_DIR, else $XDG_DATA_HOME/tiaki, else ~/.local/share/tiaki.
func DefaultSettings() (*Settings, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(homeDir, ".config")
	}

	dataDir := os.Getenv(EnvDataDir)
	if dataDir == "" {
		xdg := os.Getenv("XDG_DATA_HOME")
		if xdg == "" {
			xdg = filepath.Join(homeDir, ".local", "share")
		}
		dataDir = filepath.Join(xdg, "tiaki")
	}

	username, err := utils.GetUsername()
	if err != nil {
		username = "unknown"
	}

	return &Settings{
		DataPath:   dataDir,
		ConfigPath: filepath.Join(configDir, "tiaki"),
		Username:   username,
	}, nil
}

// UseDataDir points both data and config at dir. Used by --data-dir and tests.
func (s *Settings) UseDataDir(dir string) {
	s.DataPath = dir
	s.ConfigPath = dir
}

func (s *Settings) ConfigFilePath() string { return filepath.Join(s.ConfigPath, "config.toml") }
func (s *Settings) VaultPath() string      { return filepath.Join(s.DataPath, "vault") }
func (s *Settings) AuditLogPath() string   { return filepath.Join(s.DataPath, "audit.jsonl") }

// StorePath returns the key store location for backend, honouring an
// explicit path from config.
func (s *Settings) StorePath(cfg *Config) string {
	if cfg != nil && cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	if cfg != nil && cfg.Store.Backend == StoreBackendBadger {
		return filepath.Join(s.DataPath, "store.badger")
	}
	return filepath.Join(s.DataPath, "store")
}
