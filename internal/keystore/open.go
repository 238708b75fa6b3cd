package keystore

import (
	"fmt"

	"github.com/PolarWolf314/tiaki/internal/configs"
	logger "github.com/PolarWolf314/tiaki/internal/logging"
)

// Open returns the KeyStore selected by cfg.Store.Backend, located via settings.
func Open(cfg *configs.Config, settings *configs.Settings, log logger.Logger) (KeyStore, error) {
	path := settings.StorePath(cfg)

	switch cfg.Store.Backend {
	case configs.StoreBackendFile, "":
		log.Debugf("Opening file key store at %s", path)
		return NewFileStore(path)
	case configs.StoreBackendBadger:
		log.Debugf("Opening badger key store at %s", path)
		return NewBadgerStore(path, log)
	case configs.StoreBackendMemory:
		log.Debugf("Using in-memory key store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
