package workflows

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/tiaki/internal/configs"
	"github.com/PolarWolf314/tiaki/internal/e2e"
	"github.com/PolarWolf314/tiaki/internal/keystore"
	logger "github.com/PolarWolf314/tiaki/internal/logging"
	"github.com/PolarWolf314/tiaki/internal/provider"
)

// SessionOptions carries what every workflow needs to reach the key store
// and the key vault.
type SessionOptions struct {
	// Passphrase unlocks the key vault. Without it the vault is locked:
	// operations that only read public data, or that delete keys, still work.
	Passphrase []byte

	Logger logger.Logger
}

// session is one opened key store, provider and manager.
type session struct {
	config  *configs.Config
	store   keystore.KeyStore
	manager *e2e.Manager
}

func openSession(ctx context.Context, opts SessionOptions) (*session, error) {
	log := opts.Logger

	config, err := configs.EnsureConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	hash, err := provider.ParseHash(config.Keys.OAEPHash)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	vault, err := openVault(config, opts.Passphrase)
	if err != nil {
		return nil, err
	}

	store, err := keystore.Open(config, configs.TiakiSettings, log)
	if err != nil {
		return nil, fmt.Errorf("opening key store: %w", err)
	}

	manager := e2e.NewManager(store, provider.NewSoftware(vault),
		e2e.WithLogger(log),
		e2e.WithRSABits(config.Keys.RSABits),
		e2e.WithOAEPHash(hash),
	)
	manager.Init(ctx)

	return &session{config: config, store: store, manager: manager}, nil
}

func openVault(config *configs.Config, passphrase []byte) (provider.Vault, error) {
	if config.Store.Backend == configs.StoreBackendMemory {
		return provider.NewMemoryVault(), nil
	}

	dir := configs.TiakiSettings.VaultPath()
	if len(passphrase) == 0 {
		return provider.NewLockedFileVault(dir)
	}

	params := provider.KDFParams{
		Time:      config.Keys.KDFTime,
		MemoryKiB: config.Keys.KDFMemoryKiB,
		Threads:   provider.DefaultKDFParams.Threads,
	}
	return provider.NewFileVault(dir, passphrase, params)
}

func (s *session) Close() error {
	return s.store.Close()
}
