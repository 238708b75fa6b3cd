package e2e

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PolarWolf314/tiaki/internal/keystore"
	"github.com/PolarWolf314/tiaki/internal/provider"
)

const testBits = 2048

var errInjected = errors.New("injected failure")

// countingProvider counts key generation and destruction. When gate is set,
// GenerateRSAKeyPair signals started and blocks until gate is closed.
type countingProvider struct {
	provider.Provider

	generated atomic.Int32
	destroyed atomic.Int32

	failGenerate bool
	startOnce    sync.Once
	started      chan struct{}
	gate         chan struct{}
}

func newCountingProvider() *countingProvider {
	return &countingProvider{
		Provider: provider.NewSoftware(nil),
		started:  make(chan struct{}),
	}
}

func (c *countingProvider) GenerateRSAKeyPair(ctx context.Context, bits int) (provider.KeyHandle, string, error) {
	c.startOnce.Do(func() { close(c.started) })
	if c.gate != nil {
		<-c.gate
	}
	if c.failGenerate {
		return provider.KeyHandle{}, "", errInjected
	}
	c.generated.Add(1)
	return c.Provider.GenerateRSAKeyPair(ctx, bits)
}

func (c *countingProvider) DestroyKey(ctx context.Context, handle provider.KeyHandle) error {
	c.destroyed.Add(1)
	return c.Provider.DestroyKey(ctx, handle)
}

// countingStore counts record writes and can be told to fail individual
// operations.
type countingStore struct {
	*keystore.MemoryStore

	writes atomic.Int32

	failSetKey   bool
	failSetID    bool
	failGetID    bool
	failGetKey   bool
	failEnable   bool
	failClearAll bool
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: keystore.NewMemoryStore()}
}

func (s *countingStore) SetDeviceKey(ctx context.Context, id string, record keystore.DeviceRecord) error {
	if s.failSetKey {
		return errInjected
	}
	s.writes.Add(1)
	return s.MemoryStore.SetDeviceKey(ctx, id, record)
}

func (s *countingStore) SetDeviceID(ctx context.Context, key, id string) error {
	if s.failSetID {
		return errInjected
	}
	return s.MemoryStore.SetDeviceID(ctx, key, id)
}

func (s *countingStore) GetDeviceID(ctx context.Context, key string) (string, error) {
	if s.failGetID {
		return "", errInjected
	}
	return s.MemoryStore.GetDeviceID(ctx, key)
}

func (s *countingStore) GetDeviceKey(ctx context.Context, id string) (*keystore.DeviceRecord, error) {
	if s.failGetKey {
		return nil, errInjected
	}
	return s.MemoryStore.GetDeviceKey(ctx, id)
}

func (s *countingStore) EnableEncryptionDBData(ctx context.Context, id string) error {
	if s.failEnable {
		return errInjected
	}
	return s.MemoryStore.EnableEncryptionDBData(ctx, id)
}

func (s *countingStore) ListDeviceKeys(ctx context.Context) ([]keystore.DeviceRecord, error) {
	if s.failClearAll {
		return nil, errInjected
	}
	return s.MemoryStore.ListDeviceKeys(ctx)
}

func (s *countingStore) ClearDeviceKey(ctx context.Context) error {
	if s.failClearAll {
		return errInjected
	}
	return s.MemoryStore.ClearDeviceKey(ctx)
}

func (s *countingStore) ClearDeviceID(ctx context.Context) error {
	if s.failClearAll {
		return errInjected
	}
	return s.MemoryStore.ClearDeviceID(ctx)
}

type testDevice struct {
	id      string
	keyID   string
	manager *Manager
	pair    DeviceKeyPair
}

func (d testDevice) info() DeviceInfo {
	return DeviceInfo{
		GidUUID:  "gid-" + d.id,
		DeviceID: d.id,
		MessagingKeys: &MessagingKeys{
			AlgorithmType: AlgorithmRSA,
			KeyID:         d.keyID,
			PublicKey:     d.pair.PublicKey,
		},
	}
}

func newTestManager(store keystore.KeyStore, p provider.Provider) *Manager {
	return NewManager(store, p, WithRSABits(testBits))
}

// newEnabledDevice runs the full onboarding flow for one device.
func newEnabledDevice(t *testing.T, p provider.Provider, id string) testDevice {
	t.Helper()
	ctx := context.Background()

	m := newTestManager(keystore.NewMemoryStore(), p)
	pair, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, m.StoreKey(ctx, id, pair.PrivateKey, pair.PublicKey))
	require.NoError(t, m.EnableEncryption(ctx))

	return testDevice{id: id, keyID: "key-" + id, manager: m, pair: pair}
}
