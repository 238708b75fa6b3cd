package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/PolarWolf314/tiaki/internal/errors"
	"github.com/PolarWolf314/tiaki/internal/keystore"
	"github.com/PolarWolf314/tiaki/internal/provider"
)

func TestGenerateKeyPairStoresPending(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := newTestManager(store, provider.NewSoftware(nil))

	pair, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	assert.False(t, pair.PrivateKey.IsZero())
	assert.True(t, strings.HasPrefix(pair.PublicKey, "-----BEGIN PUBLIC KEY-----"))

	id, ok := m.DeviceID()
	assert.True(t, ok)
	assert.Equal(t, PendingDeviceID, id)

	record, err := store.GetDeviceKey(ctx, PendingDeviceID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, keystore.StatusDisabled, record.EncryptionStatus)
	assert.Equal(t, pair.PrivateKey, record.PrivateKey)

	pointer, err := store.GetDeviceID(ctx, keystore.ActiveDeviceKey)
	require.NoError(t, err)
	assert.Equal(t, PendingDeviceID, pointer)
}

func TestGenerateKeyPairReusesActiveKey(t *testing.T) {
	ctx := context.Background()
	p := newCountingProvider()
	store := newCountingStore()
	m := newTestManager(store, p)

	first, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	second, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), p.generated.Load())
	assert.Equal(t, int32(1), store.writes.Load())
}

func TestGenerateKeyPairSingleFlight(t *testing.T) {
	ctx := context.Background()
	p := newCountingProvider()
	p.gate = make(chan struct{})
	store := newCountingStore()
	m := newTestManager(store, p)

	const callers = 8
	pairs := make([]DeviceKeyPair, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pairs[0], errs[0] = m.GenerateKeyPair(ctx)
	}()
	<-p.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pairs[i], errs[i] = m.GenerateKeyPair(ctx)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, pairs[0], pairs[i])
	}
	assert.Equal(t, int32(1), p.generated.Load(), "exactly one key pair generated")
	assert.Equal(t, int32(1), store.writes.Load(), "exactly one record written")
}

func TestGenerateKeyPairCompletesAfterCallerAbandons(t *testing.T) {
	p := newCountingProvider()
	p.gate = make(chan struct{})
	store := newCountingStore()
	m := newTestManager(store, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.GenerateKeyPair(ctx)
		done <- err
	}()

	<-p.started
	cancel()
	err := <-done
	assert.ErrorIs(t, err, kerrors.ErrGenerateKeyPairFailure)
	assert.ErrorIs(t, err, context.Canceled)

	close(p.gate)
	pair, err := m.GenerateKeyPair(context.Background())
	require.NoError(t, err)
	assert.False(t, pair.PrivateKey.IsZero())
	assert.Equal(t, int32(1), p.generated.Load())

	id, ok := m.DeviceID()
	assert.True(t, ok)
	assert.Equal(t, PendingDeviceID, id)
}

func TestGenerateKeyPairFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("ProviderFailure", func(t *testing.T) {
		p := newCountingProvider()
		p.failGenerate = true
		m := newTestManager(newCountingStore(), p)

		_, err := m.GenerateKeyPair(ctx)
		assert.ErrorIs(t, err, kerrors.ErrGenerateKeyPairFailure)
		assert.Equal(t, kerrors.CodeGenerateKeyPairFailure, kerrors.CodeOf(err))
		_, ok := m.DeviceID()
		assert.False(t, ok)
	})

	t.Run("StoreFailureDestroysKey", func(t *testing.T) {
		p := newCountingProvider()
		store := newCountingStore()
		store.failSetKey = true
		m := newTestManager(store, p)

		_, err := m.GenerateKeyPair(ctx)
		assert.ErrorIs(t, err, kerrors.ErrGenerateKeyPairFailure)
		assert.Equal(t, kerrors.CodeGenerateKeyPairFailure, kerrors.CodeOf(err))
		assert.Equal(t, int32(1), p.destroyed.Load())
		_, ok := m.DeviceID()
		assert.False(t, ok)
	})

	t.Run("PointerFailure", func(t *testing.T) {
		store := newCountingStore()
		store.failSetID = true
		m := newTestManager(store, newCountingProvider())

		_, err := m.GenerateKeyPair(ctx)
		assert.ErrorIs(t, err, kerrors.ErrGenerateKeyPairFailure)
		_, ok := m.DeviceID()
		assert.False(t, ok)

		pending, err := store.MemoryStore.GetDeviceKey(ctx, PendingDeviceID)
		require.NoError(t, err)
		assert.Nil(t, pending, "no pending record left behind")
	})
}

func TestStoreKeyPromotesPending(t *testing.T) {
	ctx := context.Background()
	p := newCountingProvider()
	store := newCountingStore()
	m := newTestManager(store, p)

	pair, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, m.StoreKey(ctx, "d1", pair.PrivateKey, pair.PublicKey))

	id, ok := m.DeviceID()
	assert.True(t, ok)
	assert.Equal(t, "d1", id)

	pending, err := store.GetDeviceKey(ctx, PendingDeviceID)
	require.NoError(t, err)
	assert.Nil(t, pending, "pending record removed after promotion")
	assert.Equal(t, int32(0), p.destroyed.Load(), "promoted key is kept")

	handle, err := m.DevicePrivateKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, pair.PrivateKey, handle)

	publicKey, err := m.DevicePublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, pair.PublicKey, publicKey)
}

func TestStoreKeyFailures(t *testing.T) {
	ctx := context.Background()
	p := provider.NewSoftware(nil)
	handle, publicKey, err := p.GenerateRSAKeyPair(ctx, testBits)
	require.NoError(t, err)

	tests := []struct {
		name     string
		deviceID string
		handle   provider.KeyHandle
		setup    func(*countingStore)
	}{
		{"EmptyID", "", handle, nil},
		{"InvalidID", "has space", handle, nil},
		{"ZeroHandle", "d1", provider.KeyHandle{}, nil},
		{"RecordWriteFails", "d1", handle, func(s *countingStore) { s.failSetKey = true }},
		{"PointerWriteFails", "d1", handle, func(s *countingStore) { s.failSetID = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCountingStore()
			m := newTestManager(store, p)

			// Start from an active device so the failure visibly clears it.
			require.NoError(t, m.StoreKey(ctx, "d0", handle, publicKey))
			if tt.setup != nil {
				tt.setup(store)
			}

			err := m.StoreKey(ctx, tt.deviceID, tt.handle, publicKey)
			assert.ErrorIs(t, err, kerrors.ErrStoreDevicePrivateKeyFailure)
			assert.Equal(t, kerrors.CodeStoreDevicePrivateKeyFailure, kerrors.CodeOf(err))
			_, ok := m.DeviceID()
			assert.False(t, ok)

			if tt.deviceID == "d1" {
				record, err := store.MemoryStore.GetDeviceKey(ctx, "d1")
				require.NoError(t, err)
				assert.Nil(t, record, "failed store leaves no record")
			}
		})
	}
}

func TestStoreKeyPointerFailureRestoresRecord(t *testing.T) {
	ctx := context.Background()
	p := provider.NewSoftware(nil)
	first, firstPublic, err := p.GenerateRSAKeyPair(ctx, testBits)
	require.NoError(t, err)
	second, secondPublic, err := p.GenerateRSAKeyPair(ctx, testBits)
	require.NoError(t, err)

	store := newCountingStore()
	m := newTestManager(store, p)
	require.NoError(t, m.StoreKey(ctx, "d1", first, firstPublic))

	store.failSetID = true
	err = m.StoreKey(ctx, "d1", second, secondPublic)
	assert.ErrorIs(t, err, kerrors.ErrStoreDevicePrivateKeyFailure)

	record, err := store.MemoryStore.GetDeviceKey(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, first, record.PrivateKey)
	assert.Equal(t, firstPublic, record.PublicKey)
}

func TestStoreKeyKeepsEnabledStatus(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := newTestManager(store, newCountingProvider())

	pair, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, m.StoreKey(ctx, "d1", pair.PrivateKey, pair.PublicKey))
	require.NoError(t, m.EnableEncryption(ctx))

	require.NoError(t, m.StoreKey(ctx, "d1", pair.PrivateKey, pair.PublicKey))

	record, err := m.DeviceRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, keystore.StatusEnabled, record.EncryptionStatus)

	enabled, err := m.IsEncryptionEnabled(ctx, []DeviceInfo{{DeviceID: "d1"}})
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestStoreKeyRefusesNewKeyForEnabledDevice(t *testing.T) {
	ctx := context.Background()
	p := provider.NewSoftware(nil)
	store := newCountingStore()
	m := newTestManager(store, p)

	pair, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, m.StoreKey(ctx, "d1", pair.PrivateKey, pair.PublicKey))
	require.NoError(t, m.EnableEncryption(ctx))

	other, otherPublic, err := p.GenerateRSAKeyPair(ctx, testBits)
	require.NoError(t, err)
	err = m.StoreKey(ctx, "d1", other, otherPublic)
	assert.ErrorIs(t, err, kerrors.ErrStoreDevicePrivateKeyFailure)

	record, err := store.MemoryStore.GetDeviceKey(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, keystore.StatusEnabled, record.EncryptionStatus)
	assert.Equal(t, pair.PrivateKey, record.PrivateKey)

	// Flush is the way to a fresh record.
	m.Flush(ctx)
	require.NoError(t, m.StoreKey(ctx, "d1", other, otherPublic))
	record, err = store.MemoryStore.GetDeviceKey(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, keystore.StatusDisabled, record.EncryptionStatus)
}

func TestEnableEncryption(t *testing.T) {
	ctx := context.Background()

	t.Run("NoActiveDevice", func(t *testing.T) {
		m := newTestManager(newCountingStore(), provider.NewSoftware(nil))
		err := m.EnableEncryption(ctx)
		assert.ErrorIs(t, err, kerrors.ErrDeviceNotE2EEnabled)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		store := newCountingStore()
		m := newTestManager(store, provider.NewSoftware(nil))
		_, err := m.GenerateKeyPair(ctx)
		require.NoError(t, err)

		store.failEnable = true
		err = m.EnableEncryption(ctx)
		assert.ErrorIs(t, err, kerrors.ErrDevicePrivateKeyNotFound)
	})

	t.Run("RecordMissing", func(t *testing.T) {
		store := newCountingStore()
		m := newTestManager(store, provider.NewSoftware(nil))
		_, err := m.GenerateKeyPair(ctx)
		require.NoError(t, err)
		require.NoError(t, store.DeleteDeviceKey(ctx, PendingDeviceID))

		err = m.EnableEncryption(ctx)
		assert.ErrorIs(t, err, kerrors.ErrDevicePrivateKeyNotFound)
		assert.ErrorIs(t, err, keystore.ErrRecordNotFound)
	})
}

func TestIsEncryptionEnabled(t *testing.T) {
	ctx := context.Background()
	p := provider.NewSoftware(nil)

	m := newTestManager(keystore.NewMemoryStore(), p)
	_, err := m.IsEncryptionEnabled(ctx, nil)
	assert.ErrorIs(t, err, kerrors.ErrDeviceNotE2EEnabled)

	pair, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, m.StoreKey(ctx, "d1", pair.PrivateKey, pair.PublicKey))

	mine := []DeviceInfo{{DeviceID: "d0"}, {DeviceID: "d1"}}

	enabled, err := m.IsEncryptionEnabled(ctx, mine)
	require.NoError(t, err)
	assert.False(t, enabled, "disabled until EnableEncryption")

	require.NoError(t, m.EnableEncryption(ctx))

	enabled, err = m.IsEncryptionEnabled(ctx, mine)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = m.IsEncryptionEnabled(ctx, []DeviceInfo{})
	require.NoError(t, err)
	assert.False(t, enabled, "device missing from account list is revoked")

	enabled, err = m.IsEncryptionEnabled(ctx, []DeviceInfo{{DeviceID: "d2"}})
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestIsEncryptionEnabledReadFailure(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := newTestManager(store, provider.NewSoftware(nil))
	_, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)

	store.failGetKey = true
	_, err = m.IsEncryptionEnabled(ctx, nil)
	assert.ErrorIs(t, err, kerrors.ErrDevicePrivateKeyNotFound)
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	p := newCountingProvider()
	store := newCountingStore()
	m := newTestManager(store, p)

	pair, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, m.StoreKey(ctx, "d1", pair.PrivateKey, pair.PublicKey))
	require.NoError(t, m.EnableEncryption(ctx))

	m.Flush(ctx)

	_, ok := m.DeviceID()
	assert.False(t, ok)

	_, err = m.DevicePrivateKey(ctx)
	assert.ErrorIs(t, err, kerrors.ErrDeviceNotE2EEnabled)

	records, err := store.ListDeviceKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	pointer, err := store.GetDeviceID(ctx, keystore.ActiveDeviceKey)
	require.NoError(t, err)
	assert.Empty(t, pointer)

	assert.Equal(t, int32(1), p.destroyed.Load())
	_, err = p.DecryptOAEP(ctx, provider.HashSHA1, pair.PrivateKey, []byte("x"))
	assert.ErrorIs(t, err, provider.ErrKeyNotFound)

	// A fresh manager over the same store starts without a device.
	fresh := newTestManager(store, p)
	fresh.Init(ctx)
	_, ok = fresh.DeviceID()
	assert.False(t, ok)
}

func TestFlushNeverFails(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := newTestManager(store, provider.NewSoftware(nil))
	_, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)

	store.failClearAll = true
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	assert.NotPanics(t, func() { m.Flush(cancelled) })
	_, ok := m.DeviceID()
	assert.False(t, ok)
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	p := provider.NewSoftware(nil)
	store := newCountingStore()

	t.Run("NothingStored", func(t *testing.T) {
		m := newTestManager(store, p)
		m.Init(ctx)
		_, ok := m.DeviceID()
		assert.False(t, ok)
	})

	first := newTestManager(store, p)
	pair, err := first.GenerateKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, first.StoreKey(ctx, "d1", pair.PrivateKey, pair.PublicKey))

	t.Run("RestoresActiveDevice", func(t *testing.T) {
		m := newTestManager(store, p)
		m.Init(ctx)
		m.Init(ctx)
		id, ok := m.DeviceID()
		assert.True(t, ok)
		assert.Equal(t, "d1", id)

		handle, err := m.DevicePrivateKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, pair.PrivateKey, handle)
	})

	t.Run("ReadFailureIsNotFatal", func(t *testing.T) {
		store.failGetID = true
		defer func() { store.failGetID = false }()

		m := newTestManager(store, p)
		m.Init(ctx)
		_, ok := m.DeviceID()
		assert.False(t, ok)
	})
}

func TestDevicePrivateKeyErrors(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := newTestManager(store, provider.NewSoftware(nil))

	_, err := m.DevicePrivateKey(ctx)
	assert.ErrorIs(t, err, kerrors.ErrDeviceNotE2EEnabled)

	_, err = m.GenerateKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, store.DeleteDeviceKey(ctx, PendingDeviceID))

	_, err = m.DevicePrivateKey(ctx)
	assert.ErrorIs(t, err, kerrors.ErrDevicePrivateKeyNotFound)

	_, err = m.DevicePublicKey(ctx)
	assert.ErrorIs(t, err, kerrors.ErrDevicePrivateKeyNotFound)
}

func TestGenerateRandomSecret(t *testing.T) {
	m := newTestManager(keystore.NewMemoryStore(), provider.NewSoftware(nil))
	hexPattern := regexp.MustCompile(`^[0-9a-f]{64}$`)

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		secret, err := m.GenerateRandomSecret()
		require.NoError(t, err)
		assert.Regexp(t, hexPattern, secret)
		assert.False(t, seen[secret], "secrets must not repeat")
		seen[secret] = true
	}
}

func TestKeyPairNeverRevealsHandle(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := newTestManager(store, provider.NewSoftware(nil))
	pair, err := m.GenerateKeyPair(ctx)
	require.NoError(t, err)

	ref, err := pair.PrivateKey.MarshalText()
	require.NoError(t, err)

	for _, verb := range []string{"%v", "%+v", "%#v", "%s"} {
		out := fmt.Sprintf(verb, pair)
		assert.NotContains(t, out, string(ref), verb)
	}

	data, err := json.Marshal(pair)
	require.NoError(t, err)
	assert.NotContains(t, string(data), string(ref))
	assert.NotContains(t, string(data), "private")
}
