package e2e

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	kerrors "github.com/PolarWolf314/tiaki/internal/errors"
	"github.com/PolarWolf314/tiaki/internal/keystore"
	logger "github.com/PolarWolf314/tiaki/internal/logging"
	"github.com/PolarWolf314/tiaki/internal/provider"
)

// Manager owns the device key lifecycle and is the entry point for every
// envelope, content and distribution operation.
type Manager struct {
	store    keystore.KeyStore
	provider provider.Provider
	log      logger.Logger
	rsaBits  int
	hash     provider.Hash

	// stateMu guards deviceID, the active device.
	stateMu  sync.RWMutex
	deviceID string

	// txMu serialises generate and store transactions; flight collapses
	// concurrent GenerateKeyPair callers onto one transaction.
	txMu   sync.Mutex
	flight singleflight.Group

	envelope    *Envelope
	cipher      *Cipher
	distributor *Distributor
}

type Option func(*Manager)

func WithLogger(log logger.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithRSABits sets the modulus for generated device keys.
func WithRSABits(bits int) Option {
	return func(m *Manager) { m.rsaBits = bits }
}

// WithOAEPHash sets the digest used to wrap channel secrets. Other clients
// expect HashSHA1.
func WithOAEPHash(h provider.Hash) Option {
	return func(m *Manager) { m.hash = h }
}

func NewManager(store keystore.KeyStore, p provider.Provider, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		provider: p,
		rsaBits:  provider.DefaultRSABits,
		hash:     provider.HashSHA1,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.envelope = NewEnvelope(p, m, m.hash)
	m.cipher = NewCipher(p, m.envelope)
	m.distributor = NewDistributor(m, m.envelope)
	return m
}

func (m *Manager) Envelope() *Envelope       { return m.envelope }
func (m *Manager) Cipher() *Cipher           { return m.cipher }
func (m *Manager) Distributor() *Distributor { return m.distributor }

// DeviceID returns the active device id without touching the store.
func (m *Manager) DeviceID() (string, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.deviceID, m.deviceID != ""
}

func (m *Manager) setDeviceID(id string) {
	m.stateMu.Lock()
	m.deviceID = id
	m.stateMu.Unlock()
}

// Init loads the persisted active device id. A missing or unreadable pointer
// leaves the manager without an active device.
func (m *Manager) Init(ctx context.Context) {
	id, err := m.store.GetDeviceID(ctx, keystore.ActiveDeviceKey)
	if err != nil {
		m.log.Warnf("Could not read active device id: %v", err)
		return
	}
	if id == "" {
		m.log.Debugf("No active device id stored")
	} else {
		m.log.Debugf("Loaded active device id %s", id)
	}
	m.setDeviceID(id)
}

// GenerateKeyPair returns the active device's key pair, generating and
// storing one under PendingDeviceID if there is none. Concurrent callers
// share a single generation. Once started, a generation runs to completion
// even if every caller's ctx is cancelled.
func (m *Manager) GenerateKeyPair(ctx context.Context) (DeviceKeyPair, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan("generate", func() (interface{}, error) {
		return m.generate(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return DeviceKeyPair{}, res.Err
		}
		return res.Val.(DeviceKeyPair), nil
	case <-ctx.Done():
		return DeviceKeyPair{}, kerrors.Wrap(kerrors.ErrGenerateKeyPairFailure, ctx.Err())
	}
}

func (m *Manager) generate(ctx context.Context) (DeviceKeyPair, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if id, ok := m.DeviceID(); ok {
		record, err := m.store.GetDeviceKey(ctx, id)
		if err != nil {
			return DeviceKeyPair{}, kerrors.Wrap(kerrors.ErrGenerateKeyPairFailure, err)
		}
		if record != nil && !record.PrivateKey.IsZero() {
			m.log.Debugf("Reusing key pair of device %s", id)
			return DeviceKeyPair{PrivateKey: record.PrivateKey, PublicKey: record.PublicKey}, nil
		}
		m.log.Warnf("Active device %s has no stored key, generating a new one", id)
	}

	m.log.Infof("Generating %d-bit RSA device key", m.rsaBits)
	handle, publicKey, err := m.provider.GenerateRSAKeyPair(ctx, m.rsaBits)
	if err != nil {
		return DeviceKeyPair{}, kerrors.Wrap(kerrors.ErrGenerateKeyPairFailure, err)
	}

	if err := m.storeKey(ctx, PendingDeviceID, handle, publicKey); err != nil {
		if derr := m.provider.DestroyKey(ctx, handle); derr != nil {
			m.log.Warnf("Failed to destroy key of failed generation: %v", derr)
		}
		return DeviceKeyPair{}, kerrors.Wrap(kerrors.ErrGenerateKeyPairFailure, err)
	}

	return DeviceKeyPair{PrivateKey: handle, PublicKey: publicKey}, nil
}

// StoreKey records handle as deviceID's key with encryption disabled and
// makes deviceID the active device. Storing over the pending record
// removes it. Storing the same key again for an enabled device keeps it
// enabled; storing a different one is refused until the device is flushed.
func (m *Manager) StoreKey(ctx context.Context, deviceID string, handle provider.KeyHandle, publicKey string) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.storeKey(ctx, deviceID, handle, publicKey)
}

func (m *Manager) storeKey(ctx context.Context, deviceID string, handle provider.KeyHandle, publicKey string) error {
	previous, _ := m.DeviceID()

	fail := func(err error) error {
		m.setDeviceID("")
		return kerrors.Wrap(kerrors.ErrStoreDevicePrivateKeyFailure, err)
	}

	if !validDeviceID(deviceID) {
		return fail(fmt.Errorf("invalid device id %q", deviceID))
	}
	if handle.IsZero() {
		return fail(errors.New("no private key handle"))
	}

	existing, err := m.store.GetDeviceKey(ctx, deviceID)
	if err != nil {
		return fail(err)
	}

	record := keystore.DeviceRecord{
		DeviceID:         deviceID,
		PrivateKey:       handle,
		PublicKey:        publicKey,
		EncryptionStatus: keystore.StatusDisabled,
	}
	if existing != nil && existing.EncryptionStatus == keystore.StatusEnabled {
		// Enabled never goes back to disabled; only Flush starts over.
		if existing.PrivateKey != handle {
			return fail(fmt.Errorf("device %s is enabled with another key, flush it first", deviceID))
		}
		record.EncryptionStatus = keystore.StatusEnabled
	}

	if err := m.store.SetDeviceKey(ctx, deviceID, record); err != nil {
		return fail(err)
	}
	if err := m.store.SetDeviceID(ctx, keystore.ActiveDeviceKey, deviceID); err != nil {
		m.restoreRecord(ctx, deviceID, existing)
		return fail(err)
	}
	m.setDeviceID(deviceID)
	m.log.Debugf("Stored key for device %s", deviceID)

	if previous == PendingDeviceID && deviceID != PendingDeviceID {
		m.discardPending(ctx, handle)
	}
	return nil
}

// restoreRecord puts back what deviceID held before a store whose pointer
// write failed, so no record is left pointing at an unused key.
func (m *Manager) restoreRecord(ctx context.Context, deviceID string, previous *keystore.DeviceRecord) {
	var err error
	if previous == nil {
		err = m.store.DeleteDeviceKey(ctx, deviceID)
	} else {
		err = m.store.SetDeviceKey(ctx, deviceID, *previous)
	}
	if err != nil {
		m.log.Warnf("Failed to roll back record of device %s: %v", deviceID, err)
	}
}

// discardPending removes the pending record after promotion, destroying its
// key unless it is the one just promoted.
func (m *Manager) discardPending(ctx context.Context, promoted provider.KeyHandle) {
	pending, err := m.store.GetDeviceKey(ctx, PendingDeviceID)
	if err != nil || pending == nil {
		return
	}
	if err := m.store.DeleteDeviceKey(ctx, PendingDeviceID); err != nil {
		m.log.Warnf("Failed to remove pending device record: %v", err)
		return
	}
	if pending.PrivateKey != promoted && !pending.PrivateKey.IsZero() {
		if err := m.provider.DestroyKey(ctx, pending.PrivateKey); err != nil {
			m.log.Warnf("Failed to destroy pending device key: %v", err)
		}
	}
}

// EnableEncryption marks the active device as enabled.
func (m *Manager) EnableEncryption(ctx context.Context) error {
	id, ok := m.DeviceID()
	if !ok {
		return kerrors.ErrDeviceNotE2EEnabled
	}

	if err := m.store.EnableEncryptionDBData(ctx, id); err != nil {
		return kerrors.Wrap(kerrors.ErrDevicePrivateKeyNotFound, err)
	}
	m.log.Debugf("Enabled encryption for device %s", id)
	return nil
}

// IsEncryptionEnabled reports whether the active device is enabled locally
// and still listed in myDevices. A device missing from myDevices has been
// revoked elsewhere.
func (m *Manager) IsEncryptionEnabled(ctx context.Context, myDevices []DeviceInfo) (bool, error) {
	record, err := m.activeRecord(ctx)
	if err != nil {
		return false, err
	}
	if record.EncryptionStatus != keystore.StatusEnabled {
		return false, nil
	}

	for _, device := range myDevices {
		if device.DeviceID == record.DeviceID {
			return true, nil
		}
	}
	m.log.Debugf("Device %s is not in the account's device list", record.DeviceID)
	return false, nil
}

// Flush deletes every device record and the active pointer, then destroys
// the keys those records referenced. Failures are logged, never returned.
func (m *Manager) Flush(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	m.txMu.Lock()
	defer m.txMu.Unlock()

	records, err := m.store.ListDeviceKeys(ctx)
	if err != nil {
		m.log.Warnf("Failed to list device records before flush: %v", err)
	}

	if err := m.store.ClearDeviceKey(ctx); err != nil {
		m.log.Warnf("Failed to clear device records: %v", err)
	}
	if err := m.store.ClearDeviceID(ctx); err != nil {
		m.log.Warnf("Failed to clear active device id: %v", err)
	}
	m.setDeviceID("")

	for _, record := range records {
		if record.PrivateKey.IsZero() {
			continue
		}
		if err := m.provider.DestroyKey(ctx, record.PrivateKey); err != nil {
			m.log.Warnf("Failed to destroy key of device %s: %v", record.DeviceID, err)
		}
	}
	m.log.Debugf("Flushed %d device record(s)", len(records))
}

func (m *Manager) activeRecord(ctx context.Context) (*keystore.DeviceRecord, error) {
	id, ok := m.DeviceID()
	if !ok {
		return nil, kerrors.ErrDeviceNotE2EEnabled
	}

	record, err := m.store.GetDeviceKey(ctx, id)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrDevicePrivateKeyNotFound, err)
	}
	if record == nil || record.PrivateKey.IsZero() {
		return nil, kerrors.Wrap(kerrors.ErrDevicePrivateKeyNotFound, fmt.Errorf("no key stored for device %s", id))
	}
	return record, nil
}

// DevicePrivateKey returns the handle of the active device's private key.
func (m *Manager) DevicePrivateKey(ctx context.Context) (provider.KeyHandle, error) {
	record, err := m.activeRecord(ctx)
	if err != nil {
		return provider.KeyHandle{}, err
	}
	return record.PrivateKey, nil
}

// DevicePublicKey returns the PEM public key of the active device.
func (m *Manager) DevicePublicKey(ctx context.Context) (string, error) {
	record, err := m.activeRecord(ctx)
	if err != nil {
		return "", err
	}
	return record.PublicKey, nil
}

// DeviceRecord returns the active device's stored record.
func (m *Manager) DeviceRecord(ctx context.Context) (keystore.DeviceRecord, error) {
	record, err := m.activeRecord(ctx)
	if err != nil {
		return keystore.DeviceRecord{}, err
	}
	return *record, nil
}

// GenerateRandomSecret returns a new channel secret: 32 random bytes as 64
// lowercase hex characters.
func (m *Manager) GenerateRandomSecret() (string, error) {
	raw, err := m.provider.RandomBytes(SecretSize)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrChannelSecretEncryptFailure, err)
	}
	defer wipe(raw)
	return hex.EncodeToString(raw), nil
}

func (m *Manager) EncryptChannelSecret(ctx context.Context, secret, keyID, recipientPEM string) (ChannelSecretEnvelope, error) {
	return m.envelope.EncryptChannelSecret(ctx, secret, keyID, recipientPEM)
}

func (m *Manager) DecryptChannelSecret(ctx context.Context, encryptedSecret string) (string, error) {
	return m.envelope.DecryptChannelSecret(ctx, encryptedSecret)
}

func (m *Manager) Encrypt(ctx context.Context, envelope ChannelSecretEnvelope, plaintext string) (EncryptedContent, error) {
	return m.cipher.Encrypt(ctx, envelope, plaintext)
}

func (m *Manager) Decrypt(ctx context.Context, envelope ChannelSecretEnvelope, content EncryptedContent) (string, error) {
	return m.cipher.Decrypt(ctx, envelope, content)
}

func (m *Manager) PrepareSecrets(ctx context.Context, devices []DeviceInfo) ([]ParticipantChannelDeviceSecret, error) {
	return m.distributor.PrepareSecrets(ctx, devices)
}
