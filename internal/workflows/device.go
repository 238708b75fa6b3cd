package workflows

import (
	"context"
	"time"

	"github.com/PolarWolf314/tiaki/internal/audit"
	"github.com/PolarWolf314/tiaki/internal/e2e"
	kerrors "github.com/PolarWolf314/tiaki/internal/errors"
	"github.com/PolarWolf314/tiaki/internal/keystore"
	"github.com/PolarWolf314/tiaki/internal/provider"
)

// GenerateResult contains the outcome of a generate operation.
type GenerateResult struct {
	// DeviceID is the id the key is stored under, PendingDeviceID for a new key.
	DeviceID string

	PublicKey   string
	Fingerprint string

	// Reused is true when the active device already had a key.
	Reused bool
}

// Generate creates this installation's device key pair, or returns the
// existing one.
func Generate(ctx context.Context, opts SessionOptions) (*GenerateResult, error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	_, hadDevice := s.manager.DeviceID()

	pair, err := s.manager.GenerateKeyPair(ctx)
	entry := audit.LogWithUser(audit.OpGenerate)
	if err != nil {
		logFailure(entry, err)
		return nil, err
	}

	deviceID, _ := s.manager.DeviceID()
	fingerprint, _ := provider.Fingerprint(pair.PublicKey)

	entry.DeviceID = deviceID
	entry.PublicKeyHash = fingerprint
	audit.Log(entry)

	return &GenerateResult{
		DeviceID:    deviceID,
		PublicKey:   pair.PublicKey,
		Fingerprint: fingerprint,
		Reused:      hadDevice,
	}, nil
}

// RegisterOptions configures the register workflow.
type RegisterOptions struct {
	SessionOptions

	// DeviceID is the id the directory service issued for this device.
	DeviceID string
}

// RegisterResult contains the outcome of a register operation.
type RegisterResult struct {
	DeviceID string

	// PreviousDeviceID is the id the key was stored under before, usually
	// PendingDeviceID.
	PreviousDeviceID string

	PublicKey   string
	Fingerprint string
}

// Register stores the current device key under the id issued by the
// directory service, generating a key first if there is none. The device
// starts with encryption disabled.
func Register(ctx context.Context, opts RegisterOptions) (*RegisterResult, error) {
	s, err := openSession(ctx, opts.SessionOptions)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	previous, _ := s.manager.DeviceID()
	entry := audit.LogWithUser(audit.OpStore)
	entry.DeviceID = opts.DeviceID

	pair, err := s.manager.GenerateKeyPair(ctx)
	if err != nil {
		logFailure(entry, err)
		return nil, err
	}

	if err := s.manager.StoreKey(ctx, opts.DeviceID, pair.PrivateKey, pair.PublicKey); err != nil {
		logFailure(entry, err)
		return nil, err
	}

	fingerprint, _ := provider.Fingerprint(pair.PublicKey)
	entry.PublicKeyHash = fingerprint
	audit.Log(entry)

	return &RegisterResult{
		DeviceID:         opts.DeviceID,
		PreviousDeviceID: previous,
		PublicKey:        pair.PublicKey,
		Fingerprint:      fingerprint,
	}, nil
}

// EnableResult contains the outcome of an enable operation.
type EnableResult struct {
	DeviceID string
}

// Enable confirms the active device for end-to-end encryption.
func Enable(ctx context.Context, opts SessionOptions) (*EnableResult, error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	deviceID, _ := s.manager.DeviceID()
	entry := audit.LogWithUser(audit.OpEnable)
	entry.DeviceID = deviceID

	if err := s.manager.EnableEncryption(ctx); err != nil {
		logFailure(entry, err)
		return nil, err
	}
	audit.Log(entry)

	return &EnableResult{DeviceID: deviceID}, nil
}

// StatusOptions configures the status workflow.
type StatusOptions struct {
	SessionOptions

	// Devices is the account's device list from the directory service. When
	// nil only the local status is reported.
	Devices []e2e.DeviceInfo

	// FlushIfRevoked flushes the local device when it is enabled locally but
	// missing from Devices.
	FlushIfRevoked bool
}

// StatusResult contains the outcome of a status operation.
type StatusResult struct {
	// DeviceID is empty when this installation has no device.
	DeviceID string

	LocalStatus keystore.EncryptionStatus

	// Checked is true when a device list was supplied.
	Checked bool

	// Enabled is the result of the check against Devices.
	Enabled bool

	// Revoked is true when the device is enabled locally but the account no
	// longer lists it.
	Revoked bool

	// Flushed is true when a revoked device was flushed.
	Flushed bool
}

// Status reports whether this device can take part in encrypted channels.
func Status(ctx context.Context, opts StatusOptions) (*StatusResult, error) {
	s, err := openSession(ctx, opts.SessionOptions)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	deviceID, ok := s.manager.DeviceID()
	if !ok {
		return &StatusResult{}, nil
	}

	record, err := s.manager.DeviceRecord(ctx)
	if err != nil {
		return nil, err
	}
	result := &StatusResult{DeviceID: deviceID, LocalStatus: record.EncryptionStatus}

	if opts.Devices == nil {
		return result, nil
	}

	entry := audit.LogWithUser(audit.OpStatus)
	entry.DeviceID = deviceID
	entry.DevicesCount = len(opts.Devices)

	enabled, err := s.manager.IsEncryptionEnabled(ctx, opts.Devices)
	if err != nil {
		logFailure(entry, err)
		return nil, err
	}
	result.Checked = true
	result.Enabled = enabled
	result.Revoked = !enabled && record.EncryptionStatus == keystore.StatusEnabled
	entry.Enabled = &enabled
	audit.Log(entry)

	if result.Revoked && opts.FlushIfRevoked {
		count := flush(ctx, s)
		result.Flushed = true
		logFlush(deviceID, count)
	}

	return result, nil
}

// ShowResult describes the active device.
type ShowResult struct {
	DeviceID    string
	PublicKey   string
	Fingerprint string
	Status      keystore.EncryptionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Backend     string
}

// Show returns the active device's public details. It fails with
// ErrDeviceNotE2EEnabled when there is no device.
func Show(ctx context.Context, opts SessionOptions) (*ShowResult, error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	record, err := s.manager.DeviceRecord(ctx)
	if err != nil {
		return nil, err
	}

	fingerprint, err := provider.Fingerprint(record.PublicKey)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrInvalidKey, err)
	}

	return &ShowResult{
		DeviceID:    record.DeviceID,
		PublicKey:   record.PublicKey,
		Fingerprint: fingerprint,
		Status:      record.EncryptionStatus,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
		Backend:     s.config.Store.Backend,
	}, nil
}

// FlushResult contains the outcome of a flush operation.
type FlushResult struct {
	// DeviceID is the device that was active before the flush, if any.
	DeviceID string

	// Records is the number of device records removed.
	Records int
}

// Flush removes this installation's device records and keys. It does not
// need the vault passphrase and never fails once the store is open.
func Flush(ctx context.Context, opts SessionOptions) (*FlushResult, error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	deviceID, _ := s.manager.DeviceID()
	count := flush(ctx, s)
	logFlush(deviceID, count)

	return &FlushResult{DeviceID: deviceID, Records: count}, nil
}

func flush(ctx context.Context, s *session) int {
	records, err := s.store.ListDeviceKeys(ctx)
	if err != nil {
		records = nil
	}
	s.manager.Flush(ctx)
	return len(records)
}

func logFlush(deviceID string, count int) {
	entry := audit.LogWithUser(audit.OpFlush)
	entry.DeviceID = deviceID
	entry.RecordsCount = count
	audit.Log(entry)
}

func logFailure(entry audit.Entry, err error) {
	entry.ErrorCode = string(kerrors.CodeOf(err))
	audit.Log(entry)
}
