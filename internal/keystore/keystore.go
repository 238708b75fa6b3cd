package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PolarWolf314/tiaki/internal/provider"
)

// ActiveDeviceKey is the pointer key under which the active device id is kept.
const ActiveDeviceKey = "device_id"

var (
	// ErrRecordNotFound is returned when an operation needs a device record that does not exist.
	ErrRecordNotFound = errors.New("device record not found")

	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("key store is closed")
)

// EncryptionStatus records whether a device has been confirmed for
// end-to-end encryption.
type EncryptionStatus int

const (
	StatusDisabled EncryptionStatus = iota
	StatusEnabled
)

func (s EncryptionStatus) String() string {
	if s == StatusEnabled {
		return "enabled"
	}
	return "disabled"
}

func (s EncryptionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *EncryptionStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "enabled":
		*s = StatusEnabled
	case "disabled", "":
		*s = StatusDisabled
	default:
		return fmt.Errorf("unknown encryption status %q", text)
	}
	return nil
}

// DeviceRecord is what a KeyStore persists per device. PrivateKey is a
// provider reference; key material never passes through the store.
type DeviceRecord struct {
	DeviceID         string             `json:"device_id" toml:"device_id"`
	PrivateKey       provider.KeyHandle `json:"private_key" toml:"private_key"`
	PublicKey        string             `json:"public_key" toml:"public_key"`
	EncryptionStatus EncryptionStatus   `json:"encryption_status" toml:"encryption_status"`
	CreatedAt        time.Time          `json:"created_at" toml:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" toml:"updated_at"`
}

// KeyStore persists device records and the active device pointer.
type KeyStore interface {
	// GetDeviceKey returns (nil, nil) when no record exists for id.
	GetDeviceKey(ctx context.Context, id string) (*DeviceRecord, error)
	SetDeviceKey(ctx context.Context, id string, record DeviceRecord) error
	DeleteDeviceKey(ctx context.Context, id string) error

	// ListDeviceKeys returns every record, ordered by device id.
	ListDeviceKeys(ctx context.Context) ([]DeviceRecord, error)

	// ClearDeviceKey removes every device record.
	ClearDeviceKey(ctx context.Context) error

	// GetDeviceID returns "" when the pointer is unset.
	GetDeviceID(ctx context.Context, key string) (string, error)
	SetDeviceID(ctx context.Context, key, id string) error
	ClearDeviceID(ctx context.Context) error

	// EnableEncryptionDBData sets the record's status to enabled, or returns
	// ErrRecordNotFound.
	EnableEncryptionDBData(ctx context.Context, id string) error

	Close() error
}

// enable is the read-modify-write shared by the adapters.
func enable(record *DeviceRecord, now time.Time) {
	record.EncryptionStatus = StatusEnabled
	record.UpdatedAt = now
}

// stamp fills in timestamps for a record about to be written, keeping the
// creation time of an existing record.
func stamp(record DeviceRecord, existing *DeviceRecord, id string, now time.Time) DeviceRecord {
	record.DeviceID = id
	if existing != nil && !existing.CreatedAt.IsZero() {
		record.CreatedAt = existing.CreatedAt
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	return record
}
