package errors

import (
	"errors"
	"fmt"
)

// Code identifies one failure class of the key-management engine. The string
// values are shared with other protocol clients and must not change.
type Code string

const (
	CodeGenerateKeyPairFailure           Code = "ERR_GENERATE_KEY_PAIR_FAILURE"
	CodeStoreDevicePrivateKeyFailure     Code = "ERR_STORE_DEVICE_PRIVATE_KEY_FAILURE"
	CodeDeviceNotE2EEnabled              Code = "ERR_DEVICE_NOT_E2E_ENABLED"
	CodeDevicePrivateKeyNotFound         Code = "ERR_DEVICE_PRIVATE_KEY_NOT_FOUND"
	CodeInvalidKey                       Code = "INVALID_KEY"
	CodeChannelSecretEncryptFailure      Code = "ERR_CHANNEL_SECRET_ENCRYPT_FAILURE"
	CodeChannelSecretDecryptFailure      Code = "ERR_CHANNEL_SECRET_DECRYPT_FAILURE"
	CodeEncryptFailure                   Code = "ERR_ENCRYPT_FAILURE"
	CodeDecryptFailure                   Code = "ERR_DECRYPT_FAILURE"
	CodeParticipantsMissingE2EEncryption Code = "ERR_PARTICIPANTS_MISSING_E2E_ENCRYPTION"
)

var messages = map[Code]string{
	CodeGenerateKeyPairFailure:           "failed to generate device key pair",
	CodeStoreDevicePrivateKeyFailure:     "failed to store device private key",
	CodeDeviceNotE2EEnabled:              "device is not end-to-end encryption enabled",
	CodeDevicePrivateKeyNotFound:         "device private key not found",
	CodeInvalidKey:                       "invalid or unsupported key",
	CodeChannelSecretEncryptFailure:      "failed to encrypt channel secret",
	CodeChannelSecretDecryptFailure:      "failed to decrypt channel secret",
	CodeEncryptFailure:                   "failed to encrypt content",
	CodeDecryptFailure:                   "failed to decrypt content",
	CodeParticipantsMissingE2EEncryption: "one or more participant devices lack end-to-end encryption keys",
}

// Codes returns every known code in declaration order.
func Codes() []Code {
	return []Code{
		CodeGenerateKeyPairFailure,
		CodeStoreDevicePrivateKeyFailure,
		CodeDeviceNotE2EEnabled,
		CodeDevicePrivateKeyNotFound,
		CodeInvalidKey,
		CodeChannelSecretEncryptFailure,
		CodeChannelSecretDecryptFailure,
		CodeEncryptFailure,
		CodeDecryptFailure,
		CodeParticipantsMissingE2EEncryption,
	}
}

// Message returns the human readable description of c.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "unknown error"
}

// Error is a typed failure surfaced by the key-management engine. Err holds
// the underlying cause, if any, for debug output; callers should branch on
// Code via errors.Is against the sentinels below.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Code.Message())
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Code.Message(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match when target is an *Error carrying the same code, so
// errors.Is(err, ErrEncryptFailure) holds for any wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a new *Error with the code of sentinel and cause attached.
// Wrapping an error that already carries the same code returns it unchanged.
func Wrap(sentinel *Error, cause error) error {
	if cause != nil && CodeOf(cause) == sentinel.Code {
		return cause
	}
	return &Error{Code: sentinel.Code, Err: cause}
}

// CodeOf returns the code of the outermost *Error in err's chain, or "" if
// there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Generation errors.
var (
	// ErrGenerateKeyPairFailure indicates the device key pair could not be generated or registered.
	ErrGenerateKeyPairFailure = &Error{Code: CodeGenerateKeyPairFailure}
)

// Storage and lifecycle errors.
var (
	// ErrStoreDevicePrivateKeyFailure indicates the device record could not be persisted.
	ErrStoreDevicePrivateKeyFailure = &Error{Code: CodeStoreDevicePrivateKeyFailure}

	// ErrDeviceNotE2EEnabled indicates no active device id is set.
	ErrDeviceNotE2EEnabled = &Error{Code: CodeDeviceNotE2EEnabled}

	// ErrDevicePrivateKeyNotFound indicates the active device has no readable record.
	ErrDevicePrivateKeyNotFound = &Error{Code: CodeDevicePrivateKeyNotFound}

	// ErrInvalidKey indicates malformed PEM or an unsupported key type.
	ErrInvalidKey = &Error{Code: CodeInvalidKey}
)

// Envelope errors.
var (
	// ErrChannelSecretEncryptFailure indicates a channel secret could not be wrapped for a recipient.
	ErrChannelSecretEncryptFailure = &Error{Code: CodeChannelSecretEncryptFailure}

	// ErrChannelSecretDecryptFailure indicates a channel secret envelope could not be opened.
	ErrChannelSecretDecryptFailure = &Error{Code: CodeChannelSecretDecryptFailure}
)

// Content errors.
var (
	// ErrEncryptFailure indicates message content could not be encrypted.
	ErrEncryptFailure = &Error{Code: CodeEncryptFailure}

	// ErrDecryptFailure indicates message content could not be decrypted.
	ErrDecryptFailure = &Error{Code: CodeDecryptFailure}
)

// Distribution errors.
var (
	// ErrParticipantsMissingE2EEncryption indicates at least one recipient device cannot receive an envelope.
	ErrParticipantsMissingE2EEncryption = &Error{Code: CodeParticipantsMissingE2EEncryption}
)
