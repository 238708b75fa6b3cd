package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PolarWolf314/tiaki/internal/audit"
	"github.com/PolarWolf314/tiaki/internal/e2e"
)

// ErrNoEnvelopeForDevice is returned when a participant list has no
// envelope for the device asked for.
var ErrNoEnvelopeForDevice = errors.New("no envelope for this device")

// PrepareOptions configures the prepare workflow.
type PrepareOptions struct {
	SessionOptions

	// Devices are the channel's participant devices from the directory.
	Devices []e2e.DeviceInfo
}

// PrepareResult contains one envelope per device, in input order.
type PrepareResult struct {
	Secrets []e2e.ParticipantChannelDeviceSecret
}

// Prepare wraps a fresh channel secret for every device. It only uses
// public keys, so a locked vault is enough.
func Prepare(ctx context.Context, opts PrepareOptions) (*PrepareResult, error) {
	s, err := openSession(ctx, opts.SessionOptions)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	entry := audit.LogWithUser(audit.OpPrepare)
	entry.DevicesCount = len(opts.Devices)
	for _, device := range opts.Devices {
		entry.Recipients = append(entry.Recipients, device.DeviceID)
	}

	secrets, err := s.manager.PrepareSecrets(ctx, opts.Devices)
	if err != nil {
		logFailure(entry, err)
		return nil, err
	}
	audit.Log(entry)

	return &PrepareResult{Secrets: secrets}, nil
}

// ContentOptions selects the channel secret used by Encrypt and Decrypt.
type ContentOptions struct {
	SessionOptions

	// EnvelopeData is a JSON envelope, a participant secret or a list of
	// participant secrets as returned by Prepare.
	EnvelopeData []byte

	// DeviceID picks the entry from a participant list. Defaults to the
	// active device.
	DeviceID string
}

// EncryptOptions configures the encrypt workflow.
type EncryptOptions struct {
	ContentOptions
	Plaintext string
}

// EncryptResult contains the encrypted content and the envelope key id.
type EncryptResult struct {
	Content e2e.EncryptedContent
	KeyID   string
}

// Encrypt encrypts Plaintext under the channel secret in EnvelopeData.
func Encrypt(ctx context.Context, opts EncryptOptions) (*EncryptResult, error) {
	s, err := openSession(ctx, opts.SessionOptions)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	envelope, err := s.selectEnvelope(opts.ContentOptions)
	if err != nil {
		return nil, err
	}

	entry := audit.LogWithUser(audit.OpEncrypt)
	entry.KeyID = envelope.Header.Kid
	entry.DeviceID, _ = s.manager.DeviceID()

	content, err := s.manager.Encrypt(ctx, envelope, opts.Plaintext)
	if err != nil {
		logFailure(entry, err)
		return nil, err
	}
	audit.Log(entry)

	return &EncryptResult{Content: content, KeyID: envelope.Header.Kid}, nil
}

// DecryptOptions configures the decrypt workflow.
type DecryptOptions struct {
	ContentOptions
	Content e2e.EncryptedContent
}

// DecryptResult contains the recovered plaintext.
type DecryptResult struct {
	Plaintext string
	KeyID     string
}

// Decrypt recovers the plaintext of Content using the channel secret in
// EnvelopeData.
func Decrypt(ctx context.Context, opts DecryptOptions) (*DecryptResult, error) {
	s, err := openSession(ctx, opts.SessionOptions)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	envelope, err := s.selectEnvelope(opts.ContentOptions)
	if err != nil {
		return nil, err
	}

	entry := audit.LogWithUser(audit.OpDecrypt)
	entry.KeyID = envelope.Header.Kid
	entry.DeviceID, _ = s.manager.DeviceID()

	plaintext, err := s.manager.Decrypt(ctx, envelope, opts.Content)
	if err != nil {
		logFailure(entry, err)
		return nil, err
	}
	audit.Log(entry)

	return &DecryptResult{Plaintext: plaintext, KeyID: envelope.Header.Kid}, nil
}

func (s *session) selectEnvelope(opts ContentOptions) (e2e.ChannelSecretEnvelope, error) {
	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID, _ = s.manager.DeviceID()
	}
	return SelectEnvelope(opts.EnvelopeData, deviceID)
}

// SelectEnvelope decodes data as a bare envelope, a single participant
// secret, or a list of participant secrets. From a list it returns the
// entry for deviceID.
func SelectEnvelope(data []byte, deviceID string) (e2e.ChannelSecretEnvelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return e2e.ChannelSecretEnvelope{}, errors.New("envelope is empty")
	}

	if data[0] == '[' {
		var secrets []e2e.ParticipantChannelDeviceSecret
		if err := json.Unmarshal(data, &secrets); err != nil {
			return e2e.ChannelSecretEnvelope{}, fmt.Errorf("failed to parse participant secrets: %w", err)
		}
		for _, secret := range secrets {
			if secret.DeviceID == deviceID {
				return secret.Secret, nil
			}
		}
		return e2e.ChannelSecretEnvelope{}, fmt.Errorf("%w: %q", ErrNoEnvelopeForDevice, deviceID)
	}

	var probe struct {
		Secret          *e2e.ChannelSecretEnvelope `json:"secret"`
		EncryptedSecret string                     `json:"encrypted_secret"`
		Header          e2e.EnvelopeHeader         `json:"header"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return e2e.ChannelSecretEnvelope{}, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if probe.Secret != nil {
		return *probe.Secret, nil
	}
	if probe.EncryptedSecret == "" {
		return e2e.ChannelSecretEnvelope{}, errors.New("envelope has no encrypted_secret")
	}
	return e2e.ChannelSecretEnvelope{EncryptedSecret: probe.EncryptedSecret, Header: probe.Header}, nil
}

// ParseDevices decodes a device list, either a JSON array of devices or an
// object with a "devices" array as the directory service returns it.
func ParseDevices(data []byte) ([]e2e.DeviceInfo, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("device list is empty")
	}

	if data[0] == '[' {
		var devices []e2e.DeviceInfo
		if err := json.Unmarshal(data, &devices); err != nil {
			return nil, fmt.Errorf("failed to parse device list: %w", err)
		}
		return devices, nil
	}

	var doc struct {
		Devices []e2e.DeviceInfo `json:"devices"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse device list: %w", err)
	}
	if doc.Devices == nil {
		return nil, errors.New(`device list has no "devices" array`)
	}
	return doc.Devices, nil
}
