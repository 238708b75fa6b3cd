package e2e

import "github.com/PolarWolf314/tiaki/internal/provider"

const (
	// AlgRSAOAEP is the only envelope algorithm written or accepted.
	AlgRSAOAEP = "RSA-OAEP"

	// EncAES256CBC is the only content encryption written or accepted.
	EncAES256CBC = "AES-256-CBC"

	// AlgorithmRSA is the directory's algorithm_type for devices that can
	// receive envelopes.
	AlgorithmRSA = "rsa"

	// PendingDeviceID holds a freshly generated key until the directory
	// issues the device its real id.
	PendingDeviceID = "pending"

	// SecretSize is the channel secret length in bytes, before hex encoding.
	SecretSize = 32
)

// DeviceKeyPair is the result of key generation. PrivateKey is a handle
// to key material held by the provider and is left out of JSON.
type DeviceKeyPair struct {
	PrivateKey provider.KeyHandle `json:"-"`
	PublicKey  string             `json:"public_key"`
}

type EnvelopeHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// ChannelSecretEnvelope is a channel secret wrapped for one recipient device.
type ChannelSecretEnvelope struct {
	EncryptedSecret string         `json:"encrypted_secret"`
	Header          EnvelopeHeader `json:"header"`
}

// ParticipantChannelDeviceSecret pairs an envelope with the device it was
// wrapped for.
type ParticipantChannelDeviceSecret struct {
	GidUUID  string                `json:"gid_uuid"`
	DeviceID string                `json:"device_id"`
	Secret   ChannelSecretEnvelope `json:"secret"`
}

type EncryptionHeader struct {
	Enc string `json:"enc"`
	IV  string `json:"iv"`
}

// EncryptedContent is message content encrypted under a channel secret.
type EncryptedContent struct {
	Ciphertext       string           `json:"ciphertext"`
	EncryptionHeader EncryptionHeader `json:"encryption_header"`
}

type MessagingKeys struct {
	AlgorithmType string `json:"algorithm_type"`
	KeyID         string `json:"key_id"`
	PublicKey     string `json:"public_key"`
}

// DeviceInfo is a directory entry for one participant device. MessagingKeys
// is nil for devices that never registered for end-to-end encryption.
type DeviceInfo struct {
	GidUUID       string         `json:"gid_uuid"`
	DeviceID      string         `json:"device_id"`
	MessagingKeys *MessagingKeys `json:"messaging_keys"`
}

// canReceiveEnvelope reports whether d has an RSA key to wrap for.
func (d DeviceInfo) canReceiveEnvelope() bool {
	return d.MessagingKeys != nil &&
		d.MessagingKeys.AlgorithmType == AlgorithmRSA &&
		d.MessagingKeys.PublicKey != ""
}
