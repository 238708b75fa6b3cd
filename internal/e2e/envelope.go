package e2e

import (
	"context"
	"errors"
	"fmt"

	kerrors "github.com/PolarWolf314/tiaki/internal/errors"
	"github.com/PolarWolf314/tiaki/internal/provider"
)

// KeySource yields the handle of the local device's private key.
type KeySource interface {
	DevicePrivateKey(ctx context.Context) (provider.KeyHandle, error)
}

// Envelope wraps channel secrets for recipients and unwraps them with the
// local device key.
type Envelope struct {
	provider provider.Provider
	keys     KeySource
	hash     provider.Hash
}

func NewEnvelope(p provider.Provider, keys KeySource, h provider.Hash) *Envelope {
	return &Envelope{provider: p, keys: keys, hash: h}
}

// EncryptChannelSecret wraps secret under recipientPEM. A key that does not
// parse fails with ErrInvalidKey inside ErrChannelSecretEncryptFailure.
func (e *Envelope) EncryptChannelSecret(ctx context.Context, secret, keyID, recipientPEM string) (ChannelSecretEnvelope, error) {
	if _, err := provider.ParsePublicKeyPEM(recipientPEM); err != nil {
		return ChannelSecretEnvelope{}, kerrors.Wrap(kerrors.ErrChannelSecretEncryptFailure, kerrors.Wrap(kerrors.ErrInvalidKey, err))
	}

	ciphertext, err := e.provider.EncryptOAEP(ctx, e.hash, recipientPEM, []byte(secret))
	if err != nil {
		if errors.Is(err, provider.ErrInvalidKey) {
			err = kerrors.Wrap(kerrors.ErrInvalidKey, err)
		}
		return ChannelSecretEnvelope{}, kerrors.Wrap(kerrors.ErrChannelSecretEncryptFailure, err)
	}

	return ChannelSecretEnvelope{
		EncryptedSecret: encodeBase64(ciphertext),
		Header: EnvelopeHeader{
			Alg: AlgRSAOAEP,
			Kid: keyID,
		},
	}, nil
}

// DecryptChannelSecret unwraps an encrypted_secret value with the local
// device's private key.
func (e *Envelope) DecryptChannelSecret(ctx context.Context, encryptedSecret string) (string, error) {
	handle, err := e.keys.DevicePrivateKey(ctx)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrChannelSecretDecryptFailure, err)
	}

	ciphertext, err := decodeBase64("encrypted_secret", encryptedSecret)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrChannelSecretDecryptFailure, err)
	}

	plaintext, err := e.provider.DecryptOAEP(ctx, e.hash, handle, ciphertext)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrChannelSecretDecryptFailure, err)
	}

	secret, err := decodeUTF8(plaintext)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrChannelSecretDecryptFailure, err)
	}
	return secret, nil
}

// Open unwraps a whole envelope, rejecting algorithms other than RSA-OAEP.
func (e *Envelope) Open(ctx context.Context, envelope ChannelSecretEnvelope) (string, error) {
	if envelope.Header.Alg != "" && envelope.Header.Alg != AlgRSAOAEP {
		return "", kerrors.Wrap(kerrors.ErrChannelSecretDecryptFailure,
			fmt.Errorf("unsupported envelope algorithm %q", envelope.Header.Alg))
	}
	return e.DecryptChannelSecret(ctx, envelope.EncryptedSecret)
}
