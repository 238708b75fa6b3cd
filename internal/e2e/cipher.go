package e2e

import (
	"context"
	"encoding/hex"
	"fmt"

	kerrors "github.com/PolarWolf314/tiaki/internal/errors"
	"github.com/PolarWolf314/tiaki/internal/provider"
)

// Cipher encrypts message content under the channel secret carried by an
// envelope addressed to this device.
type Cipher struct {
	provider provider.Provider
	envelope *Envelope
}

func NewCipher(p provider.Provider, envelope *Envelope) *Cipher {
	return &Cipher{provider: p, envelope: envelope}
}

// key recovers the channel secret from envelope and imports it.
func (c *Cipher) key(ctx context.Context, envelope ChannelSecretEnvelope) (provider.SymmetricKey, error) {
	secret, err := c.envelope.Open(ctx, envelope)
	if err != nil {
		return provider.SymmetricKey{}, err
	}

	raw, err := decodeSecret(secret)
	if err != nil {
		return provider.SymmetricKey{}, err
	}
	defer wipe(raw)

	return c.provider.ImportAESKey(raw)
}

// Encrypt encrypts plaintext with a fresh random IV.
func (c *Cipher) Encrypt(ctx context.Context, envelope ChannelSecretEnvelope, plaintext string) (EncryptedContent, error) {
	key, err := c.key(ctx, envelope)
	if err != nil {
		return EncryptedContent{}, kerrors.Wrap(kerrors.ErrEncryptFailure, err)
	}

	iv, err := c.provider.RandomBytes(provider.IVSize)
	if err != nil {
		return EncryptedContent{}, kerrors.Wrap(kerrors.ErrEncryptFailure, err)
	}

	ciphertext, err := c.provider.EncryptAESCBC(key, iv, []byte(plaintext))
	if err != nil {
		return EncryptedContent{}, kerrors.Wrap(kerrors.ErrEncryptFailure, err)
	}

	return EncryptedContent{
		Ciphertext: encodeBase64(ciphertext),
		EncryptionHeader: EncryptionHeader{
			Enc: EncAES256CBC,
			IV:  hex.EncodeToString(iv),
		},
	}, nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(ctx context.Context, envelope ChannelSecretEnvelope, content EncryptedContent) (string, error) {
	if content.EncryptionHeader.Enc != EncAES256CBC {
		return "", kerrors.Wrap(kerrors.ErrDecryptFailure,
			fmt.Errorf("unsupported content encryption %q", content.EncryptionHeader.Enc))
	}

	iv, err := decodeIV(content.EncryptionHeader.IV)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrDecryptFailure, err)
	}

	ciphertext, err := decodeBase64("ciphertext", content.Ciphertext)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrDecryptFailure, err)
	}

	key, err := c.key(ctx, envelope)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrDecryptFailure, err)
	}

	plaintext, err := c.provider.DecryptAESCBC(key, iv, ciphertext)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrDecryptFailure, err)
	}

	message, err := decodeUTF8(plaintext)
	if err != nil {
		return "", kerrors.Wrap(kerrors.ErrDecryptFailure, err)
	}
	return message, nil
}
