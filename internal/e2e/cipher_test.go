package e2e

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/PolarWolf314/tiaki/internal/errors"
	"github.com/PolarWolf314/tiaki/internal/keystore"
	"github.com/PolarWolf314/tiaki/internal/provider"
)

func selfEnvelope(t *testing.T, device testDevice) ChannelSecretEnvelope {
	t.Helper()
	secret, err := device.manager.GenerateRandomSecret()
	require.NoError(t, err)
	envelope, err := device.manager.EncryptChannelSecret(context.Background(), secret, device.keyID, device.pair.PublicKey)
	require.NoError(t, err)
	return envelope
}

func TestContentRoundTrip(t *testing.T) {
	ctx := context.Background()
	device := newEnabledDevice(t, provider.NewSoftware(nil), "d1")
	envelope := selfEnvelope(t, device)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"Empty", ""},
		{"ASCII", "hello"},
		{"ExactBlock", "0123456789abcdef"},
		{"MultiByte", "kia ora, tēnā koe 👋 日本語"},
		{"Long", strings.Repeat("the quick brown fox ", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := device.manager.Encrypt(ctx, envelope, tt.plaintext)
			require.NoError(t, err)
			assert.Equal(t, EncAES256CBC, content.EncryptionHeader.Enc)
			assert.Len(t, content.EncryptionHeader.IV, 32)

			raw, err := base64.StdEncoding.DecodeString(content.Ciphertext)
			require.NoError(t, err)
			assert.Zero(t, len(raw)%16)
			assert.Greater(t, len(raw), len(tt.plaintext))

			plaintext, err := device.manager.Decrypt(ctx, envelope, content)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	ctx := context.Background()
	device := newEnabledDevice(t, provider.NewSoftware(nil), "d1")
	envelope := selfEnvelope(t, device)

	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		content, err := device.manager.Encrypt(ctx, envelope, "same message")
		require.NoError(t, err)
		assert.False(t, seen[content.EncryptionHeader.IV], "IV reused")
		seen[content.EncryptionHeader.IV] = true
	}
}

func TestEncryptFailures(t *testing.T) {
	ctx := context.Background()
	p := provider.NewSoftware(nil)
	device := newEnabledDevice(t, p, "d1")

	t.Run("NoActiveDevice", func(t *testing.T) {
		m := newTestManager(keystore.NewMemoryStore(), p)
		_, err := m.Encrypt(ctx, selfEnvelope(t, device), "hello")
		assert.Equal(t, kerrors.CodeEncryptFailure, kerrors.CodeOf(err))
		assert.ErrorIs(t, err, kerrors.ErrDeviceNotE2EEnabled)
	})

	t.Run("SecretNotHex", func(t *testing.T) {
		envelope, err := device.manager.EncryptChannelSecret(ctx, "not-a-hex-secret", "k1", device.pair.PublicKey)
		require.NoError(t, err)
		_, err = device.manager.Encrypt(ctx, envelope, "hello")
		assert.ErrorIs(t, err, kerrors.ErrEncryptFailure)
	})

	t.Run("SecretWrongLength", func(t *testing.T) {
		envelope, err := device.manager.EncryptChannelSecret(ctx, strings.Repeat("ab", 16), "k1", device.pair.PublicKey)
		require.NoError(t, err)
		_, err = device.manager.Encrypt(ctx, envelope, "hello")
		assert.ErrorIs(t, err, kerrors.ErrEncryptFailure)
	})
}

func TestDecryptFailures(t *testing.T) {
	ctx := context.Background()
	device := newEnabledDevice(t, provider.NewSoftware(nil), "d1")
	envelope := selfEnvelope(t, device)

	valid, err := device.manager.Encrypt(ctx, envelope, "hello world")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *EncryptedContent)
	}{
		{"WrongEnc", func(c *EncryptedContent) { c.EncryptionHeader.Enc = "AES-128-GCM" }},
		{"MissingEnc", func(c *EncryptedContent) { c.EncryptionHeader.Enc = "" }},
		{"IVNotHex", func(c *EncryptedContent) { c.EncryptionHeader.IV = strings.Repeat("zz", 16) }},
		{"IVTooShort", func(c *EncryptedContent) { c.EncryptionHeader.IV = c.EncryptionHeader.IV[:30] }},
		{"CiphertextNotBase64", func(c *EncryptedContent) { c.Ciphertext = "!!!" }},
		{"CiphertextEmpty", func(c *EncryptedContent) { c.Ciphertext = "" }},
		{"CiphertextTruncated", func(c *EncryptedContent) {
			raw, _ := base64.StdEncoding.DecodeString(c.Ciphertext)
			c.Ciphertext = base64.StdEncoding.EncodeToString(raw[:len(raw)-1])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := valid
			tt.mutate(&content)
			_, err := device.manager.Decrypt(ctx, envelope, content)
			assert.ErrorIs(t, err, kerrors.ErrDecryptFailure)
			assert.Equal(t, kerrors.CodeDecryptFailure, kerrors.CodeOf(err))
		})
	}

	t.Run("WrongChannel", func(t *testing.T) {
		other := selfEnvelope(t, device)
		plaintext, err := device.manager.Decrypt(ctx, other, valid)
		// A different key almost always breaks the padding; when it does
		// not, the result still must not be the original message.
		if err == nil {
			assert.NotEqual(t, "hello world", plaintext)
			return
		}
		assert.ErrorIs(t, err, kerrors.ErrDecryptFailure)
	})
}

func TestContentWireFormat(t *testing.T) {
	content := EncryptedContent{
		Ciphertext:       "Y2lwaGVy",
		EncryptionHeader: EncryptionHeader{Enc: EncAES256CBC, IV: "000102030405060708090a0b0c0d0e0f"},
	}
	data, err := json.Marshal(content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ciphertext":"Y2lwaGVy","encryption_header":{"enc":"AES-256-CBC","iv":"000102030405060708090a0b0c0d0e0f"}}`, string(data))
}
