package e2e

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/PolarWolf314/tiaki/internal/provider"
)

var (
	errInvalidSecret = errors.New("channel secret is not 64 hex characters")
	errInvalidUTF8   = errors.New("decrypted data is not valid UTF-8")
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

func validDeviceID(id string) bool {
	return len(id) <= 256 && deviceIDPattern.MatchString(id)
}

// decodeSecret turns a hex channel secret into the 32-byte AES key.
func decodeSecret(secret string) ([]byte, error) {
	if len(secret) != hex.EncodedLen(SecretSize) {
		return nil, errInvalidSecret
	}
	raw, err := hex.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidSecret, err)
	}
	return raw, nil
}

func decodeIV(iv string) ([]byte, error) {
	raw, err := hex.DecodeString(iv)
	if err != nil {
		return nil, fmt.Errorf("iv is not hex: %w", err)
	}
	if len(raw) != provider.IVSize {
		return nil, fmt.Errorf("%w: got %d bytes", provider.ErrInvalidIV, len(raw))
	}
	return raw, nil
}

func decodeBase64(field, value string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not base64: %w", field, err)
	}
	return raw, nil
}

func encodeBase64(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
