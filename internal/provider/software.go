package provider

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Software implements Provider with the Go standard crypto packages and a
// Vault for private key custody.
type Software struct {
	vault Vault
	rand  io.Reader

	mu    sync.RWMutex
	cache map[string]*rsa.PrivateKey
}

// NewSoftware returns a provider keeping private keys in vault. A nil vault
// means a fresh MemoryVault.
func NewSoftware(vault Vault) *Software {
	if vault == nil {
		vault = NewMemoryVault()
	}
	return &Software{
		vault: vault,
		rand:  rand.Reader,
		cache: make(map[string]*rsa.PrivateKey),
	}
}

func (s *Software) GenerateRSAKeyPair(ctx context.Context, bits int) (KeyHandle, string, error) {
	if bits < MinRSABits {
		return KeyHandle{}, "", fmt.Errorf("RSA modulus must be at least %d bits, got %d", MinRSABits, bits)
	}
	if err := ctx.Err(); err != nil {
		return KeyHandle{}, "", err
	}

	key, err := rsa.GenerateKey(s.rand, bits)
	if err != nil {
		return KeyHandle{}, "", fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	publicPEM, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return KeyHandle{}, "", err
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return KeyHandle{}, "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	defer wipe(der)

	handle := KeyHandle{ref: uuid.NewString()}
	if err := s.vault.Put(ctx, handle.ref, der); err != nil {
		return KeyHandle{}, "", fmt.Errorf("failed to save private key: %w", err)
	}

	s.mu.Lock()
	s.cache[handle.ref] = key
	s.mu.Unlock()

	return handle, publicPEM, nil
}

func (s *Software) EncryptOAEP(_ context.Context, h Hash, publicKeyPEM string, msg []byte) ([]byte, error) {
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	return rsa.EncryptOAEP(h.New(), s.rand, pub, msg, nil)
}

func (s *Software) DecryptOAEP(ctx context.Context, h Hash, handle KeyHandle, ciphertext []byte) ([]byte, error) {
	key, err := s.privateKey(ctx, handle)
	if err != nil {
		return nil, err
	}
	return rsa.DecryptOAEP(h.New(), nil, key, ciphertext, nil)
}

func (s *Software) DestroyKey(ctx context.Context, handle KeyHandle) error {
	if handle.IsZero() {
		return nil
	}

	s.mu.Lock()
	delete(s.cache, handle.ref)
	s.mu.Unlock()

	if err := s.vault.Delete(ctx, handle.ref); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	return nil
}

func (s *Software) privateKey(ctx context.Context, handle KeyHandle) (*rsa.PrivateKey, error) {
	if handle.IsZero() {
		return nil, ErrKeyNotFound
	}

	s.mu.RLock()
	key, ok := s.cache[handle.ref]
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	der, err := s.vault.Get(ctx, handle.ref)
	if err != nil {
		return nil, err
	}
	defer wipe(der)

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok = parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: vault entry is not an RSA key", ErrInvalidKey)
	}

	s.mu.Lock()
	s.cache[handle.ref] = key
	s.mu.Unlock()

	return key, nil
}

func (s *Software) ImportAESKey(raw []byte) (SymmetricKey, error) {
	if len(raw) != AESKeySize {
		return SymmetricKey{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, AESKeySize, len(raw))
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return SymmetricKey{}, err
	}
	return SymmetricKey{block: block}, nil
}

func (s *Software) EncryptAESCBC(key SymmetricKey, iv, plaintext []byte) ([]byte, error) {
	if !key.valid() {
		return nil, ErrInvalidKeyLength
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(key.block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func (s *Software) DecryptAESCBC(key SymmetricKey, iv, ciphertext []byte) ([]byte, error) {
	if !key.valid() {
		return nil, ErrInvalidKeyLength
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(key.block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func (s *Software) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+padLen), data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-padLen], nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
