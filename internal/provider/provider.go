package provider

import (
	"context"
	"crypto/sha1" // #nosec G505 -- RSA-OAEP/SHA-1 is the wire format shared with other clients.
	"crypto/sha256"
	"errors"
	"hash"
)

const (
	// DefaultRSABits is the device key modulus size.
	DefaultRSABits = 4096

	// MinRSABits is the smallest modulus the provider will generate.
	MinRSABits = 2048

	// AESKeySize is the AES-256 key length in bytes.
	AESKeySize = 32

	// IVSize is the AES-CBC initialisation vector length in bytes.
	IVSize = 16
)

var (
	// ErrInvalidKey indicates PEM input that does not hold a usable RSA public key.
	ErrInvalidKey = errors.New("invalid or unsupported key")

	// ErrKeyNotFound indicates a handle this provider holds no key for.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidKeyLength indicates a symmetric key of the wrong size.
	ErrInvalidKeyLength = errors.New("invalid symmetric key length")

	// ErrInvalidIV indicates an IV that is not IVSize bytes.
	ErrInvalidIV = errors.New("invalid initialisation vector length")

	// ErrInvalidPadding indicates CBC plaintext with malformed PKCS#7 padding.
	ErrInvalidPadding = errors.New("invalid padding")

	// ErrInvalidCiphertext indicates CBC ciphertext that is not a whole number of blocks.
	ErrInvalidCiphertext = errors.New("ciphertext is not a multiple of the block size")
)

// Hash selects the RSA-OAEP digest.
type Hash int

const (
	HashSHA1 Hash = iota
	HashSHA256
)

// New returns a fresh digest for h.
func (h Hash) New() hash.Hash {
	switch h {
	case HashSHA256:
		return sha256.New()
	default:
		return sha1.New() // #nosec G401 -- see import note.
	}
}

func (h Hash) String() string {
	switch h {
	case HashSHA256:
		return "sha256"
	default:
		return "sha1"
	}
}

// ParseHash maps a config value to a Hash.
func ParseHash(name string) (Hash, error) {
	switch name {
	case "", "sha1", "SHA-1":
		return HashSHA1, nil
	case "sha256", "SHA-256":
		return HashSHA256, nil
	}
	return HashSHA1, errors.New("unsupported OAEP hash " + name)
}

// Provider is the set of primitives the key engine may call.
type Provider interface {
	// GenerateRSAKeyPair creates a key pair and returns a handle to the
	// private half and the PEM (PKIX) encoding of the public half.
	GenerateRSAKeyPair(ctx context.Context, bits int) (KeyHandle, string, error)

	// EncryptOAEP encrypts msg under the RSA public key in publicKeyPEM.
	EncryptOAEP(ctx context.Context, h Hash, publicKeyPEM string, msg []byte) ([]byte, error)

	// DecryptOAEP decrypts ciphertext with the private key behind handle.
	DecryptOAEP(ctx context.Context, h Hash, handle KeyHandle, ciphertext []byte) ([]byte, error)

	// DestroyKey forgets the key behind handle. Unknown handles are not an error.
	DestroyKey(ctx context.Context, handle KeyHandle) error

	// ImportAESKey turns raw bytes into a non-extractable AES-256 key.
	ImportAESKey(raw []byte) (SymmetricKey, error)

	EncryptAESCBC(key SymmetricKey, iv, plaintext []byte) ([]byte, error)
	DecryptAESCBC(key SymmetricKey, iv, ciphertext []byte) ([]byte, error)

	// RandomBytes returns n bytes from a CSPRNG.
	RandomBytes(n int) ([]byte, error)
}
