package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Vault holds serialised private keys (PKCS#8 DER) by handle reference.
type Vault interface {
	Put(ctx context.Context, ref string, der []byte) error
	// Get returns ErrKeyNotFound when ref is unknown.
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// MemoryVault keeps keys for the lifetime of the process.
type MemoryVault struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{keys: make(map[string][]byte)}
}

func (v *MemoryVault) Put(_ context.Context, ref string, der []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[ref] = bytes.Clone(der)
	return nil
}

func (v *MemoryVault) Get(_ context.Context, ref string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	der, ok := v.keys[ref]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(der), nil
}

func (v *MemoryVault) Delete(_ context.Context, ref string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if der, ok := v.keys[ref]; ok {
		wipe(der)
		delete(v.keys, ref)
	}
	return nil
}

const (
	sealedMagic   = "TKV1"
	sealedSaltLen = 16
	sealedSuffix  = ".sealed"
)

var refPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// KDFParams are the Argon2id cost parameters used by FileVault.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams follows the RFC 9106 second recommended option.
var DefaultKDFParams = KDFParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}

// FileVault seals each key into <dir>/<ref>.sealed:
//
//	"TKV1" | salt (16) | nonce (24) | XChaCha20-Poly1305(PKCS#8 DER, aad=ref)
type FileVault struct {
	dir        string
	passphrase []byte
	params     KDFParams
	locked     bool
}

// ErrVaultLocked is returned by a locked FileVault for anything but Delete.
var ErrVaultLocked = errors.New("key vault is locked (no passphrase given)")

// NewLockedFileVault returns a vault at dir that can only delete keys. It
// serves operations that never touch private key material, such as flush.
func NewLockedFileVault(dir string) (*FileVault, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory at %s: %w", dir, err)
	}
	return &FileVault{dir: dir, locked: true}, nil
}

// NewFileVault returns a vault rooted at dir. An empty passphrase is refused.
func NewFileVault(dir string, passphrase []byte, params KDFParams) (*FileVault, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("a passphrase is required to seal device keys")
	}
	if params.Time == 0 || params.MemoryKiB == 0 || params.Threads == 0 {
		params = DefaultKDFParams
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory at %s: %w", dir, err)
	}
	return &FileVault{dir: dir, passphrase: bytes.Clone(passphrase), params: params}, nil
}

func (v *FileVault) path(ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", fmt.Errorf("invalid key reference %q", ref)
	}
	return filepath.Join(v.dir, ref+sealedSuffix), nil
}

func (v *FileVault) kek(salt []byte) []byte {
	return argon2.IDKey(v.passphrase, salt, v.params.Time, v.params.MemoryKiB, v.params.Threads, chacha20poly1305.KeySize)
}

func (v *FileVault) Put(ctx context.Context, ref string, der []byte) error {
	if v.locked {
		return ErrVaultLocked
	}
	path, err := v.path(ref)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	salt := make([]byte, sealedSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	kek := v.kek(salt)
	defer wipe(kek)

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(sealedMagic)
	out.Write(salt)
	out.Write(nonce)
	out.Write(aead.Seal(nil, nonce, der, []byte(ref)))

	return writeFileAtomic(path, out.Bytes())
}

func (v *FileVault) Get(ctx context.Context, ref string) ([]byte, error) {
	if v.locked {
		return nil, ErrVaultLocked
	}
	path, err := v.path(ref)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sealed key: %w", err)
	}

	header := len(sealedMagic) + sealedSaltLen + chacha20poly1305.NonceSizeX
	if len(data) < header+chacha20poly1305.Overhead || string(data[:len(sealedMagic)]) != sealedMagic {
		return nil, fmt.Errorf("sealed key %s is corrupt", ref)
	}
	salt := data[len(sealedMagic) : len(sealedMagic)+sealedSaltLen]
	nonce := data[len(sealedMagic)+sealedSaltLen : header]

	kek := v.kek(salt)
	defer wipe(kek)

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, err
	}
	der, err := aead.Open(nil, nonce, data[header:], []byte(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to unseal key %s (wrong passphrase?): %w", ref, err)
	}
	return der, nil
}

func (v *FileVault) Delete(_ context.Context, ref string) error {
	path, err := v.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove sealed key: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}
