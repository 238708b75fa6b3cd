package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the tests fast; production uses DefaultKDFParams.
var testKDF = KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1}

func TestFileVaultRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v, err := NewFileVault(dir, []byte("correct horse"), testKDF)
	require.NoError(t, err)

	der := []byte("pretend pkcs8 bytes")
	require.NoError(t, v.Put(ctx, "0b7f0d1e-1111-4c2a-9d55-4b9d9c3e2f10", der))

	path := filepath.Join(dir, "0b7f0d1e-1111-4c2a-9d55-4b9d9c3e2f10.sealed")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), string(der), "key material must not be stored in the clear")

	got, err := v.Get(ctx, "0b7f0d1e-1111-4c2a-9d55-4b9d9c3e2f10")
	require.NoError(t, err)
	assert.Equal(t, der, got)

	require.NoError(t, v.Delete(ctx, "0b7f0d1e-1111-4c2a-9d55-4b9d9c3e2f10"))
	_, err = v.Get(ctx, "0b7f0d1e-1111-4c2a-9d55-4b9d9c3e2f10")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	require.NoError(t, v.Delete(ctx, "0b7f0d1e-1111-4c2a-9d55-4b9d9c3e2f10"))
}

func TestFileVaultWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v, err := NewFileVault(dir, []byte("right"), testKDF)
	require.NoError(t, err)
	require.NoError(t, v.Put(ctx, "ref-1", []byte("der")))

	other, err := NewFileVault(dir, []byte("wrong"), testKDF)
	require.NoError(t, err)
	_, err = other.Get(ctx, "ref-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestFileVaultBindsReference(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v, err := NewFileVault(dir, []byte("pw"), testKDF)
	require.NoError(t, err)
	require.NoError(t, v.Put(ctx, "ref-a", []byte("der")))

	// A sealed file renamed to another reference must not open.
	require.NoError(t, os.Rename(filepath.Join(dir, "ref-a.sealed"), filepath.Join(dir, "ref-b.sealed")))
	_, err = v.Get(ctx, "ref-b")
	assert.Error(t, err)
}

func TestFileVaultRejectsBadInput(t *testing.T) {
	_, err := NewFileVault(t.TempDir(), nil, testKDF)
	assert.Error(t, err)

	v, err := NewFileVault(t.TempDir(), []byte("pw"), testKDF)
	require.NoError(t, err)
	assert.Error(t, v.Put(context.Background(), "../escape", []byte("der")))

	require.NoError(t, os.WriteFile(filepath.Join(v.dir, "short.sealed"), []byte("TKV1"), 0600))
	_, err = v.Get(context.Background(), "short")
	assert.Error(t, err)
}

func TestSoftwareWithFileVault(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v, err := NewFileVault(dir, []byte("pw"), testKDF)
	require.NoError(t, err)
	handle, publicPEM, err := NewSoftware(v).GenerateRSAKeyPair(ctx, testBits)
	require.NoError(t, err)

	// A second provider over the same directory models a new process.
	v2, err := NewFileVault(dir, []byte("pw"), testKDF)
	require.NoError(t, err)
	p2 := NewSoftware(v2)

	ct, err := p2.EncryptOAEP(ctx, HashSHA1, publicPEM, []byte("abc"))
	require.NoError(t, err)
	pt, err := p2.DecryptOAEP(ctx, HashSHA1, handle, ct)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(pt))
}

func TestMemoryVaultCopies(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault()
	der := []byte("abc")
	require.NoError(t, v.Put(ctx, "r", der))
	der[0] = 'x'

	got, err := v.Get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestLockedFileVault(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v, err := NewFileVault(dir, []byte("pw"), testKDF)
	require.NoError(t, err)
	require.NoError(t, v.Put(ctx, "ref-a", []byte("der")))

	locked, err := NewLockedFileVault(dir)
	require.NoError(t, err)

	_, err = locked.Get(ctx, "ref-a")
	assert.ErrorIs(t, err, ErrVaultLocked)
	assert.ErrorIs(t, locked.Put(ctx, "ref-b", []byte("der")), ErrVaultLocked)

	require.NoError(t, locked.Delete(ctx, "ref-a"))
	_, err = v.Get(ctx, "ref-a")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
