package provider

import (
	"crypto/cipher"
	"fmt"
)

// KeyHandle references a private key held by a Provider. The zero value
// references nothing.
type KeyHandle struct {
	ref string
}

// IsZero reports whether h references no key.
func (h KeyHandle) IsZero() bool { return h.ref == "" }

// String never reveals anything beyond whether the handle is set.
func (h KeyHandle) String() string {
	if h.IsZero() {
		return "KeyHandle(none)"
	}
	return "KeyHandle(redacted)"
}

// GoString keeps %#v as opaque as %v.
func (h KeyHandle) GoString() string { return h.String() }

// Format covers the remaining verbs (%s, %q, %x, ...).
func (h KeyHandle) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(h.String()))
}

// MarshalText persists the reference only, so key stores can save a handle
// without ever seeing key material.
func (h KeyHandle) MarshalText() ([]byte, error) {
	return []byte(h.ref), nil
}

// UnmarshalText restores a reference written by MarshalText. The handle is
// only useful with the provider that issued it.
func (h *KeyHandle) UnmarshalText(text []byte) error {
	h.ref = string(text)
	return nil
}

// SymmetricKey is an imported AES key. The raw bytes are not retained.
type SymmetricKey struct {
	block cipher.Block
}

func (k SymmetricKey) valid() bool { return k.block != nil }

func (k SymmetricKey) String() string { return "SymmetricKey(redacted)" }
