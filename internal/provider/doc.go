// Package provider is the cryptographic provider behind tiaki's key engine.
//
// It exposes the primitives the engine is allowed to use and nothing more:
//
//   - RSA key-pair generation at a fixed modulus size
//   - RSA-OAEP encrypt under a PEM public key and decrypt under a KeyHandle
//   - AES-256-CBC encrypt/decrypt under a non-extractable SymmetricKey
//   - A cryptographically secure random byte source
//
// # Key Custody
//
// Private keys never leave the provider. Generation returns a KeyHandle: an
// opaque reference that marshals to its reference string only and prints as
// a redacted placeholder. Whoever holds a handle can ask this provider to
// decrypt with it; nobody can obtain the key bytes from it.
//
// The Software provider keeps keys behind a Vault. MemoryVault is process
// local. FileVault persists each key as PKCS#8 sealed with
// XChaCha20-Poly1305 under an Argon2id key derived from a passphrase, one
// file per handle, 0600.
//
// # Hashes
//
// RSA-OAEP is parameterised by Hash. Channel secrets are wrapped with
// HashSHA1 to stay wire compatible with existing clients; do not change the
// default without upgrading every client in lockstep.
package provider
