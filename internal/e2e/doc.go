// Package e2e implements device key custody and the hybrid encryption used
// to share channel secrets between participant devices.
//
// A Manager binds one active device id to a record in a keystore.KeyStore.
// The record references the device's RSA private key through a
// provider.KeyHandle; key material itself never leaves the provider.
//
// Lifecycle:
//
//	m.Init(ctx)                          // load active device id, if any
//	pair, _ := m.GenerateKeyPair(ctx)    // stored as "pending"
//	m.StoreKey(ctx, "d1", pair.PrivateKey, pair.PublicKey)
//	m.EnableEncryption(ctx)
//	...
//	m.Flush(ctx)                         // sign-out or revocation
//
// Distribution: PrepareSecrets draws one 32-byte channel secret and wraps it
// with RSA-OAEP for every participant device. The result is all or nothing.
// Each device unwraps its envelope with DecryptChannelSecret, and Encrypt
// and Decrypt use the recovered secret as an AES-256-CBC key.
//
// Wire shapes are fixed:
//
//	{"encrypted_secret": base64, "header": {"alg": "RSA-OAEP", "kid": "..."}}
//	{"ciphertext": base64, "encryption_header": {"enc": "AES-256-CBC", "iv": hex}}
//
// Every error returned carries one of the codes in internal/errors.
package e2e
