// Package keystore persists device records and the active device pointer.
//
// A DeviceRecord holds a device's public key PEM, its encryption status and
// a provider.KeyHandle for the private key. The handle serialises to an
// opaque reference, so none of the adapters ever hold private key material.
//
// Adapters:
//   - MemoryStore: process memory.
//   - FileStore: one TOML document, devices.toml, rewritten atomically.
//   - BadgerStore: a badger database, JSON values under device/<id> and
//     pointer/<key>.
//
// Open picks one from the [store] section of config.toml.
package keystore
