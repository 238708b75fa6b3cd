// Package workflows implements the operations behind the tiaki CLI.
//
// Each workflow opens the configured key store and key vault, builds an
// e2e.Manager over them, runs one operation and closes the store again.
// Workflows return typed results and never print; presentation belongs to
// the cmd package.
//
// # Device Workflows
//
//   - Generate: create the device key pair, stored as the pending device
//   - Register: move the key to the id issued by the directory service
//   - Enable: mark the device as enabled for end-to-end encryption
//   - Status: check the device against the account's device list
//   - Show: print the device's public key and fingerprint
//   - Flush: delete every device record and key
//
// # Channel Workflows
//
//   - Prepare: wrap a fresh channel secret for every participant device
//   - Encrypt and Decrypt: protect message content with a channel secret
//
// # Error Handling
//
// Engine failures are *errors.Error values from internal/errors; match
// them with errors.Is:
//
//	result, err := workflows.Decrypt(ctx, opts)
//	if errors.Is(err, kerrors.ErrDevicePrivateKeyNotFound) {
//	    // The device was flushed; run `tiaki device generate`.
//	}
//
// # Auditing
//
// Every state change and every channel operation appends one entry to the
// audit log, including the error code when it failed.
package workflows
