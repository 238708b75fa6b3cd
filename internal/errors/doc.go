// Package errors provides typed error values for the tiaki key-management engine.
//
// Every failure that leaves the engine is exactly one *Error carrying a Code
// from a closed set. Callers branch with errors.Is against the sentinels
// rather than matching on strings; the original cause stays reachable through
// Unwrap for debug logging.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Generation: ErrGenerateKeyPairFailure
//   - Storage and lifecycle: ErrStoreDevicePrivateKeyFailure, ErrDeviceNotE2EEnabled,
//     ErrDevicePrivateKeyNotFound, ErrInvalidKey
//   - Envelope: ErrChannelSecretEncryptFailure, ErrChannelSecretDecryptFailure
//   - Content: ErrEncryptFailure, ErrDecryptFailure
//   - Distribution: ErrParticipantsMissingE2EEncryption
//
// # Usage
//
// Translate a collaborator failure at the component boundary:
//
//	if err := store.SetDeviceKey(ctx, id, rec); err != nil {
//	    return kerrors.Wrap(kerrors.ErrStoreDevicePrivateKeyFailure, err)
//	}
//
// Handle errors in the CLI layer:
//
//	content, err := workflows.Encrypt(ctx, opts)
//	if errors.Is(err, kerrors.ErrDeviceNotE2EEnabled) {
//	    // Tell the user to run `tiaki device generate`
//	}
package errors
