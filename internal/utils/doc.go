// Package utils provides shared helpers for tiaki's command layer.
//
// # System
//
//   - GetUsername, GetHostname
//   - SanitizeDeviceID, SuggestDeviceID: derive a device id from the hostname
//
// # Strings
//
//   - IsValidDeviceID: the device identifier grammar
//   - FormatDeviceIDs: human-readable device lists
//
// # I/O and terminal
//
//   - ReadStdin, ReadInput: message input from an argument or a pipe
//   - ReadPassphrase, ReadPassphraseFromTTY: hidden passphrase prompts
//   - IsTerminal, IsTTYAvailable
package utils
