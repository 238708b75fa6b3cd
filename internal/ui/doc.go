// Package ui provides semantic text formatting for CLI output.
//
// Formatters colorize when the terminal supports it. When NO_COLOR is set or
// the terminal doesn't support colors, text decorations are used instead.
//
//	ui.Code.Sprint("tiaki device enable")   // Commands
//	ui.Path.Sprint("devices.json")          // File paths
//	ui.Device.Sprint("laptop-01")           // Device identifiers
//	ui.KeyID.Sprint("3f2a…9c")              // Key references
//	ui.Success.Sprint("✓")
//	ui.Error.Sprint("✗")
//	ui.Muted.Sprint("pending")
//
// Without colors:
//   - Code: `backticks`
//   - Device: 'single quotes'
//   - KeyID: [brackets]
//   - Muted: (parentheses)
//   - Others: no decoration
package ui
