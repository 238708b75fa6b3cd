// Package audit records tiaki's key lifecycle operations.
//
// Generation, registration, enablement, status checks, flushes and secret
// distribution each append one entry to a JSON Lines log at:
//
//	<data dir>/audit.jsonl
//
// Each entry contains:
//   - Timestamp (RFC3339 with microseconds, UTC)
//   - Local username and installation id
//   - Operation name
//   - Operation-specific details (device ids, key ids, counts, error codes)
//
// Entries never include private key references, channel secrets or message
// content.
//
// # Usage
//
//	entry := audit.LogWithUser(audit.OpPrepare)
//	entry.Recipients = deviceIDs
//	audit.Log(entry)
//
// # Failure Handling
//
// Audit logging is best-effort. If the log cannot be written the operation
// continues without error.
package audit
