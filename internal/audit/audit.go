package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/tiaki/internal/configs"
)

// Operation names written to the log.
const (
	OpGenerate = "generate"
	OpStore    = "store"
	OpEnable   = "enable"
	OpStatus   = "status"
	OpFlush    = "flush"
	OpPrepare  = "prepare"
	OpEncrypt  = "encrypt"
	OpDecrypt  = "decrypt"
)

// Entry represents a single audit log entry. Entries never carry key
// material, channel secrets or message content.
type Entry struct {
	Timestamp      string `json:"ts"`   // RFC3339 with microseconds.
	User           string `json:"user"` // Local username.
	InstallationID string `json:"installation_id,omitempty"`
	Operation      string `json:"op"`

	// Optional fields depending on operation.
	DeviceID      string   `json:"device_id,omitempty"`
	KeyID         string   `json:"key_id,omitempty"`          // For encrypt/decrypt (envelope kid).
	Recipients    []string `json:"recipients,omitempty"`      // For prepare.
	DevicesCount  int      `json:"devices_count,omitempty"`   // For prepare/status.
	Enabled       *bool    `json:"enabled,omitempty"`         // For status.
	RecordsCount  int      `json:"records_count,omitempty"`   // For flush.
	ErrorCode     string   `json:"error_code,omitempty"`      // Set when the operation failed.
	Backend       string   `json:"backend,omitempty"`         // Key store backend in use.
	PublicKeyHash string   `json:"public_key_hash,omitempty"` // For generate/store.
}

// Log appends an entry to the audit log.
// Failures are swallowed: an operation never fails because auditing did.
func Log(entry Entry) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	logPath := LogPath()
	if logPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = f.Write(append(data, '\n'))
}

// LogWithUser returns an entry for op with the user and installation id
// filled in.
func LogWithUser(op string) Entry {
	entry := Entry{Operation: op}

	if configs.TiakiSettings != nil {
		entry.User = configs.TiakiSettings.Username
	}

	config, err := configs.LoadConfig()
	if err != nil {
		return entry
	}
	entry.InstallationID = config.Device.InstallationID
	entry.Backend = config.Store.Backend

	return entry
}

// LogPath returns the path to the audit log file, or "" when no data
// directory is configured.
func LogPath() string {
	if configs.TiakiSettings == nil || configs.TiakiSettings.DataPath == "" {
		return ""
	}
	return configs.TiakiSettings.AuditLogPath()
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func ReadEntries() ([]Entry, error) {
	logPath := LogPath()
	if logPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
