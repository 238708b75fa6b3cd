package utils

import (
	"regexp"
	"strings"

	"github.com/PolarWolf314/tiaki/internal/ui"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// IsValidDeviceID reports whether id is usable as a device identifier.
func IsValidDeviceID(id string) bool {
	return len(id) <= 256 && deviceIDPattern.MatchString(id)
}

// FormatDeviceIDs formats device identifiers as an indented list.
func FormatDeviceIDs(ids []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, id := range ids {
		b.WriteString("    - ")
		b.WriteString(ui.Device.Sprint(id))
		b.WriteString("\n")
	}
	return b.String()
}
