package utils

import (
	"os"
	"os/user"
	"regexp"
	"strconv"
	"strings"
)

var (
	invalidDeviceChars = regexp.MustCompile(`[^a-z0-9\-_.]`)
	repeatedHyphens    = regexp.MustCompile(`-+`)
)

// GetUsername returns the current username.
func GetUsername() (string, error) {
	user, err := user.Current()
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// GetHostname returns the system hostname.
func GetHostname() (string, error) {
	return os.Hostname()
}

// SanitizeDeviceID turns an arbitrary name into a valid device identifier.
func SanitizeDeviceID(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	name = invalidDeviceChars.ReplaceAllString(name, "")
	name = repeatedHyphens.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-._")

	if name == "" {
		name = "device"
	}

	return name
}

// SuggestDeviceID derives a device identifier from the hostname, appending
// -2, -3, ... until it no longer collides with taken.
func SuggestDeviceID(taken []string) string {
	hostname, err := GetHostname()
	if err != nil {
		hostname, _ = GetUsername()
	}

	base := SanitizeDeviceID(hostname)
	id := base

	existing := make(map[string]bool, len(taken))
	for _, t := range taken {
		existing[strings.ToLower(t)] = true
	}

	for suffix := 2; existing[strings.ToLower(id)]; suffix++ {
		id = base + "-" + strconv.Itoa(suffix)
	}

	return id
}
