// Package buildinfo provides build-time properties injected via ldflags.
package buildinfo

import (
	"os"
	"strings"
)

// UnknownVersion is reported when the version file can't be read.
const UnknownVersion = "Unknown"

// Properties holds build-time properties injected via ldflags.
type Properties struct {
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Package-level variables for ldflags injection (unexported).
var (
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}

// ReadVersion returns the trimmed content of the deployment's version file,
// or UnknownVersion if it is missing or empty.
func ReadVersion(path string) string {
	if path == "" {
		return UnknownVersion
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return UnknownVersion
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return UnknownVersion
	}
	return v
}
