// Package version exposes build-time version information for the
// SchoolGate binary. Values are overridden via -ldflags at build time.
package version

import "fmt"

var (
	// Version is the semantic version of the build ("dev" when unset).
	Version = "dev"
	// Commit is the short git commit hash.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
)

// Short returns just the version string.
func Short() string {
	return Version
}

// Info returns a human-readable version line.
func Info() string {
	return fmt.Sprintf("schoolgate %s (commit %s, built %s)", Version, Commit, Date)
}

// Map returns version fields for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
