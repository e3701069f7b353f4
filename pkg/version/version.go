// Package version records build metadata injected at link time.
package version

import "fmt"

// Build metadata, overridden via -ldflags at release time.
var (
	// Version is the release version.
	Version = "dev"

	// Commit is the git commit hash the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String formats the build metadata for human output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
