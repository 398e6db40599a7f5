// Package version provides build-time version information for the application.
package version

import "fmt"

var (
	// Version is the application version (e.g., git tag or "dev")
	Version = "dev"
	// Commit is the git commit hash
	Commit = "dev"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build info in the one-line form the CLI prints
func String() string {
	return fmt.Sprintf("studyrec %s (commit %s, built %s)", Version, Commit, BuildTime)
}
