// Package version holds build metadata stamped in with
// -ldflags "-X github.com/kailas-cloud/ragchat/internal/version.Version=...".
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build metadata for -version flags and startup logs.
func String(binary string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", binary, Version, Commit, Date)
}
