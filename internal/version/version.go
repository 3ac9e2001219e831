// Package version provides build and version information.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build information set via ldflags.
var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// Date is the build date (set via -ldflags).
	Date = "unknown"
)

// Resolved returns Version, or the module version recorded by `go install`
// when the binary was built without ldflags.
func Resolved() string {
	if Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return Version
}

// String formats the full build description.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Resolved(), Commit, Date)
}
