// Package version exposes build metadata stamped at link time.
package version

// Set via -ldflags "-X github.com/reelforge/reelforge/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
