// Package version exposes build metadata for the /version endpoint and the
// --version flag.
package version

// Version is the release version, stamped by the release pipeline.
var Version = "0.0.0"

// GitCommit and BuildDate are injected at build time via ldflags.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)
