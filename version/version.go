// Package version holds build information injected at link time.
package version

import "runtime"

// Set via -ldflags at build time.
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
)

// GoInfo is the Go toolchain the binary was built with.
var GoInfo = runtime.Version()
