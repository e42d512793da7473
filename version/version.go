// Package version holds build metadata injected at link time.
package version

import (
	"fmt"
	"runtime"
)

// Build information. Populated via -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/snapgloss/snapgloss/version.GitRelease=v0.3.0"
var (
	// GitRelease is the release tag (e.g. "v0.3.0").
	GitRelease = "dev"

	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"

	// GitCommitDate is the commit date in RFC3339 format.
	GitCommitDate = "unknown"
)

// GoInfo reports the Go toolchain and platform the binary was built with.
var GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
