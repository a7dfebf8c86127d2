package ckernel

import (
	"fmt"
	"runtime"
	"strings"
)

// Build-time variables injected via linker flags (ldflags):
//
//	go build -ldflags "-X github.com/thiremani/ckernel/ckernel.Version=$(git describe --tags) ..."
//
// Version is also part of the IR dump hash, so dumps from different builds never mix.
var (
	Version   = "dev"     // Overwritten with git tag (e.g., "v0.5.0")
	Commit    = "unknown" // Overwritten with git commit hash
	BuildDate = "unknown" // Overwritten with build timestamp
)

// VersionString describes the build, one item per line.
func VersionString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ckernel %s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
	if Commit != "unknown" {
		fmt.Fprintf(&sb, "\n  commit: %s", Commit)
	}
	if BuildDate != "unknown" {
		fmt.Fprintf(&sb, "\n  built:  %s", BuildDate)
	}
	return sb.String()
}
