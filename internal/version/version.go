// Package version carries build metadata stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/MrSnakeDoc/linkvault/internal/version.Version=v0.3.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"             // ex: v0.1.0
	Commit    = "none"            // ex: abcd123
	BuildDate = "unknown"         // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version() // go version
)

// String is the one-line build description printed at startup and by the CLIs.
func String() string {
	return fmt.Sprintf("%s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
