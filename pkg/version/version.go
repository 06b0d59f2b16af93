// Package version carries build information for armisd and the armis CLI.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X github.com/armis/armis/pkg/version.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

// Info returns a one-line build summary.
func Info() string {
	commitID := Commit
	if len(commitID) > 8 {
		commitID = commitID[:8]
	}
	return fmt.Sprintf("ARMIS %s (%s) - %s %s/%s", Version, commitID, BuildTime, runtime.GOOS, runtime.GOARCH)
}

// Map returns the build information as key/value pairs.
func Map() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
}
