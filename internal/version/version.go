// Package version holds build metadata set via -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	-ldflags "-X github.com/vpnconsole/vpnconsole/internal/version.Version=1.4.0"
var (
	Version = "dev"
	Commit  = ""
)

// String returns "<version> (<commit>, <go version>)". When Commit was not
// injected, the VCS revision recorded by the Go toolchain is used.
func String() string {
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	if commit == "" {
		return fmt.Sprintf("%s (%s)", Version, runtime.Version())
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, runtime.Version())
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
