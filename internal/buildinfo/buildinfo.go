// Package buildinfo provides build-time version information.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// version and commit are set at build time via -ldflags.
var (
	version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var
	commit  = ""    //nolint:gochecknoglobals // ldflags requires package-level var
)

// String returns the current version.
func String() string {
	return version
}

// Commit returns the VCS revision the binary was built from. It falls
// back to the module build info when ldflags did not set it.
func Commit() string {
	if commit != "" {
		return commit
	}
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

// Long returns "taplive <version> (<commit>)", omitting an unknown commit.
func Long() string {
	if c := Commit(); c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		return fmt.Sprintf("taplive %s (%s)", version, c)
	}
	return "taplive " + version
}
