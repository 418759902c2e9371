package version

import (
	"runtime/debug"
	"strings"
)

var buildName string
var buildVersion string

// BuildName gets the current build name. This is usually injected if built
// from git, or falls back to "rnsd" otherwise.
func BuildName() string {
	if buildName == "" {
		return "rnsd"
	}
	return buildName
}

// BuildVersion gets the current build version. This is usually injected if
// built from git. Otherwise the module version recorded by the toolchain is
// used, or "unknown" when there is none.
func BuildVersion() string {
	if buildVersion != "" {
		return buildVersion
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return strings.TrimPrefix(v, "v")
		}
	}
	return "unknown"
}

// String returns the name and version as a single line.
func String() string {
	return BuildName() + " " + BuildVersion()
}
