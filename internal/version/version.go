// Package version reports the build version.
package version

import "runtime/debug"

// Version is set at build time:
//
//	go build -ldflags="-X 'github.com/BioHazard786/vanish/internal/version.Version=v1.0.0'"
var Version = "dev"

// String returns Version, or the module version recorded by the Go toolchain
// when the binary was installed with go install.
func String() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
