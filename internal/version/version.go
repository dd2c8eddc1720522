// Package version holds build metadata injected at build time, e.g.
// -ldflags "-X github.com/questlog/questlog/internal/version.Version=v0.3.0".
package version

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String renders the build info for the startup log.
func String() string {
	return Version + " (" + Commit + ", built " + BuildTime + ")"
}
