// Package version holds build metadata, overridable at link time with
// -ldflags "-X github.com/ChristianF88/mtrip/version.Version=...".
package version

var (
	Version = "1.0.0"
	Date    = "2026-08-02T00:00:00Z"
)
