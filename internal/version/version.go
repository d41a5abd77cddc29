// Package version carries build information stamped in via ldflags.
package version

var (
	Version   = "0.0.0-dev"
	BuildHash = "unknown"
	BuildDate = "unknown"
)
