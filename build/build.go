// Package build carries build-time metadata, set via -ldflags -X.
package build

var (
	Version = "development"
	Date    = "unknown"
)
