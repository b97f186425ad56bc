package version

// Build information, set at build time via -ldflags.
var (
	// Version is the semantic version of boltd
	Version = "v0.1.0"

	Commit = "unknown"

	BuiltAt = "unknown"
)

// Info returns the version string.
func Info() string {
	return Version
}

// FullInfo returns complete build information
func FullInfo() string {
	return "boltd version=" + Version + " commit=" + Commit + " built_at=" + BuiltAt
}
