package version

// AppVersion is set via -ldflags at build time.
var AppVersion = "dev"

// GitCommit is set via -ldflags at build time.
var GitCommit = "unknown"

// Version returns a human-readable version string.
func Version() string {
	return AppVersion + " (" + GitCommit + ")"
}
