package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent identifies shipquote to carrier APIs.
func UserAgent() string {
	return "shipquote/" + Version
}

// String summarises the build for logs and the version command.
func String() string {
	return fmt.Sprintf("shipquote %s (commit %s, built %s)", Version, Commit, BuildDate)
}
