// Package version carries the build identity stamped in at link time.
package version

// Set via -ldflags "-X github.com/fanvault/tokend/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
)

// String renders the version with its commit when one was stamped.
func String() string {
	if Commit == "unknown" || Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
