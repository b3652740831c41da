// Package version carries build identification, set via -ldflags.
package version

var (
	// Version is the current application version.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns a single-line description suitable for startup banners.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
