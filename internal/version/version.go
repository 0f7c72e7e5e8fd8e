package version

// Version is the devrank release, overridden at build time with
// -ldflags "-X github.com/alvmarrod/devrank/internal/version.Version=..."
var Version = "0.3.0"
