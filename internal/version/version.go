package version

// Set at build time via -ldflags "-X github.com/rowjay/arpm/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
