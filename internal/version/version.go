package version

// Overridden at build time with -ldflags "-X mingmou/internal/version.VERSION=..."
var (
	VERSION = "dev"
	COMMIT  = "unknown"
)
