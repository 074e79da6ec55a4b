package common

var (
	// PackageName is used as the metrics namespace and default log service.
	PackageName = "shardvault"

	// Version is overridden at build time with -ldflags "-X ...common.Version=...".
	Version = "dev"
)
