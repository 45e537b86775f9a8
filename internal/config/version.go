// Package config carries build-time metadata stamped via -ldflags.
package config

// Populated at build time:
//
//	go build -ldflags "-X github.com/camfeed/camfeed-server/internal/config.Version=v1.2.3 ..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
