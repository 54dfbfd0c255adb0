// Package version holds build metadata for the connector binaries.
//
// Set at link time:
//
//	go build -ldflags "-X github.com/rickgao/ikommunicate-connector/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/ikommunicate-connector/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/ikommunicate-connector/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/connector
package version

// Overridden via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "<version> (<commit>) built <time>".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent is sent on the gateway handshake so the device's connection
// list shows who is attached.
func UserAgent() string {
	return "ikommunicate-connector/" + Version
}
