// Package version holds the build version, injected at link time:
//
//	go build -ldflags "-X github.com/skystation-io/skystation/pkg/version.version=v1.2.3"
package version

var version = "v0.0.0-dev"

// Get returns the agent's build version.
func Get() string {
	return version
}
