// Package version reports build information stamped in through ldflags:
//
//	go build -ldflags "-X github.com/teranos/exemplar/version.Version=1.2.0 \
//	  -X github.com/teranos/exemplar/version.CommitHash=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// dev is the placeholder left in unstamped builds.
const dev = "dev"

// Stamped at build time.
var (
	CommitHash = dev
	BuildTime  = "unknown"
	Version    = dev
)

// Info describes the running binary.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the running binary's build information.
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Release returns the semantic version without a leading "v", or "" for an
// unstamped build. Project descriptors check their requires constraint
// against it; development builds satisfy every constraint.
func (i Info) Release() string {
	if i.Version == "" || i.Version == dev {
		return ""
	}
	return strings.TrimPrefix(i.Version, "v")
}

func (i Info) String() string {
	v := i.Release()
	if v == "" {
		v = dev
	}
	return fmt.Sprintf("exemplar %s (commit %s, built %s)", v, i.Short(), i.BuildTime)
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
