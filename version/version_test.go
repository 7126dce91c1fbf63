package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestRelease(t *testing.T) {
	assert.Empty(t, Info{Version: "dev"}.Release())
	assert.Empty(t, Info{}.Release())
	assert.Equal(t, "1.2.0", Info{Version: "v1.2.0"}.Release())
	assert.Equal(t, "1.2.0", Info{Version: "1.2.0"}.Release())
}

func TestString(t *testing.T) {
	info := Info{Version: "dev", CommitHash: "abc", BuildTime: "now"}
	assert.Equal(t, "exemplar dev (commit abc, built now)", info.String())

	info.Version = "v1.2.0"
	info.CommitHash = "0123456789"
	assert.Equal(t, "exemplar 1.2.0 (commit 0123456, built now)", info.String())
}

func TestShort(t *testing.T) {
	assert.Equal(t, "0123456", Info{CommitHash: "0123456789"}.Short())
	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}
