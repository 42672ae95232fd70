// Package version reports build metadata.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/tagstream/internal/version.Version=0.3.0
//	  -X github.com/soyeahso/tagstream/internal/version.Commit=abc123
//	  -X github.com/soyeahso/tagstream/internal/version.Date=2026-10-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("tagstream %s (%s, %s, %s/%s)",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent on outbound connections that identify themselves.
func UserAgent() string {
	return "tagstream/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
