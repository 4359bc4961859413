package redisevent

import (
	"runtime/debug"
	"strconv"

	"github.com/raniellyferreira/redis-event-stream/rdb"
)

// Version is the current version of the redis-event-stream library.
const Version = "0.3.0"

// Build metadata, set with -ldflags "-X ...". GitCommit falls back to the
// VCS revision embedded by the go tool.
var (
	GitCommit string
	BuildTime string
)

// VersionInfo returns detailed version information
func VersionInfo() map[string]string {
	info := map[string]string{
		"version":     Version,
		"rdb_version": strconv.Itoa(rdb.MaxVersion),
	}

	commit, built := GitCommit, BuildTime
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && built == "":
				built = s.Value
			}
		}
	}
	if commit != "" {
		info["commit"] = commit
	}
	if built != "" {
		info["buildTime"] = built
	}
	return info
}
