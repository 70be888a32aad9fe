// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/bureau-exec/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info returns "version (commit[-dirty], build time)". A commit left at
// "unknown" is filled from the VCS stamp in the build info, if any.
func Info() string {
	commit, dirty, built := GitCommit, GitDirty == "true", BuildTime
	if commit == "unknown" {
		if info, ok := readBuildInfo(); ok {
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					commit = setting.Value
					if len(commit) > 12 {
						commit = commit[:12]
					}
				case "vcs.modified":
					dirty = setting.Value == "true"
				case "vcs.time":
					if built == "unknown" {
						built = setting.Value
					}
				}
			}
		}
	}
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, suffix, built)
}

// Print writes the --version line for binary.
func Print(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s %s/%s\n", binary, Info(), runtime.GOOS, runtime.GOARCH)
}
