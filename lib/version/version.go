// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of webcli is running, for the
// binaries' --version flags, the status verb, and /healthz.
//
// Release builds inject the values with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/webcli/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Builds without ldflags (go install, go run) fall back to the VCS
// stamp the Go toolchain records in the binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set via -ldflags.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// shortCommitLength matches git rev-parse --short.
const shortCommitLength = 7

// Info returns "<version> (<commit>[-dirty], <build time>)".
func Info() string {
	commit, dirty, built := stamp()
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, suffix, built)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// stamp prefers the ldflags values and fills what they left unset
// from the toolchain's vcs.* build settings.
func stamp() (commit string, dirty bool, built string) {
	commit, dirty, built = GitCommit, GitDirty == "true", BuildTime
	if commit != "unknown" {
		return commit, dirty, built
	}
	info, ok := readBuildInfo()
	if !ok {
		return commit, dirty, built
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			if len(commit) > shortCommitLength {
				commit = commit[:shortCommitLength]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		case "vcs.time":
			if built == "unknown" {
				built = setting.Value
			}
		}
	}
	return commit, dirty, built
}
