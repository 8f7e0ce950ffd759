// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds per-session server state: the working
// directory commands resolve against and the activity time the idle
// reaper uses.
//
// A [Registry] maps opaque session IDs to [*Session] values. Sessions
// are created lazily by the first connect event that names them and
// survive the connection that created them; several connections may
// attach to one session. The registry's map is the only state shared
// between sessions.
//
// Each Session has an execution slot ([Session.Acquire]) that the
// gateway holds for the whole of a command dispatch or directory
// change, so commands on one session never interleave even when they
// arrive on different connections. Field reads ([Session.WorkingDirectory],
// [Session.Info]) take a separate short lock and never wait for a
// running command.
//
// [ChangeDirectory] is the directory navigator: it resolves a path
// against the session's working directory and commits it only if the
// target is an existing directory. On failure the previous directory
// is kept.
//
// [Reaper] evicts sessions that have been idle longer than a
// configurable timeout. Sessions with a running command or an
// attached connection are never evicted.
package session
