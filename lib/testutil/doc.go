// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for webcli packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout safety valve so individual tests do not call
// time.After directly. They are the only place tests use real
// wall-clock timeouts; everything else runs on [clock.Fake].
//
// [RequireEventually] polls a condition for effects that have no
// completion channel.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation (session IDs, command IDs).
//
// [WorkTree] builds a small directory tree for tests that exercise
// filesystem verbs.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// [clock.Fake]: github.com/bureau-foundation/webcli/lib/clock
package testutil
