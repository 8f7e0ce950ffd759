// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the HTTP server lifecycle shared by webcli
// binaries: bind, signal readiness, serve until the context is
// cancelled, then drain in-flight requests.
//
// Long-lived WebSocket connections are hijacked out of net/http, so
// Shutdown does not wait for them. Callers close those through their
// own context (see gateway.Server.Close).
package service
