// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the webcli transport gate: the HTTP routes and the
// WebSocket endpoint that carries the cli:* event protocol.
//
// Authentication happens before the upgrade. GET /ws extracts a
// credential from the Authorization header or the token query
// parameter and validates it; a rejected request gets HTTP 401 and
// never becomes a WebSocket, so no event from an unauthenticated peer
// can reach the dispatcher.
//
// Each accepted connection runs three goroutines:
//
//   - the reader decodes frames, answers cli:interrupt immediately,
//     and queues everything else
//   - the worker handles queued events one at a time in arrival order
//   - the writer owns the socket's write side, including keepalive
//     pings
//
// A connection moves through Authenticated (upgraded, no session),
// Active (attached to a session by cli:connect), and Closed. Command
// and directory events are refused until the connection is Active.
//
// The remaining routes serve liveness, health, and the Google login
// flow that mints credentials (see lib/idp and lib/credential).
package gateway
