// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides network and HTTP I/O utilities.
//
// HTTP response helpers (ReadResponse, DecodeResponse, ErrorBody) bound
// all response body reads at MaxResponseSize. They are for small JSON
// API responses such as the identity provider's token and userinfo
// endpoints, not for streaming bodies.
//
// Connection error helpers (IsExpectedCloseError) classify errors that
// occur during normal WebSocket and TCP teardown so callers do not log
// them as failures.
package netutil
