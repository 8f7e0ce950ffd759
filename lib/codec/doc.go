// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds webcli's single CBOR configuration.
//
// JSON is the format of everything a browser sees: WebSocket frames,
// response envelopes, HTTP bodies. CBOR is used where bytes are signed:
// the credential payload. Signing requires a canonical encoding, so the
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2) and the same
// claims always produce the same bytes.
//
// Types encoded here use `cbor` struct tags with integer keys
// (`cbor:"1,keyasint"`) to keep credentials short enough for a URL
// query parameter.
package codec
