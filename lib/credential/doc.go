// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential mints and validates the signed credential a
// client presents when it opens a WebSocket connection.
//
// # Wire format
//
// A credential is the unpadded base64url encoding of
//
//	[CBOR claims bytes] [64-byte Ed25519 signature over the claims]
//
// The split point is always len(raw) - 64. The claims carry the
// identity produced by the identity provider, an audience, a unique
// ID used for revocation, and issue/expiry times in Unix seconds.
//
// # Keys
//
// Deployments configure a single shared secret. [DeriveKeySet]
// expands it with HKDF-SHA256 into the Ed25519 signing keypair and
// the symmetric key that seals OAuth state cookies, each under its
// own info string so the keys are independent.
//
// # Validation
//
// [Validator.Validate] is the connection-time gate. Every failure
// (absent, malformed, bad signature, expired, wrong audience,
// revoked) returns the single sentinel [ErrRejected]; the precise
// reason is logged, never returned to the peer.
//
// Revocation is handled by [Blacklist], which forgets an entry once
// the revoked credential would have expired anyway.
package credential
