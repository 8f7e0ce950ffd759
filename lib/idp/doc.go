// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package idp implements the Google OAuth2 authorization-code flow
// that produces the [credential.Identity] webcli mints credentials for.
//
// [Provider.Begin] builds the authorization URL with a random state and
// a PKCE (S256) verifier. Both are sealed with XChaCha20-Poly1305 under
// the deployment's state key into a short-lived HttpOnly cookie, so
// the server keeps no per-login state. [Provider.Complete] opens the
// cookie, checks the returned state, exchanges the code (sending the
// verifier), and fetches the user's profile from the userinfo
// endpoint.
//
// [credential.Identity]: github.com/bureau-foundation/webcli/lib/credential
package idp
