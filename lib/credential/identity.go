// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

// Identity is the decoded user a credential vouches for. It is fixed
// for the lifetime of a connection.
type Identity struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}
