// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/webcli/lib/clock"
)

// DefaultTTL is how long a minted credential stays valid when the
// issuer is not configured otherwise.
const DefaultTTL = time.Hour

// Issuer mints credentials for identities returned by the identity
// provider.
type Issuer struct {
	signingKey ed25519.PrivateKey
	ttl        time.Duration
	clock      clock.Clock
}

// NewIssuer returns an Issuer. A zero ttl selects DefaultTTL; a nil
// clock selects the real clock.
func NewIssuer(signingKey ed25519.PrivateKey, ttl time.Duration, clk clock.Clock) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Issuer{signingKey: signingKey, ttl: ttl, clock: clk}
}

// Mint signs a credential for identity and returns it with its claims.
func (i *Issuer) Mint(identity Identity) (string, *Claims, error) {
	if identity.ID == "" {
		return "", nil, fmt.Errorf("credential: identity has no id")
	}
	now := i.clock.Now()
	claims := &Claims{
		Subject:   identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		Picture:   identity.Picture,
		Audience:  Audience,
		ID:        uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(i.ttl).Unix(),
	}
	token, err := Sign(i.signingKey, claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}
