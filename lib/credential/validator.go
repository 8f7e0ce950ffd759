// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/ed25519"
	"errors"
	"log/slog"

	"github.com/bureau-foundation/webcli/lib/clock"
)

// ErrRejected is the only error Validate returns.
var ErrRejected = errors.New("credential rejected")

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	VerifyingKey ed25519.PublicKey

	// Blacklist is consulted after signature and expiry checks. Nil
	// disables revocation.
	Blacklist *Blacklist

	Clock  clock.Clock
	Logger *slog.Logger
}

// Validator is the connection-time credential gate. It has no side
// effects beyond logging.
type Validator struct {
	verifyingKey ed25519.PublicKey
	blacklist    *Blacklist
	clock        clock.Clock
	logger       *slog.Logger
}

// NewValidator returns a Validator. Panics if VerifyingKey is missing.
func NewValidator(config ValidatorConfig) *Validator {
	if len(config.VerifyingKey) != ed25519.PublicKeySize {
		panic("credential.Validator: VerifyingKey is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		verifyingKey: config.VerifyingKey,
		blacklist:    config.Blacklist,
		clock:        clk,
		logger:       logger,
	}
}

// Validate checks raw and returns the identity it carries.
func (v *Validator) Validate(raw string) (Identity, error) {
	claims, err := v.Claims(raw)
	if err != nil {
		return Identity{}, err
	}
	return claims.Identity(), nil
}

// Claims is Validate returning the full claims, for callers that need
// the credential ID or expiry (logout).
func (v *Validator) Claims(raw string) (*Claims, error) {
	if raw == "" {
		v.logger.Info("credential rejected", "reason", "absent")
		return nil, ErrRejected
	}

	claims, err := Verify(v.verifyingKey, raw, v.clock.Now())
	if err != nil {
		v.logger.Info("credential rejected", "reason", err.Error())
		return nil, ErrRejected
	}

	if v.blacklist != nil && v.blacklist.IsRevoked(claims.ID) {
		v.logger.Info("credential rejected",
			"reason", ErrRevoked.Error(),
			"credential_id", claims.ID,
			"subject", claims.Subject,
		)
		return nil, ErrRejected
	}
	return claims, nil
}
