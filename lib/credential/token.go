// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/webcli/lib/codec"
)

const signatureSize = ed25519.SignatureSize

// Audience is the only audience webcli mints and accepts.
const Audience = "webcli"

// Claims is the signed payload of a credential.
type Claims struct {
	Subject  string `cbor:"1,keyasint"`
	Email    string `cbor:"2,keyasint"`
	Name     string `cbor:"3,keyasint,omitempty"`
	Picture  string `cbor:"4,keyasint,omitempty"`
	Audience string `cbor:"5,keyasint"`

	// ID identifies this credential for revocation.
	ID string `cbor:"6,keyasint"`

	IssuedAt  int64 `cbor:"7,keyasint"`
	ExpiresAt int64 `cbor:"8,keyasint"`
}

// Identity returns the user the claims describe.
func (c *Claims) Identity() Identity {
	return Identity{
		ID:      c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		Picture: c.Picture,
	}
}

// ExpiryTime returns ExpiresAt as a time.Time.
func (c *Claims) ExpiryTime() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// Precise verification failures. Validator collapses these into
// ErrRejected before anything reaches a client.
var (
	ErrMalformed        = errors.New("credential: malformed encoding")
	ErrTooShort         = errors.New("credential: too short for signature")
	ErrInvalidSignature = errors.New("credential: invalid Ed25519 signature")
	ErrExpired          = errors.New("credential: expired")
	ErrAudienceMismatch = errors.New("credential: audience does not match")
	ErrRevoked          = errors.New("credential: revoked")
)

var encoding = base64.RawURLEncoding

// Sign encodes and signs claims, returning the transport string.
func Sign(privateKey ed25519.PrivateKey, claims *Claims) (string, error) {
	payload, err := codec.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("credential: encoding claims: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	raw := make([]byte, len(payload)+signatureSize)
	copy(raw, payload)
	copy(raw[len(payload):], signature)
	return encoding.EncodeToString(raw), nil
}

// Decode splits a transport string into claims bytes and signature
// without verifying anything. Used by tooling that inspects
// credentials.
func Decode(credential string) (payload, signature []byte, err error) {
	raw, err := encoding.DecodeString(credential)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) <= signatureSize {
		return nil, nil, ErrTooShort
	}
	split := len(raw) - signatureSize
	return raw[:split], raw[split:], nil
}

// Verify checks the signature, decodes the claims, and checks expiry
// and audience against now. Revocation is the caller's concern.
func Verify(publicKey ed25519.PublicKey, credential string, now time.Time) (*Claims, error) {
	payload, signature, err := Decode(credential)
	if err != nil {
		return nil, err
	}

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var claims Claims
	if err := codec.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: decoding claims: %v", ErrMalformed, err)
	}

	if now.Unix() >= claims.ExpiresAt {
		return nil, ErrExpired
	}
	if claims.Audience != Audience {
		return nil, fmt.Errorf("%w: got %q", ErrAudienceMismatch, claims.Audience)
	}
	return &claims, nil
}
