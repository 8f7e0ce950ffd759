// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bureau-foundation/webcli/lib/codec"
)

// loginState travels to the browser sealed inside the state cookie.
type loginState struct {
	State     string `cbor:"1,keyasint"`
	Verifier  string `cbor:"2,keyasint"`
	ExpiresAt int64  `cbor:"3,keyasint"`
}

// stateAAD binds sealed cookies to their purpose.
var stateAAD = []byte("webcli.oauth.state")

var (
	// ErrStateMismatch means the callback's state parameter does not
	// match the cookie, or the cookie is missing or unreadable.
	ErrStateMismatch = errors.New("idp: oauth state mismatch")

	// ErrStateExpired means the login took longer than the cookie
	// lifetime.
	ErrStateExpired = errors.New("idp: oauth state expired")
)

// sealer encrypts and authenticates loginState values.
type sealer struct {
	key []byte
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("idp: state key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &sealer{key: key}, nil
}

// seal returns base64url(nonce || ciphertext).
func (s *sealer) seal(state loginState) (string, error) {
	plaintext, err := codec.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("idp: encoding state: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("idp: generating nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, stateAAD)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// open reverses seal and rejects expired states.
func (s *sealer) open(value string, now time.Time) (loginState, error) {
	var state loginState
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return state, fmt.Errorf("%w: cookie encoding: %v", ErrStateMismatch, err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return state, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return state, fmt.Errorf("%w: cookie too short", ErrStateMismatch)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, stateAAD)
	if err != nil {
		return state, fmt.Errorf("%w: cookie authentication failed", ErrStateMismatch)
	}
	if err := codec.Unmarshal(plaintext, &state); err != nil {
		return state, fmt.Errorf("%w: decoding state: %v", ErrStateMismatch, err)
	}
	if now.Unix() >= state.ExpiresAt {
		return state, ErrStateExpired
	}
	return state, nil
}

// randomToken returns n random bytes as unpadded base64url.
func randomToken(n int) (string, error) {
	buffer := make([]byte, n)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
