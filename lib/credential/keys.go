// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// InsecureDefaultSecret is used when no signing secret is configured.
// Anyone who reads this source can mint credentials for a server
// running with it; config.Validate refuses it in production.
const InsecureDefaultSecret = "fallback_credential_secret"

// HKDF info strings. Changing one invalidates everything derived
// under it.
var (
	hkdfInfoSigning = []byte("webcli.credential.signing.v1")
	hkdfInfoState   = []byte("webcli.oauth.state.v1")
)

// KeySize is the size of the derived symmetric state key.
const KeySize = 32

// KeySet holds every key derived from the deployment secret.
type KeySet struct {
	SigningKey   ed25519.PrivateKey
	VerifyingKey ed25519.PublicKey

	// StateKey seals OAuth state cookies (XChaCha20-Poly1305).
	StateKey []byte
}

// DeriveKeySet expands secret into a KeySet. The secret is borrowed
// and not modified.
func DeriveKeySet(secret []byte) (*KeySet, error) {
	if len(secret) == 0 {
		return nil, errors.New("credential: signing secret is empty")
	}

	seed, err := deriveKey(secret, hkdfInfoSigning, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	signing := ed25519.NewKeyFromSeed(seed)
	for index := range seed {
		seed[index] = 0
	}

	state, err := deriveKey(secret, hkdfInfoState, KeySize)
	if err != nil {
		return nil, err
	}

	return &KeySet{
		SigningKey:   signing,
		VerifyingKey: signing.Public().(ed25519.PublicKey),
		StateKey:     state,
	}, nil
}

func deriveKey(secret, info []byte, size int) ([]byte, error) {
	key := make([]byte, size)
	reader := hkdf.New(sha256.New, secret, nil, info)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("credential: deriving %s: %w", info, err)
	}
	return key, nil
}
