// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/bureau-foundation/webcli/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testKeys(t *testing.T) *KeySet {
	t.Helper()
	keys, err := DeriveKeySet([]byte("test-secret"))
	if err != nil {
		t.Fatalf("DeriveKeySet: %v", err)
	}
	return keys
}

func testIdentity() Identity {
	return Identity{ID: "u-1", Email: "ada@example.com", Name: "Ada"}
}

func TestDeriveKeySetIsDeterministic(t *testing.T) {
	first := testKeys(t)
	second := testKeys(t)
	if !bytes.Equal(first.SigningKey, second.SigningKey) {
		t.Error("same secret produced different signing keys")
	}
	if !bytes.Equal(first.StateKey, second.StateKey) {
		t.Error("same secret produced different state keys")
	}
	if bytes.Equal(first.StateKey, first.SigningKey.Seed()) {
		t.Error("state key equals signing seed")
	}

	other, err := DeriveKeySet([]byte("other-secret"))
	if err != nil {
		t.Fatalf("DeriveKeySet: %v", err)
	}
	if bytes.Equal(first.VerifyingKey, other.VerifyingKey) {
		t.Error("different secrets produced the same verifying key")
	}
}

func TestDeriveKeySetRejectsEmptySecret(t *testing.T) {
	if _, err := DeriveKeySet(nil); err == nil {
		t.Fatal("DeriveKeySet(nil) = nil error, want error")
	}
}

func TestMintThenValidate(t *testing.T) {
	keys := testKeys(t)
	fake := clock.Fake(epoch)
	issuer := NewIssuer(keys.SigningKey, time.Hour, fake)
	validator := NewValidator(ValidatorConfig{
		VerifyingKey: keys.VerifyingKey,
		Clock:        fake,
		Logger:       slog.New(slog.DiscardHandler),
	})

	token, claims, err := issuer.Mint(testIdentity())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if claims.ExpiresAt-claims.IssuedAt != int64(time.Hour/time.Second) {
		t.Errorf("lifetime = %ds, want 3600", claims.ExpiresAt-claims.IssuedAt)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q is not unpadded base64url", token)
	}

	identity, err := validator.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if identity != testIdentity() {
		t.Errorf("identity = %+v, want %+v", identity, testIdentity())
	}
}

func TestValidateRejections(t *testing.T) {
	keys := testKeys(t)
	fake := clock.Fake(epoch)
	issuer := NewIssuer(keys.SigningKey, time.Hour, fake)
	token, claims, err := issuer.Mint(testIdentity())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	otherKeys, err := DeriveKeySet([]byte("someone-else"))
	if err != nil {
		t.Fatalf("DeriveKeySet: %v", err)
	}
	forged, _, err := NewIssuer(otherKeys.SigningKey, time.Hour, fake).Mint(testIdentity())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	wrongAudience, err := Sign(keys.SigningKey, &Claims{
		Subject:   "u-1",
		Audience:  "other-service",
		ID:        "x",
		IssuedAt:  epoch.Unix(),
		ExpiresAt: epoch.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Flip one character in the middle of the payload.
	tampered := []byte(token)
	middle := len(tampered) / 3
	if tampered[middle] == 'A' {
		tampered[middle] = 'B'
	} else {
		tampered[middle] = 'A'
	}

	blacklist := NewBlacklist()
	revokedToken, revokedClaims, err := issuer.Mint(testIdentity())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	blacklist.Revoke(revokedClaims.ID, revokedClaims.ExpiryTime())

	var logs bytes.Buffer
	validator := NewValidator(ValidatorConfig{
		VerifyingKey: keys.VerifyingKey,
		Blacklist:    blacklist,
		Clock:        fake,
		Logger:       slog.New(slog.NewTextHandler(&logs, nil)),
	})

	tests := []struct {
		name       string
		credential string
		reason     string
	}{
		{"absent", "", "absent"},
		{"not_base64", "!!!not-a-credential!!!", "malformed"},
		{"too_short", "AAAA", "too short"},
		{"forged", forged, "invalid Ed25519 signature"},
		{"tampered", string(tampered), ""},
		{"wrong_audience", wrongAudience, "audience"},
		{"revoked", revokedToken, "revoked"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			logs.Reset()
			_, err := validator.Validate(test.credential)
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("Validate() error = %v, want ErrRejected", err)
			}
			if err.Error() != ErrRejected.Error() {
				t.Errorf("error %q leaks detail", err)
			}
			if test.reason != "" && !strings.Contains(logs.String(), test.reason) {
				t.Errorf("log %q does not mention %q", logs.String(), test.reason)
			}
		})
	}

	t.Run("expired", func(t *testing.T) {
		fake.Advance(time.Hour)
		if _, err := validator.Validate(token); !errors.Is(err, ErrRejected) {
			t.Fatalf("Validate(expired) = %v, want ErrRejected", err)
		}
		if claims.ExpiryTime().After(fake.Now()) {
			t.Errorf("expiry %v is after now %v", claims.ExpiryTime(), fake.Now())
		}
	})
}

func TestMintRequiresIdentityID(t *testing.T) {
	keys := testKeys(t)
	if _, _, err := NewIssuer(keys.SigningKey, 0, nil).Mint(Identity{Email: "x@example.com"}); err == nil {
		t.Fatal("Mint without ID = nil error, want error")
	}
}

func TestMintAssignsUniqueIDs(t *testing.T) {
	keys := testKeys(t)
	issuer := NewIssuer(keys.SigningKey, 0, clock.Fake(epoch))
	seen := make(map[string]bool)
	for range 50 {
		_, claims, err := issuer.Mint(testIdentity())
		if err != nil {
			t.Fatalf("Mint: %v", err)
		}
		if seen[claims.ID] {
			t.Fatalf("duplicate credential ID %q", claims.ID)
		}
		seen[claims.ID] = true
	}
}

func TestBlacklistCleanup(t *testing.T) {
	blacklist := NewBlacklist()
	blacklist.Revoke("old", epoch)
	blacklist.Revoke("new", epoch.Add(time.Hour))

	if removed := blacklist.Cleanup(epoch); removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
	if blacklist.IsRevoked("old") {
		t.Error("expired entry survived cleanup")
	}
	if !blacklist.IsRevoked("new") {
		t.Error("live entry removed by cleanup")
	}
	if blacklist.Len() != 1 {
		t.Errorf("Len() = %d, want 1", blacklist.Len())
	}
}

func TestIdentityRoundTripsThroughCredential(t *testing.T) {
	keys := testKeys(t)
	fake := clock.Fake(epoch)
	issuer := NewIssuer(keys.SigningKey, time.Hour, fake)
	validator := NewValidator(ValidatorConfig{
		VerifyingKey: keys.VerifyingKey,
		Clock:        fake,
		Logger:       slog.New(slog.DiscardHandler),
	})

	rapid.Check(t, func(t *rapid.T) {
		identity := Identity{
			ID:      rapid.StringMatching(`[a-z0-9-]{1,40}`).Draw(t, "id"),
			Email:   rapid.String().Draw(t, "email"),
			Name:    rapid.String().Draw(t, "name"),
			Picture: rapid.String().Draw(t, "picture"),
		}
		token, _, err := issuer.Mint(identity)
		if err != nil {
			t.Fatalf("Mint: %v", err)
		}
		got, err := validator.Validate(token)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if got != identity {
			t.Fatalf("identity = %+v, want %+v", got, identity)
		}
	})
}
