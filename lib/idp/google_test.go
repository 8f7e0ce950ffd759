// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/webcli/lib/clock"
	"github.com/bureau-foundation/webcli/lib/netutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGoogle serves the token and userinfo endpoints. It remembers the
// PKCE challenge from the authorization URL so the token endpoint can
// check the verifier the way Google does.
type fakeGoogle struct {
	server        *httptest.Server
	wantChallenge string
	tokenStatus   int
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	fake := &fakeGoogle{tokenStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if fake.tokenStatus != http.StatusOK {
			http.Error(w, `{"error":"invalid_grant"}`, fake.tokenStatus)
			return
		}
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("client_secret") != "client-secret" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		if challenge(r.PostForm.Get("code_verifier")) != fake.wantChallenge {
			http.Error(w, `{"error":"invalid_grant","error_description":"pkce"}`, http.StatusBadRequest)
			return
		}
		netutil.WriteJSON(w, http.StatusOK, map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3599,
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		netutil.WriteJSON(w, http.StatusOK, map[string]string{
			"sub":     "1122334455",
			"email":   "ada@example.com",
			"name":    "Ada Lovelace",
			"picture": "https://example.com/ada.png",
		})
	})
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func newTestProvider(t *testing.T, fake *fakeGoogle, clk clock.Clock) *Provider {
	t.Helper()
	provider, err := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://api.example.com/auth/google/callback",
		StateKey:     bytes.Repeat([]byte{7}, 32),
		AuthURL:      "https://accounts.example.com/auth",
		TokenURL:     fake.server.URL + "/token",
		UserInfoURL:  fake.server.URL + "/userinfo",
		HTTPClient:   fake.server.Client(),
		Clock:        clk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return provider
}

// callback builds the request the browser sends back after consent.
func callback(t *testing.T, cookie *http.Cookie, query url.Values) *http.Request {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query.Encode(), nil)
	if cookie != nil {
		request.AddCookie(cookie)
	}
	return request
}

func begin(t *testing.T, provider *Provider, fake *fakeGoogle) (url.Values, *http.Cookie) {
	t.Helper()
	authorizationURL, cookie, err := provider.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	parsed, err := url.Parse(authorizationURL)
	if err != nil {
		t.Fatalf("parsing authorization URL: %v", err)
	}
	query := parsed.Query()
	fake.wantChallenge = query.Get("code_challenge")
	return query, cookie
}

func TestBeginBuildsAuthorizationURL(t *testing.T) {
	fake := newFakeGoogle(t)
	provider := newTestProvider(t, fake, clock.Fake(epoch))

	authorizationURL, cookie, err := provider.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !strings.HasPrefix(authorizationURL, "https://accounts.example.com/auth?") {
		t.Errorf("authorization URL = %q", authorizationURL)
	}
	parsed, _ := url.Parse(authorizationURL)
	query := parsed.Query()
	checks := map[string]string{
		"client_id":             "client-id",
		"redirect_uri":          "https://api.example.com/auth/google/callback",
		"response_type":         "code",
		"code_challenge_method": "S256",
	}
	for key, want := range checks {
		if got := query.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if query.Get("state") == "" || query.Get("code_challenge") == "" {
		t.Errorf("state/challenge missing from %v", query)
	}

	if cookie.Name != StateCookieName || !cookie.HttpOnly || !cookie.Secure {
		t.Errorf("cookie = %+v, want HttpOnly Secure %s", cookie, StateCookieName)
	}
	if strings.Contains(cookie.Value, query.Get("state")) {
		t.Error("cookie carries the state in the clear")
	}
}

func TestCompleteHappyPath(t *testing.T) {
	fake := newFakeGoogle(t)
	provider := newTestProvider(t, fake, clock.Fake(epoch))
	query, cookie := begin(t, provider, fake)

	identity, err := provider.Complete(context.Background(), callback(t, cookie, url.Values{
		"state": {query.Get("state")},
		"code":  {"good-code"},
	}))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if identity.ID != "1122334455" || identity.Email != "ada@example.com" || identity.Name != "Ada Lovelace" {
		t.Errorf("identity = %+v", identity)
	}
	if identity.Picture != "https://example.com/ada.png" {
		t.Errorf("Picture = %q", identity.Picture)
	}
}

func TestCompleteFailures(t *testing.T) {
	fake := newFakeGoogle(t)
	fakeClock := clock.Fake(epoch)
	provider := newTestProvider(t, fake, fakeClock)
	query, cookie := begin(t, provider, fake)
	state := query.Get("state")

	tampered := *cookie
	flipped := []byte(cookie.Value)
	middle := len(flipped) / 2
	if flipped[middle] == 'A' {
		flipped[middle] = 'B'
	} else {
		flipped[middle] = 'A'
	}
	tampered.Value = string(flipped)

	tests := []struct {
		name    string
		cookie  *http.Cookie
		query   url.Values
		wantErr error
	}{
		{"no_cookie", nil, url.Values{"state": {state}, "code": {"good-code"}}, ErrStateMismatch},
		{"wrong_state", cookie, url.Values{"state": {"forged"}, "code": {"good-code"}}, ErrStateMismatch},
		{"missing_state", cookie, url.Values{"code": {"good-code"}}, ErrStateMismatch},
		{"tampered_cookie", &tampered, url.Values{"state": {state}, "code": {"good-code"}}, ErrStateMismatch},
		{"provider_error", cookie, url.Values{"error": {"access_denied"}}, ErrExchange},
		{"no_code", cookie, url.Values{"state": {state}}, ErrExchange},
		{"bad_code", cookie, url.Values{"state": {state}, "code": {"stolen"}}, ErrExchange},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := provider.Complete(context.Background(), callback(t, test.cookie, test.query))
			if !errors.Is(err, test.wantErr) {
				t.Errorf("Complete() error = %v, want %v", err, test.wantErr)
			}
		})
	}

	t.Run("expired", func(t *testing.T) {
		fakeClock.Advance(StateTTL)
		_, err := provider.Complete(context.Background(), callback(t, cookie, url.Values{
			"state": {state},
			"code":  {"good-code"},
		}))
		if !errors.Is(err, ErrStateExpired) {
			t.Errorf("Complete() error = %v, want ErrStateExpired", err)
		}
	})
}

func TestCompleteRejectsVerifierFromAnotherLogin(t *testing.T) {
	fake := newFakeGoogle(t)
	provider := newTestProvider(t, fake, clock.Fake(epoch))

	// The first login's cookie with the second login's challenge
	// registered at the provider: the verifier no longer matches.
	firstQuery, firstCookie := begin(t, provider, fake)
	begin(t, provider, fake)

	_, err := provider.Complete(context.Background(), callback(t, firstCookie, url.Values{
		"state": {firstQuery.Get("state")},
		"code":  {"good-code"},
	}))
	if !errors.Is(err, ErrExchange) {
		t.Errorf("Complete() error = %v, want ErrExchange", err)
	}
}

func TestTokenEndpointFailure(t *testing.T) {
	fake := newFakeGoogle(t)
	fake.tokenStatus = http.StatusInternalServerError
	provider := newTestProvider(t, fake, clock.Fake(epoch))
	query, cookie := begin(t, provider, fake)

	_, err := provider.Complete(context.Background(), callback(t, cookie, url.Values{
		"state": {query.Get("state")},
		"code":  {"good-code"},
	}))
	if !errors.Is(err, ErrExchange) || !strings.Contains(err.Error(), "500") {
		t.Errorf("Complete() error = %v, want ErrExchange mentioning 500", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	base := Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:3001/auth/google/callback",
		StateKey:     make([]byte, 32),
	}
	if _, err := New(base); err != nil {
		t.Fatalf("New(valid) = %v", err)
	}

	missingSecret := base
	missingSecret.ClientSecret = ""
	if _, err := New(missingSecret); err == nil {
		t.Error("New without client secret = nil error")
	}

	shortKey := base
	shortKey.StateKey = make([]byte, 16)
	if _, err := New(shortKey); err == nil {
		t.Error("New with short state key = nil error")
	}
}

func TestChallengeMatchesRFC7636Example(t *testing.T) {
	// RFC 7636 Appendix B.
	got := challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	if got != "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM" {
		t.Errorf("challenge = %q", got)
	}
}
