// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bureau-foundation/webcli/client"
	"github.com/bureau-foundation/webcli/lib/idp"
	"github.com/bureau-foundation/webcli/lib/netutil"
)

func get(t *testing.T, f *fixture, path string) (*http.Response, string) {
	t.Helper()
	response, err := f.browser.Get(f.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading %s body: %v", path, err)
	}
	return response, string(body)
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t)

	response, body := get(t, f, "/")
	if response.StatusCode != http.StatusOK || body != "webcli server is running" {
		t.Errorf("GET /: Got %d %q", response.StatusCode, body)
	}

	f.connect(t, "u1", "health-check")
	response, body = get(t, f, "/healthz")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("GET /healthz: Got status %d", response.StatusCode)
	}
	var health struct {
		Status      string `json:"status"`
		Sessions    int    `json:"sessions"`
		Connections int    `json:"connections"`
	}
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatalf("decoding health %q: %v", body, err)
	}
	if health.Status != "ok" || health.Sessions != 1 || health.Connections != 1 {
		t.Errorf("Got health %+v, want ok with 1 session and 1 connection", health)
	}
}

func TestLoginWithoutProvider(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/auth/google", "/auth/google/callback?code=x"} {
		if response, _ := get(t, f, path); response.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("GET %s: Got status %d, want 503", path, response.StatusCode)
		}
	}
}

func logout(t *testing.T, f *fixture, raw string) int {
	t.Helper()
	request, err := http.NewRequest(http.MethodPost, f.http.URL+"/auth/logout", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if raw != "" {
		request.Header.Set("Authorization", "Bearer "+raw)
	}
	response, err := f.browser.Do(request)
	if err != nil {
		t.Fatalf("POST /auth/logout: %v", err)
	}
	response.Body.Close()
	return response.StatusCode
}

func TestLogoutRevokesCredential(t *testing.T) {
	f := newFixture(t)
	raw := f.credential(t, "u1")

	if status := logout(t, f, ""); status != http.StatusUnauthorized {
		t.Errorf("logout without credential: Got %d, want 401", status)
	}
	if status := logout(t, f, "forged"); status != http.StatusUnauthorized {
		t.Errorf("logout with forged credential: Got %d, want 401", status)
	}
	if status := logout(t, f, raw); status != http.StatusNoContent {
		t.Fatalf("logout: Got %d, want 204", status)
	}
	if f.blacklist.Len() != 1 {
		t.Errorf("blacklist has %d entries, want 1", f.blacklist.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), receiveTimeout)
	defer cancel()
	if c, err := client.Dial(ctx, f.http.URL, raw); !errors.Is(err, client.ErrRejected) {
		if c != nil {
			c.Close()
		}
		t.Errorf("Dial with revoked credential: error = %v, want ErrRejected", err)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	request, err := http.NewRequest(http.MethodOptions, f.http.URL+"/auth/logout", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	request.Header.Set("Origin", frontendOrigin)
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	response, err := f.browser.Do(request)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	response.Body.Close()

	if response.StatusCode != http.StatusNoContent {
		t.Errorf("Got status %d, want 204", response.StatusCode)
	}
	if got := response.Header.Get("Access-Control-Allow-Origin"); got != frontendOrigin {
		t.Errorf("Got Access-Control-Allow-Origin %q, want %q", got, frontendOrigin)
	}
}

// fakeGoogle serves the token and userinfo endpoints for the login
// flow. It accepts a single authorization code.
func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		netutil.WriteJSON(w, http.StatusOK, map[string]any{"access_token": "access-1", "token_type": "Bearer"})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		netutil.WriteJSON(w, http.StatusOK, map[string]string{
			"sub":   "g-42",
			"email": "grace@example.com",
			"name":  "Grace Hopper",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newLoginFixture(t *testing.T) *fixture {
	t.Helper()
	google := fakeGoogle(t)

	// The state key only has to match between Begin and Complete.
	stateKey := []byte(strings.Repeat("k", 32))
	provider, err := idp.New(idp.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://api.test/auth/google/callback",
		StateKey:     stateKey,
		AuthURL:      "https://accounts.test/auth",
		TokenURL:     google.URL + "/token",
		UserInfoURL:  google.URL + "/userinfo",
		HTTPClient:   google.Client(),
	})
	if err != nil {
		t.Fatalf("idp.New: %v", err)
	}
	return newFixture(t, withProvider(provider))
}

func TestGoogleLogin(t *testing.T) {
	f := newLoginFixture(t)

	// Step 1: the login route redirects to Google and sets the state
	// cookie.
	response, _ := get(t, f, "/auth/google")
	if response.StatusCode != http.StatusFound {
		t.Fatalf("GET /auth/google: Got status %d, want 302", response.StatusCode)
	}
	location, err := url.Parse(response.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	if location.Host != "accounts.test" {
		t.Errorf("Got redirect host %q, want accounts.test", location.Host)
	}
	var stateCookie *http.Cookie
	for _, cookie := range response.Cookies() {
		if cookie.Name == idp.StateCookieName {
			stateCookie = cookie
		}
	}
	if stateCookie == nil {
		t.Fatal("login response did not set the state cookie")
	}

	// Step 2: Google sends the browser back with the code and state.
	query := url.Values{"code": {"good-code"}, "state": {location.Query().Get("state")}}
	request, err := http.NewRequest(http.MethodGet, f.http.URL+"/auth/google/callback?"+query.Encode(), nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	request.AddCookie(stateCookie)
	callback, err := f.browser.Do(request)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	callback.Body.Close()
	if callback.StatusCode != http.StatusFound {
		t.Fatalf("callback: Got status %d, want 302", callback.StatusCode)
	}

	// Step 3: the frontend receives a credential the gateway accepts.
	target, err := url.Parse(callback.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parsing callback Location: %v", err)
	}
	if target.Host != "frontend.test" || target.Path != "/app" {
		t.Errorf("Got redirect %s, want the frontend URL", target)
	}
	values := target.Query()
	if values.Get("userId") != "g-42" || values.Get("userEmail") != "grace@example.com" || values.Get("userName") != "Grace Hopper" {
		t.Errorf("Got profile %v", values)
	}
	identity, err := f.validator.Validate(values.Get("token"))
	if err != nil {
		t.Fatalf("Validate(issued credential): %v", err)
	}
	if identity.ID != "g-42" || identity.Email != "grace@example.com" {
		t.Errorf("Got identity %+v", identity)
	}
}

func TestGoogleCallbackFailures(t *testing.T) {
	f := newLoginFixture(t)

	tests := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{"no code", "/auth/google/callback", http.StatusBadRequest, "Authorization code not found."},
		{"no state cookie", "/auth/google/callback?code=good-code&state=s", http.StatusBadRequest, "Login session expired or invalid."},
		{"provider error", "/auth/google/callback?error=access_denied", http.StatusBadGateway, "Failed to authenticate with Google."},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response, body := get(t, f, test.path)
			if response.StatusCode != test.status {
				t.Errorf("Got status %d, want %d", response.StatusCode, test.status)
			}
			if !strings.Contains(body, test.body) {
				t.Errorf("Got body %q, want it to contain %q", body, test.body)
			}
		})
	}
}
