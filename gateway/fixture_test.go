// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bureau-foundation/webcli/client"
	"github.com/bureau-foundation/webcli/dispatch"
	"github.com/bureau-foundation/webcli/gateway"
	"github.com/bureau-foundation/webcli/lib/clock"
	"github.com/bureau-foundation/webcli/lib/credential"
	"github.com/bureau-foundation/webcli/lib/idp"
	"github.com/bureau-foundation/webcli/lib/testutil"
	"github.com/bureau-foundation/webcli/protocol"
	"github.com/bureau-foundation/webcli/session"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	frontendURL    = "http://frontend.test/app"
	frontendOrigin = "http://frontend.test"
	receiveTimeout = 5 * time.Second
)

type fixture struct {
	root      string
	clock     *clock.FakeClock
	keys      *credential.KeySet
	validator *credential.Validator
	issuer    *credential.Issuer
	blacklist *credential.Blacklist
	registry  *session.Registry
	server    *gateway.Server
	http      *httptest.Server

	// browser does not follow redirects.
	browser *http.Client
}

type fixtureOption func(*gateway.Config)

func withProvider(provider *idp.Provider) fixtureOption {
	return func(config *gateway.Config) { config.Provider = provider }
}

func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()

	root := testutil.WorkTree(t, map[string]string{
		"notes.txt":   "hello\n",
		"src/":        "",
		"src/main.go": "package main\n",
	})
	clk := clock.Fake(epoch)
	logger := slog.New(slog.DiscardHandler)

	keys, err := credential.DeriveKeySet([]byte("gateway-test-secret"))
	if err != nil {
		t.Fatalf("DeriveKeySet: %v", err)
	}
	blacklist := credential.NewBlacklist()
	validator := credential.NewValidator(credential.ValidatorConfig{
		VerifyingKey: keys.VerifyingKey,
		Blacklist:    blacklist,
		Clock:        clk,
		Logger:       logger,
	})
	issuer := credential.NewIssuer(keys.SigningKey, time.Hour, clk)
	registry := session.NewRegistry(session.RegistryConfig{
		DefaultWorkingDirectory: root,
		Clock:                   clk,
		Logger:                  logger,
	})

	config := gateway.Config{
		Validator:      validator,
		Registry:       registry,
		Dispatcher:     dispatch.New(dispatch.Config{Clock: clk, Logger: logger}),
		Issuer:         issuer,
		Blacklist:      blacklist,
		FrontendURL:    frontendURL,
		AllowedOrigins: []string{frontendOrigin},
		Logger:         logger,
	}
	for _, option := range options {
		option(&config)
	}
	server := gateway.NewServer(config)
	httpServer := httptest.NewServer(server.Handler())

	browser := *httpServer.Client()
	browser.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	t.Cleanup(func() {
		server.Close()
		httpServer.Close()
	})

	return &fixture{
		root:      root,
		clock:     clk,
		keys:      keys,
		validator: validator,
		issuer:    issuer,
		blacklist: blacklist,
		registry:  registry,
		server:    server,
		http:      httpServer,
		browser:   &browser,
	}
}

// credential mints a credential for a user whose ID is userID.
func (f *fixture) credential(t *testing.T, userID string) string {
	t.Helper()
	raw, _, err := f.issuer.Mint(credential.Identity{
		ID:    userID,
		Email: userID + "@example.com",
		Name:  "User " + userID,
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return raw
}

// dial opens a client connection authenticated as userID.
func (f *fixture) dial(t *testing.T, userID string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), receiveTimeout)
	defer cancel()
	c, err := client.Dial(ctx, f.http.URL, f.credential(t, userID))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// connect dials and attaches to sessionID ("" for the default).
func (f *fixture) connect(t *testing.T, userID, sessionID string) (*client.Client, protocol.Connected) {
	t.Helper()
	c := f.dial(t, userID)
	if err := c.Connect(sessionID, ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c, expect[protocol.Connected](t, c, protocol.EventConnected)
}

// expect receives the next frame, requires it to be event, and decodes
// its payload.
func expect[T any](t *testing.T, c *client.Client, event string) T {
	t.Helper()
	frame := testutil.RequireReceive(t, c.Events(), receiveTimeout, "waiting for "+event)
	if frame.Event != event {
		t.Fatalf("Got event %s %s, want %s", frame.Event, frame.Data, event)
	}
	return decode[T](t, frame)
}

func decode[T any](t *testing.T, frame protocol.Frame) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("decoding %s payload %s: %v", frame.Event, frame.Data, err)
	}
	return payload
}

// run sends a command and returns its response.
func run(t *testing.T, c *client.Client, id, text string) protocol.Response {
	t.Helper()
	if err := c.Command(id, text); err != nil {
		t.Fatalf("Command(%q): %v", text, err)
	}
	return expect[protocol.Response](t, c, protocol.EventResponse)
}
