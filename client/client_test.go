// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/bureau-foundation/webcli/lib/testutil"
	"github.com/bureau-foundation/webcli/protocol"
)

func TestMain(m *testing.M) {
	// chroma's regexp2 starts a process-lifetime timeout clock.
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("github.com/dlclark/regexp2.runClock"))
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"http://localhost:3001", "ws://localhost:3001/ws", false},
		{"https://cli.example.com/", "wss://cli.example.com/ws", false},
		{"ws://localhost:3001/ws", "ws://localhost:3001/ws", false},
		{"wss://host/custom/path", "wss://host/custom/path", false},
		{"ftp://host", "", true},
		{"http://", "", true},
	}
	for _, test := range tests {
		got, err := Endpoint(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("Endpoint(%q) error = %v, wantErr %v", test.input, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("Endpoint(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestDialRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Authentication error: Invalid token.", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := Dial(context.Background(), server.URL, "stale")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Dial error = %v, want ErrRejected", err)
	}
	if !strings.Contains(err.Error(), "Invalid token.") {
		t.Errorf("Dial error %q does not carry the server message", err)
	}
}

// echoServer upgrades, checks the bearer header, and answers every
// frame with a cli:error naming the event it received.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "no", http.StatusUnauthorized)
			return
		}
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer socket.Close()
		for {
			_, message, err := socket.ReadMessage()
			if err != nil {
				return
			}
			frame, err := protocol.Decode(message)
			if err != nil {
				return
			}
			reply, _ := protocol.Encode(protocol.EventError, protocol.ErrorMessage{Message: frame.Event})
			if err := socket.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientRoundTrip(t *testing.T) {
	server := echoServer(t)
	c, err := Dial(context.Background(), server.URL, "good")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	sends := []struct {
		send func() error
		want string
	}{
		{func() error { return c.Connect("s1", "") }, protocol.EventConnect},
		{func() error { return c.Command("c1", "ls") }, protocol.EventCommand},
		{func() error { return c.ChangeDirectory("..") }, protocol.EventChangeDirectory},
		{c.Interrupt, protocol.EventInterrupt},
		{c.GetSessions, protocol.EventGetSessions},
		{func() error { return c.Disconnect("") }, protocol.EventDisconnect},
	}
	for _, step := range sends {
		if err := step.send(); err != nil {
			t.Fatalf("sending %s: %v", step.want, err)
		}
		frame := testutil.RequireReceive(t, c.Events(), 5*time.Second, "reply to "+step.want)
		if frame.Event != protocol.EventError || !strings.Contains(string(frame.Data), step.want) {
			t.Errorf("Got %s %s, want echo of %s", frame.Event, frame.Data, step.want)
		}
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, ok := <-c.Events(); ok {
		t.Error("Events not closed after Close")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err after clean close = %v", err)
	}
}
