// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/bureau-foundation/webcli/lib/testutil"
)

func TestHTTPServerServesAndShutsDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})

	shutdownCalled := make(chan struct{})
	server := NewHTTPServer(HTTPServerConfig{
		Address:    "127.0.0.1:0",
		Handler:    mux,
		Logger:     slog.New(slog.DiscardHandler),
		OnShutdown: func() { close(shutdownCalled) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")

	response, err := http.Get("http://" + server.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}

	cancel()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "serve returns"); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
	testutil.RequireClosed(t, shutdownCalled, 5*time.Second, "OnShutdown called")
}

func TestHTTPServerListenError(t *testing.T) {
	server := NewHTTPServer(HTTPServerConfig{
		Address: "256.0.0.1:1",
		Handler: http.NewServeMux(),
		Logger:  slog.New(slog.DiscardHandler),
	})
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("Serve() = nil, want listen error")
	}
}

func TestNewHTTPServerPanicsWithoutHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewHTTPServer without Handler did not panic")
		}
	}()
	NewHTTPServer(HTTPServerConfig{Address: ":0", Logger: slog.Default()})
}
