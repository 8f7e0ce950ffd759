// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	"github.com/bureau-foundation/webcli/dispatch"
	"github.com/bureau-foundation/webcli/lib/config"
	"github.com/bureau-foundation/webcli/lib/credential"
	"github.com/bureau-foundation/webcli/lib/idp"
	"github.com/bureau-foundation/webcli/lib/netutil"
	"github.com/bureau-foundation/webcli/lib/version"
	"github.com/bureau-foundation/webcli/session"
)

// Handshake rejection bodies. Clients see only these; the precise
// reason is logged.
const (
	messageNoCredential      = "Authentication error: No token provided."
	messageInvalidCredential = "Authentication error: Invalid token."
)

// Config configures a Server.
type Config struct {
	// Validator gates /ws and /auth/logout. Required.
	Validator *credential.Validator

	// Registry holds the sessions connections attach to. Required.
	Registry *session.Registry

	// Dispatcher executes cli:command. Required.
	Dispatcher *dispatch.Dispatcher

	// Issuer mints credentials after a successful Google login. The
	// login routes answer 503 when Issuer or Provider is nil.
	Issuer   *credential.Issuer
	Provider *idp.Provider

	// Blacklist receives revocations from /auth/logout. It must be
	// the same Blacklist the Validator consults. Nil disables logout.
	Blacklist *credential.Blacklist

	// FrontendURL is where the login callback sends the browser,
	// with the credential in the query string.
	FrontendURL string

	// AllowedOrigins is the initial origin policy for the WebSocket
	// handshake and CORS. "*" allows any origin. Replace at runtime
	// with SetAllowedOrigins.
	AllowedOrigins []string

	Logger *slog.Logger
}

// Server serves the webcli HTTP routes and WebSocket endpoint.
type Server struct {
	validator   *credential.Validator
	registry    *session.Registry
	dispatcher  *dispatch.Dispatcher
	issuer      *credential.Issuer
	provider    *idp.Provider
	blacklist   *credential.Blacklist
	frontendURL string
	logger      *slog.Logger

	origins atomic.Pointer[originPolicy]

	// ctx is the parent of every connection context. Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	connections map[string]*connection
	wg          sync.WaitGroup
}

// NewServer returns a Server. Panics if a required field is missing.
func NewServer(config Config) *Server {
	if config.Validator == nil {
		panic("gateway.Server: Validator is required")
	}
	if config.Registry == nil {
		panic("gateway.Server: Registry is required")
	}
	if config.Dispatcher == nil {
		panic("gateway.Server: Dispatcher is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		validator:   config.Validator,
		registry:    config.Registry,
		dispatcher:  config.Dispatcher,
		issuer:      config.Issuer,
		provider:    config.Provider,
		blacklist:   config.Blacklist,
		frontendURL: config.FrontendURL,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		connections: make(map[string]*connection),
	}
	server.origins.Store(newOriginPolicy(config.AllowedOrigins))
	return server
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.cors)

	// The WebSocket route stays outside the gzip and logging wrappers:
	// it hijacks the connection and logs its own lifecycle.
	router.Get("/ws", s.handleWebSocket)

	router.Group(func(r chi.Router) {
		r.Use(s.logRequests)
		r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

		r.Get("/", s.handleRoot)
		r.Get("/healthz", s.handleHealth)
		r.Get("/auth/google", s.handleLogin)
		r.Get("/auth/google/callback", s.handleCallback)
		r.Post("/auth/logout", s.handleLogout)
	})
	return router
}

// SetAllowedOrigins replaces the origin policy. Connections already
// upgraded are unaffected.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.origins.Store(newOriginPolicy(origins))
	s.logger.Info("allowed origins updated", "origins", origins)
}

// ConnectionCount returns the number of open WebSocket connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Close refuses new connections, closes every open one, and waits for
// their goroutines to exit. Sessions stay in the registry.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Server) admit(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.connections[c.id] = c
	s.wg.Add(1)
	return true
}

func (s *Server) release(c *connection) {
	s.mu.Lock()
	delete(s.connections, c.id)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("remote_addr", r.RemoteAddr)

	raw := bearerCredential(r)
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		logger.Info("websocket handshake rejected", "reason", "no credential")
		http.Error(w, messageNoCredential, http.StatusUnauthorized)
		return
	}
	identity, err := s.validator.Validate(raw)
	if err != nil {
		logger.Info("websocket handshake rejected", "reason", "invalid credential")
		http.Error(w, messageInvalidCredential, http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		logger.Info("websocket upgrade failed", "error", err)
		return
	}

	c := newConnection(s, socket, identity)
	if !s.admit(c) {
		socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait)) //nolint:realclock socket deadline
		socket.Close()
		return
	}
	defer s.release(c)

	c.serve(s.ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if s.origins.Load().allows(origin) {
		return true
	}
	s.logger.Info("websocket handshake rejected", "reason", "origin not allowed", "origin", origin)
	return false
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "webcli server is running")
}

type health struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	netutil.WriteJSON(w, http.StatusOK, health{
		Status:      "ok",
		Version:     version.Short(),
		Sessions:    s.registry.Len(),
		Connections: s.ConnectionCount(),
	})
}

// cors answers preflight requests and sets Access-Control-Allow-Origin
// for allowed origins, so a browser frontend on another origin can
// call /auth/logout.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.origins.Load().allows(origin) {
			header := w.Header()
			header.Set("Access-Control-Allow-Origin", origin)
			header.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				header.Set("Access-Control-Allow-Methods", "GET, POST")
				header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now() //nolint:realclock request latency
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"duration", time.Since(start), //nolint:realclock request latency
		)
	})
}

// bearerCredential returns the credential from an
// "Authorization: Bearer" header, or "".
func bearerCredential(r *http.Request) string {
	scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// originPolicy is an immutable allowed-origin set. Requests without an
// Origin header (non-browser clients) are always allowed.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) *originPolicy {
	policy := &originPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		if origin == config.AnyOrigin {
			policy.any = true
			continue
		}
		if normalized := normalizeOrigin(origin); normalized != "" {
			policy.allowed[normalized] = struct{}{}
		}
	}
	return policy
}

func (p *originPolicy) allows(origin string) bool {
	if origin == "" || p.any {
		return true
	}
	_, ok := p.allowed[normalizeOrigin(origin)]
	return ok
}

// normalizeOrigin reduces an origin or URL to lowercase scheme://host.
func normalizeOrigin(origin string) string {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme + "://" + parsed.Host)
}
