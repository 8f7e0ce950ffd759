// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/webcli/lib/clock"
)

var (
	// ErrNotFound is returned by Get for an unknown session ID.
	ErrNotFound = errors.New("session not found")

	// ErrEmptyID is returned by GetOrCreate for an empty session ID.
	ErrEmptyID = errors.New("session id is empty")

	// ErrAttached is returned by Remove while a connection is still
	// attached to the session.
	ErrAttached = errors.New("session is attached to a connection")
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// DefaultWorkingDirectory is where sessions start when the
	// connect event does not name a directory. Defaults to the
	// process's home directory, or "/" if that is unknown.
	DefaultWorkingDirectory string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Registry maps session IDs to sessions. Safe for concurrent use.
type Registry struct {
	defaultWorkingDirectory string
	clock                   clock.Clock
	logger                  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry(config RegistryConfig) *Registry {
	directory := config.DefaultWorkingDirectory
	if directory == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = string(filepath.Separator)
		}
		directory = home
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		defaultWorkingDirectory: filepath.Clean(directory),
		clock:                   clk,
		logger:                  logger,
		sessions:                make(map[string]*Session),
	}
}

// DefaultWorkingDirectory returns the directory new sessions start in.
func (r *Registry) DefaultWorkingDirectory() string {
	return r.defaultWorkingDirectory
}

// GetOrCreate returns the session for id, creating it if needed. A new
// session starts in requestedWorkingDirectory when non-empty (resolved
// against the default directory if relative), else in the default.
// An existing session is returned unchanged: a requested directory
// never resets it. created reports whether a session was created.
func (r *Registry) GetOrCreate(id, owner, requestedWorkingDirectory string) (session *Session, created bool, err error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}

	r.mu.RLock()
	existing, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return existing, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	session, created = r.getOrCreateLocked(id, owner, requestedWorkingDirectory)
	return session, created, nil
}

// AttachOrCreate is GetOrCreate followed by Attach, done under the
// registry lock so EvictIdle and Remove never see the session between
// lookup and attach. The caller must Detach when done.
func (r *Registry) AttachOrCreate(id, owner, requestedWorkingDirectory string) (session *Session, created bool, err error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	session, created = r.getOrCreateLocked(id, owner, requestedWorkingDirectory)
	session.Attach(r.clock.Now())
	return session, created, nil
}

// getOrCreateLocked requires r.mu held for writing.
func (r *Registry) getOrCreateLocked(id, owner, requestedWorkingDirectory string) (*Session, bool) {
	if existing, ok := r.sessions[id]; ok {
		return existing, false
	}

	directory := r.defaultWorkingDirectory
	if requestedWorkingDirectory != "" {
		directory = Resolve(r.defaultWorkingDirectory, requestedWorkingDirectory)
	}
	session := newSession(id, owner, directory, r.clock.Now())
	r.sessions[id] = session
	r.logger.Debug("session created", "session_id", id, "owner", owner, "working_directory", directory)
	return session, true
}

// Get returns the session for id or ErrNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

// Touch updates the session's activity time. Unknown IDs are ignored;
// Touch never creates a session.
func (r *Registry) Touch(id string) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		session.touch(r.clock.Now())
	}
}

// Remove deletes the session. It returns ErrNotFound for an unknown
// ID and ErrAttached, leaving the session in place, while any
// connection is attached: one ID never maps to two live sessions.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if session.isAttached() {
		return ErrAttached
	}
	delete(r.sessions, id)
	return nil
}

// ListByOwner returns snapshots of owner's sessions, oldest first.
func (r *Registry) ListByOwner(owner string) []Info {
	r.mu.RLock()
	var owned []*Session
	for _, session := range r.sessions {
		if session.Owner == owner {
			owned = append(owned, session)
		}
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(owned))
	for _, session := range owned {
		infos = append(infos, session.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Now is the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// EvictIdle removes every session idle for at least timeout that has
// no running command and no attached connection. Returns the evicted
// IDs.
func (r *Registry) EvictIdle(timeout time.Duration) []string {
	cutoff := r.clock.Now().Add(-timeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id, session := range r.sessions {
		if session.evictable(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
