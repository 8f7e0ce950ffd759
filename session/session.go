// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"
	"time"
)

// Session is the mutable state of one logical client conversation.
type Session struct {
	// ID is the opaque identifier clients use to attach.
	ID string

	// Owner is the identity ID of the user whose connect event
	// created the session. Used for listing only.
	Owner string

	CreatedAt time.Time

	// slot is a one-element semaphore serializing command execution.
	slot chan struct{}

	mu               sync.Mutex
	workingDirectory string
	lastActivity     time.Time
	inFlight         int
	attached         int
}

func newSession(id, owner, workingDirectory string, now time.Time) *Session {
	return &Session{
		ID:               id,
		Owner:            owner,
		CreatedAt:        now,
		slot:             make(chan struct{}, 1),
		workingDirectory: workingDirectory,
		lastActivity:     now,
	}
}

// Info is a point-in-time view of a session for listings.
type Info struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActivity     time.Time `json:"lastActivity"`
	WorkingDirectory string    `json:"workingDirectory"`
}

// Acquire blocks until the session's execution slot is free or ctx is
// done. The returned release function must be called exactly once.
func (s *Session) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
			<-s.slot
		})
	}, nil
}

// WorkingDirectory returns the current absolute working directory.
func (s *Session) WorkingDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDirectory
}

// LastActivity returns when the session last ran a command or had a
// connection attach.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Attach records that a connection is using the session.
func (s *Session) Attach(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached++
	s.lastActivity = now
}

// Detach reverses Attach.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached > 0 {
		s.attached--
	}
}

func (s *Session) isAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached > 0
}

// Info returns a snapshot for listings.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:               s.ID,
		UserID:           s.Owner,
		IsActive:         s.attached > 0,
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.lastActivity,
		WorkingDirectory: s.workingDirectory,
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

func (s *Session) setWorkingDirectory(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workingDirectory = path
}

// evictable reports whether the session is idle past cutoff with no
// command running and no connection attached.
func (s *Session) evictable(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight == 0 && s.attached == 0 && !s.lastActivity.After(cutoff)
}
