// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"sync"
	"time"
)

// Blacklist is a concurrency-safe set of revoked credential IDs. An
// entry is kept until the credential's own expiry, after which
// Verify rejects it regardless and the entry can be dropped.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewBlacklist returns an empty Blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]time.Time)}
}

// Revoke marks id revoked until expiresAt.
func (b *Blacklist) Revoke(id string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[id] = expiresAt
}

// IsRevoked reports whether id has been revoked.
func (b *Blacklist) IsRevoked(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.entries[id]
	return exists
}

// Cleanup drops entries whose credential expired at or before now and
// returns how many were dropped.
func (b *Blacklist) Cleanup(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, expiresAt := range b.entries {
		if !expiresAt.After(now) {
			delete(b.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
