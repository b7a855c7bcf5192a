/*
cache.go - Per-student session cache of view projections

PURPOSE:
  A student may open the rewards screen from several devices; each session
  gets a View seeded from the last authoritative snapshot. Views are
  caches, so eviction is harmless: the next read rebuilds from the server.

SIZING:
  LRU with time-based expiration. Expired or evicted entries simply force
  a re-read; no correctness depends on residency.
*/
package client

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/warp/rewards-engine/ledger"
)

// Sessions caches one View per student with LRU eviction and TTL expiry.
type Sessions struct {
	lru *expirable.LRU[ledger.StudentID, *View]
}

// NewSessions creates a session cache holding at most size views, each
// expiring ttl after last touch.
func NewSessions(size int, ttl time.Duration) *Sessions {
	return &Sessions{
		lru: expirable.NewLRU[ledger.StudentID, *View](size, nil, ttl),
	}
}

// Get returns the cached view for the student, if resident.
func (s *Sessions) Get(studentID ledger.StudentID) (*View, bool) {
	return s.lru.Get(studentID)
}

// Put seeds (or replaces) the student's view from an authoritative
// snapshot and returns it.
func (s *Sessions) Put(studentID ledger.StudentID, snapshot Snapshot) *View {
	view := NewView(snapshot)
	s.lru.Add(studentID, view)
	return view
}

// Invalidate drops the student's view, forcing the next access to
// rebuild from server state.
func (s *Sessions) Invalidate(studentID ledger.StudentID) {
	s.lru.Remove(studentID)
}
