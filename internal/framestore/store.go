// Package framestore holds the most recent encoded frame for fan-out to
// HTTP consumers and the push worker.
//
// The store is a single-slot buffer: the acquisition loop is the only
// writer, any number of readers observe the latest complete frame. A
// publish swaps the slice reference under a write lock, so a reader can
// never see a partially written frame. Published slices are owned by the
// store and must not be mutated after Publish.
package framestore

import (
	"sync"
	"time"
)

// Store is the shared latest-frame slot
type Store struct {
	mu        sync.RWMutex
	frame     []byte
	seq       uint64
	updatedAt time.Time
}

// New creates an empty store. It stays empty until the first Publish.
func New() *Store {
	return &Store{}
}

// Publish replaces the current frame. The caller hands over ownership of
// the slice and must not modify it afterwards.
func (s *Store) Publish(frame []byte) {
	s.mu.Lock()
	s.frame = frame
	s.seq++
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Read returns the latest frame, or false if nothing has been published
// yet. The returned slice is shared and read-only.
func (s *Store) Read() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.frame != nil
}

// Stats contains store statistics for the status endpoint
type Stats struct {
	HasFrame   bool      `json:"has_frame"`
	Seq        uint64    `json:"seq"`
	SizeBytes  int       `json:"size_bytes"`
	UpdatedAt  time.Time `json:"updated_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

// Stats returns current store statistics
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		HasFrame:  s.frame != nil,
		Seq:       s.seq,
		SizeBytes: len(s.frame),
		UpdatedAt: s.updatedAt,
	}
	if !s.updatedAt.IsZero() {
		st.AgeSeconds = time.Since(s.updatedAt).Seconds()
	}
	return st
}
