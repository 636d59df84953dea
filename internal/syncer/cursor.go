package syncer

import (
	"sync"
	"time"

	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/remote"
)

// CursorKey names the cursor for kind fetched with filters. Different
// filter sets never share a cursor.
func CursorKey(kind model.Kind, filters remote.Filters) string {
	sig := filters.Signature()
	if sig == "" {
		return string(kind)
	}
	return string(kind) + "?" + sig
}

// CursorStore holds the last successful sync time per cursor key.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]time.Time
	gen     uint64
}

// NewCursorStore returns an empty store.
func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[string]time.Time)}
}

// Get returns the cursor for key.
func (s *CursorStore) Get(key string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.cursors[key]
	return ts, ok
}

// Advance moves the cursor for key to ts. A ts earlier than the stored
// value is ignored and Advance returns false.
func (s *CursorStore) Advance(key string, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cursors[key]; ok && ts.Before(cur) {
		return false
	}
	s.cursors[key] = ts
	s.gen++
	return true
}

// Reset forgets the cursor for key, forcing the next sync to be full.
func (s *CursorStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, key)
	s.gen++
}

// Load replaces the store contents.
func (s *CursorStore) Load(m map[string]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors = make(map[string]time.Time, len(m))
	for k, v := range m {
		s.cursors[k] = v
	}
	s.gen++
}

// Gen increases whenever a cursor changes.
func (s *CursorStore) Gen() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// All returns a copy of every cursor.
func (s *CursorStore) All() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.cursors))
	for k, v := range s.cursors {
		out[k] = v
	}
	return out
}
