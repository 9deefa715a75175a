// Package session provides the in-memory conversation session store.
//
// The store is the only shared mutable state in the service. It is built for
// many concurrent conversations: the map-level lock is held only long enough
// to find or insert an entry, while a per-entry mutex serializes work on a
// single call so that two interleaved utterances for the same call can never
// apply stale reads. Entries live for the process lifetime; there is no
// eviction.
package session

import (
	"sync"

	"github.com/goquant/otcvoice/internal/domain"
)

type entry struct {
	mu      sync.Mutex
	session *domain.Session
}

// Store maps call IDs to live conversation sessions.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
	}
}

// GetOrCreate returns the session for callID, creating a fresh greeting
// session if none exists. Repeated calls without an intervening Put return
// the identical record.
func (st *Store) GetOrCreate(callID string) *domain.Session {
	return st.lookup(callID).session
}

// Put upserts a session keyed by its call ID. Replacing an existing record
// takes that entry's lock, so a Put never races an in-flight Update on the
// same call.
func (st *Store) Put(s *domain.Session) {
	st.mu.Lock()
	e, ok := st.entries[s.CallID]
	if !ok {
		st.entries[s.CallID] = &entry{session: s}
		st.mu.Unlock()
		return
	}
	st.mu.Unlock()

	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
}

// Update runs fn against the session for callID as one atomic
// read-modify-write unit, creating the session first if needed. Updates for
// the same call are serialized; updates for different calls proceed in
// parallel.
func (st *Store) Update(callID string, fn func(*domain.Session)) {
	e := st.lookup(callID)

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.session)
	e.session.Touch()
}

// Snapshot returns a value copy of the session for callID taken under its
// entry lock, so callers can read it without racing concurrent updates.
func (st *Store) Snapshot(callID string) (domain.Session, bool) {
	st.mu.RLock()
	e, ok := st.entries[callID]
	st.mu.RUnlock()
	if !ok {
		return domain.Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.session, true
}

// Len returns the number of active sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

func (st *Store) lookup(callID string) *entry {
	st.mu.RLock()
	e, ok := st.entries[callID]
	st.mu.RUnlock()
	if ok {
		return e
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	// Re-check: another goroutine may have created the entry between locks.
	if e, ok := st.entries[callID]; ok {
		return e
	}
	e = &entry{session: domain.NewSession(callID)}
	st.entries[callID] = e
	return e
}
