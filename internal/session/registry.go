package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the single source of truth for in-flight ceremonies. The map
// lock only guards lookup and insertion; each session carries its own mutex,
// so transitions on distinct sessions never serialize while transitions on
// the same session are linearized.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*entry)}
}

// Create allocates a new session and returns its identifier. The policy is
// validated here; identifiers are fresh UUIDs and cannot collide with live
// sessions.
func (r *Registry) Create(digest [32]byte, authorized []string, threshold int, ttl time.Duration) (uuid.UUID, error) {
	now := time.Now()
	id := uuid.New()
	sess, err := newSession(id, digest, authorized, threshold, ttl, now)
	if err != nil {
		return uuid.Nil, err
	}
	r.mu.Lock()
	r.entries[id] = &entry{sess: sess}
	r.mu.Unlock()
	return id, nil
}

// Get returns a point-in-time deep snapshot of a session, applying the lazy
// expiry check first.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.checkExpiry(time.Now())
	return e.sess.clone(), nil
}

// Mutate applies a single state-machine transition atomically. fn runs with
// the per-session lock held and always runs to completion once started.
func (r *Registry) Mutate(id uuid.UUID, fn func(*Session) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

// List returns snapshots of every live session.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := time.Now()
	out := make([]*Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		e.sess.checkExpiry(now)
		out = append(out, e.sess.clone())
		e.mu.Unlock()
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep expires overdue sessions and prunes terminal ones older than the
// retention window, returning snapshots of the pruned sessions so the caller
// can archive or log them.
func (r *Registry) Sweep(now time.Time, retention time.Duration) []*Session {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var pruned []*Session
	for _, id := range ids {
		e, err := r.lookup(id)
		if err != nil {
			continue // already pruned by a concurrent sweep
		}
		e.mu.Lock()
		e.sess.checkExpiry(now)
		prune := e.sess.State.Terminal() && now.Sub(e.sess.TerminalAt) >= retention
		var snap *Session
		if prune {
			snap = e.sess.clone()
		}
		e.mu.Unlock()

		if prune {
			r.mu.Lock()
			delete(r.entries, id)
			r.mu.Unlock()
			pruned = append(pruned, snap)
		}
	}
	return pruned
}

func (r *Registry) lookup(id uuid.UUID) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}
