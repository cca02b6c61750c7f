// Package session owns the lifecycle of signing ceremonies: the per-session
// state machine that admits signature shares toward an M-of-N threshold, and
// the concurrency-safe registry holding every in-flight ceremony.
package session

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// State of a signing ceremony.
type State string

const (
	StateOpen      State = "open"
	StateFinalized State = "finalized"
	StateExpired   State = "expired"
	StateAborted   State = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s != StateOpen }

// Share is one participant's accepted contribution.
type Share struct {
	PubKey      string // lowercase hex, compressed 33-byte point
	R, S        [32]byte
	SubmittedAt time.Time
}

// VerifyFunc checks a signature over a digest for a compressed public key.
// Injected so the state machine stays free of curve arithmetic.
type VerifyFunc func(pubKey, digest, r, s []byte) bool

// Record is the immutable finalization artifact of a ceremony. It is built
// in the same critical section as the transition to StateFinalized and never
// mutated afterward.
type Record struct {
	SessionID   uuid.UUID
	Digest      [32]byte
	Threshold   int
	Authorized  []string
	Shares      []Share // acceptance order
	FinalizedAt time.Time
}

// Session is one authorization ceremony. All mutation goes through the
// registry's per-session lock; none of the methods below synchronize on
// their own.
type Session struct {
	ID         uuid.UUID
	Digest     [32]byte
	Authorized []string // ordered, deduplicated, lowercase hex
	Threshold  int
	CreatedAt  time.Time
	Deadline   time.Time
	State      State
	Shares     map[string]Share
	Order      []string // acceptance order of distinct keys
	TerminalAt time.Time

	record *Record
}

func newSession(id uuid.UUID, digest [32]byte, authorized []string, threshold int, ttl time.Duration, now time.Time) (*Session, error) {
	if len(authorized) == 0 {
		return nil, errors.Wrap(ErrInvalidPolicy, "empty authorized key set")
	}
	if threshold < 1 || threshold > len(authorized) {
		return nil, errors.Wrapf(ErrInvalidPolicy, "threshold %d of %d keys", threshold, len(authorized))
	}
	if ttl <= 0 {
		return nil, errors.Wrap(ErrInvalidPolicy, "non-positive ttl")
	}
	seen := make(map[string]struct{}, len(authorized))
	keys := make([]string, 0, len(authorized))
	for _, k := range authorized {
		k = strings.ToLower(k)
		if _, dup := seen[k]; dup {
			return nil, errors.Wrapf(ErrInvalidPolicy, "duplicate authorized key %s", k)
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return &Session{
		ID:         id,
		Digest:     digest,
		Authorized: keys,
		Threshold:  threshold,
		CreatedAt:  now,
		Deadline:   now.Add(ttl),
		State:      StateOpen,
		Shares:     make(map[string]Share, len(keys)),
	}, nil
}

// checkExpiry transitions an overdue open session to StateExpired.
// Idempotent; safe to invoke on every read or submission.
func (s *Session) checkExpiry(now time.Time) {
	if s.State == StateOpen && now.After(s.Deadline) {
		s.State = StateExpired
		s.TerminalAt = now
	}
}

// CheckExpiry is the advisory form used by reads and the background sweep.
// It returns the state after the check.
func (s *Session) CheckExpiry(now time.Time) State {
	s.checkExpiry(now)
	return s.State
}

// SubmitShare runs one admission attempt. Expiry is re-checked before
// anything else, so a share that would satisfy the threshold after the
// deadline still loses to expiry. A valid share from a key that already
// contributed is a no-op. Reaching the threshold finalizes the session and
// builds the record in the same transition.
func (s *Session) SubmitShare(now time.Time, share Share, verify VerifyFunc) error {
	s.checkExpiry(now)
	if s.State != StateOpen {
		return errors.Wrapf(ErrInvalidState, "session is %s", s.State)
	}
	key := strings.ToLower(share.PubKey)
	if !s.isAuthorized(key) {
		return ErrUnauthorizedKey
	}
	// Authorized keys are hex-validated at creation, so this cannot fail.
	rawKey, err := hex.DecodeString(key)
	if err != nil {
		return errors.Wrap(ErrUnauthorizedKey, "undecodable key")
	}
	if verify == nil || !verify(rawKey, s.Digest[:], share.R[:], share.S[:]) {
		return ErrInvalidSignature
	}
	if _, dup := s.Shares[key]; dup {
		// Idempotent resubmission: state and count are unchanged.
		return nil
	}
	share.PubKey = key
	share.SubmittedAt = now
	s.Shares[key] = share
	s.Order = append(s.Order, key)
	if len(s.Order) >= s.Threshold {
		s.finalize(now)
	}
	return nil
}

// Abort cancels an open ceremony.
func (s *Session) Abort(now time.Time) error {
	s.checkExpiry(now)
	if s.State != StateOpen {
		return errors.Wrapf(ErrInvalidState, "session is %s", s.State)
	}
	s.State = StateAborted
	s.TerminalAt = now
	return nil
}

// Record returns the finalization artifact, or nil while the session has
// not finalized.
func (s *Session) Record() *Record { return s.record }

// Accepted returns the count of distinct keys with a recorded share.
func (s *Session) Accepted() int { return len(s.Order) }

func (s *Session) isAuthorized(key string) bool {
	for _, k := range s.Authorized {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Session) finalize(now time.Time) {
	shares := make([]Share, 0, len(s.Order))
	for _, k := range s.Order {
		shares = append(shares, s.Shares[k])
	}
	s.record = &Record{
		SessionID:   s.ID,
		Digest:      s.Digest,
		Threshold:   s.Threshold,
		Authorized:  append([]string(nil), s.Authorized...),
		Shares:      shares,
		FinalizedAt: now,
	}
	s.State = StateFinalized
	s.TerminalAt = now
}

// clone produces a deep snapshot for readers. The record pointer is shared
// because records are immutable once built.
func (s *Session) clone() *Session {
	cp := *s
	cp.Authorized = append([]string(nil), s.Authorized...)
	cp.Order = append([]string(nil), s.Order...)
	cp.Shares = make(map[string]Share, len(s.Shares))
	for k, v := range s.Shares {
		cp.Shares[k] = v
	}
	return &cp
}
