// Package ceremony composes the session registry and the signature verifier
// into the atomic operations the HTTP layer consumes. The service holds no
// mutable ceremony state of its own and performs no curve arithmetic
// directly.
package ceremony

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/39george/multisig-ecdsa/internal/logger"
	"github.com/39george/multisig-ecdsa/internal/session"
	"github.com/39george/multisig-ecdsa/internal/verifier"
)

// ErrBadEncoding rejects request fields that do not decode as the expected
// fixed-length hex.
var ErrBadEncoding = errors.New("malformed hex encoding")

// Archiver persists finalized ceremony records. Implementations must be safe
// for concurrent use.
type Archiver interface {
	SaveRecord(ctx context.Context, rec *session.Record) error
}

// Status is the read view of a ceremony handed to the HTTP layer.
type Status struct {
	ID        uuid.UUID
	State     session.State
	Accepted  int
	Threshold int
	KeyCount  int
	Deadline  time.Time
	Record    *session.Record // non-nil once finalized
}

// Service is the ceremony orchestrator.
type Service struct {
	reg        *session.Registry
	verify     session.VerifyFunc
	archive    Archiver // nil when persistence is not configured
	defaultTTL time.Duration
}

// NewService wires the orchestrator. archive may be nil, in which case
// finalized records live only in the registry until pruned.
func NewService(reg *session.Registry, archive Archiver, defaultTTL time.Duration) *Service {
	return &Service{
		reg:        reg,
		verify:     verifier.Verify,
		archive:    archive,
		defaultTTL: defaultTTL,
	}
}

// Open allocates a new signing session. Digest and keys arrive hex-encoded
// from the wire; a ttl of zero falls back to the configured default.
func (s *Service) Open(digestHex string, authorizedHex []string, threshold int, ttl time.Duration) (uuid.UUID, error) {
	digest, err := parseDigest(digestHex)
	if err != nil {
		return uuid.Nil, errors.Wrap(session.ErrInvalidPolicy, err.Error())
	}
	for _, k := range authorizedHex {
		raw, err := hex.DecodeString(k)
		if err != nil || !verifier.ValidPubKey(raw) {
			return uuid.Nil, errors.Wrapf(session.ErrInvalidPolicy, "not a valid public key: %q", k)
		}
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	id, err := s.reg.Create(digest, authorizedHex, threshold, ttl)
	if err != nil {
		return uuid.Nil, err
	}
	logger.Log.WithFields(logrus.Fields{
		"session_id": id,
		"threshold":  threshold,
		"keys":       len(authorizedHex),
		"ttl":        ttl,
	}).Info("session opened")
	return id, nil
}

// Contribute submits one signature share. The verification and the possible
// transition to finalized run atomically under the session lock; the record
// is persisted afterward, outside the lock.
func (s *Service) Contribute(ctx context.Context, id uuid.UUID, pubKeyHex, rHex, sHex string) (Status, error) {
	share, err := parseShare(pubKeyHex, rHex, sHex)
	if err != nil {
		return Status{}, err
	}

	var finalized *session.Record
	err = s.reg.Mutate(id, func(sess *session.Session) error {
		if err := sess.SubmitShare(time.Now(), share, s.verify); err != nil {
			return err
		}
		if sess.State == session.StateFinalized {
			finalized = sess.Record()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrInvalidSignature) || errors.Is(err, session.ErrUnauthorizedKey) {
			// Security-relevant: rejected contributions are logged, never retried.
			logger.Log.WithFields(logrus.Fields{
				"session_id": id,
				"pubkey":     pubKeyHex,
			}).Warnf("share rejected: %v", err)
		}
		return Status{}, err
	}

	if finalized != nil {
		logger.Log.WithFields(logrus.Fields{
			"session_id": id,
			"shares":     len(finalized.Shares),
		}).Info("session finalized")
		if s.archive != nil {
			if err := s.archive.SaveRecord(ctx, finalized); err != nil {
				// The in-memory record stays authoritative; persistence is
				// retried by nothing here, the sweep logs the loss.
				logger.Log.Errorf("failed to archive record for session %s: %v", id, err)
			}
		}
	}
	return s.Status(id)
}

// Status returns the current state and threshold progress of a session.
func (s *Service) Status(id uuid.UUID) (Status, error) {
	sess, err := s.reg.Get(id)
	if err != nil {
		return Status{}, err
	}
	return statusOf(sess), nil
}

// Cancel aborts an open session.
func (s *Service) Cancel(id uuid.UUID) (Status, error) {
	err := s.reg.Mutate(id, func(sess *session.Session) error {
		return sess.Abort(time.Now())
	})
	if err != nil {
		return Status{}, err
	}
	logger.Log.Infof("session %s aborted", id)
	return s.Status(id)
}

// List returns the status of every live session.
func (s *Service) List() []Status {
	sessions := s.reg.List()
	out := make([]Status, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, statusOf(sess))
	}
	return out
}

// RunSweeper periodically expires overdue sessions and prunes terminal ones
// past the retention window. It blocks until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, sess := range s.reg.Sweep(now, retention) {
				logger.Log.WithFields(logrus.Fields{
					"session_id": sess.ID,
					"state":      sess.State,
				}).Info("session pruned")
			}
		}
	}
}

func statusOf(sess *session.Session) Status {
	return Status{
		ID:        sess.ID,
		State:     sess.State,
		Accepted:  sess.Accepted(),
		Threshold: sess.Threshold,
		KeyCount:  len(sess.Authorized),
		Deadline:  sess.Deadline,
		Record:    sess.Record(),
	}
}

func parseDigest(digestHex string) ([32]byte, error) {
	var digest [32]byte
	raw, err := hex.DecodeString(digestHex)
	if err != nil {
		return digest, errors.Wrap(ErrBadEncoding, "digest")
	}
	if len(raw) != len(digest) {
		return digest, errors.Wrapf(ErrBadEncoding, "digest must be %d bytes, got %d", len(digest), len(raw))
	}
	copy(digest[:], raw)
	return digest, nil
}

func parseShare(pubKeyHex, rHex, sHex string) (session.Share, error) {
	var share session.Share
	if _, err := hex.DecodeString(pubKeyHex); err != nil {
		return share, errors.Wrap(ErrBadEncoding, "public key")
	}
	r, err := parseScalar(rHex)
	if err != nil {
		return share, errors.Wrap(ErrBadEncoding, "r")
	}
	s, err := parseScalar(sHex)
	if err != nil {
		return share, errors.Wrap(ErrBadEncoding, "s")
	}
	share.PubKey = pubKeyHex
	share.R = r
	share.S = s
	return share, nil
}

func parseScalar(h string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(h)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, errors.Errorf("scalar must be %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
