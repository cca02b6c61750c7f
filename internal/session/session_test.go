package session

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyA = "02" + hexByte(0xaa)
	keyB = "02" + hexByte(0xbb)
	keyC = "02" + hexByte(0xcc)
)

func hexByte(b byte) string {
	out := make([]byte, 0, 64)
	for i := 0; i < 32; i++ {
		hi := "0123456789abcdef"[b>>4]
		lo := "0123456789abcdef"[b&0x0f]
		out = append(out, hi, lo)
	}
	return string(out)
}

func acceptAll(_, _, _, _ []byte) bool { return true }
func rejectAll(_, _, _, _ []byte) bool { return false }

func testDigest() [32]byte { return sha256.Sum256([]byte("digest")) }

func openSession(t *testing.T, keys []string, threshold int, ttl time.Duration, now time.Time) *Session {
	t.Helper()
	sess, err := newSession(uuid.New(), testDigest(), keys, threshold, ttl, now)
	require.NoError(t, err)
	return sess
}

func shareFrom(key string) Share {
	var r, s [32]byte
	r[31] = 1
	s[31] = 2
	return Share{PubKey: key, R: r, S: s}
}

func TestNewSessionPolicyValidation(t *testing.T) {
	now := time.Now()
	cases := map[string]struct {
		keys      []string
		threshold int
		ttl       time.Duration
	}{
		"zero threshold":      {[]string{keyA, keyB}, 0, time.Minute},
		"threshold exceeds n": {[]string{keyA, keyB}, 3, time.Minute},
		"no keys":             {nil, 1, time.Minute},
		"duplicate keys":      {[]string{keyA, keyA}, 1, time.Minute},
		"non-positive ttl":    {[]string{keyA}, 1, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newSession(uuid.New(), testDigest(), tc.keys, tc.threshold, tc.ttl, now)
			require.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestDuplicateKeysDetectedCaseInsensitively(t *testing.T) {
	now := time.Now()
	upper := "02" + "AA" + keyA[4:]
	_, err := newSession(uuid.New(), testDigest(), []string{keyA, upper}, 1, time.Minute, now)
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestThresholdReachedFinalizesWithRecord(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA, keyB, keyC}, 2, time.Minute, now)

	require.NoError(t, sess.SubmitShare(now, shareFrom(keyA), acceptAll))
	assert.Equal(t, StateOpen, sess.State)
	assert.Equal(t, 1, sess.Accepted())
	assert.Nil(t, sess.Record())

	require.NoError(t, sess.SubmitShare(now.Add(time.Second), shareFrom(keyB), acceptAll))
	assert.Equal(t, StateFinalized, sess.State)
	assert.Equal(t, 2, sess.Accepted())

	rec := sess.Record()
	require.NotNil(t, rec)
	assert.Equal(t, sess.ID, rec.SessionID)
	assert.Equal(t, 2, rec.Threshold)
	require.Len(t, rec.Shares, 2)
	assert.Equal(t, keyA, rec.Shares[0].PubKey)
	assert.Equal(t, keyB, rec.Shares[1].PubKey)

	// The ceremony is closed: a third valid share is an InvalidState error.
	err := sess.SubmitShare(now.Add(2*time.Second), shareFrom(keyC), acceptAll)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, sess.Record().Shares, 2)
}

func TestSubmitShareUnauthorizedKey(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA, keyB}, 2, time.Minute, now)

	err := sess.SubmitShare(now, shareFrom(keyC), acceptAll)
	require.ErrorIs(t, err, ErrUnauthorizedKey)
	assert.Equal(t, 0, sess.Accepted())
}

func TestSubmitShareInvalidSignature(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA}, 1, time.Minute, now)

	err := sess.SubmitShare(now, shareFrom(keyA), rejectAll)
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, StateOpen, sess.State)
	assert.Equal(t, 0, sess.Accepted())
}

func TestSubmitShareIdempotent(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA, keyB}, 2, time.Minute, now)

	require.NoError(t, sess.SubmitShare(now, shareFrom(keyA), acceptAll))
	require.NoError(t, sess.SubmitShare(now.Add(time.Second), shareFrom(keyA), acceptAll))

	assert.Equal(t, 1, sess.Accepted())
	assert.Equal(t, StateOpen, sess.State)
	// The originally recorded submission time is kept.
	assert.Equal(t, now, sess.Shares[keyA].SubmittedAt)
}

func TestExpiryWinsOverThreshold(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA, keyB}, 2, time.Minute, now)
	require.NoError(t, sess.SubmitShare(now, shareFrom(keyA), acceptAll))

	// The final share arrives after the deadline: rejected, state Expired.
	late := now.Add(2 * time.Minute)
	err := sess.SubmitShare(late, shareFrom(keyB), acceptAll)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateExpired, sess.State)
	assert.Nil(t, sess.Record())

	// And it stays expired for every subsequent attempt.
	err = sess.SubmitShare(late.Add(time.Second), shareFrom(keyB), acceptAll)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateExpired, sess.State)
}

func TestCheckExpiry(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA, keyB}, 2, time.Minute, now)

	assert.Equal(t, StateOpen, sess.CheckExpiry(now.Add(30*time.Second)))
	assert.Equal(t, StateExpired, sess.CheckExpiry(now.Add(2*time.Minute)))
	// Idempotent, including on terminal states.
	assert.Equal(t, StateExpired, sess.CheckExpiry(now.Add(3*time.Minute)))
}

func TestCheckExpiryLeavesTerminalStatesAlone(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA}, 1, time.Minute, now)
	require.NoError(t, sess.SubmitShare(now, shareFrom(keyA), acceptAll))
	require.Equal(t, StateFinalized, sess.State)

	assert.Equal(t, StateFinalized, sess.CheckExpiry(now.Add(time.Hour)))
}

func TestAbort(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA, keyB}, 2, time.Minute, now)

	require.NoError(t, sess.Abort(now))
	assert.Equal(t, StateAborted, sess.State)

	require.ErrorIs(t, sess.Abort(now), ErrInvalidState)
	require.ErrorIs(t, sess.SubmitShare(now, shareFrom(keyA), acceptAll), ErrInvalidState)
}

func TestAbortAfterDeadlineIsExpired(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA}, 1, time.Minute, now)

	err := sess.Abort(now.Add(2 * time.Minute))
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateExpired, sess.State)
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	sess := openSession(t, []string{keyA, keyB}, 2, time.Minute, now)
	require.NoError(t, sess.SubmitShare(now, shareFrom(keyA), acceptAll))

	snap := sess.clone()
	require.NoError(t, sess.SubmitShare(now, shareFrom(keyB), acceptAll))

	assert.Equal(t, 1, snap.Accepted())
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 2, sess.Accepted())
	assert.Equal(t, StateFinalized, sess.State)
}
