package ceremony_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/39george/multisig-ecdsa/internal/ceremony"
	"github.com/39george/multisig-ecdsa/internal/keys"
	"github.com/39george/multisig-ecdsa/internal/session"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type fakeArchive struct {
	mu      sync.Mutex
	records []*session.Record
}

func (a *fakeArchive) SaveRecord(_ context.Context, rec *session.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *fakeArchive) saved() []*session.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*session.Record(nil), a.records...)
}

type signer struct {
	km     *keys.KeyMaterial
	pubHex string
}

func newSigner(t *testing.T, index uint32) signer {
	t.Helper()
	km, err := keys.DeriveIdentity(testMnemonic, "", index)
	require.NoError(t, err)
	t.Cleanup(km.Release)
	return signer{km: km, pubHex: km.PublicKeyHex()}
}

func (s signer) share(t *testing.T, digest []byte) (rHex, sHex string) {
	t.Helper()
	r, sv, err := s.km.Sign(digest)
	require.NoError(t, err)
	return hex.EncodeToString(r[:]), hex.EncodeToString(sv[:])
}

func newTestService(archive ceremony.Archiver) *ceremony.Service {
	return ceremony.NewService(session.NewRegistry(), archive, time.Minute)
}

func TestTwoOfThreeCeremony(t *testing.T) {
	archive := &fakeArchive{}
	svc := newTestService(archive)
	ctx := context.Background()

	a, b, c := newSigner(t, 0), newSigner(t, 1), newSigner(t, 2)
	digest := sha256.Sum256([]byte("move funds"))
	digestHex := hex.EncodeToString(digest[:])

	id, err := svc.Open(digestHex, []string{a.pubHex, b.pubHex, c.pubHex}, 2, time.Minute)
	require.NoError(t, err)

	rHex, sHex := a.share(t, digest[:])
	st, err := svc.Contribute(ctx, id, a.pubHex, rHex, sHex)
	require.NoError(t, err)
	assert.Equal(t, session.StateOpen, st.State)
	assert.Equal(t, 1, st.Accepted)
	assert.Equal(t, 2, st.Threshold)
	assert.Nil(t, st.Record)

	rHex, sHex = b.share(t, digest[:])
	st, err = svc.Contribute(ctx, id, b.pubHex, rHex, sHex)
	require.NoError(t, err)
	assert.Equal(t, session.StateFinalized, st.State)
	require.NotNil(t, st.Record)
	require.Len(t, st.Record.Shares, 2)
	assert.Equal(t, a.pubHex, st.Record.Shares[0].PubKey)
	assert.Equal(t, b.pubHex, st.Record.Shares[1].PubKey)

	// Late contribution from the third signer hits a closed ceremony.
	rHex, sHex = c.share(t, digest[:])
	_, err = svc.Contribute(ctx, id, c.pubHex, rHex, sHex)
	require.ErrorIs(t, err, session.ErrInvalidState)

	records := archive.saved()
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].SessionID)
}

func TestContributeIdempotent(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	a, b := newSigner(t, 0), newSigner(t, 1)
	digest := sha256.Sum256([]byte("payload"))
	digestHex := hex.EncodeToString(digest[:])

	id, err := svc.Open(digestHex, []string{a.pubHex, b.pubHex}, 2, time.Minute)
	require.NoError(t, err)

	rHex, sHex := a.share(t, digest[:])
	st, err := svc.Contribute(ctx, id, a.pubHex, rHex, sHex)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Accepted)

	st, err = svc.Contribute(ctx, id, a.pubHex, rHex, sHex)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Accepted)
	assert.Equal(t, session.StateOpen, st.State)
}

func TestContributeRejections(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	a, b, outsider := newSigner(t, 0), newSigner(t, 1), newSigner(t, 7)
	digest := sha256.Sum256([]byte("payload"))
	digestHex := hex.EncodeToString(digest[:])

	id, err := svc.Open(digestHex, []string{a.pubHex, b.pubHex}, 2, time.Minute)
	require.NoError(t, err)

	t.Run("unauthorized key", func(t *testing.T) {
		rHex, sHex := outsider.share(t, digest[:])
		_, err := svc.Contribute(ctx, id, outsider.pubHex, rHex, sHex)
		require.ErrorIs(t, err, session.ErrUnauthorizedKey)
	})

	t.Run("signature over wrong digest", func(t *testing.T) {
		wrong := sha256.Sum256([]byte("other payload"))
		rHex, sHex := a.share(t, wrong[:])
		_, err := svc.Contribute(ctx, id, a.pubHex, rHex, sHex)
		require.ErrorIs(t, err, session.ErrInvalidSignature)
	})

	t.Run("malformed hex", func(t *testing.T) {
		_, err := svc.Contribute(ctx, id, a.pubHex, "zz", "zz")
		require.ErrorIs(t, err, ceremony.ErrBadEncoding)
	})

	t.Run("unknown session", func(t *testing.T) {
		rHex, sHex := a.share(t, digest[:])
		_, err := svc.Contribute(ctx, uuid.New(), a.pubHex, rHex, sHex)
		require.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestOpenValidation(t *testing.T) {
	svc := newTestService(nil)
	a := newSigner(t, 0)
	digest := sha256.Sum256([]byte("payload"))
	digestHex := hex.EncodeToString(digest[:])

	_, err := svc.Open("nothex", []string{a.pubHex}, 1, time.Minute)
	require.ErrorIs(t, err, session.ErrInvalidPolicy)

	_, err = svc.Open(digestHex[:10], []string{a.pubHex}, 1, time.Minute)
	require.ErrorIs(t, err, session.ErrInvalidPolicy)

	_, err = svc.Open(digestHex, []string{"02bad"}, 1, time.Minute)
	require.ErrorIs(t, err, session.ErrInvalidPolicy)

	_, err = svc.Open(digestHex, []string{a.pubHex}, 2, time.Minute)
	require.ErrorIs(t, err, session.ErrInvalidPolicy)
}

func TestCancel(t *testing.T) {
	svc := newTestService(nil)
	a := newSigner(t, 0)
	digest := sha256.Sum256([]byte("payload"))
	digestHex := hex.EncodeToString(digest[:])

	id, err := svc.Open(digestHex, []string{a.pubHex}, 1, time.Minute)
	require.NoError(t, err)

	st, err := svc.Cancel(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateAborted, st.State)

	_, err = svc.Cancel(id)
	require.ErrorIs(t, err, session.ErrInvalidState)
}

func TestExpiredSessionRejectsLateShare(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	a, b := newSigner(t, 0), newSigner(t, 1)
	digest := sha256.Sum256([]byte("payload"))
	digestHex := hex.EncodeToString(digest[:])

	id, err := svc.Open(digestHex, []string{a.pubHex, b.pubHex}, 2, 30*time.Millisecond)
	require.NoError(t, err)

	rHex, sHex := a.share(t, digest[:])
	_, err = svc.Contribute(ctx, id, a.pubHex, rHex, sHex)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	rHex, sHex = b.share(t, digest[:])
	_, err = svc.Contribute(ctx, id, b.pubHex, rHex, sHex)
	require.ErrorIs(t, err, session.ErrInvalidState)

	st, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateExpired, st.State)
	assert.Nil(t, st.Record)
}

func TestListSessions(t *testing.T) {
	svc := newTestService(nil)
	a := newSigner(t, 0)
	digest := sha256.Sum256([]byte("payload"))
	digestHex := hex.EncodeToString(digest[:])

	for i := 0; i < 3; i++ {
		_, err := svc.Open(digestHex, []string{a.pubHex}, 1, time.Minute)
		require.NoError(t, err)
	}
	assert.Len(t, svc.List(), 3)
}
