package moderation_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/moderation-engine/moderation"
)

func TestApproveRevoke_StampsRevocation(t *testing.T) {
	l, _ := newTestLedger(t)
	id, err := l.RegisterWagerBlacklist([]string{"license:a"}, "admin1", "scam", "Bob")
	require.NoError(t, err)

	rec, err := l.ApproveRevoke(id, "admin2", "appeal accepted")
	require.NoError(t, err)

	assert.True(t, rec.IsRevoked())
	require.NotNil(t, rec.Revocation.Timestamp)
	assert.Equal(t, t0.Unix(), *rec.Revocation.Timestamp)
	assert.Equal(t, "admin2", *rec.Revocation.Approver)
	assert.Equal(t, "appeal accepted", *rec.Revocation.Reason)
	assert.Nil(t, rec.Revocation.Requestor)
}

func TestApproveRevoke_TwiceFailsAndKeepsFirstRevocation(t *testing.T) {
	// GIVEN: A revoked warning
	l, _ := newTestLedger(t)
	id, err := l.RegisterWarn([]string{"license:a"}, "admin1", "toxicity", "")
	require.NoError(t, err)
	first, err := l.ApproveRevoke(id, "admin2", "first")
	require.NoError(t, err)

	// WHEN: Someone revokes it again
	_, err = l.ApproveRevoke(id, "admin3", "second")

	// THEN: The second attempt is rejected with the existing details
	var already *moderation.AlreadyRevokedError
	require.ErrorAs(t, err, &already)
	assert.ErrorIs(t, err, moderation.ErrAlreadyRevoked)
	assert.Equal(t, id, already.ID)
	assert.Equal(t, "admin2", already.Approver)
	assert.Equal(t, *first.Revocation.Timestamp, already.RevokedAt)

	rec, err := l.Find(id)
	require.NoError(t, err)
	assert.Equal(t, first.Revocation, rec.Revocation)
}

func TestApproveRevoke_Validation(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.ApproveRevoke("", "admin2", "")
	assert.ErrorIs(t, err, moderation.ErrValidation)

	_, err = l.ApproveRevoke("W-missing", "admin2", "")
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	id, err := l.RegisterWarn([]string{"license:a"}, "admin1", "r", "")
	require.NoError(t, err)
	_, err = l.ApproveRevoke(id, "  ", "")
	var verr *moderation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "approver", verr.Field)
}

func TestRequestRevoke_ThenApproveKeepsRequestedReason(t *testing.T) {
	l, _ := newTestLedger(t)
	id, err := l.RegisterMute([]string{"license:a"}, "admin1", "spam", moderation.Never, "")
	require.NoError(t, err)

	req, err := l.RequestRevoke(id, "helper1", "was a misunderstanding")
	require.NoError(t, err)
	assert.False(t, req.IsRevoked())
	assert.Nil(t, req.Revocation.Timestamp)
	assert.Equal(t, "helper1", *req.Revocation.Requestor)

	// Still active until approved.
	active, err := l.ActiveAction([]string{"license:a"}, moderation.ActionMute)
	require.NoError(t, err)
	assert.Equal(t, id, active.ID)

	rec, err := l.ApproveRevoke(id, "admin2", "")
	require.NoError(t, err)
	assert.True(t, rec.IsRevoked())
	assert.Equal(t, "helper1", *rec.Revocation.Requestor)
	assert.Equal(t, "was a misunderstanding", *rec.Revocation.Reason)
}

func TestRequestRevoke_OnRevokedActionFails(t *testing.T) {
	l, _ := newTestLedger(t)
	id, err := l.RegisterFlag([]string{"license:a"}, "admin1", "r", "")
	require.NoError(t, err)
	_, err = l.ApproveRevoke(id, "admin2", "")
	require.NoError(t, err)

	_, err = l.RequestRevoke(id, "helper1", "please")
	assert.ErrorIs(t, err, moderation.ErrAlreadyRevoked)
}

func TestRevoke_ConcurrentWithSweep_OneWinner(t *testing.T) {
	// GIVEN: A mute that lapsed a minute before t0
	l, _ := newTestLedger(t)
	id, err := l.RegisterMute([]string{"license:abc"}, "admin1", "spam", moderation.ExpiresAt(t0.Add(-time.Minute)), "")
	require.NoError(t, err)

	const workers = 50
	var (
		wg       sync.WaitGroup
		approved atomic.Int32
		already  atomic.Int32
		swept    atomic.Int32
		other    atomic.Int32
	)

	// WHEN: Manual revokes, sweeps and unrelated registrations race
	for i := 0; i < workers; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := l.ApproveRevoke(id, "admin2", "appeal")
			switch {
			case err == nil:
				approved.Add(1)
			case errors.Is(err, moderation.ErrAlreadyRevoked):
				already.Add(1)
			default:
				other.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			released, err := l.SweepExpired(t0)
			if err != nil {
				other.Add(1)
				return
			}
			if len(released) > 0 {
				swept.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := l.RegisterWarn([]string{"license:xyz"}, "admin1", "toxic", ""); err != nil {
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly one revocation landed and every losing manual revoke
	// saw it
	assert.Zero(t, other.Load())
	assert.Equal(t, int32(1), approved.Load()+swept.Load())
	assert.Equal(t, int32(workers)-approved.Load(), already.Load())
	assert.Equal(t, workers+1, l.Len())

	rec, err := l.Find(id)
	require.NoError(t, err)
	require.True(t, rec.IsRevoked())
	if swept.Load() == 1 {
		assert.Equal(t, moderation.SystemAuthor, *rec.Revocation.Approver)
	} else {
		assert.Equal(t, "admin2", *rec.Revocation.Approver)
	}
}
