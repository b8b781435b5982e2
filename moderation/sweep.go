package moderation

import (
	"time"

	"go.uber.org/zap"
)

// SweepExpired revokes every ban and mute whose expiration lapsed before now
// and that has no revocation timestamp yet. It returns the union of the
// identifiers of the newly revoked records, so collaborators can lift
// in-game restrictions.
//
// SYSTEM is stamped as the revocation approver. The record's author stays
// the admin who issued the action.
//
// The timestamp guard makes the sweep idempotent: a second call with the
// same now changes nothing and returns an empty slice. The sweep keeps
// running while the medium is unusable; a lost sweep is redone after a
// restart because expirations are deterministic.
func (l *Ledger) SweepExpired(now time.Time) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.readyLocked(); err != nil {
		return nil, err
	}

	released := []string{}
	seen := make(map[string]struct{})
	revoked := 0
	for i := range l.records {
		rec := &l.records[i]
		if !rec.Type.Expires() || !rec.Expiration.Before(now) || rec.Revocation.Timestamp != nil {
			continue
		}
		revokeLocked(rec, now, SystemAuthor, ExpiredReason)
		revoked++
		l.observer.ActionRevoked(rec.Type, true)
		for _, id := range rec.Identifiers {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			released = append(released, id)
		}
	}

	if revoked > 0 {
		l.scheduler.MarkDirty(PriorityHigh)
		l.observer.IdentifiersReleased(len(released))
		l.log.Info("expired actions revoked",
			zap.Int("revoked", revoked),
			zap.Int("released_identifiers", len(released)),
		)
	}
	return released, nil
}
