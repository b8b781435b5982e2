/*
revocation.go - Revocation workflow

STATE MACHINE:
  ┌────────────────────────┐   ApproveRevoke / SweepExpired   ┌──────────────────────────┐
  │ active (status = null) │ ───────────────────────────────▶ │ revoked (status=approved)│
  └────────────────────────┘                                  └──────────────────────────┘
        │   ▲
        └───┘ RequestRevoke (records requestor + reason, status stays null)

  Revoked is terminal. A second ApproveRevoke fails with AlreadyRevokedError
  so operator double actions surface instead of passing silently.
*/
package moderation

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExpiredReason is stamped on revocations performed by the sweep.
const ExpiredReason = "Expired"

// ApproveRevoke revokes the action with the given id. An empty reason keeps
// the reason recorded by an earlier revocation request.
func (l *Ledger) ApproveRevoke(id, approver, reason string) (Record, error) {
	if id == "" {
		return Record{}, &ValidationError{Field: "id", Message: "must not be empty"}
	}
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return Record{}, &ValidationError{Field: "approver", Message: "must not be empty"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writableLocked(); err != nil {
		return Record{}, err
	}
	pos, ok := l.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec := &l.records[pos]
	if err := alreadyRevoked(rec); err != nil {
		return Record{}, err
	}

	revokeLocked(rec, l.clock(), approver, strings.TrimSpace(reason))
	l.scheduler.MarkDirty(PriorityHigh)
	l.observer.ActionRevoked(rec.Type, false)
	l.log.Info("action revoked",
		zap.String("id", id),
		zap.String("type", string(rec.Type)),
		zap.String("approver", approver),
	)
	return rec.Clone(), nil
}

// RequestRevoke records who asked for a revocation and why. The action stays
// active until someone approves.
func (l *Ledger) RequestRevoke(id, requestor, reason string) (Record, error) {
	if id == "" {
		return Record{}, &ValidationError{Field: "id", Message: "must not be empty"}
	}
	requestor = strings.TrimSpace(requestor)
	if requestor == "" {
		return Record{}, &ValidationError{Field: "requestor", Message: "must not be empty"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writableLocked(); err != nil {
		return Record{}, err
	}
	pos, ok := l.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec := &l.records[pos]
	if err := alreadyRevoked(rec); err != nil {
		return Record{}, err
	}

	rec.Revocation.Requestor = ptr(requestor)
	if reason = strings.TrimSpace(reason); reason != "" {
		rec.Revocation.Reason = ptr(reason)
	}
	l.scheduler.MarkDirty(PriorityLow)
	l.log.Info("revocation requested", zap.String("id", id), zap.String("requestor", requestor))
	return rec.Clone(), nil
}

func alreadyRevoked(rec *Record) error {
	if !rec.IsRevoked() {
		return nil
	}
	err := &AlreadyRevokedError{ID: rec.ID}
	if rec.Revocation.Timestamp != nil {
		err.RevokedAt = *rec.Revocation.Timestamp
	}
	if rec.Revocation.Approver != nil {
		err.Approver = *rec.Revocation.Approver
	}
	return err
}

// revokeLocked performs the active -> revoked transition in place.
func revokeLocked(rec *Record, now time.Time, approver, reason string) {
	rec.Revocation.Timestamp = ptr(now.Unix())
	rec.Revocation.Approver = ptr(approver)
	rec.Revocation.Status = RevocationApproved
	if reason != "" {
		rec.Revocation.Reason = ptr(reason)
	}
}
