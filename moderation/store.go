/*
store.go - Durable storage interface for the action collection

PURPOSE:
  Defines the boundary between the in-memory ledger and the medium that
  keeps it across restarts. The medium only ever sees whole snapshots:
  Load on startup, Save on every scheduled flush. No incremental diffing.

SNAPSHOT CONTRACT:
  - Save receives every record in insertion order, revocations included.
  - Save must be all-or-nothing. A partial write must not be observable by
    the next Load.
  - Save never needs to delete: the ledger never removes a record, so a
    snapshot is always a superset of the previous one.
  - Errors that mean "this medium cannot be used right now" should wrap
    ErrStoreUnavailable so the ledger stops admitting new actions until a
    flush succeeds again.

IMPLEMENTATIONS:
  - moderation/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go:     SQLite file (production default)
  - store/redis/redis.go:       One JSON document under a Redis key

SEE ALSO:
  - scheduler.go: Decides when Save runs
*/
package moderation

import (
	"context"
	"time"
)

// Store persists full snapshots of the action collection.
type Store interface {
	// Load returns the persisted collection, in insertion order.
	Load(ctx context.Context) ([]Record, error)

	// Save replaces the persisted collection with records atomically.
	Save(ctx context.Context, records []Record) error
}

// =============================================================================
// OBSERVER - Hooks for metrics
// =============================================================================

// Observer is notified of ledger activity. Implementations must not block.
type Observer interface {
	ActionRegistered(t ActionType)
	ActionRevoked(t ActionType, bySystem bool)
	IdentifiersReleased(n int)
	FlushCompleted(d time.Duration, records int, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) ActionRegistered(ActionType)               {}
func (NopObserver) ActionRevoked(ActionType, bool)            {}
func (NopObserver) IdentifiersReleased(int)                   {}
func (NopObserver) FlushCompleted(time.Duration, int, error) {}
