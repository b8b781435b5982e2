/*
scheduler.go - Dirty-flag, priority-ordered persistence scheduler

PURPOSE:
  Decouples ledger mutations from durable writes. Mutations only mark the
  collection dirty; a single background loop writes full snapshots to the
  Store when a flush is due.

PRIORITIES:
  PriorityHigh: flushed at the next opportunity (the mark wakes the loop)
  PriorityLow:  debounced, bursts coalesce for LowPriorityDelay

  The pending priority only goes up between flushes: a pending LOW is
  upgraded by a later HIGH, never the other way round.

FLUSH RULES:
  1. Only one flush runs at a time (flushMu). Snapshots never interleave.
  2. The dirty flag is cleared only after Save confirmed success AND no
     newer mark arrived while the write was in flight.
  3. A failed flush leaves the flag set; the next tick retries.
  4. Failures wrapping ErrStoreUnavailable mark the medium unusable until
     a flush succeeds again.

DURABILITY:
  Callers return before their mutation is on disk. A crash between a mark
  and the next flush loses that mutation. Flush() is the synchronous path
  for callers that need confirmation.

LOCK ORDER:
  The ledger lock may be held while calling MarkDirty (takes mu).
  A flush never holds mu while calling the snapshot func (takes the
  ledger lock).

SEE ALSO:
  - store.go: Store interface
  - ledger.go: Marks dirty after each mutation
*/
package moderation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Priority orders pending flushes.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	}
	return "none"
}

// Default scheduler timings.
const (
	DefaultFlushInterval    = 1 * time.Second
	DefaultLowPriorityDelay = 5 * time.Second
)

// SnapshotFunc returns a consistent deep copy of the collection to persist.
type SnapshotFunc func() []Record

// Scheduler flushes snapshots to a Store when the collection is dirty.
type Scheduler struct {
	Store            Store
	Snapshot         SnapshotFunc
	FlushInterval    time.Duration
	LowPriorityDelay time.Duration
	Logger           *zap.Logger
	Observer         Observer

	mu       sync.Mutex
	dirty    bool
	priority Priority
	since    time.Time
	gen      uint64
	lastErr  error
	unusable bool

	flushMu sync.Mutex

	wake    chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex
}

// NewScheduler creates a scheduler with default timings. Fields may be
// adjusted before Start.
func NewScheduler(store Store, snapshot SnapshotFunc) *Scheduler {
	return &Scheduler{
		Store:            store,
		Snapshot:         snapshot,
		FlushInterval:    DefaultFlushInterval,
		LowPriorityDelay: DefaultLowPriorityDelay,
		Logger:           zap.NewNop(),
		Observer:         NopObserver{},
		wake:             make(chan struct{}, 1),
	}
}

// =============================================================================
// STATE
// =============================================================================

// MarkDirty records that the collection changed.
func (s *Scheduler) MarkDirty(p Priority) {
	s.mu.Lock()
	if !s.dirty {
		s.dirty = true
		s.since = time.Now()
	}
	if p > s.priority {
		s.priority = p
	}
	s.gen++
	s.mu.Unlock()

	if p == PriorityHigh {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Dirty reports whether unflushed changes exist.
func (s *Scheduler) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Pending returns the highest priority marked since the last flush.
func (s *Scheduler) Pending() Priority {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priority
}

// LastError returns the error of the most recent flush, nil after a success.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Unusable reports whether the last flush found the medium unavailable.
func (s *Scheduler) Unusable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unusable
}

func (s *Scheduler) due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return false
	}
	return s.priority == PriorityHigh || now.Sub(s.since) >= s.LowPriorityDelay
}

// =============================================================================
// FLUSH
// =============================================================================

// Flush writes a snapshot now if anything is dirty. It waits for a running
// flush to finish first.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	// Read the generation before the snapshot: a mark that lands in between
	// is then treated as unflushed, never the reverse.
	gen := s.gen
	priority := s.priority
	s.mu.Unlock()

	records := s.Snapshot()
	start := time.Now()
	err := s.Store.Save(ctx, records)
	elapsed := time.Since(start)
	s.Observer.FlushCompleted(elapsed, len(records), err)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		s.unusable = errors.Is(err, ErrStoreUnavailable)
		s.mu.Unlock()
		s.Logger.Error("flush failed, will retry",
			zap.Error(err),
			zap.Int("records", len(records)),
			zap.Stringer("priority", priority),
			zap.Duration("elapsed", elapsed),
		)
		return &PersistenceError{Op: "save snapshot", Err: err}
	}
	s.lastErr = nil
	s.unusable = false
	if s.gen == gen {
		s.dirty = false
		s.priority = PriorityNone
		s.since = time.Time{}
	}
	s.mu.Unlock()

	s.Logger.Debug("flushed snapshot",
		zap.Int("records", len(records)),
		zap.Stringer("priority", priority),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// =============================================================================
// BACKGROUND LOOP
// =============================================================================

// Start launches the flush loop. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	if s.FlushInterval <= 0 {
		s.FlushInterval = DefaultFlushInterval
	}
	s.stop = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.run()
	s.Logger.Info("scheduler started",
		zap.Duration("flush_interval", s.FlushInterval),
		zap.Duration("low_priority_delay", s.LowPriorityDelay),
	)
}

// Stop ends the loop and performs a final flush.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		close(s.stop)
		s.wg.Wait()
		s.running = false
		s.Logger.Info("scheduler stopped")
	}
	s.runMu.Unlock()
	return s.Flush(ctx)
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.wake:
		case <-s.stop:
			return
		}
		if s.due(time.Now()) {
			// Errors are logged inside Flush and retried on the next tick.
			_ = s.Flush(context.Background())
		}
	}
}
