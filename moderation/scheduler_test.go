package moderation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/moderation-engine/moderation"
	"github.com/warp/moderation-engine/moderation/store"
)

func snapshotOf(n int) moderation.SnapshotFunc {
	return func() []moderation.Record {
		return make([]moderation.Record, n)
	}
}

func newTestScheduler(t *testing.T, st moderation.Store, interval, lowDelay time.Duration) *moderation.Scheduler {
	t.Helper()
	s := moderation.NewScheduler(st, snapshotOf(1))
	s.FlushInterval = interval
	s.LowPriorityDelay = lowDelay
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

// gateStore blocks every Save until release is closed and tracks how many
// saves run at once.
type gateStore struct {
	entered chan struct{}
	release chan struct{}

	inFlight atomic.Int32
	maxSeen  atomic.Int32
	saves    atomic.Int32
}

func newGateStore() *gateStore {
	return &gateStore{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gateStore) Load(context.Context) ([]moderation.Record, error) { return nil, nil }

func (g *gateStore) Save(ctx context.Context, _ []moderation.Record) error {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		cur := g.maxSeen.Load()
		if n <= cur || g.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.saves.Add(1)
	return nil
}

// =============================================================================
// PRIORITIES
// =============================================================================

func TestScheduler_HighPriorityWakesLoop(t *testing.T) {
	// GIVEN: A loop whose ticker would never fire during the test
	mem := store.NewMemory()
	s := newTestScheduler(t, mem, time.Hour, time.Hour)
	s.Start()

	// WHEN: A high priority change is marked
	s.MarkDirty(moderation.PriorityHigh)

	// THEN: It is flushed right away
	require.Eventually(t, func() bool { return mem.Saves() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Dirty())
	assert.Equal(t, moderation.PriorityNone, s.Pending())
}

func TestScheduler_LowPriorityBurstCoalesces(t *testing.T) {
	mem := store.NewMemory()
	s := newTestScheduler(t, mem, 5*time.Millisecond, 150*time.Millisecond)
	s.Start()

	for i := 0; i < 5; i++ {
		s.MarkDirty(moderation.PriorityLow)
	}

	assert.Never(t, func() bool { return mem.Saves() > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"low priority marks must wait for the debounce")
	require.Eventually(t, func() bool { return mem.Saves() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, mem.Saves(), "one burst, one write")
}

func TestScheduler_HighUpgradesPendingLow(t *testing.T) {
	s := newTestScheduler(t, store.NewMemory(), time.Hour, time.Hour)

	s.MarkDirty(moderation.PriorityLow)
	assert.Equal(t, moderation.PriorityLow, s.Pending())

	s.MarkDirty(moderation.PriorityHigh)
	assert.Equal(t, moderation.PriorityHigh, s.Pending())

	s.MarkDirty(moderation.PriorityLow)
	assert.Equal(t, moderation.PriorityHigh, s.Pending(), "priority never goes down before a flush")

	require.NoError(t, s.Flush(context.Background()))
	assert.False(t, s.Dirty())
	assert.Equal(t, moderation.PriorityNone, s.Pending())
}

func TestScheduler_FlushWhenCleanIsNoop(t *testing.T) {
	mem := store.NewMemory()
	s := newTestScheduler(t, mem, time.Hour, time.Hour)

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 0, mem.Saves())
}

// =============================================================================
// FAILURES
// =============================================================================

func TestScheduler_FailedFlushStaysDirty(t *testing.T) {
	// GIVEN: A store that fails once
	mem := store.NewMemory()
	mem.FailNext(errors.New("disk full"))
	s := newTestScheduler(t, mem, time.Hour, time.Hour)
	s.MarkDirty(moderation.PriorityHigh)

	// WHEN: Flushing
	err := s.Flush(context.Background())

	// THEN: The change is still pending and the error is kept
	var perr *moderation.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, s.Dirty())
	assert.EqualError(t, s.LastError(), "disk full")
	assert.False(t, s.Unusable())

	// WHEN: Retrying
	require.NoError(t, s.Flush(context.Background()))

	// THEN: The retry cleared everything
	assert.False(t, s.Dirty())
	assert.NoError(t, s.LastError())
	assert.Equal(t, 1, mem.Saves())
}

func TestScheduler_BackgroundLoopRetries(t *testing.T) {
	mem := store.NewMemory()
	mem.FailNext(errors.New("timeout"), errors.New("timeout"))
	s := newTestScheduler(t, mem, 5*time.Millisecond, time.Hour)
	s.Start()

	s.MarkDirty(moderation.PriorityHigh)

	require.Eventually(t, func() bool { return mem.Saves() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Dirty())
}

func TestScheduler_UnavailableStoreIsFlagged(t *testing.T) {
	mem := store.NewMemory()
	mem.FailNext(fmt.Errorf("sql: database is closed: %w", moderation.ErrStoreUnavailable))
	s := newTestScheduler(t, mem, time.Hour, time.Hour)
	s.MarkDirty(moderation.PriorityHigh)

	err := s.Flush(context.Background())
	assert.ErrorIs(t, err, moderation.ErrStoreUnavailable)
	assert.True(t, s.Unusable())

	require.NoError(t, s.Flush(context.Background()))
	assert.False(t, s.Unusable())
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestScheduler_MarkDuringFlushKeepsDirty(t *testing.T) {
	// GIVEN: A flush blocked inside Save
	gs := newGateStore()
	s := newTestScheduler(t, gs, time.Hour, time.Hour)
	s.MarkDirty(moderation.PriorityHigh)

	done := make(chan error, 1)
	go func() { done <- s.Flush(context.Background()) }()
	<-gs.entered

	// WHEN: Another change lands while the write is in flight
	s.MarkDirty(moderation.PriorityLow)
	close(gs.release)
	require.NoError(t, <-done)

	// THEN: It is not reported as flushed
	assert.True(t, s.Dirty())
	require.NoError(t, s.Flush(context.Background()))
	<-gs.entered
	assert.False(t, s.Dirty())
	assert.Equal(t, int32(2), gs.saves.Load())
}

func TestScheduler_FlushesAreSerialized(t *testing.T) {
	gs := newGateStore()
	close(gs.release)
	s := newTestScheduler(t, gs, time.Hour, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.MarkDirty(moderation.PriorityHigh)
			_ = s.Flush(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), gs.maxSeen.Load())
	assert.False(t, s.Dirty())
}

func TestScheduler_StopFlushesPendingLow(t *testing.T) {
	mem := store.NewMemory()
	s := moderation.NewScheduler(mem, snapshotOf(3))
	s.FlushInterval = time.Hour
	s.LowPriorityDelay = time.Hour
	s.Start()

	s.MarkDirty(moderation.PriorityLow)
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, 1, mem.Saves())
	assert.Len(t, mem.Records(), 3)
}
