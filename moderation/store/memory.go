// Package store provides in-process Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/moderation-engine/moderation"
)

// =============================================================================
// MEMORY STORE - In-memory snapshot medium (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	records  []moderation.Record
	saves    int
	failNext []error
	failAll  error
}

func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryWith returns a store preloaded with records, as if a previous
// process had flushed them.
func NewMemoryWith(records []moderation.Record) *Memory {
	m := NewMemory()
	m.records = cloneAll(records)
	return m
}

func (m *Memory) Load(_ context.Context) ([]moderation.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.records), nil
}

// Save replaces the stored snapshot. Injected failures leave the previous
// snapshot untouched.
func (m *Memory) Save(_ context.Context, records []moderation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll != nil {
		return m.failAll
	}
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return err
	}
	m.records = cloneAll(records)
	m.saves++
	return nil
}

// =============================================================================
// TEST HOOKS
// =============================================================================

// FailNext makes the next len(errs) saves fail with errs in order.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, errs...)
}

// FailAll makes every save fail with err until cleared with nil.
func (m *Memory) FailAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err
}

// Saves returns the number of successful saves.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Records returns a copy of the last saved snapshot.
func (m *Memory) Records() []moderation.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.records)
}

func cloneAll(in []moderation.Record) []moderation.Record {
	out := make([]moderation.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

var _ moderation.Store = (*Memory)(nil)
