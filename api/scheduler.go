/*
scheduler.go - Automated expiration sweep scheduler

PURPOSE:
  Periodically revokes bans and mutes whose expiration lapsed and
  announces the released identifiers so game servers can lift in-game
  restrictions.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps once immediately on start, then on every tick
  - Runs are serialized; a manual RunNow waits for a running tick
  - Each run carries a uuid so logs and published events correlate

CONFIGURATION:
  - Interval: How often to sweep (default: 1 minute)
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  sweeper := NewSweepScheduler(ledger, publisher, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - moderation/sweep.go: SweepExpired
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/moderation-engine/events"
	"github.com/warp/moderation-engine/moderation"
	"go.uber.org/zap"
)

// SweepResult describes one sweep run.
type SweepResult struct {
	RunID    string
	At       time.Time
	Released []string
}

// SweepScheduler runs the ledger's expiration sweep on a ticker.
type SweepScheduler struct {
	Ledger    *moderation.Ledger
	Publisher events.Publisher
	Channel   string
	Interval  time.Duration
	Enabled   bool
	Now       func() time.Time
	Logger    *zap.Logger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	runMu sync.Mutex
	last  SweepResult
}

// NewSweepScheduler creates a new scheduler. publisher may be nil.
func NewSweepScheduler(ledger *moderation.Ledger, publisher events.Publisher, log *zap.Logger) *SweepScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SweepScheduler{
		Ledger:    ledger,
		Publisher: publisher,
		Channel:   events.DefaultChannel,
		Interval:  time.Minute,
		Enabled:   true,
		Now:       time.Now,
		Logger:    log,
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		ss.Logger.Info("sweeper disabled, not starting")
		return
	}
	if ss.ticker != nil {
		return
	}
	if ss.Interval <= 0 {
		ss.Interval = time.Minute
	}

	ss.ticker = time.NewTicker(ss.Interval)
	ss.stop = make(chan bool)
	ss.wg.Add(1)

	go ss.run()

	ss.Logger.Info("sweeper started", zap.Duration("interval", ss.Interval))
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.Logger.Info("sweeper stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.tick()

	for {
		select {
		case <-ss.ticker.C:
			ss.tick()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) tick() {
	if _, err := ss.RunNow(context.Background()); err != nil {
		ss.Logger.Warn("sweep failed", zap.Error(err))
	}
}

// RunNow sweeps immediately and publishes the released identifiers.
func (ss *SweepScheduler) RunNow(ctx context.Context) (SweepResult, error) {
	ss.runMu.Lock()
	defer ss.runMu.Unlock()

	res := SweepResult{RunID: uuid.NewString(), At: ss.Now()}
	released, err := ss.Ledger.SweepExpired(res.At)
	if err != nil {
		return SweepResult{}, err
	}
	res.Released = released

	if len(released) > 0 {
		ss.Logger.Info("sweep released identifiers",
			zap.String("run_id", res.RunID),
			zap.Int("identifiers", len(released)),
		)
		if ss.Publisher != nil {
			ev := events.IdentifiersReleased(res.RunID, released, res.At)
			if err := ss.Publisher.Publish(ctx, ss.Channel, ev); err != nil {
				ss.Logger.Warn("failed to publish released identifiers",
					zap.String("run_id", res.RunID),
					zap.Error(err),
				)
			}
		}
	}

	ss.last = res
	return res, nil
}

// LastRun returns the most recent successful run.
func (ss *SweepScheduler) LastRun() SweepResult {
	ss.runMu.Lock()
	defer ss.runMu.Unlock()
	return ss.last
}
