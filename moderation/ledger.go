/*
ledger.go - The moderation action ledger

PURPOSE:
  Owns the in-memory collection of moderation actions. Every registration,
  lookup and revocation goes through the Ledger; every successful mutation
  marks the persistence scheduler dirty.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: records are never deleted or reordered.
  2. IMMUTABLE IDS: an id is assigned once and never reused.
  3. COPY-ON-READ: callers only ever receive deep copies.
  4. SERIALIZED MUTATIONS: one mutex is held for each whole operation, so
     no two callers can observe-then-write the same record.
  5. TERMINAL REVOCATION: once approved, a revocation is never undone.

LIFECYCLE:
  NewLedger ──▶ loading ──Open()──▶ ready ──Close()──▶ closed

  Every operation outside "ready" fails with ErrStoreNotReady.

ONE LEDGER, ALL FAMILIES:
  Bans, mutes, warnings, flags and wager blacklists share one collection
  and one code path. Ban-only fields (hardware ids, approver) are optional
  extensions on Record.

EXAMPLE:
  l := moderation.NewLedger(sqliteStore, moderation.WithLogger(log))
  if err := l.Open(ctx); err != nil { ... }
  defer l.Close(ctx)

  id, err := l.RegisterMute([]string{"license:abc"}, "admin1", "spam", moderation.Never, "Bob")

SEE ALSO:
  - revocation.go: ApproveRevoke, RequestRevoke
  - sweep.go:      SweepExpired
  - approval.go:   Long-ban approval gate
  - scheduler.go:  Deferred persistence
*/
package moderation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// LIFECYCLE STATE
// =============================================================================

type State int

const (
	StateLoading State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// =============================================================================
// OPTIONS
// =============================================================================

type Option func(*Ledger)

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// WithClock overrides time.Now for registration and revocation timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.clock = now }
}

func WithIDGenerator(gen IDGenerator) Option {
	return func(l *Ledger) { l.newID = gen }
}

func WithApprovalGate(g ApprovalGate) Option {
	return func(l *Ledger) { l.gate = g }
}

// WithFlushTimings sets the scheduler tick and the LOW priority debounce.
func WithFlushTimings(interval, lowDelay time.Duration) Option {
	return func(l *Ledger) {
		l.flushInterval = interval
		l.lowDelay = lowDelay
	}
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the single owner of the moderation action collection.
type Ledger struct {
	mu           sync.Mutex
	state        State
	records      []Record
	byID         map[string]int
	byIdentifier identifierIndex

	store     Store
	scheduler *Scheduler
	gate      ApprovalGate
	clock     func() time.Time
	newID     IDGenerator
	log       *zap.Logger
	observer  Observer

	flushInterval time.Duration
	lowDelay      time.Duration
}

// NewLedger creates a ledger in the loading state. Call Open before use.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		state:         StateLoading,
		byID:          make(map[string]int),
		byIdentifier:  make(identifierIndex),
		store:         store,
		gate:          NewApprovalGate(),
		clock:         time.Now,
		newID:         NewActionID,
		log:           zap.NewNop(),
		observer:      NopObserver{},
		flushInterval: DefaultFlushInterval,
		lowDelay:      DefaultLowPriorityDelay,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.scheduler = NewScheduler(store, l.snapshot)
	l.scheduler.FlushInterval = l.flushInterval
	l.scheduler.LowPriorityDelay = l.lowDelay
	l.scheduler.Logger = l.log.Named("scheduler")
	l.scheduler.Observer = l.observer
	return l
}

// Open loads the persisted collection and starts the flush loop.
func (l *Ledger) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateLoading {
		return fmt.Errorf("ledger is %s, cannot open", l.state)
	}

	records, err := l.store.Load(ctx)
	if err != nil {
		return &PersistenceError{Op: "load snapshot", Err: err}
	}
	for _, rec := range records {
		if _, dup := l.byID[rec.ID]; dup {
			return fmt.Errorf("corrupt snapshot: duplicate action id %s", rec.ID)
		}
		l.appendLocked(rec.Clone())
	}

	l.state = StateReady
	l.scheduler.Start()
	l.log.Info("ledger ready", zap.Int("records", len(l.records)))
	return nil
}

// Close stops accepting operations and flushes pending changes.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}
	l.state = StateClosed
	l.mu.Unlock()

	err := l.scheduler.Stop(ctx)
	l.log.Info("ledger closed", zap.Error(err))
	return err
}

func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Scheduler exposes the persistence scheduler, mainly for health checks.
func (l *Ledger) Scheduler() *Scheduler {
	return l.scheduler
}

// Sync forces a flush and reports whether everything registered so far is
// durable. This is the only path on which a PersistenceError reaches a
// caller of a mutation.
func (l *Ledger) Sync(ctx context.Context) error {
	if err := l.ready(); err != nil {
		return err
	}
	return l.scheduler.Flush(ctx)
}

func (l *Ledger) ready() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readyLocked()
}

func (l *Ledger) readyLocked() error {
	if l.state != StateReady {
		return ErrStoreNotReady
	}
	return nil
}

// writableLocked rejects mutations while the medium is known to be unusable,
// before anything changes in memory.
func (l *Ledger) writableLocked() error {
	if err := l.readyLocked(); err != nil {
		return err
	}
	if l.scheduler.Unusable() {
		return &PersistenceError{Op: "admit mutation", Err: l.scheduler.LastError()}
	}
	return nil
}

func (l *Ledger) appendLocked(rec Record) {
	pos := len(l.records)
	l.records = append(l.records, rec)
	l.byID[rec.ID] = pos
	l.byIdentifier.add(pos, rec.Identifiers)
}

// snapshot feeds the scheduler. It works in every state so that Close can
// still flush.
func (l *Ledger) snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	for i, rec := range l.records {
		out[i] = rec.Clone()
	}
	return out
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Registration is the input of Register.
type Registration struct {
	Type        ActionType
	Identifiers []string
	Author      string
	Reason      string
	Expiration  Expiration
	PlayerName  string

	// Ban only.
	HardwareIDs []string
	Approval    *ApprovalRequest
}

// Register validates reg, runs the approval gate for bans, appends the
// record and schedules a high priority flush.
func (l *Ledger) Register(reg Registration) (string, error) {
	rec, err := buildRecord(reg)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writableLocked(); err != nil {
		return "", err
	}

	now := l.clock()
	if rec.Type == ActionBan {
		var req ApprovalRequest
		if reg.Approval != nil {
			req = *reg.Approval
		}
		approver, err := l.gate.Evaluate(now, rec.Expiration, req)
		if err != nil {
			l.log.Info("ban rejected by approval gate",
				zap.String("author", rec.Author),
				zap.String("approver", req.ApproverName),
				zap.Error(err),
			)
			return "", err
		}
		rec.Approver = approver
	}

	id, err := l.nextIDLocked(rec.Type)
	if err != nil {
		return "", err
	}
	rec.ID = id
	rec.Timestamp = now.Unix()
	l.appendLocked(rec)

	l.scheduler.MarkDirty(PriorityHigh)
	l.observer.ActionRegistered(rec.Type)
	l.log.Info("action registered",
		zap.String("id", id),
		zap.String("type", string(rec.Type)),
		zap.String("author", rec.Author),
		zap.Int64("expiration", int64(rec.Expiration)),
	)
	return id, nil
}

func (l *Ledger) RegisterBan(ids []string, author, reason string, exp Expiration, playerName string, hwids []string, approval *ApprovalRequest) (string, error) {
	return l.Register(Registration{
		Type:        ActionBan,
		Identifiers: ids,
		Author:      author,
		Reason:      reason,
		Expiration:  exp,
		PlayerName:  playerName,
		HardwareIDs: hwids,
		Approval:    approval,
	})
}

func (l *Ledger) RegisterMute(ids []string, author, reason string, exp Expiration, playerName string) (string, error) {
	return l.Register(Registration{Type: ActionMute, Identifiers: ids, Author: author, Reason: reason, Expiration: exp, PlayerName: playerName})
}

func (l *Ledger) RegisterWarn(ids []string, author, reason, playerName string) (string, error) {
	return l.Register(Registration{Type: ActionWarn, Identifiers: ids, Author: author, Reason: reason, PlayerName: playerName})
}

func (l *Ledger) RegisterFlag(ids []string, author, reason, playerName string) (string, error) {
	return l.Register(Registration{Type: ActionFlag, Identifiers: ids, Author: author, Reason: reason, PlayerName: playerName})
}

func (l *Ledger) RegisterWagerBlacklist(ids []string, author, reason, playerName string) (string, error) {
	return l.Register(Registration{Type: ActionWagerBlacklist, Identifiers: ids, Author: author, Reason: reason, PlayerName: playerName})
}

// buildRecord is the schema check at the ledger boundary.
func buildRecord(reg Registration) (Record, error) {
	if !reg.Type.Valid() {
		return Record{}, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown action type %q", reg.Type)}
	}
	ids, err := normalizeIdentifiers("identifiers", reg.Identifiers, true)
	if err != nil {
		return Record{}, err
	}
	author := strings.TrimSpace(reg.Author)
	if author == "" {
		return Record{}, &ValidationError{Field: "author", Message: "must not be empty"}
	}
	if strings.TrimSpace(reg.Reason) == "" {
		return Record{}, &ValidationError{Field: "reason", Message: "must not be empty"}
	}
	if reg.Expiration < 0 {
		return Record{}, &ValidationError{Field: "expiration", Message: "must be a positive timestamp or never"}
	}
	if !reg.Type.Expires() && !reg.Expiration.IsNever() {
		return Record{}, &ValidationError{Field: "expiration", Message: string(reg.Type) + " actions do not expire"}
	}

	var hwids []string
	if reg.Type == ActionBan {
		if hwids, err = normalizeIdentifiers("hardwareIdentifiers", reg.HardwareIDs, false); err != nil {
			return Record{}, err
		}
	} else {
		if len(reg.HardwareIDs) > 0 {
			return Record{}, &ValidationError{Field: "hardwareIdentifiers", Message: "only bans carry hardware identifiers"}
		}
		if reg.Approval != nil {
			return Record{}, &ValidationError{Field: "approval", Message: "only bans go through approval"}
		}
	}

	return Record{
		Type:        reg.Type,
		Identifiers: ids,
		HardwareIDs: hwids,
		PlayerName:  PlayerName(strings.TrimSpace(reg.PlayerName)),
		Reason:      reg.Reason,
		Author:      author,
		Expiration:  reg.Expiration,
	}, nil
}

const maxIDAttempts = 10

func (l *Ledger) nextIDLocked(t ActionType) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := l.newID(t)
		if id == "" {
			continue
		}
		if _, taken := l.byID[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique %s action id after %d attempts", t, maxIDAttempts)
}

// =============================================================================
// LOOKUP
// =============================================================================

// Predicate filters records in FindMany.
type Predicate func(Record) bool

func OfType(t ActionType) Predicate {
	return func(r Record) bool { return r.Type == t }
}

// NotRevoked keeps records whose revocation has not been stamped.
func NotRevoked() Predicate {
	return func(r Record) bool { return r.Revocation.Timestamp == nil }
}

// ActiveAt keeps records that are neither revoked nor expired at now.
func ActiveAt(now time.Time) Predicate {
	return func(r Record) bool { return r.IsActive(now) }
}

// All combines predicates with AND.
func All(preds ...Predicate) Predicate {
	return func(r Record) bool {
		for _, p := range preds {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// Find returns a copy of the record with the given id.
func (l *Ledger) Find(id string) (Record, error) {
	if id == "" {
		return Record{}, &ValidationError{Field: "id", Message: "must not be empty"}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readyLocked(); err != nil {
		return Record{}, err
	}
	pos, ok := l.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return l.records[pos].Clone(), nil
}

// FindMany returns copies of every record sharing at least one identifier
// with ids and passing all predicates, in registration order.
func (l *Ledger) FindMany(ids []string, preds ...Predicate) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readyLocked(); err != nil {
		return nil, err
	}
	match := All(preds...)
	out := []Record{}
	for _, pos := range l.byIdentifier.lookup(ids) {
		if rec := l.records[pos]; match(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// ActiveAction returns the first action of type t that still applies to
// any of ids, or ErrNotFound.
func (l *Ledger) ActiveAction(ids []string, t ActionType) (Record, error) {
	now := l.clock()
	recs, err := l.FindMany(ids, OfType(t), ActiveAt(now))
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

// Raw returns a copy of the whole collection for bulk export.
func (l *Ledger) Raw() ([]Record, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.snapshot(), nil
}

// Len returns the number of records, revoked ones included.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
