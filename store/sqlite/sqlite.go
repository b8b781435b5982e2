/*
Package sqlite provides a SQLite-backed moderation.Store.

PURPOSE:
  Persists ledger snapshots in a single "actions" table, one row per
  moderation action. The ledger hands over full snapshots; this store turns
  each snapshot into one transaction of upserts.

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements on the actions table
  - Upserts only ever rewrite revocation_json; the registration columns of
    an existing row are never updated
  - Rows missing from a snapshot are left in place

KEY TABLES:
  actions: one row per action, seq preserves registration order

INDEXES:
  - idx_actions_seq:  Load order (hot path at startup)
  - idx_actions_type: Operator queries by family

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the flush
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/moderation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  ledger := moderation.NewLedger(st)

SEE ALSO:
  - moderation/store.go: Store interface
  - moderation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/warp/moderation-engine/moderation"
)

// Store implements moderation.Store using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: every ":memory:" connection is its own database, and
	// SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection. Later calls report
// moderation.ErrStoreUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return unavailable(sql.ErrConnDone)
	}
	return classify(s.db.PingContext(ctx))
}

func (s *Store) migrate() error {
	schema := `
	-- Moderation actions (append-only, revocation is the only mutable column)
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		ids_json TEXT NOT NULL,
		hwids_json TEXT,
		player_name TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		author TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		expiration INTEGER NOT NULL DEFAULT 0,
		approver TEXT NOT NULL DEFAULT '',
		revocation_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_seq
		ON actions(seq);
	CREATE INDEX IF NOT EXISTS idx_actions_type
		ON actions(type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// moderation.Store IMPLEMENTATION
// =============================================================================

// Load returns every persisted action in registration order.
func (s *Store) Load(ctx context.Context) ([]moderation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable(sql.ErrConnDone)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, ids_json, hwids_json, player_name, reason, author,
		       timestamp, expiration, approver, revocation_json
		FROM actions
		ORDER BY seq, rowid
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	records := []moderation.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return records, nil
}

// Save writes the snapshot in one transaction. Either every row lands or
// none does.
func (s *Store) Save(ctx context.Context, records []moderation.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable(sql.ErrConnDone)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO actions (id, seq, type, ids_json, hwids_json, player_name, reason,
		                     author, timestamp, expiration, approver, revocation_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET revocation_json = excluded.revocation_json
	`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if err := upsert(ctx, stmt, i, rec); err != nil {
			return err
		}
	}

	return classify(tx.Commit())
}

func upsert(ctx context.Context, stmt *sql.Stmt, seq int, rec moderation.Record) error {
	idsJSON, err := json.Marshal(rec.Identifiers)
	if err != nil {
		return fmt.Errorf("action %s: encode identifiers: %w", rec.ID, err)
	}
	var hwidsJSON sql.NullString
	if len(rec.HardwareIDs) > 0 {
		b, err := json.Marshal(rec.HardwareIDs)
		if err != nil {
			return fmt.Errorf("action %s: encode hardware identifiers: %w", rec.ID, err)
		}
		hwidsJSON = sql.NullString{String: string(b), Valid: true}
	}
	revJSON, err := json.Marshal(rec.Revocation)
	if err != nil {
		return fmt.Errorf("action %s: encode revocation: %w", rec.ID, err)
	}

	_, err = stmt.ExecContext(ctx,
		rec.ID,
		seq,
		string(rec.Type),
		string(idsJSON),
		hwidsJSON,
		string(rec.PlayerName),
		rec.Reason,
		rec.Author,
		rec.Timestamp,
		int64(rec.Expiration),
		rec.Approver,
		string(revJSON),
	)
	if err != nil {
		return fmt.Errorf("action %s: %w", rec.ID, classify(err))
	}
	return nil
}

func scanRecord(rows *sql.Rows) (moderation.Record, error) {
	var (
		rec        moderation.Record
		typ        string
		idsJSON    string
		hwidsJSON  sql.NullString
		playerName string
		expiration int64
		revJSON    string
	)
	err := rows.Scan(&rec.ID, &typ, &idsJSON, &hwidsJSON, &playerName, &rec.Reason,
		&rec.Author, &rec.Timestamp, &expiration, &rec.Approver, &revJSON)
	if err != nil {
		return moderation.Record{}, classify(err)
	}

	rec.Type = moderation.ActionType(typ)
	rec.PlayerName = moderation.PlayerName(playerName)
	rec.Expiration = moderation.Expiration(expiration)
	if err := json.Unmarshal([]byte(idsJSON), &rec.Identifiers); err != nil {
		return moderation.Record{}, fmt.Errorf("action %s: decode identifiers: %w", rec.ID, err)
	}
	if hwidsJSON.Valid {
		if err := json.Unmarshal([]byte(hwidsJSON.String), &rec.HardwareIDs); err != nil {
			return moderation.Record{}, fmt.Errorf("action %s: decode hardware identifiers: %w", rec.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(revJSON), &rec.Revocation); err != nil {
		return moderation.Record{}, fmt.Errorf("action %s: decode revocation: %w", rec.ID, err)
	}
	return rec, nil
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// classify marks errors that mean the database cannot be used at all, so
// the scheduler stops admitting mutations until a write succeeds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return unavailable(err)
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrCorrupt,
			sqlite3.ErrNotADB, sqlite3.ErrReadonly, sqlite3.ErrFull:
			return unavailable(err)
		}
	}
	return err
}

func unavailable(err error) error {
	return fmt.Errorf("sqlite: %w: %w", moderation.ErrStoreUnavailable, err)
}

var _ moderation.Store = (*Store)(nil)
