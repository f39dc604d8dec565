// Package journal keeps an append-only SQLite log of published domain events.
//
// The journal is fed from the event bus by a Recorder. Entries are
// content-addressed, so recording the same event twice stores it once.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tableorder/internal/eventbus"
	"github.com/roach88/tableorder/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added (tenant_id, event_type, seq) index for type-filtered queries
const currentSchemaVersion = 1

// Entry is one journaled event.
type Entry struct {
	Seq         int64           `json:"seq"`
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Tenant      string          `json:"tenant_id"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

// FromEvent converts a bus event into an entry with its id computed.
func FromEvent(ev eventbus.Event) (Entry, error) {
	payload, err := MarshalCanonical(ev.Payload)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}
	e := Entry{
		EventID:     ev.ID,
		Tenant:      ev.TenantID,
		Type:        ev.Type,
		Payload:     payload,
		PublishedAt: model.Timestamp(ev.PublishedAt),
	}
	e.ID, err = EntryID(e)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Filter narrows List. Zero values match everything; Limit 0 is unlimited.
type Filter struct {
	Tenant string
	Type   string
	Limit  int
}

// Journal is the SQLite-backed event log.
//
// Thread-safety: safe for concurrent use; writes are serialized by a single
// connection.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// Safe to call on an existing journal; migrations are idempotent.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_events_tenant_type
			ON events(tenant_id, event_type, seq)
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Append stores e. An entry whose id is already present is ignored, and
// the returned bool reports whether a row was inserted.
func (j *Journal) Append(ctx context.Context, e Entry) (bool, error) {
	if e.ID == "" {
		id, err := EntryID(e)
		if err != nil {
			return false, err
		}
		e.ID = id
	}
	payload := string(e.Payload)
	if payload == "" {
		payload = "null"
	}

	res, err := j.db.ExecContext(ctx, `
		INSERT INTO events (id, event_id, tenant_id, event_type, payload, published_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID,
		e.EventID,
		e.Tenant,
		e.Type,
		payload,
		model.FormatTimestamp(e.PublishedAt),
	)
	if err != nil {
		return false, fmt.Errorf("append entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append entry: %w", err)
	}
	return n > 0, nil
}

// List returns entries matching f in sequence order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any
	if f.Tenant != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.Tenant)
	}
	if f.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.Type)
	}

	query := "SELECT seq, id, event_id, tenant_id, event_type, payload, published_at FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var payload, published string
		if err := rows.Scan(&e.Seq, &e.ID, &e.EventID, &e.Tenant, &e.Type, &payload, &published); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		e.PublishedAt, err = time.Parse(time.RFC3339, published)
		if err != nil {
			return nil, fmt.Errorf("parse published_at %q: %w", published, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

// Count returns the number of entries for tenant, or all entries when
// tenant is empty.
func (j *Journal) Count(ctx context.Context, tenant string) (int, error) {
	query := "SELECT COUNT(*) FROM events"
	var args []any
	if tenant != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenant)
	}
	var n int
	if err := j.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}
