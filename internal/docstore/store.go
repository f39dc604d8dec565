package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/roach88/tableorder/internal/apperr"
	"github.com/roach88/tableorder/internal/lockreg"
	"github.com/roach88/tableorder/internal/model"
)

// Entity names a document collection kind.
type Entity string

const (
	Stores       Entity = "stores"
	Menus        Entity = "menus"
	Tables       Entity = "tables"
	Sessions     Entity = "sessions"
	Orders       Entity = "orders"
	OrderHistory Entity = "order_history"
	Users        Entity = "users"
)

var nouns = map[Entity]string{
	Stores:       "store",
	Menus:        "menu",
	Tables:       "table",
	Sessions:     "session",
	Orders:       "order",
	OrderHistory: "order history",
	Users:        "user",
}

// Noun returns the singular name used in error messages.
func (e Entity) Noun() string {
	if n, ok := nouns[e]; ok {
		return n
	}
	return string(e)
}

// Valid reports whether e is a known entity kind.
func (e Entity) Valid() bool {
	_, ok := nouns[e]
	return ok
}

// Global reports whether e lives at the storage root rather than under a tenant.
func (e Entity) Global() bool {
	return e == Stores
}

// Record is one untyped JSON document. Numbers decode as json.Number.
type Record map[string]any

// ID returns the record's "id" field, or "" if it is missing or not a string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateTenant checks that tenant is a safe single path segment.
func ValidateTenant(tenant string) error {
	if !tenantPattern.MatchString(tenant) {
		return apperr.Validation("invalid store id: %q", tenant)
	}
	return nil
}

// Observer receives per-operation measurements. Implemented by metrics.
type Observer interface {
	ObserveStoreOp(op string, entity Entity, d time.Duration, err error)
	ObserveCorruptRead(entity Entity)
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for updated_at stamps.
func WithClock(c model.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithObserver reports every operation to o.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// Store is the document store.
//
// Thread-safety: safe for concurrent use within one process. Coordination
// with other processes writing the same root is not provided.
type Store struct {
	root     string
	locks    *lockreg.Registry
	clock    model.Clock
	observer Observer
	sync     func(*os.File) error
}

// Open returns a Store rooted at root, creating the directory if needed.
func Open(root string, locks *lockreg.Registry, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("docstore: empty root directory")
	}
	if locks == nil {
		return nil, errors.New("docstore: nil lock registry")
	}
	if err := ensureDir(root); err != nil {
		return nil, err
	}

	s := &Store{
		root:  root,
		locks: locks,
		clock: model.SystemClock{},
		sync:  (*os.File).Sync,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the file backing the (entity, tenant) collection.
func (s *Store) Path(entity Entity, tenant string) (string, error) {
	if !entity.Valid() {
		return "", apperr.Validation("unknown entity: %q", entity)
	}
	if entity.Global() {
		return filepath.Join(s.root, string(entity)+".json"), nil
	}
	if err := ValidateTenant(tenant); err != nil {
		return "", err
	}
	return filepath.Join(s.root, tenant, string(entity)+".json"), nil
}

func lockKey(entity Entity, tenant string) string {
	if entity.Global() {
		return string(entity)
	}
	return string(entity) + "/" + tenant
}

// locked resolves the collection path and runs fn under its lock.
func (s *Store) locked(ctx context.Context, op string, entity Entity, tenant string, fn func(path string) error) (err error) {
	start := time.Now()
	if s.observer != nil {
		defer func() {
			s.observer.ObserveStoreOp(op, entity, time.Since(start), err)
		}()
	}

	path, err := s.Path(entity, tenant)
	if err != nil {
		return err
	}
	return s.locks.WithLock(ctx, lockKey(entity, tenant), func() error {
		return fn(path)
	})
}

// Read returns every record of the collection. A missing or unparseable
// file reads as an empty collection.
func (s *Store) Read(ctx context.Context, entity Entity, tenant string) ([]Record, error) {
	var out []Record
	err := s.locked(ctx, "read", entity, tenant, func(path string) error {
		var err error
		out, err = s.load(path, entity)
		return err
	})
	return out, err
}

// Write atomically replaces the whole collection.
func (s *Store) Write(ctx context.Context, entity Entity, tenant string, records []Record) error {
	return s.locked(ctx, "write", entity, tenant, func(path string) error {
		return s.writeAtomic(path, records)
	})
}

// FindByID returns the record whose id matches.
func (s *Store) FindByID(ctx context.Context, entity Entity, tenant, id string) (Record, bool, error) {
	var found Record
	err := s.locked(ctx, "find", entity, tenant, func(path string) error {
		records, err := s.load(path, entity)
		if err != nil {
			return err
		}
		if i := indexOf(records, id); i >= 0 {
			found = records[i]
		}
		return nil
	})
	return found, found != nil, err
}

// Append adds one record to the end of the collection.
func (s *Store) Append(ctx context.Context, entity Entity, tenant string, record Record) error {
	return s.locked(ctx, "append", entity, tenant, func(path string) error {
		records, err := s.load(path, entity)
		if err != nil {
			return err
		}
		return s.writeAtomic(path, append(records, record))
	})
}

// Update merges patch into the record with the given id, stamps updated_at
// and returns the merged record. The id field cannot be changed.
func (s *Store) Update(ctx context.Context, entity Entity, tenant, id string, patch Record) (Record, error) {
	var updated Record
	err := s.locked(ctx, "update", entity, tenant, func(path string) error {
		records, err := s.load(path, entity)
		if err != nil {
			return err
		}
		i := indexOf(records, id)
		if i < 0 {
			return apperr.NotFound(entity.Noun(), id)
		}

		merged := make(Record, len(records[i])+len(patch)+1)
		for k, v := range records[i] {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		merged["id"] = id
		merged["updated_at"] = model.FormatTimestamp(s.clock.Now())

		records[i] = merged
		if err := s.writeAtomic(path, records); err != nil {
			return err
		}
		updated = merged
		return nil
	})
	return updated, err
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, entity Entity, tenant, id string) error {
	return s.locked(ctx, "delete", entity, tenant, func(path string) error {
		records, err := s.load(path, entity)
		if err != nil {
			return err
		}
		i := indexOf(records, id)
		if i < 0 {
			return apperr.NotFound(entity.Noun(), id)
		}
		return s.writeAtomic(path, append(records[:i], records[i+1:]...))
	})
}

// Transform runs fn on the current collection inside the critical section
// and writes back what it returns. If fn returns an error nothing is written
// and the error is returned unchanged.
func (s *Store) Transform(ctx context.Context, entity Entity, tenant string, fn func([]Record) ([]Record, error)) error {
	return s.locked(ctx, "transform", entity, tenant, func(path string) error {
		records, err := s.load(path, entity)
		if err != nil {
			return err
		}
		next, err := fn(records)
		if err != nil {
			return err
		}
		return s.writeAtomic(path, next)
	})
}

// Tenants returns the ids registered in the stores collection, in file
// order, followed by any other tenant directory under the root, sorted.
// Tables and sessions can be created for a tenant that was never seeded.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	records, err := s.Read(ctx, Stores, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id := r.ID(); id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	// ReadDir sorts by name.
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || seen[name] || ValidateTenant(name) != nil {
			continue
		}
		seen[name] = true
		ids = append(ids, name)
	}
	return ids, nil
}

// load reads a collection file. Callers must hold the collection lock.
func (s *Store) load(path string, entity Entity) ([]Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []Record
	if err := dec.Decode(&records); err != nil {
		slog.Error("json parse failed", "path", path, "entity", entity, "error", err)
		if s.observer != nil {
			s.observer.ObserveCorruptRead(entity)
		}
		return []Record{}, nil
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func indexOf(records []Record, id string) int {
	if id == "" {
		return -1
	}
	for i, r := range records {
		if r.ID() == id {
			return i
		}
	}
	return -1
}
