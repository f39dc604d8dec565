package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/tableorder/internal/apperr"
)

// Collection is a typed view of one (entity, tenant) collection.
//
// Values are converted through JSON, so T must round-trip through
// encoding/json. Fields of stored records that T does not declare are
// dropped by the typed write operations.
type Collection[T any] struct {
	store  *Store
	entity Entity
	tenant string
	idOf   func(T) string
}

// NewCollection binds a typed view. idOf extracts a value's id.
func NewCollection[T any](s *Store, entity Entity, tenant string, idOf func(T) string) *Collection[T] {
	return &Collection[T]{store: s, entity: entity, tenant: tenant, idOf: idOf}
}

// Entity returns the bound entity kind.
func (c *Collection[T]) Entity() Entity {
	return c.entity
}

// Tenant returns the bound tenant.
func (c *Collection[T]) Tenant() string {
	return c.tenant
}

// All returns every value in file order.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	records, err := c.store.Read(ctx, c.entity, c.tenant)
	if err != nil {
		return nil, err
	}
	return c.decode(records)
}

// Find returns the value with the given id.
func (c *Collection[T]) Find(ctx context.Context, id string) (T, bool, error) {
	var zero T
	rec, ok, err := c.store.FindByID(ctx, c.entity, c.tenant, id)
	if err != nil || !ok {
		return zero, ok, err
	}
	var v T
	if err := convert(rec, &v); err != nil {
		return zero, false, fmt.Errorf("decode %s %s: %w", c.entity.Noun(), id, err)
	}
	return v, true, nil
}

// Get is Find that reports absence as a NOT_FOUND error.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	v, ok, err := c.Find(ctx, id)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, apperr.NotFound(c.entity.Noun(), id)
	}
	return v, nil
}

// Append adds v to the collection.
func (c *Collection[T]) Append(ctx context.Context, v T) error {
	var rec Record
	if err := convert(v, &rec); err != nil {
		return fmt.Errorf("encode %s: %w", c.entity.Noun(), err)
	}
	return c.store.Append(ctx, c.entity, c.tenant, rec)
}

// Update merges patch into the stored record and returns the typed result.
func (c *Collection[T]) Update(ctx context.Context, id string, patch Record) (T, error) {
	var v T
	rec, err := c.store.Update(ctx, c.entity, c.tenant, id, patch)
	if err != nil {
		return v, err
	}
	if err := convert(rec, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", c.entity.Noun(), id, err)
	}
	return v, nil
}

// Delete removes the value with the given id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.entity, c.tenant, id)
}

// Replace atomically replaces the whole collection with items.
func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	records, err := c.encode(items)
	if err != nil {
		return err
	}
	return c.store.Write(ctx, c.entity, c.tenant, records)
}

// Transform runs fn over the typed collection inside the critical section.
func (c *Collection[T]) Transform(ctx context.Context, fn func([]T) ([]T, error)) error {
	return c.store.Transform(ctx, c.entity, c.tenant, func(records []Record) ([]Record, error) {
		items, err := c.decode(records)
		if err != nil {
			return nil, err
		}
		next, err := fn(items)
		if err != nil {
			return nil, err
		}
		return c.encode(next)
	})
}

// IndexOf returns the position of the value with the given id, or -1.
func (c *Collection[T]) IndexOf(items []T, id string) int {
	for i, v := range items {
		if c.idOf(v) == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) decode(records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	if err := convert(records, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.entity, err)
	}
	return out, nil
}

func (c *Collection[T]) encode(items []T) ([]Record, error) {
	if items == nil {
		return []Record{}, nil
	}
	var records []Record
	if err := convert(items, &records); err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.entity, err)
	}
	return records, nil
}

// convert moves src into dst through JSON, keeping numbers exact.
func convert(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}
