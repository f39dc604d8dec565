package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates "<prefix>-0001", "<prefix>-0002", ... in order.
//
// This enables golden snapshot comparison: the same scenario with a fresh
// SequenceIDs produces byte-identical records.
//
// Thread-safety: safe for concurrent use; every call returns a distinct id.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. If prefix is empty, "id" is used.
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDs{prefix: prefix}
}

// NewID returns the next id.
//
// Implements model.IDGenerator.
func (g *SequenceIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Issued returns how many ids have been handed out.
func (g *SequenceIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
