package model

import (
	"github.com/roach88/tableorder/internal/apperr"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusCompleted OrderStatus = "completed"
)

// orderTransitions is the legal transition table. completed is terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusPreparing, StatusCompleted},
	StatusPreparing: {StatusPending, StatusCompleted},
	StatusCompleted: {},
}

// ParseOrderStatus converts s into an OrderStatus.
// Returns a validation error for unknown values.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.Valid() {
		return "", apperr.Validation("invalid order status: %s", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Transitions returns the statuses reachable from s in one step.
func (s OrderStatus) Transitions() []OrderStatus {
	next := orderTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// SessionStatus is the lifecycle state of a table session.
// A session moves from active to ended exactly once.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)
