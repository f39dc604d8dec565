package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableorder/internal/apperr"
)

func TestNewOrderItem_Snapshot(t *testing.T) {
	menu := Menu{ID: "m-1", Name: "김치찌개", Price: 9000}
	item := NewOrderItem(menu, 2)

	assert.Equal(t, OrderItem{MenuID: "m-1", MenuName: "김치찌개", Price: 9000, Quantity: 2, Subtotal: 18000}, item)
	require.NoError(t, item.Validate())

	menu.Price = 12000
	assert.Equal(t, 9000, item.Price, "snapshot must not follow the menu")
}

func TestOrderItem_Validate(t *testing.T) {
	tests := []struct {
		name string
		item OrderItem
		ok   bool
	}{
		{"min quantity", OrderItem{Price: 100, Quantity: 1, Subtotal: 100}, true},
		{"max quantity", OrderItem{Price: 100, Quantity: 99, Subtotal: 9900}, true},
		{"zero quantity", OrderItem{Price: 100, Quantity: 0, Subtotal: 0}, false},
		{"quantity over max", OrderItem{Price: 100, Quantity: 100, Subtotal: 10000}, false},
		{"bad subtotal", OrderItem{Price: 100, Quantity: 2, Subtotal: 100}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestOrder_Validate(t *testing.T) {
	items := []OrderItem{
		{MenuID: "a", Price: 9000, Quantity: 2, Subtotal: 18000},
		{MenuID: "b", Price: 2000, Quantity: 1, Subtotal: 2000},
	}
	o := Order{Items: items, TotalAmount: 20000, Status: StatusPending}
	require.NoError(t, o.Validate())

	o.TotalAmount = 19000
	assert.True(t, apperr.IsValidation(o.Validate()))

	empty := Order{TotalAmount: 0, Status: StatusPending}
	assert.True(t, apperr.IsValidation(empty.Validate()))

	bad := Order{Items: items, TotalAmount: 20000, Status: "cancelled"}
	assert.True(t, apperr.IsValidation(bad.Validate()))
}

func TestSession_ActiveAndExpired(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{Status: SessionActive, StartedAt: start, ExpiresAt: start.Add(time.Hour)}

	assert.True(t, s.IsActiveAt(start.Add(59*time.Minute)))
	assert.False(t, s.IsExpiredAt(start.Add(59*time.Minute)))

	assert.False(t, s.IsActiveAt(start.Add(time.Hour)))
	assert.True(t, s.IsExpiredAt(start.Add(time.Hour)))

	s.Status = SessionEnded
	assert.False(t, s.IsActiveAt(start))
	assert.False(t, s.IsExpiredAt(start.Add(2*time.Hour)))
}

func TestSession_JSONShape(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{
		ID:          SessionID(3, start),
		StoreID:     "store001",
		TableNumber: 3,
		Status:      SessionActive,
		StartedAt:   start,
		ExpiresAt:   start.Add(16 * time.Hour),
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "T03-20250301120000",
		"store_id": "store001",
		"table_number": 3,
		"status": "active",
		"started_at": "2025-03-01T12:00:00Z",
		"expires_at": "2025-03-02T04:00:00Z",
		"ended_at": null
	}`, string(data))
}

func TestSums(t *testing.T) {
	assert.Equal(t, 0, SumSubtotals(nil))
	assert.Equal(t, 30000, SumOrderTotals([]Order{{TotalAmount: 18000}, {TotalAmount: 12000}}))
}
