package model

import (
	"time"

	"github.com/roach88/tableorder/internal/apperr"
)

// Quantity bounds for a single order line.
const (
	MinQuantity = 1
	MaxQuantity = 99
)

// Store is a tenant. Stores live in the root-level collection.
type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Menu is a catalog entry. Prices are integer currency units.
type Menu struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Name        string    `json:"name"`
	Price       int       `json:"price"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	IsAvailable bool      `json:"is_available"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Table is a registered table. TableNumber is unique per store.
type Table struct {
	ID           string    `json:"id"`
	StoreID      string    `json:"store_id"`
	TableNumber  int       `json:"table_number"`
	PasswordHash string    `json:"password_hash"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a bounded-time occupancy of one table.
type Session struct {
	ID          string        `json:"id"`
	StoreID     string        `json:"store_id"`
	TableNumber int           `json:"table_number"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	EndedAt     *time.Time    `json:"ended_at"`
}

// IsActiveAt reports whether the session is active and not yet expired at now.
func (s Session) IsActiveAt(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.ExpiresAt)
}

// IsExpiredAt reports whether the session is still marked active but its
// expiry has passed.
func (s Session) IsExpiredAt(now time.Time) bool {
	return s.Status == SessionActive && !now.Before(s.ExpiresAt)
}

// OrderItem is an immutable snapshot of a menu line at order time.
type OrderItem struct {
	MenuID   string `json:"menu_id"`
	MenuName string `json:"menu_name"`
	Price    int    `json:"price"`
	Quantity int    `json:"quantity"`
	Subtotal int    `json:"subtotal"`
}

// NewOrderItem snapshots menu into an order line with the given quantity.
func NewOrderItem(menu Menu, quantity int) OrderItem {
	return OrderItem{
		MenuID:   menu.ID,
		MenuName: menu.Name,
		Price:    menu.Price,
		Quantity: quantity,
		Subtotal: menu.Price * quantity,
	}
}

// Validate checks the quantity bounds and subtotal = price × quantity.
func (i OrderItem) Validate() error {
	if i.Quantity < MinQuantity || i.Quantity > MaxQuantity {
		return apperr.Validation("quantity must be between %d and %d", MinQuantity, MaxQuantity)
	}
	if i.Subtotal != i.Price*i.Quantity {
		return apperr.Validation("subtotal (%d) must equal price * quantity (%d)", i.Subtotal, i.Price*i.Quantity)
	}
	return nil
}

// Order is a live order attached to a table session.
type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number"`
	StoreID     string      `json:"store_id"`
	TableNumber int         `json:"table_number"`
	SessionID   string      `json:"session_id"`
	Items       []OrderItem `json:"items"`
	TotalAmount int         `json:"total_amount"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SumSubtotals returns the sum of item subtotals.
func SumSubtotals(items []OrderItem) int {
	total := 0
	for _, it := range items {
		total += it.Subtotal
	}
	return total
}

// Validate checks that the order has items, every item is consistent, and
// TotalAmount is the sum of the subtotals.
func (o Order) Validate() error {
	if len(o.Items) == 0 {
		return apperr.Validation("order must have at least one item")
	}
	for _, it := range o.Items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	if want := SumSubtotals(o.Items); o.TotalAmount != want {
		return apperr.Validation("total_amount (%d) must equal sum of subtotals (%d)", o.TotalAmount, want)
	}
	if !o.Status.Valid() {
		return apperr.Validation("invalid order status: %s", o.Status)
	}
	return nil
}

// OrderHistory is the archive of one ended session's orders.
type OrderHistory struct {
	ID                 string    `json:"id"`
	StoreID            string    `json:"store_id"`
	TableNumber        int       `json:"table_number"`
	SessionID          string    `json:"session_id"`
	Orders             []Order   `json:"orders"`
	TotalSessionAmount int       `json:"total_session_amount"`
	SessionStartedAt   time.Time `json:"session_started_at"`
	SessionEndedAt     time.Time `json:"session_ended_at"`
	ArchivedAt         time.Time `json:"archived_at"`
}

// SumOrderTotals returns the sum of order totals.
func SumOrderTotals(orders []Order) int {
	total := 0
	for _, o := range orders {
		total += o.TotalAmount
	}
	return total
}

// User is an administrator account of a store. Only the seeder writes users;
// authentication against them belongs to the outer auth layer.
type User struct {
	ID            string     `json:"id"`
	StoreID       string     `json:"store_id"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"password_hash"`
	Role          string     `json:"role"`
	LoginAttempts int        `json:"login_attempts"`
	LockedUntil   *time.Time `json:"locked_until"`
	CreatedAt     time.Time  `json:"created_at"`
}
