// Package order implements the order state machine: item snapshots, totals,
// per-day order numbers and status transitions.
//
// Every mutation runs inside a docstore transform on the tenant's orders
// collection, so the existence check, the transition check and the write are
// one critical section.
package order

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/tableorder/internal/apperr"
	"github.com/roach88/tableorder/internal/docstore"
	"github.com/roach88/tableorder/internal/eventbus"
	"github.com/roach88/tableorder/internal/model"
)

// MenuLookup resolves the current state of a menu entry.
type MenuLookup interface {
	Get(ctx context.Context, tenant, id string) (model.Menu, error)
}

// Publisher broadcasts domain events.
type Publisher interface {
	Publish(tenant, eventType string, payload any) int
}

// RequestedItem is one line of an incoming order.
type RequestedItem struct {
	MenuID   string `json:"menu_id"`
	Quantity int    `json:"quantity"`
}

// StatusChange is the payload of an order_status_changed event.
type StatusChange struct {
	Order          model.Order       `json:"order"`
	PreviousStatus model.OrderStatus `json:"previous_status"`
	Status         model.OrderStatus `json:"status"`
}

// Deleted is the payload of an order_deleted event.
type Deleted struct {
	OrderID string `json:"order_id"`
}

// Service is the order state machine.
type Service struct {
	store  *docstore.Store
	menus  MenuLookup
	events Publisher
	clock  model.Clock
	ids    model.IDGenerator
}

// NewService creates a Service.
func NewService(store *docstore.Store, menus MenuLookup, events Publisher, clock model.Clock, ids model.IDGenerator) *Service {
	return &Service{store: store, menus: menus, events: events, clock: clock, ids: ids}
}

func (s *Service) orders(tenant string) *docstore.Collection[model.Order] {
	return docstore.NewCollection(s.store, docstore.Orders, tenant, func(o model.Order) string { return o.ID })
}

func (s *Service) history(tenant string) *docstore.Collection[model.OrderHistory] {
	return docstore.NewCollection(s.store, docstore.OrderHistory, tenant, func(h model.OrderHistory) string { return h.ID })
}

// CreateOrder snapshots the requested menus into a new pending order and
// publishes order_created.
func (s *Service) CreateOrder(ctx context.Context, tenant string, tableNumber int, sessionID string, items []RequestedItem) (model.Order, error) {
	if len(items) == 0 {
		return model.Order{}, apperr.Validation("order must have at least one item")
	}
	if tableNumber < 1 {
		return model.Order{}, apperr.Validation("table number must be 1 or greater")
	}
	if sessionID == "" {
		return model.Order{}, apperr.Validation("session id is required")
	}

	lines := make([]model.OrderItem, 0, len(items))
	for _, req := range items {
		m, err := s.menus.Get(ctx, tenant, req.MenuID)
		if err != nil {
			return model.Order{}, err
		}
		if !m.IsAvailable {
			return model.Order{}, apperr.Validation("menu '%s' is not available", m.Name)
		}
		if req.Quantity < model.MinQuantity || req.Quantity > model.MaxQuantity {
			return model.Order{}, apperr.Validation("quantity must be between %d and %d", model.MinQuantity, model.MaxQuantity)
		}
		lines = append(lines, model.NewOrderItem(m, req.Quantity))
	}

	var created model.Order
	err := s.orders(tenant).Transform(ctx, func(orders []model.Order) ([]model.Order, error) {
		now := model.Timestamp(s.clock.Now())
		seq, err := s.nextSequence(ctx, tenant, now, orders)
		if err != nil {
			return nil, err
		}
		created = model.Order{
			ID:          s.ids.NewID(),
			OrderNumber: model.FormatOrderNumber(now, seq),
			StoreID:     tenant,
			TableNumber: tableNumber,
			SessionID:   sessionID,
			Items:       lines,
			TotalAmount: model.SumSubtotals(lines),
			Status:      model.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := created.Validate(); err != nil {
			return nil, err
		}
		return append(orders, created), nil
	})
	if err != nil {
		return model.Order{}, err
	}

	slog.Info("order created",
		"tenant", tenant,
		"order_id", created.ID,
		"order_number", created.OrderNumber,
		"table", tableNumber,
		"total", created.TotalAmount)
	s.events.Publish(tenant, eventbus.OrderCreated, created)
	return created, nil
}

// nextSequence returns max(today's sequence)+1 over the live orders and the
// orders already archived today. Archived orders count so that a number is
// never reissued after its session ends.
func (s *Service) nextSequence(ctx context.Context, tenant string, now time.Time, live []model.Order) (int, error) {
	prefix := model.OrderNumberPrefix(now)
	maxSeq := 0
	consider := func(number string) {
		if seq, ok := model.OrderSequence(number, prefix); ok && seq > maxSeq {
			maxSeq = seq
		}
	}

	for _, o := range live {
		consider(o.OrderNumber)
	}

	archived, err := s.history(tenant).All(ctx)
	if err != nil {
		return 0, err
	}
	y, m, d := now.UTC().Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for _, h := range archived {
		if h.SessionEndedAt.Before(dayStart) {
			continue
		}
		for _, o := range h.Orders {
			consider(o.OrderNumber)
		}
	}
	return maxSeq + 1, nil
}

// GetOrder returns one live order, or NOT_FOUND.
func (s *Service) GetOrder(ctx context.Context, tenant, id string) (model.Order, error) {
	return s.orders(tenant).Get(ctx, id)
}

// UpdateStatus moves an order to target and publishes order_status_changed.
func (s *Service) UpdateStatus(ctx context.Context, tenant, id, target string) (model.Order, error) {
	var change StatusChange
	err := s.orders(tenant).Transform(ctx, func(orders []model.Order) ([]model.Order, error) {
		i := s.orders(tenant).IndexOf(orders, id)
		if i < 0 {
			return nil, apperr.NotFound("order", id)
		}
		next, err := model.ParseOrderStatus(target)
		if err != nil {
			return nil, err
		}
		current := orders[i].Status
		if !current.CanTransitionTo(next) {
			return nil, apperr.InvalidTransition("order", string(current), string(next))
		}

		orders[i].Status = next
		orders[i].UpdatedAt = model.Timestamp(s.clock.Now())
		change = StatusChange{Order: orders[i], PreviousStatus: current, Status: next}
		return orders, nil
	})
	if err != nil {
		return model.Order{}, err
	}

	slog.Info("order status changed",
		"tenant", tenant,
		"order_id", id,
		"from", change.PreviousStatus,
		"to", change.Status)
	s.events.Publish(tenant, eventbus.OrderStatusChanged, change)
	return change.Order, nil
}

// DeleteOrder removes a live order and publishes order_deleted.
func (s *Service) DeleteOrder(ctx context.Context, tenant, id string) error {
	if err := s.orders(tenant).Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("order deleted", "tenant", tenant, "order_id", id)
	s.events.Publish(tenant, eventbus.OrderDeleted, Deleted{OrderID: id})
	return nil
}

// ListOrders returns every live order of tenant in creation order.
func (s *Service) ListOrders(ctx context.Context, tenant string) ([]model.Order, error) {
	return s.orders(tenant).All(ctx)
}

// OrdersBySession returns the live orders of one session.
func (s *Service) OrdersBySession(ctx context.Context, tenant, sessionID string) ([]model.Order, error) {
	return s.filter(ctx, tenant, func(o model.Order) bool { return o.SessionID == sessionID })
}

// OrdersByTable returns the live orders of one table across sessions.
func (s *Service) OrdersByTable(ctx context.Context, tenant string, tableNumber int) ([]model.Order, error) {
	return s.filter(ctx, tenant, func(o model.Order) bool { return o.TableNumber == tableNumber })
}

func (s *Service) filter(ctx context.Context, tenant string, keep func(model.Order) bool) ([]model.Order, error) {
	all, err := s.orders(tenant).All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Order, 0, len(all))
	for _, o := range all {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out, nil
}
