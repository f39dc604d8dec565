package harness

import (
	"context"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/roach88/tableorder/internal/apperr"
	"github.com/roach88/tableorder/internal/menu"
	"github.com/roach88/tableorder/internal/order"
	"github.com/roach88/tableorder/internal/seed"
)

// operation runs one named step against the harness application.
type operation func(ctx context.Context, h *Harness, args map[string]any) (any, error)

// operations maps scenario action names to their implementation.
var operations = map[string]operation{
	"seed":                  opSeed,
	"menu.create":           opMenuCreate,
	"menu.find":             opMenuFind,
	"menu.set_availability": opMenuSetAvailability,
	"menu.delete":           opMenuDelete,
	"table.create":          opTableCreate,
	"table.list":            opTableList,
	"session.start":         opSessionStart,
	"session.end":           opSessionEnd,
	"session.expire":        opSessionExpire,
	"order.create":          opOrderCreate,
	"order.status":          opOrderStatus,
	"order.delete":          opOrderDelete,
	"order.list":            opOrderList,
	"history.list":          opHistoryList,
	"clock.advance":         opClockAdvance,
}

// Operations returns the supported action names.
func Operations() []string {
	return slices.Sorted(maps.Keys(operations))
}

func opSeed(ctx context.Context, h *Harness, _ map[string]any) (any, error) {
	cat, err := seed.Default()
	if err != nil {
		return nil, err
	}
	cat.Store.ID = h.tenant
	return h.app.Seeder.Seed(ctx, cat)
}

func opMenuCreate(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	in := menu.Input{}
	var err error
	if in.Name, err = stringArg(args, "name"); err != nil {
		return nil, err
	}
	if in.Price, err = intArg(args, "price"); err != nil {
		return nil, err
	}
	if in.Category, err = stringArg(args, "category"); err != nil {
		return nil, err
	}
	in.Description, _ = optionalString(args, "description")
	in.ImageURL, _ = optionalString(args, "image_url")
	if _, ok := args["sort_order"]; ok {
		if in.SortOrder, err = intArg(args, "sort_order"); err != nil {
			return nil, err
		}
	}
	if _, ok := args["is_available"]; ok {
		avail, err := boolArg(args, "is_available")
		if err != nil {
			return nil, err
		}
		in.IsAvailable = &avail
	}
	return h.app.Menus.Create(ctx, h.tenant, in)
}

func opMenuFind(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	menus, err := h.app.Menus.List(ctx, h.tenant)
	if err != nil {
		return nil, err
	}
	for _, m := range menus {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, apperr.NotFound("menu", name)
}

func opMenuSetAvailability(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	id, err := stringArg(args, "menu_id")
	if err != nil {
		return nil, err
	}
	avail, err := boolArg(args, "is_available")
	if err != nil {
		return nil, err
	}
	return h.app.Menus.SetAvailability(ctx, h.tenant, id, avail)
}

func opMenuDelete(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	id, err := stringArg(args, "menu_id")
	if err != nil {
		return nil, err
	}
	return nil, h.app.Menus.Delete(ctx, h.tenant, id)
}

func opTableCreate(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	n, err := intArg(args, "table_number")
	if err != nil {
		return nil, err
	}
	pw, err := stringArg(args, "password")
	if err != nil {
		return nil, err
	}
	return h.app.Tables.CreateTable(ctx, h.tenant, n, pw)
}

func opTableList(ctx context.Context, h *Harness, _ map[string]any) (any, error) {
	tables, err := h.app.Tables.ListTables(ctx, h.tenant)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tables": tables, "count": len(tables)}, nil
}

func opSessionStart(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	n, err := intArg(args, "table_number")
	if err != nil {
		return nil, err
	}
	return h.app.Tables.StartSession(ctx, h.tenant, n)
}

func opSessionEnd(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	n, err := intArg(args, "table_number")
	if err != nil {
		return nil, err
	}
	return h.app.Tables.EndSession(ctx, h.tenant, n)
}

func opSessionExpire(ctx context.Context, h *Harness, _ map[string]any) (any, error) {
	n, err := h.app.Tables.ExpireSessions(ctx, h.tenant)
	if err != nil {
		return nil, err
	}
	return map[string]any{"expired": n}, nil
}

func opOrderCreate(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	n, err := intArg(args, "table_number")
	if err != nil {
		return nil, err
	}
	sessionID, err := stringArg(args, "session_id")
	if err != nil {
		return nil, err
	}
	raw, ok := args["items"].([]any)
	if !ok {
		return nil, apperr.Validation("items must be a list")
	}
	items := make([]order.RequestedItem, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, apperr.Validation("items[%d] must be a mapping", i)
		}
		id, err := stringArg(m, "menu_id")
		if err != nil {
			return nil, err
		}
		qty, err := intArg(m, "quantity")
		if err != nil {
			return nil, err
		}
		items = append(items, order.RequestedItem{MenuID: id, Quantity: qty})
	}
	return h.app.Orders.CreateOrder(ctx, h.tenant, n, sessionID, items)
}

func opOrderStatus(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	id, err := stringArg(args, "order_id")
	if err != nil {
		return nil, err
	}
	status, err := stringArg(args, "status")
	if err != nil {
		return nil, err
	}
	return h.app.Orders.UpdateStatus(ctx, h.tenant, id, status)
}

func opOrderDelete(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	id, err := stringArg(args, "order_id")
	if err != nil {
		return nil, err
	}
	return nil, h.app.Orders.DeleteOrder(ctx, h.tenant, id)
}

func opOrderList(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	if sessionID, ok := optionalString(args, "session_id"); ok {
		orders, err := h.app.Orders.OrdersBySession(ctx, h.tenant, sessionID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"orders": orders, "count": len(orders)}, nil
	}
	n, err := intArg(args, "table_number")
	if err != nil {
		return nil, err
	}
	orders, err := h.app.Orders.OrdersByTable(ctx, h.tenant, n)
	if err != nil {
		return nil, err
	}
	return map[string]any{"orders": orders, "count": len(orders)}, nil
}

func opHistoryList(ctx context.Context, h *Harness, args map[string]any) (any, error) {
	n, err := intArg(args, "table_number")
	if err != nil {
		return nil, err
	}
	history, err := h.app.Tables.OrderHistory(ctx, h.tenant, n, nil, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"history": history, "count": len(history)}, nil
}

func opClockAdvance(_ context.Context, h *Harness, args map[string]any) (any, error) {
	raw, err := stringArg(args, "duration")
	if err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, apperr.Validation("duration: %v", err)
	}
	now := h.clock.Advance(d)
	return map[string]any{"now": now.Format(time.RFC3339)}, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", apperr.Validation("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.Validation("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func optionalString(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok
}

func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, apperr.Validation("%s is required", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, apperr.Validation("%s must be an integer, got %v", key, v)
}

func boolArg(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, apperr.Validation("%s is required", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, apperr.Validation("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}
