// Package session manages tables and their sessions, including the archive
// transaction that moves a session's live orders into history when it ends.
//
// Start and end for one table are serialized by a lifecycle lock
// ("lifecycle/<tenant>/<table>") from the shared lock registry. Individual
// collection writes are serialized by the document store as usual.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/tableorder/internal/apperr"
	"github.com/roach88/tableorder/internal/docstore"
	"github.com/roach88/tableorder/internal/eventbus"
	"github.com/roach88/tableorder/internal/lockreg"
	"github.com/roach88/tableorder/internal/model"
)

// DefaultExpiry is how long a session stays active when nothing ends it.
const DefaultExpiry = 16 * time.Hour

// MinPasswordLength is the shortest accepted table password.
const MinPasswordLength = 4

// Publisher broadcasts domain events.
type Publisher interface {
	Publish(tenant, eventType string, payload any) int
}

// CurrentSession summarizes the active session of a table.
type CurrentSession struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TableView is a table without its credential, annotated with its session.
type TableView struct {
	ID             string          `json:"id"`
	TableNumber    int             `json:"table_number"`
	IsActive       bool            `json:"is_active"`
	CurrentSession *CurrentSession `json:"current_session"`
}

// EndResult reports the outcome of ending a session. History is nil when
// the session had no live orders.
type EndResult struct {
	Session model.Session       `json:"session"`
	History *model.OrderHistory `json:"history"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithExpiry sets the session lifetime. Non-positive values are ignored.
func WithExpiry(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.expiry = d
		}
	}
}

// WithHashCost sets the bcrypt cost for table passwords.
func WithHashCost(cost int) Option {
	return func(m *Manager) {
		m.hashCost = cost
	}
}

// Manager is the session lifecycle manager.
type Manager struct {
	store    *docstore.Store
	locks    *lockreg.Registry
	events   Publisher
	clock    model.Clock
	ids      model.IDGenerator
	expiry   time.Duration
	hashCost int
}

// NewManager creates a Manager.
func NewManager(store *docstore.Store, locks *lockreg.Registry, events Publisher, clock model.Clock, ids model.IDGenerator, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		locks:    locks,
		events:   events,
		clock:    clock,
		ids:      ids,
		expiry:   DefaultExpiry,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Expiry returns the configured session lifetime.
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

func (m *Manager) tables(tenant string) *docstore.Collection[model.Table] {
	return docstore.NewCollection(m.store, docstore.Tables, tenant, func(t model.Table) string { return t.ID })
}

func (m *Manager) sessions(tenant string) *docstore.Collection[model.Session] {
	return docstore.NewCollection(m.store, docstore.Sessions, tenant, func(s model.Session) string { return s.ID })
}

func (m *Manager) orders(tenant string) *docstore.Collection[model.Order] {
	return docstore.NewCollection(m.store, docstore.Orders, tenant, func(o model.Order) string { return o.ID })
}

func (m *Manager) history(tenant string) *docstore.Collection[model.OrderHistory] {
	return docstore.NewCollection(m.store, docstore.OrderHistory, tenant, func(h model.OrderHistory) string { return h.ID })
}

func lifecycleKey(tenant string, tableNumber int) string {
	return fmt.Sprintf("lifecycle/%s/%d", tenant, tableNumber)
}

// CreateTable registers a table with a hashed password.
func (m *Manager) CreateTable(ctx context.Context, tenant string, tableNumber int, password string) (TableView, error) {
	if tableNumber < 1 {
		return TableView{}, apperr.Validation("table number must be 1 or greater")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return TableView{}, apperr.Validation("table password must be at least %d characters", MinPasswordLength)
	}
	if err := docstore.ValidateTenant(tenant); err != nil {
		return TableView{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.hashCost)
	if err != nil {
		return TableView{}, fmt.Errorf("hash table password: %w", err)
	}

	table := model.Table{
		ID:           m.ids.NewID(),
		StoreID:      tenant,
		TableNumber:  tableNumber,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    model.Timestamp(m.clock.Now()),
	}
	err = m.tables(tenant).Transform(ctx, func(tables []model.Table) ([]model.Table, error) {
		for _, t := range tables {
			if t.TableNumber == tableNumber {
				return nil, apperr.Duplicate("table", "table_number", strconv.Itoa(tableNumber))
			}
		}
		return append(tables, table), nil
	})
	if err != nil {
		return TableView{}, err
	}

	slog.Info("table created", "tenant", tenant, "table", tableNumber)
	return TableView{ID: table.ID, TableNumber: table.TableNumber, IsActive: table.IsActive}, nil
}

// ListTables returns every table sorted by number, each annotated with its
// active, unexpired session.
func (m *Manager) ListTables(ctx context.Context, tenant string) ([]TableView, error) {
	tables, err := m.tables(tenant).All(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := m.sessions(tenant).All(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()

	out := make([]TableView, 0, len(tables))
	for _, t := range tables {
		view := TableView{ID: t.ID, TableNumber: t.TableNumber, IsActive: t.IsActive}
		if s, ok := latestActive(sessions, t.TableNumber); ok && s.IsActiveAt(now) {
			view.CurrentSession = &CurrentSession{SessionID: s.ID, StartedAt: s.StartedAt, ExpiresAt: s.ExpiresAt}
		}
		out = append(out, view)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TableNumber < out[j].TableNumber
	})
	return out, nil
}

// ActiveSession returns the table's active, unexpired session.
func (m *Manager) ActiveSession(ctx context.Context, tenant string, tableNumber int) (model.Session, bool, error) {
	sessions, err := m.sessions(tenant).All(ctx)
	if err != nil {
		return model.Session{}, false, err
	}
	s, ok := latestActive(sessions, tableNumber)
	if !ok || !s.IsActiveAt(m.clock.Now()) {
		return model.Session{}, false, nil
	}
	return s, true, nil
}

// latestActive returns the most recently started session of tableNumber
// still marked active, expired or not.
func latestActive(sessions []model.Session, tableNumber int) (model.Session, bool) {
	var found model.Session
	ok := false
	for _, s := range sessions {
		if s.TableNumber != tableNumber || s.Status != model.SessionActive {
			continue
		}
		if !ok || s.StartedAt.After(found.StartedAt) {
			found, ok = s, true
		}
	}
	return found, ok
}

// StartSession opens a new session for a registered table. A session that
// is still marked active but has expired is ended and archived first.
func (m *Manager) StartSession(ctx context.Context, tenant string, tableNumber int) (model.Session, error) {
	release, err := m.locks.Acquire(ctx, lifecycleKey(tenant, tableNumber))
	if err != nil {
		return model.Session{}, err
	}
	defer release()

	tables, err := m.tables(tenant).All(ctx)
	if err != nil {
		return model.Session{}, err
	}
	registered := false
	for _, t := range tables {
		if t.TableNumber == tableNumber {
			registered = true
			break
		}
	}
	if !registered {
		return model.Session{}, apperr.NotFound("table", strconv.Itoa(tableNumber))
	}

	if _, err := m.expireTableLocked(ctx, tenant, tableNumber); err != nil {
		return model.Session{}, err
	}

	var started model.Session
	err = m.sessions(tenant).Transform(ctx, func(sessions []model.Session) ([]model.Session, error) {
		now := model.Timestamp(m.clock.Now())
		for _, s := range sessions {
			if s.TableNumber == tableNumber && s.IsActiveAt(now) {
				return nil, apperr.Validation("table %d already has an active session", tableNumber)
			}
		}

		startedAt := now
		id := model.SessionID(tableNumber, startedAt)
		for containsSession(sessions, id) {
			startedAt = startedAt.Add(time.Second)
			id = model.SessionID(tableNumber, startedAt)
		}

		started = model.Session{
			ID:          id,
			StoreID:     tenant,
			TableNumber: tableNumber,
			Status:      model.SessionActive,
			StartedAt:   startedAt,
			ExpiresAt:   startedAt.Add(m.expiry),
		}
		return append(sessions, started), nil
	})
	if err != nil {
		return model.Session{}, err
	}

	slog.Info("session started", "tenant", tenant, "table", tableNumber, "session_id", started.ID)
	m.events.Publish(tenant, eventbus.SessionStarted, started)
	return started, nil
}

func containsSession(sessions []model.Session, id string) bool {
	for _, s := range sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}

// EndSession ends the table's active session, archiving its live orders.
func (m *Manager) EndSession(ctx context.Context, tenant string, tableNumber int) (EndResult, error) {
	release, err := m.locks.Acquire(ctx, lifecycleKey(tenant, tableNumber))
	if err != nil {
		return EndResult{}, err
	}
	defer release()

	sessions, err := m.sessions(tenant).All(ctx)
	if err != nil {
		return EndResult{}, err
	}
	active, ok := latestActive(sessions, tableNumber)
	if !ok {
		return EndResult{}, apperr.Validation("no active session for table %d", tableNumber)
	}
	return m.endLocked(ctx, tenant, active)
}

// endLocked runs the archive transaction for s. The caller holds the
// table's lifecycle lock.
//
// The session's orders are removed and the history record is appended
// inside one critical section on the orders collection, so a concurrent
// status change lands either before the snapshot or on a missing order.
// If either write fails nothing is archived and the session stays active.
func (m *Manager) endLocked(ctx context.Context, tenant string, s model.Session) (EndResult, error) {
	now := model.Timestamp(m.clock.Now())
	if now.Before(s.StartedAt) {
		now = s.StartedAt
	}

	var archived *model.OrderHistory
	err := m.orders(tenant).Transform(ctx, func(orders []model.Order) ([]model.Order, error) {
		kept := make([]model.Order, 0, len(orders))
		var live []model.Order
		for _, o := range orders {
			if o.SessionID == s.ID {
				live = append(live, o)
			} else {
				kept = append(kept, o)
			}
		}
		if len(live) == 0 {
			return nil, errNothingToArchive
		}

		h := model.OrderHistory{
			ID:                 m.ids.NewID(),
			StoreID:            tenant,
			TableNumber:        s.TableNumber,
			SessionID:          s.ID,
			Orders:             live,
			TotalSessionAmount: model.SumOrderTotals(live),
			SessionStartedAt:   s.StartedAt,
			SessionEndedAt:     now,
			ArchivedAt:         now,
		}
		if err := m.history(tenant).Append(ctx, h); err != nil {
			return nil, fmt.Errorf("archive session %s: %w", s.ID, err)
		}
		archived = &h
		return kept, nil
	})
	switch {
	case errors.Is(err, errNothingToArchive):
	case err != nil:
		if archived != nil {
			m.unarchive(ctx, tenant, archived.ID)
		}
		return EndResult{}, err
	}

	archivedOrders := 0
	if archived != nil {
		archivedOrders = len(archived.Orders)
	}

	var ended model.Session
	err = m.sessions(tenant).Transform(ctx, func(sessions []model.Session) ([]model.Session, error) {
		i := m.sessions(tenant).IndexOf(sessions, s.ID)
		if i < 0 {
			return nil, apperr.NotFound("session", s.ID)
		}
		if sessions[i].Status != model.SessionActive {
			return nil, apperr.InvalidTransition("session", string(sessions[i].Status), string(model.SessionEnded))
		}
		endedAt := now
		sessions[i].Status = model.SessionEnded
		sessions[i].EndedAt = &endedAt
		ended = sessions[i]
		return sessions, nil
	})
	if err != nil {
		return EndResult{}, err
	}

	result := EndResult{Session: ended, History: archived}
	slog.Info("session ended",
		"tenant", tenant,
		"table", s.TableNumber,
		"session_id", s.ID,
		"archived_orders", archivedOrders)
	m.events.Publish(tenant, eventbus.SessionEnded, result)
	return result, nil
}

var errNothingToArchive = errors.New("no live orders")

// unarchive drops a history record whose orders could not be removed from
// the live collection.
func (m *Manager) unarchive(ctx context.Context, tenant, historyID string) {
	if err := m.history(tenant).Delete(ctx, historyID); err != nil {
		slog.Warn("archive rollback failed",
			"tenant", tenant,
			"history_id", historyID,
			"error", err)
	}
}

// ExpireSessions ends every session of tenant that is still marked active
// past its expiry, and returns how many were ended.
func (m *Manager) ExpireSessions(ctx context.Context, tenant string) (int, error) {
	sessions, err := m.sessions(tenant).All(ctx)
	if err != nil {
		return 0, err
	}
	now := m.clock.Now()
	tables := map[int]bool{}
	for _, s := range sessions {
		if s.IsExpiredAt(now) {
			tables[s.TableNumber] = true
		}
	}

	numbers := make([]int, 0, len(tables))
	for n := range tables {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	ended := 0
	for _, n := range numbers {
		count, err := m.expireTable(ctx, tenant, n)
		ended += count
		if err != nil {
			return ended, err
		}
	}
	return ended, nil
}

func (m *Manager) expireTable(ctx context.Context, tenant string, tableNumber int) (int, error) {
	release, err := m.locks.Acquire(ctx, lifecycleKey(tenant, tableNumber))
	if err != nil {
		return 0, err
	}
	defer release()
	return m.expireTableLocked(ctx, tenant, tableNumber)
}

// expireTableLocked ends the table's expired sessions. The caller holds the
// table's lifecycle lock.
func (m *Manager) expireTableLocked(ctx context.Context, tenant string, tableNumber int) (int, error) {
	sessions, err := m.sessions(tenant).All(ctx)
	if err != nil {
		return 0, err
	}
	now := m.clock.Now()
	ended := 0
	for _, s := range sessions {
		if s.TableNumber != tableNumber || !s.IsExpiredAt(now) {
			continue
		}
		if _, err := m.endLocked(ctx, tenant, s); err != nil {
			return ended, err
		}
		slog.Info("session expired", "tenant", tenant, "table", tableNumber, "session_id", s.ID)
		ended++
	}
	return ended, nil
}

// OrderHistory returns the archived sessions of a table whose end time lies
// within [from, to], most recent first. Nil bounds are open.
func (m *Manager) OrderHistory(ctx context.Context, tenant string, tableNumber int, from, to *time.Time) ([]model.OrderHistory, error) {
	all, err := m.history(tenant).All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.OrderHistory, 0)
	for _, h := range all {
		if h.TableNumber != tableNumber {
			continue
		}
		if from != nil && h.SessionEndedAt.Before(*from) {
			continue
		}
		if to != nil && h.SessionEndedAt.After(*to) {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SessionEndedAt.After(out[j].SessionEndedAt)
	})
	return out, nil
}
