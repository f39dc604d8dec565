package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableorder/internal/eventbus"
	"github.com/roach88/tableorder/internal/model"
	"github.com/roach88/tableorder/internal/seed"
	"github.com/roach88/tableorder/internal/session"
)

func TestSeedCommand(t *testing.T) {
	h := newCLIEnv(t)

	code, env := h.runJSON("seed")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "ok", env.Status)
	res := decodeData[seed.Result](t, env)
	assert.True(t, res.StoreCreated)
	assert.Equal(t, 23, res.MenusCreated)

	code, env = h.runJSON("seed")
	require.Equal(t, ExitSuccess, code)
	res = decodeData[seed.Result](t, env)
	assert.False(t, res.StoreCreated)
	assert.Zero(t, res.MenusCreated)

	text := h.run("seed")
	assert.Equal(t, ExitSuccess, text.code)
	assert.Contains(t, text.stdout, "Store store001")
}

func TestValidateCommand(t *testing.T) {
	h := newCLIEnv(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
store: {id: cafe, name: Cafe, created_at: "2026-02-09T00:00:00Z"}
admin: {username: owner, password: secret1}
menus:
  - {name: Latte, price: 4500, category: Coffee, description: "", image_url: ""}
`), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
store: {id: cafe, name: Cafe, created_at: "2026-02-09T00:00:00Z"}
admin: {username: owner, password: secret1}
menus:
  - {name: Latte, price: -5, category: Coffee, description: "", image_url: ""}
`), 0o644))

	code, env := h.runJSON("validate", good)
	require.Equal(t, ExitSuccess, code)
	vr := decodeData[ValidationResult](t, env)
	assert.True(t, vr.Valid)
	assert.Equal(t, "cafe", vr.Store)
	assert.Equal(t, 1, vr.Menus)

	code, env = h.runJSON("validate", bad)
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "error", env.Status)

	res := h.run("validate", filepath.Join(dir, "absent.yaml"))
	assert.Equal(t, ExitCommandError, res.code)
}

func TestOrderLifecycle(t *testing.T) {
	h := newCLIEnv(t)
	t.Setenv("TABLEORDER_JOURNAL_PATH", "events.db")

	code, _ := h.runJSON("seed")
	require.Equal(t, ExitSuccess, code)

	code, env := h.runJSON("menu", "list")
	require.Equal(t, ExitSuccess, code)
	menus := decodeData[[]model.Menu](t, env)
	require.Len(t, menus, 23)
	kimchi := menus[0]
	assert.Equal(t, 9000, kimchi.Price)

	code, env = h.runJSON("menu", "list", "--category", kimchi.Category)
	require.Equal(t, ExitSuccess, code)
	assert.NotEmpty(t, decodeData[[]model.Menu](t, env))

	code, _ = h.runJSON("table", "create", "1", "--password", "1234")
	require.Equal(t, ExitSuccess, code)

	code, env = h.runJSON("table", "create", "1", "--password", "1234")
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE", env.Error.Code)

	code, env = h.runJSON("order", "create", "--table", "1", "--item", kimchi.ID+":2")
	assert.Equal(t, ExitFailure, code, "no active session yet")
	assert.Equal(t, "VALIDATION", env.Error.Code)

	code, env = h.runJSON("session", "start", "1")
	require.Equal(t, ExitSuccess, code)
	sess := decodeData[model.Session](t, env)
	assert.Equal(t, "T01-20260314120000", sess.ID)

	code, env = h.runJSON("order", "create", "--table", "1", "--item", kimchi.ID+":2")
	require.Equal(t, ExitSuccess, code)
	o := decodeData[model.Order](t, env)
	assert.Equal(t, 18000, o.TotalAmount)
	assert.Equal(t, "20260314-00001", o.OrderNumber)
	assert.Equal(t, sess.ID, o.SessionID)

	code, env = h.runJSON("order", "status", o.ID, "completed")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, model.StatusCompleted, decodeData[model.Order](t, env).Status)

	code, env = h.runJSON("order", "status", o.ID, "pending")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "VALIDATION", env.Error.Code)

	code, env = h.runJSON("order", "get", "missing")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env = h.runJSON("order", "list", "--table", "1")
	require.Equal(t, ExitSuccess, code)
	assert.Len(t, decodeData[[]model.Order](t, env), 1)

	code, env = h.runJSON("table", "list")
	require.Equal(t, ExitSuccess, code)
	tables := decodeData[[]session.TableView](t, env)
	require.Len(t, tables, 1)
	require.NotNil(t, tables[0].CurrentSession)
	assert.Equal(t, sess.ID, tables[0].CurrentSession.SessionID)

	h.clock.Advance(time.Hour)
	code, env = h.runJSON("session", "end", "1")
	require.Equal(t, ExitSuccess, code)
	ended := decodeData[session.EndResult](t, env)
	require.NotNil(t, ended.History)
	assert.Equal(t, 18000, ended.History.TotalSessionAmount)

	code, env = h.runJSON("order", "list")
	require.Equal(t, ExitSuccess, code)
	assert.Empty(t, decodeData[[]model.Order](t, env))

	code, env = h.runJSON("history", "--table", "1", "--from", "2026-03-14", "--to", "2026-03-14")
	require.Equal(t, ExitSuccess, code)
	hist := decodeData[[]model.OrderHistory](t, env)
	require.Len(t, hist, 1)
	assert.Equal(t, sess.ID, hist[0].SessionID)

	code, env = h.runJSON("events")
	require.Equal(t, ExitSuccess, code)
	events := decodeData[EventsResult](t, env)
	types := make([]string, len(events.Events))
	for i, e := range events.Events {
		types[i] = e.Type
	}
	assert.Equal(t, []string{
		eventbus.SessionStarted,
		eventbus.OrderCreated,
		eventbus.OrderStatusChanged,
		eventbus.SessionEnded,
	}, types)

	code, env = h.runJSON("events", "--type", eventbus.OrderCreated)
	require.Equal(t, ExitSuccess, code)
	filtered := decodeData[EventsResult](t, env)
	require.Len(t, filtered.Events, 1)
	assert.Equal(t, 4, filtered.Total)
}

func TestMenuCommands(t *testing.T) {
	h := newCLIEnv(t)

	code, env := h.runJSON("menu", "add", "--name", " 라떼 ", "--price", "4500", "--category", "커피", "--unavailable")
	require.Equal(t, ExitSuccess, code)
	m := decodeData[model.Menu](t, env)
	assert.Equal(t, "라떼", m.Name)
	assert.False(t, m.IsAvailable)

	code, env = h.runJSON("menu", "update", m.ID, "--price", "5000", "--available")
	require.Equal(t, ExitSuccess, code)
	m = decodeData[model.Menu](t, env)
	assert.Equal(t, 5000, m.Price)
	assert.True(t, m.IsAvailable)

	code, env = h.runJSON("menu", "add", "--name", "x", "--price", "-1", "--category", "c")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "VALIDATION", env.Error.Code)

	code, _ = h.runJSON("menu", "delete", m.ID)
	require.Equal(t, ExitSuccess, code)

	code, env = h.runJSON("menu", "get", m.ID)
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestSessionCommands_Text(t *testing.T) {
	h := newCLIEnv(t)

	require.Equal(t, ExitSuccess, h.run("table", "create", "7", "--password", "0000").code)

	res := h.run("session", "show", "7")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "no active session")

	res = h.run("session", "start", "7")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "Started session T07-20260314120000")

	res = h.run("table", "list")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "T07-20260314120000")

	res = h.run("session", "end", "7")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "no orders to archive")

	res = h.run("session", "end", "7")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "Error [VALIDATION]")
}

func TestSessionExpireCommand(t *testing.T) {
	h := newCLIEnv(t)
	t.Setenv("TABLEORDER_SESSION_EXPIRY", "1h")

	require.Equal(t, ExitSuccess, h.run("table", "create", "2", "--password", "0000").code)
	require.Equal(t, ExitSuccess, h.run("session", "start", "2").code)

	h.clock.Advance(2 * time.Hour)
	res := h.run("session", "expire")
	require.Equal(t, ExitSuccess, res.code)
	assert.Equal(t, "Expired 1 sessions", strings.TrimSpace(res.stdout))
}

func TestEventsCommand_JournalDisabled(t *testing.T) {
	h := newCLIEnv(t)
	res := h.run("events")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "journal is disabled")
}
