package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/tableorder/internal/docstore"
	"github.com/roach88/tableorder/internal/lockreg"
	"github.com/roach88/tableorder/internal/model"
	"github.com/roach88/tableorder/internal/testutil"
)

func TestDefault_Valid(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "store001", cat.Store.ID)
	assert.Equal(t, "맛있는 식당", cat.Store.Name)
	assert.Len(t, cat.Menus, 23)
	assert.Equal(t, "김치찌개", cat.Menus[0].Name)
	assert.Equal(t, 9000, cat.Menus[0].Price)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte(`
store: {id: s1, name: x, created_at: "2026-02-09T00:00:00Z"}
admin: {username: admin, password: secret}
menus:
  - {name: a, price: 1, category: c, description: "", image_url: "", colour: red}
`))
	assert.Error(t, err)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		menu string
	}{
		{"negative price", `{name: a, price: -1, category: c, description: "", image_url: ""}`},
		{"price too high", `{name: a, price: 1000001, category: c, description: "", image_url: ""}`},
		{"empty name", `{name: "", price: 1, category: c, description: "", image_url: ""}`},
		{"empty category", `{name: a, price: 1, category: "", description: "", image_url: ""}`},
		{"bad image url", `{name: a, price: 1, category: c, description: "", image_url: "ftp://x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "store: {id: s1, name: x, created_at: \"2026-02-09T00:00:00Z\"}\n" +
				"admin: {username: admin, password: secret}\n" +
				"menus:\n  - " + tt.menu + "\n"
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("store: {id: \"../x\", name: x, created_at: \"2026-02-09T00:00:00Z\"}\nadmin: {username: a, password: secret}\nmenus:\n  - {name: a, price: 1, category: c, description: \"\", image_url: \"\"}\n"))
	assert.Error(t, err, "store id must be a safe path segment")

	_, err = Parse([]byte("store: {id: s1, name: x, created_at: \"2026-02-09T00:00:00Z\"}\nadmin: {username: a, password: secret}\nmenus: []\n"))
	assert.Error(t, err, "at least one menu")
}

func TestSeed_Idempotent(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC))
	store, err := docstore.Open(t.TempDir(), lockreg.New(time.Second))
	require.NoError(t, err)
	s := NewSeeder(store, clock, testutil.NewSequenceIDs("seed"), bcrypt.MinCost)
	ctx := context.Background()

	cat, err := Default()
	require.NoError(t, err)

	res, err := s.Seed(ctx, cat)
	require.NoError(t, err)
	assert.True(t, res.StoreCreated)
	assert.True(t, res.AdminCreated)
	assert.Equal(t, 23, res.MenusCreated)
	assert.Equal(t, []string{"tables", "sessions", "orders", "order_history"}, res.Initialized)

	for _, entity := range []docstore.Entity{docstore.Tables, docstore.Sessions, docstore.Orders, docstore.OrderHistory} {
		path, err := store.Path(entity, "store001")
		require.NoError(t, err)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[]\n", string(raw))
	}
	assert.FileExists(t, filepath.Join(store.Root(), "stores.json"))

	menus := docstore.NewCollection(store, docstore.Menus, "store001", func(m model.Menu) string { return m.ID })
	list, err := menus.All(ctx)
	require.NoError(t, err)
	require.Len(t, list, 23)
	assert.Equal(t, 22, list[22].SortOrder)
	assert.True(t, list[0].IsAvailable)

	users := docstore.NewCollection(store, docstore.Users, "store001", func(u model.User) string { return u.ID })
	admins, err := users.All(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin", admins[0].Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins[0].PasswordHash), []byte("admin1234")))

	again, err := s.Seed(ctx, cat)
	require.NoError(t, err)
	assert.False(t, again.StoreCreated)
	assert.False(t, again.AdminCreated)
	assert.Zero(t, again.MenusCreated)

	list, err = menus.All(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 23, "second seed must not duplicate menus")

	tenants, err := store.Tenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"store001"}, tenants)
}
