package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableorder/internal/apperr"
	"github.com/roach88/tableorder/internal/model"
)

func menuCollection(s *Store) *Collection[model.Menu] {
	return NewCollection(s, Menus, "store001", func(m model.Menu) string { return m.ID })
}

func TestCollection_AppendFindAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	menus := menuCollection(s)

	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, menus.Append(ctx, model.Menu{ID: "m-1", StoreID: "store001", Name: "비빔밥", Price: 10000, IsAvailable: true, CreatedAt: created}))
	require.NoError(t, menus.Append(ctx, model.Menu{ID: "m-2", StoreID: "store001", Name: "콜라", Price: 2000}))

	all, err := menus.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "비빔밥", all[0].Name)
	assert.True(t, all[0].CreatedAt.Equal(created))

	m, ok, err := menus.Find(ctx, "m-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2000, m.Price)

	_, err = menus.Get(ctx, "m-9")
	assert.True(t, apperr.IsNotFound(err))
}

func TestCollection_Update(t *testing.T) {
	now := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(fixedClock{now}))
	ctx := context.Background()
	menus := menuCollection(s)

	require.NoError(t, menus.Append(ctx, model.Menu{ID: "m-1", Name: "라면", Price: 5000, IsAvailable: true}))

	m, err := menus.Update(ctx, "m-1", Record{"is_available": false})
	require.NoError(t, err)
	assert.False(t, m.IsAvailable)
	assert.Equal(t, 5000, m.Price)
	assert.True(t, m.UpdatedAt.Equal(now))
}

func TestCollection_TransformAndReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	menus := menuCollection(s)

	require.NoError(t, menus.Replace(ctx, []model.Menu{{ID: "a", Price: 1}, {ID: "b", Price: 2}}))

	err := menus.Transform(ctx, func(items []model.Menu) ([]model.Menu, error) {
		i := menus.IndexOf(items, "b")
		require.Equal(t, 1, i)
		items[i].Price = 20
		return items, nil
	})
	require.NoError(t, err)

	all, err := menus.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, all[1].Price)
	assert.Equal(t, -1, menus.IndexOf(all, "zzz"))

	require.NoError(t, menus.Delete(ctx, "a"))
	require.NoError(t, menus.Replace(ctx, nil))
	all, err = menus.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCollection_TypeMismatchIsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, Menus, "store001", []Record{{"id": "m-1", "price": "expensive"}}))

	_, err := menuCollection(s).All(ctx)
	assert.Error(t, err)
}
