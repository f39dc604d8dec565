package journal

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableorder/internal/model"
)

func ts(h, m int) time.Time {
	return time.Date(2025, 3, 1, h, m, 0, 0, time.UTC)
}

func TestMarshalCanonical_OrderHistoryGolden(t *testing.T) {
	sessionID := model.SessionID(1, ts(12, 0))
	items := []model.OrderItem{
		model.NewOrderItem(model.Menu{ID: "menu-0001", Name: "김치찌개", Price: 9000}, 2),
		model.NewOrderItem(model.Menu{ID: "menu-0002", Name: "맥주 <500ml> & 안주", Price: 4000}, 1),
	}
	o := model.Order{
		ID:          "order-0001",
		OrderNumber: model.FormatOrderNumber(ts(12, 5), 1),
		StoreID:     "store001",
		TableNumber: 1,
		SessionID:   sessionID,
		Items:       items,
		TotalAmount: model.SumSubtotals(items),
		Status:      model.StatusCompleted,
		CreatedAt:   ts(12, 5),
		UpdatedAt:   ts(12, 20),
	}
	h := model.OrderHistory{
		ID:                 "hist-0001",
		StoreID:            "store001",
		TableNumber:        1,
		SessionID:          sessionID,
		Orders:             []model.Order{o},
		TotalSessionAmount: model.SumOrderTotals([]model.Order{o}),
		SessionStartedAt:   ts(12, 0),
		SessionEndedAt:     ts(13, 0),
		ArchivedAt:         ts(13, 0),
	}

	got, err := MarshalCanonical(h)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "order_history_canonical", got)
}

func TestMarshalCanonical_Rules(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{"a":2,"b":1}`},
		{"null allowed", map[string]any{"ended_at": nil}, `{"ended_at":null}`},
		{"no html escaping", "<a & b>", `"<a & b>"`},
		{"nfc", "e\u0301", `"é"`},
		{"line separators literal", "a\u2028b\u2029c", "\"a\u2028b\u2029c\""},
		{"control escapes", "a\nb\u0001", `"a\nb\u0001"`},
		{"quote and backslash", `say "hi" \o/`, `"say \"hi\" \\o/"`},
		{"nested", []any{true, false, map[string]any{"z": []any{}}}, `[true,false,{"z":[]}]`},
		{"negative int", -42, `-42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_RejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"price": 9.5})
	assert.Error(t, err)
}

func TestCompareUTF16(t *testing.T) {
	// U+FF61 sorts after U+1F600 in UTF-8 byte order but before it in UTF-16,
	// where the emoji is a surrogate pair starting 0xD83D.
	assert.Equal(t, 1, compareUTF16("\uff61", "\U0001F600"))
	assert.Equal(t, -1, compareUTF16("\U0001F600", "\uff61"))
	assert.Equal(t, -1, compareUTF16("ab", "abc"))
	assert.Equal(t, 0, compareUTF16("같음", "같음"))
}

func TestEntryID_Stable(t *testing.T) {
	e := Entry{
		EventID:     "ev-1",
		Tenant:      "store001",
		Type:        "order_deleted",
		Payload:     []byte(`{"order_id":"o-1"}`),
		PublishedAt: ts(12, 0),
	}
	a, err := EntryID(e)
	require.NoError(t, err)
	b, err := EntryID(e)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	e.Type = "order_created"
	c, err := EntryID(e)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
