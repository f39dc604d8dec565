package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionID(t *testing.T) {
	ts := time.Date(2025, 1, 9, 8, 5, 3, 0, time.UTC)
	assert.Equal(t, "T07-20250109080503", SessionID(7, ts))
	assert.Equal(t, "T12-20250109080503", SessionID(12, ts))

	kst := time.FixedZone("KST", 9*60*60)
	assert.Equal(t, "T07-20250109080503", SessionID(7, ts.In(kst)), "ids are always UTC")
}

func TestOrderNumber(t *testing.T) {
	day := time.Date(2025, 1, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "20250109-", OrderNumberPrefix(day))
	assert.Equal(t, "20250109-00001", FormatOrderNumber(day, 1))
	assert.Equal(t, "20250109-12345", FormatOrderNumber(day, 12345))
}

func TestOrderSequence(t *testing.T) {
	tests := []struct {
		number string
		seq    int
		ok     bool
	}{
		{"20250109-00007", 7, true},
		{"20250109-00100", 100, true},
		{"20250108-00007", 0, false},
		{"20250109-", 0, false},
		{"20250109-abc", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			seq, ok := OrderSequence(tt.number, "20250109-")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.seq, seq)
		})
	}
}

func TestTimestamp(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	in := time.Date(2025, 1, 9, 17, 5, 3, 999_000_000, kst)

	got := Timestamp(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, got.Nanosecond())
	assert.Equal(t, "2025-01-09T08:05:03Z", FormatTimestamp(in))
}

func TestUUIDv7(t *testing.T) {
	gen := UUIDv7{}
	a, b := gen.NewID(), gen.NewID()
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}
