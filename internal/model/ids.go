package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock supplies wall time. Services take one so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Timestamp normalizes t to the stored representation: UTC, whole seconds.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FormatTimestamp renders t the way it appears in stored records.
func FormatTimestamp(t time.Time) string {
	return Timestamp(t).Format(time.RFC3339)
}

// IDGenerator produces record ids.
type IDGenerator interface {
	NewID() string
}

// UUIDv7 generates time-sortable UUIDv7 ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7 struct{}

// NewID returns a new hyphenated UUIDv7.
func (UUIDv7) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SessionID builds the "T{table:02d}-{YYYYMMDDHHMMSS}" session identifier.
func SessionID(tableNumber int, startedAt time.Time) string {
	return fmt.Sprintf("T%02d-%s", tableNumber, startedAt.UTC().Format("20060102150405"))
}

// OrderNumberPrefix returns the "{YYYYMMDD}-" prefix shared by a day's orders.
func OrderNumberPrefix(day time.Time) string {
	return day.UTC().Format("20060102") + "-"
}

// FormatOrderNumber builds "{YYYYMMDD}-{seq:05d}".
func FormatOrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s%05d", OrderNumberPrefix(day), seq)
}

// OrderSequence extracts the sequence of an order number carrying prefix.
// Returns false for numbers from another day or malformed numbers.
func OrderSequence(orderNumber, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(orderNumber, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
