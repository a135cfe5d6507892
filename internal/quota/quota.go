// Package quota enforces per-owner, per-day escalation limits. Reservation
// is an atomic check-and-increment: two conversations racing for an owner's
// last slot can never both win it.
package quota

import (
	"context"
	"time"
)

// Day is a UTC calendar-day bucket, formatted 2006-01-02.
type Day string

// Today returns the current UTC day bucket.
func Today() Day {
	return DayOf(time.Now())
}

// DayOf buckets a timestamp into its UTC calendar day.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format("2006-01-02"))
}

// Tracker hands out escalation slots. TryReserve must hold under concurrent
// callers: the number of successful reservations for an (owner, day) pair
// never exceeds the limit passed in.
type Tracker interface {
	// TryReserve claims one slot; it returns false when the day's limit is
	// already spent.
	TryReserve(ctx context.Context, ownerID int64, day Day, limit int) (bool, error)

	// Release returns a previously reserved slot, used when an offered
	// escalation is declined.
	Release(ctx context.Context, ownerID int64, day Day) error

	// Usage reports how many slots the owner has used for the day.
	Usage(ctx context.Context, ownerID int64, day Day) (int, error)
}
