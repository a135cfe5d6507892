package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTracker keeps counters in Postgres. The reserve path is one statement,
// so correctness under concurrency comes from the database rather than from
// application locking.
type PGTracker struct {
	pool *pgxpool.Pool
}

// NewPGTracker creates a new Postgres-backed quota tracker
func NewPGTracker(pool *pgxpool.Pool) *PGTracker {
	return &PGTracker{pool: pool}
}

// TryReserve atomically increments the counter unless the limit is reached.
// The conditional upsert either returns the new count or no row at all; no
// interleaving can push used past the limit.
func (t *PGTracker) TryReserve(ctx context.Context, ownerID int64, day Day, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	query := `
	INSERT INTO escalation_quota (owner_id, day, used)
	VALUES ($1, $2, 1)
	ON CONFLICT (owner_id, day) DO UPDATE
		SET used = escalation_quota.used + 1
		WHERE escalation_quota.used < $3
	RETURNING used
	`

	var used int
	err := t.pool.QueryRow(ctx, query, ownerID, string(day), limit).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve escalation slot for owner %d: %w", ownerID, err)
	}
	return used <= limit, nil
}

// Release returns one slot, flooring at zero.
func (t *PGTracker) Release(ctx context.Context, ownerID int64, day Day) error {
	_, err := t.pool.Exec(ctx, `
		UPDATE escalation_quota
		SET used = GREATEST(used - 1, 0)
		WHERE owner_id = $1 AND day = $2
	`, ownerID, string(day))
	if err != nil {
		return fmt.Errorf("failed to release escalation slot for owner %d: %w", ownerID, err)
	}
	return nil
}

// Usage reports the owner's spent slots for the day.
func (t *PGTracker) Usage(ctx context.Context, ownerID int64, day Day) (int, error) {
	var used int
	err := t.pool.QueryRow(ctx, `
		SELECT used FROM escalation_quota WHERE owner_id = $1 AND day = $2
	`, ownerID, string(day)).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read escalation usage for owner %d: %w", ownerID, err)
	}
	return used, nil
}
