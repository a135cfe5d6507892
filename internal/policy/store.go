package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Store persists owner policies. Reads never fail the message path: a
// missing or malformed row comes back as the safe defaults.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new policy store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the owner's policy, falling back to defaults when the record
// is absent or cannot be decoded. A transient read failure also returns the
// defaults alongside the error, so the message path can degrade instead of
// dropping the message.
func (s *Store) Get(ctx context.Context, ownerID int64) (OrchestratorPolicy, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM orchestrator_policies WHERE owner_id = $1`,
		ownerID,
	).Scan(&raw)

	if errors.Is(err, pgx.ErrNoRows) {
		return Defaults(ownerID), nil
	}
	if err != nil {
		return Defaults(ownerID), fmt.Errorf("failed to load policy for owner %d: %w", ownerID, err)
	}

	p, decodeErr := Decode(ownerID, raw)
	if decodeErr != nil {
		// Malformed policies degrade to defaults; the message is still processed.
		log.Warn().
			Int64("owner_id", ownerID).
			Err(decodeErr).
			Msg("Stored policy is malformed, using defaults")
	}
	return p, nil
}

// Put upserts the owner's policy. The stored payload is always the
// normalized JSON form, which retires any legacy string-encoded row.
func (s *Store) Put(ctx context.Context, p OrchestratorPolicy) (OrchestratorPolicy, error) {
	p = Normalize(p)

	payload, err := encode(p)
	if err != nil {
		return p, err
	}

	query := `
	INSERT INTO orchestrator_policies (owner_id, payload, created_at, updated_at)
	VALUES ($1, $2, NOW(), NOW())
	ON CONFLICT (owner_id) DO UPDATE SET payload = $2, updated_at = NOW()
	RETURNING updated_at
	`
	if err := s.pool.QueryRow(ctx, query, p.OwnerID, payload).Scan(&p.UpdatedAt); err != nil {
		return p, fmt.Errorf("failed to store policy for owner %d: %w", p.OwnerID, err)
	}

	log.Debug().
		Int64("owner_id", p.OwnerID).
		Float64("confidence_threshold", p.ConfidenceThreshold).
		Bool("escalation_enabled", p.EscalationEnabled).
		Msg("Stored owner policy")

	return p, nil
}
