package escalation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/duplexhq/duplex/internal/quota"
)

// ErrNotFound is returned when no ticket exists for the given id.
var ErrNotFound = errors.New("escalation ticket not found")

// ErrBadTransition is returned when a ticket cannot move from its current
// status to the requested one.
var ErrBadTransition = errors.New("invalid escalation status transition")

// Store persists escalation tickets.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// StageCreate returns a transaction function that inserts an offered ticket
// and reports its id through out. It is meant to run inside the outcome
// transaction so the offer message and its ticket commit or roll back as one.
func StageCreate(ownerID, conversationID, messageID int64, day quota.Day, out *int64) func(ctx context.Context, tx pgx.Tx) error {
	return func(ctx context.Context, tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO escalation_tickets (owner_id, conversation_id, message_id, day, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, ownerID, conversationID, messageID, string(day), StatusOffered).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to create escalation ticket: %w", err)
		}
		if out != nil {
			*out = id
		}
		return nil
	}
}

// Get loads a single ticket by id.
func (s *Store) Get(ctx context.Context, id int64) (*Ticket, error) {
	var t Ticket
	var day string
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, conversation_id, message_id, day, status, created_at, updated_at
		FROM escalation_tickets
		WHERE id = $1
	`, id).Scan(&t.ID, &t.OwnerID, &t.ConversationID, &t.MessageID, &day, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation ticket %d: %w", id, err)
	}
	t.Day = quota.Day(day)
	return &t, nil
}

// transition moves a ticket from one status to another, returning the
// updated ticket. The WHERE clause on the current status makes concurrent
// accept/decline races resolve to a single winner.
func (s *Store) transition(ctx context.Context, id int64, from, to string) (*Ticket, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE escalation_tickets
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return nil, fmt.Errorf("failed to update escalation ticket %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		t, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: ticket %d is %s, wanted %s", ErrBadTransition, id, t.Status, from)
	}
	return s.Get(ctx, id)
}

// Accept marks an offered ticket as accepted by the sender.
func (s *Store) Accept(ctx context.Context, id int64) (*Ticket, error) {
	return s.transition(ctx, id, StatusOffered, StatusAccepted)
}

// Decline marks an offered ticket as declined.
func (s *Store) Decline(ctx context.Context, id int64) (*Ticket, error) {
	return s.transition(ctx, id, StatusOffered, StatusDeclined)
}

// Resolve closes out an accepted ticket once the owner has handled it.
func (s *Store) Resolve(ctx context.Context, id int64) (*Ticket, error) {
	return s.transition(ctx, id, StatusAccepted, StatusResolved)
}

// ListOpen returns offered and accepted tickets for an owner, newest first.
func (s *Store) ListOpen(ctx context.Context, ownerID int64) ([]Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, conversation_id, message_id, day, status, created_at, updated_at
		FROM escalation_tickets
		WHERE owner_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
	`, ownerID, StatusOffered, StatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation tickets for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		var t Ticket
		var day string
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.ConversationID, &t.MessageID, &day, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan escalation ticket: %w", err)
		}
		t.Day = quota.Day(day)
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.Debug().Int64("owner_id", ownerID).Int("count", len(tickets)).Msg("Listed open escalation tickets")
	return tickets, nil
}
