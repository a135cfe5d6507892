package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Trust is the administrative trust classification of an agent.
type Trust string

const (
	TrustStandard Trust = "standard"
	TrustTrusted  Trust = "trusted"
)

// AgentDescriptor carries everything the engine needs to know about the
// target agent, resolved once per request at this boundary. The engine never
// calls back into the directory.
type AgentDescriptor struct {
	AgentID         int64
	OwnerID         int64
	KnowledgeBaseID int64
	Trust           Trust
	Primary         bool
}

// Sender identifies the user who wrote the inbound message.
type Sender struct {
	UserID int64
	Tier   string
}

// ErrNoPrimaryAgent is returned when the counterpart has no delegated
// primary agent; such messages are delivered human-to-human.
var ErrNoPrimaryAgent = errors.New("no primary agent for user")

// Directory resolves agents and senders. It is a read-only boundary to the
// user/agent collaborator.
type Directory interface {
	PrimaryAgent(ctx context.Context, ownerID int64) (AgentDescriptor, error)
	ResolveSender(ctx context.Context, userID int64) (Sender, error)
}

// PGDirectory is the Postgres-backed directory.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewPGDirectory creates a new Postgres-backed directory
func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

// PrimaryAgent returns the owner's single primary agent. The agents table
// enforces at most one primary per owner with a partial unique index.
func (d *PGDirectory) PrimaryAgent(ctx context.Context, ownerID int64) (AgentDescriptor, error) {
	query := `
	SELECT id, owner_id, knowledge_base_id, trust
	FROM agents
	WHERE owner_id = $1 AND is_primary = TRUE
	`

	var desc AgentDescriptor
	var trust string
	err := d.pool.QueryRow(ctx, query, ownerID).Scan(
		&desc.AgentID, &desc.OwnerID, &desc.KnowledgeBaseID, &trust,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return AgentDescriptor{}, ErrNoPrimaryAgent
	}
	if err != nil {
		return AgentDescriptor{}, fmt.Errorf("failed to resolve primary agent for owner %d: %w", ownerID, err)
	}

	desc.Primary = true
	desc.Trust = Trust(trust)
	if desc.Trust != TrustTrusted {
		desc.Trust = TrustStandard
	}
	return desc, nil
}

// ResolveSender returns the sender's identity and tier.
func (d *PGDirectory) ResolveSender(ctx context.Context, userID int64) (Sender, error) {
	var sender Sender
	err := d.pool.QueryRow(ctx,
		`SELECT id, tier FROM users WHERE id = $1`,
		userID,
	).Scan(&sender.UserID, &sender.Tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sender{}, fmt.Errorf("unknown sender %d", userID)
	}
	if err != nil {
		return Sender{}, fmt.Errorf("failed to resolve sender %d: %w", userID, err)
	}
	return sender, nil
}
