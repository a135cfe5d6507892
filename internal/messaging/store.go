package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Store persists conversations, messages, and decision audit records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new messaging store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetConversation loads a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*Conversation, error) {
	var conv Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, participant_a, participant_b, COALESCE(last_message_id, 0), created_at
		FROM conversations WHERE id = $1
	`, conversationID).Scan(&conv.ID, &conv.ParticipantA, &conv.ParticipantB, &conv.LastMessageID, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation not found: %d", conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %d: %w", conversationID, err)
	}
	return &conv, nil
}

// GetMessage loads a message by ID.
func (s *Store) GetMessage(ctx context.Context, messageID int64) (*Message, error) {
	var msg Message
	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender_id, actor_type, kind, body, COALESCE(in_reply_to, 0), created_at
		FROM messages WHERE id = $1
	`, messageID).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ActorType, &msg.Kind, &msg.Body, &msg.InReplyTo, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message not found: %d", messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %d: %w", messageID, err)
	}
	return &msg, nil
}

// CreateInbound persists the sender's message and advances the conversation's
// last-message pointer.
func (s *Store) CreateInbound(ctx context.Context, conversationID, senderID int64, body string) (msg *Message, err error) {
	msg = &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		ActorType:      ActorHuman,
		Kind:           KindPlain,
		Body:           body,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin inbound transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, actor_type, kind, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`, conversationID, senderID, string(ActorHuman), string(KindPlain), body).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to persist inbound message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET last_message_id = $1 WHERE id = $2`,
		msg.ID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to advance last-message pointer: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit inbound message: %w", err)
	}
	return msg, nil
}

// Outcome stages the engine's complete result for one inbound message: the
// resulting message and its decision record, plus any companion writes.
type Outcome struct {
	Reply    Message
	Decision DecisionRecord
}

// TxFunc stages an extra write inside the outcome transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// CommitOutcome writes the resulting message and the decision record as one
// transactional unit, along with any staged companion writes. On any failure
// the whole unit rolls back: the store never exposes a reply without its
// audit record, or an audit record without its reply.
func (s *Store) CommitOutcome(ctx context.Context, outcome *Outcome, companions ...TxFunc) (replyID int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin outcome transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reply := outcome.Reply
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, actor_type, kind, body, in_reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), NOW())
		RETURNING id
	`, reply.ConversationID, reply.SenderID, string(reply.ActorType), string(reply.Kind), reply.Body, reply.InReplyTo).Scan(&replyID)
	if err != nil {
		return 0, fmt.Errorf("failed to persist resulting message: %w", err)
	}

	snapshot, err := json.Marshal(outcome.Decision.Signal)
	if err != nil {
		return 0, fmt.Errorf("failed to encode signal snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orchestrator_decisions (conversation_id, message_id, path, bypassed, confidence, reason, signal_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, outcome.Decision.ConversationID, outcome.Decision.MessageID, outcome.Decision.PathCode,
		outcome.Decision.Bypassed, outcome.Decision.Confidence, outcome.Decision.Reason, snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to persist decision record: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET last_message_id = $1 WHERE id = $2`,
		replyID, reply.ConversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to advance last-message pointer: %w", err)
	}

	for _, companion := range companions {
		if err = companion(ctx, tx); err != nil {
			return 0, fmt.Errorf("failed staged companion write: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit outcome: %w", err)
	}

	log.Debug().
		Int64("conversation_id", reply.ConversationID).
		Int64("reply_id", replyID).
		Str("path", outcome.Decision.PathCode).
		Msg("Committed routing outcome")

	return replyID, nil
}

// ListDecisions returns the conversation's audit trail, oldest first.
func (s *Store) ListDecisions(ctx context.Context, conversationID int64) ([]DecisionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, message_id, path, bypassed, confidence, reason, signal_snapshot, created_at
		FROM orchestrator_decisions
		WHERE conversation_id = $1
		ORDER BY id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions for conversation %d: %w", conversationID, err)
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var snapshot []byte
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.MessageID, &rec.PathCode,
			&rec.Bypassed, &rec.Confidence, &rec.Reason, &snapshot, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision record: %w", err)
		}
		if err := json.Unmarshal(snapshot, &rec.Signal); err != nil {
			return nil, fmt.Errorf("failed to decode signal snapshot for decision %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
