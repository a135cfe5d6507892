// Package notify delivers owner notifications through a River-backed job
// queue, so an accepted escalation never blocks the message path on delivery.
package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"
)

// Notification kinds.
const (
	KindEscalationAccepted = "escalation_accepted"
	KindMessageQueued      = "message_queued"
)

// OwnerNotificationArgs represents the arguments for an owner notification job.
type OwnerNotificationArgs struct {
	OwnerID        int64  `json:"owner_id"`
	ConversationID int64  `json:"conversation_id"`
	TicketID       int64  `json:"ticket_id,omitempty"`
	NotifyKind     string `json:"notify_kind"`
	Summary        string `json:"summary"`
}

// Kind returns the job kind for River.
func (OwnerNotificationArgs) Kind() string {
	return "owner_notification"
}

// OwnerNotificationWorker handles owner notification jobs.
type OwnerNotificationWorker struct {
	river.WorkerDefaults[OwnerNotificationArgs]
	pool *pgxpool.Pool
}

// Work records the notification for the owner's inbox. Delivery to external
// channels (email, chat) hangs off this row and can be retried by River.
func (w *OwnerNotificationWorker) Work(ctx context.Context, job *river.Job[OwnerNotificationArgs]) error {
	args := job.Args

	_, err := w.pool.Exec(ctx, `
		INSERT INTO notifications (owner_id, conversation_id, ticket_id, kind, summary)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5)
	`, args.OwnerID, args.ConversationID, args.TicketID, args.NotifyKind, args.Summary)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	log.Info().
		Int64("owner_id", args.OwnerID).
		Int64("conversation_id", args.ConversationID).
		Str("kind", args.NotifyKind).
		Msg("Owner notification delivered")
	return nil
}

// Queue manages the River job queue for owner notifications.
type Queue struct {
	client *river.Client[pgx.Tx]
}

// NewQueue creates a notification queue on top of an existing connection pool.
func NewQueue(pool *pgxpool.Pool, maxWorkers int) (*Queue, error) {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &OwnerNotificationWorker{pool: pool})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &Queue{client: client}, nil
}

// Start starts the queue workers.
func (q *Queue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop stops the queue workers.
func (q *Queue) Stop(ctx context.Context) error {
	return q.client.Stop(ctx)
}

// EnqueueOwnerNotification queues one owner notification job.
func (q *Queue) EnqueueOwnerNotification(ctx context.Context, args OwnerNotificationArgs) error {
	if _, err := q.client.Insert(ctx, args, nil); err != nil {
		return fmt.Errorf("failed to queue owner notification: %w", err)
	}
	return nil
}

// Notifier is the escalation service's view of the queue.
type Notifier interface {
	EnqueueOwnerNotification(ctx context.Context, args OwnerNotificationArgs) error
}
