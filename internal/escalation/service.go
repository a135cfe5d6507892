package escalation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/duplexhq/duplex/internal/notify"
	"github.com/duplexhq/duplex/internal/quota"
)

// Service drives the offered ticket through the sender's follow-up action.
type Service struct {
	store    *Store
	quota    quota.Tracker
	notifier notify.Notifier
}

func NewService(store *Store, tracker quota.Tracker, notifier notify.Notifier) *Service {
	return &Service{store: store, quota: tracker, notifier: notifier}
}

// Accept confirms the offer and queues a notification for the owner. The
// quota reservation made at offer time stays consumed.
func (s *Service) Accept(ctx context.Context, ticketID int64, summary string) (*Ticket, error) {
	t, err := s.store.Accept(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	err = s.notifier.EnqueueOwnerNotification(ctx, notify.OwnerNotificationArgs{
		OwnerID:        t.OwnerID,
		ConversationID: t.ConversationID,
		TicketID:       t.ID,
		NotifyKind:     notify.KindEscalationAccepted,
		Summary:        summary,
	})
	if err != nil {
		// The ticket is accepted either way. The owner still sees it in
		// their open list, so a lost notification is not fatal.
		log.Warn().Err(err).Int64("ticket_id", t.ID).Msg("Failed to queue owner notification")
	}

	log.Info().Int64("ticket_id", t.ID).Int64("owner_id", t.OwnerID).Msg("Escalation accepted")
	return t, nil
}

// Decline withdraws the offer and returns the reserved quota slot so a later
// message on the same day can escalate in its place.
func (s *Service) Decline(ctx context.Context, ticketID int64) (*Ticket, error) {
	t, err := s.store.Decline(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if err := s.quota.Release(ctx, t.OwnerID, t.Day); err != nil {
		return nil, fmt.Errorf("declined ticket %d but failed to release quota: %w", t.ID, err)
	}

	log.Info().Int64("ticket_id", t.ID).Int64("owner_id", t.OwnerID).Msg("Escalation declined, quota released")
	return t, nil
}

// Resolve closes an accepted ticket after the owner has responded.
func (s *Service) Resolve(ctx context.Context, ticketID int64) (*Ticket, error) {
	return s.store.Resolve(ctx, ticketID)
}

// ListOpen returns the owner's outstanding tickets.
func (s *Service) ListOpen(ctx context.Context, ownerID int64) ([]Ticket, error) {
	return s.store.ListOpen(ctx, ownerID)
}
