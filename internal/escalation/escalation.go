// Package escalation manages the Path D ticket lifecycle. A ticket is
// created when an escalation is offered; the sender's follow-up action moves
// it to accepted or declined, and owners later resolve accepted tickets.
package escalation

import (
	"time"

	"github.com/duplexhq/duplex/internal/quota"
)

// Ticket statuses.
const (
	StatusOffered  = "offered"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
	StatusResolved = "resolved"
)

// Ticket is one quota-limited escalation to a human owner.
type Ticket struct {
	ID             int64     `json:"id"`
	OwnerID        int64     `json:"owner_id"`
	ConversationID int64     `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	Day            quota.Day `json:"day"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
