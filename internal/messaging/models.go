package messaging

import (
	"time"

	"github.com/duplexhq/duplex/internal/signal"
)

type ActorType string

const (
	ActorHuman  ActorType = "human"
	ActorAgent  ActorType = "agent"
	ActorSystem ActorType = "system"
)

// MessageKind classifies the engine's resulting message.
type MessageKind string

const (
	KindPlain        MessageKind = "plain"         // ordinary human-to-human content
	KindAnswer       MessageKind = "answer"        // generated auto-answer
	KindClarify      MessageKind = "clarification" // follow-up question
	KindCanonical    MessageKind = "canonical"     // cached answer served verbatim
	KindOffer        MessageKind = "offer"         // escalation offer
	KindPlaceholder  MessageKind = "placeholder"   // queued-for-human notice
	KindRefusal      MessageKind = "refusal"
)

type Conversation struct {
	ID            int64
	ParticipantA  int64
	ParticipantB  int64
	LastMessageID int64
	CreatedAt     time.Time
}

type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	ActorType      ActorType
	Kind           MessageKind
	Body           string
	InReplyTo      int64
	CreatedAt      time.Time
}

// DecisionRecord is the append-only audit entry written for every inbound
// message that reached the engine. Never mutated after creation.
type DecisionRecord struct {
	ID             int64                  `json:"id"`
	ConversationID int64                  `json:"conversation_id"`
	MessageID      int64                  `json:"message_id"`
	PathCode       string                 `json:"path"`
	Bypassed       bool                   `json:"bypassed"`
	Confidence     float64                `json:"confidence"`
	Reason         string                 `json:"reason"`
	Signal         signal.RetrievalSignal `json:"signal"`
	CreatedAt      time.Time              `json:"created_at"`
}
