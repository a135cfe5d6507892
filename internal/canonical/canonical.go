// Package canonical caches previously given high-confidence answers, keyed
// by question embedding. Serving a cached answer guarantees identical wording
// for near-duplicate questions and skips a generation call on the hot path.
package canonical

import (
	"context"
	"time"
)

// Answer is a promoted question/answer pair scoped to one agent.
type Answer struct {
	ID         int64
	AgentID    int64
	Question   string
	AnswerText string
	Embedding  []float32
	PromotedAt time.Time
}

// Match is the best stored answer for a lookup, with its similarity to the
// incoming question.
type Match struct {
	AnswerID   int64   `json:"answer_id"`
	AnswerText string  `json:"answer_text"`
	Similarity float64 `json:"similarity"`
}

// Store is the canonical answer cache. Lookup is always scoped to a single
// agent's set; promotion only ever happens from a successful auto-answer.
type Store interface {
	// Lookup returns the nearest stored answer for the agent, or nil when the
	// agent has none. Thresholding is the caller's concern.
	Lookup(ctx context.Context, agentID int64, question string) (*Match, error)

	// Promote stores a question/answer pair for future verbatim reuse.
	Promote(ctx context.Context, agentID int64, question, answer string) error
}
