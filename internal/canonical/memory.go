package canonical

import (
	"context"
	"sync"
	"time"

	"github.com/duplexhq/duplex/internal/knowledge"
)

// MemoryStore is an in-process canonical store. It backs tests and
// single-node deployments that run without Postgres.
type MemoryStore struct {
	embedder knowledge.Embedder

	mu      sync.RWMutex
	nextID  int64
	answers map[int64][]Answer // keyed by agent ID
}

// NewMemoryStore creates a new in-memory canonical store
func NewMemoryStore(embedder knowledge.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		nextID:   1,
		answers:  make(map[int64][]Answer),
	}
}

// Lookup scans the agent's answers for the nearest neighbor.
func (s *MemoryStore) Lookup(ctx context.Context, agentID int64, question string) (*Match, error) {
	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Match
	for _, ans := range s.answers[agentID] {
		similarity := knowledge.Cosine(queryVec, ans.Embedding)
		if best == nil || similarity > best.Similarity {
			best = &Match{AnswerID: ans.ID, AnswerText: ans.AnswerText, Similarity: similarity}
		}
	}
	return best, nil
}

// Promote stores a question/answer pair for the agent.
func (s *MemoryStore) Promote(ctx context.Context, agentID int64, question, answer string) error {
	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.answers[agentID] = append(s.answers[agentID], Answer{
		ID:         s.nextID,
		AgentID:    agentID,
		Question:   question,
		AnswerText: answer,
		Embedding:  vector,
		PromotedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}
