package canonical

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/duplexhq/duplex/internal/knowledge"
)

// PGStore is the Postgres-backed canonical answer store.
type PGStore struct {
	pool     *pgxpool.Pool
	embedder knowledge.Embedder
}

// NewPGStore creates a new Postgres-backed canonical store
func NewPGStore(pool *pgxpool.Pool, embedder knowledge.Embedder) *PGStore {
	return &PGStore{pool: pool, embedder: embedder}
}

// Lookup embeds the question and scans the agent's promoted answers for the
// nearest neighbor.
func (s *PGStore) Lookup(ctx context.Context, agentID int64, question string) (*Match, error) {
	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, answer_text, question_embedding
		FROM canonical_answers
		WHERE agent_id = $1
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical answers for agent %d: %w", agentID, err)
	}
	defer rows.Close()

	var best *Match
	for rows.Next() {
		var (
			answerID int64
			answer   string
			raw      []byte
		)
		if err := rows.Scan(&answerID, &answer, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan canonical answer: %w", err)
		}

		vector, err := decodeVector(raw)
		if err != nil {
			log.Warn().Int64("answer_id", answerID).Err(err).Msg("Skipping canonical answer with unreadable embedding")
			continue
		}

		similarity := knowledge.Cosine(queryVec, vector)
		if best == nil || similarity > best.Similarity {
			best = &Match{AnswerID: answerID, AnswerText: answer, Similarity: similarity}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate canonical answers: %w", err)
	}

	return best, nil
}

// Promote stores a successful auto-answer for future reuse.
func (s *PGStore) Promote(ctx context.Context, agentID int64, question, answer string) error {
	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return fmt.Errorf("failed to embed question for promotion: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO canonical_answers (agent_id, question, answer_text, question_embedding, promoted_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, agentID, question, answer, encodeVector(vector))
	if err != nil {
		return fmt.Errorf("failed to promote canonical answer for agent %d: %w", agentID, err)
	}

	log.Debug().
		Int64("agent_id", agentID).
		Int("answer_bytes", len(answer)).
		Msg("Promoted canonical answer")

	return nil
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(raw))
	}
	vector := make([]float32, len(raw)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vector, nil
}
