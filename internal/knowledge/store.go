package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/duplexhq/duplex/internal/signal"
)

// Store holds indexed knowledge chunks and serves top-K similarity search
// over one knowledge base. It implements signal.Searcher.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewStore creates a new knowledge store
func NewStore(pool *pgxpool.Pool, embedder Embedder) *Store {
	return &Store{pool: pool, embedder: embedder}
}

// Ingest embeds a chunk of text and indexes it under a knowledge base.
func (s *Store) Ingest(ctx context.Context, knowledgeBaseID int64, content string) (int64, error) {
	vector, err := s.embedder.EmbedQuery(ctx, content)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunk: %w", err)
	}

	var chunkID int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO knowledge_chunks (knowledge_base_id, content, embedding, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id
	`, knowledgeBaseID, content, encodeVector(vector)).Scan(&chunkID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk: %w", err)
	}

	log.Debug().
		Int64("knowledge_base_id", knowledgeBaseID).
		Int64("chunk_id", chunkID).
		Int("content_bytes", len(content)).
		Msg("Indexed knowledge chunk")

	return chunkID, nil
}

// Search embeds the query text and returns the k most similar chunks from
// the given knowledge base, best first.
func (s *Store) Search(ctx context.Context, text string, knowledgeBaseID int64, k int) ([]signal.ChunkScore, error) {
	queryVec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, embedding
		FROM knowledge_chunks
		WHERE knowledge_base_id = $1
	`, knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks for knowledge base %d: %w", knowledgeBaseID, err)
	}
	defer rows.Close()

	var scored []signal.ChunkScore
	for rows.Next() {
		var (
			chunkID int64
			content string
			raw     []byte
		)
		if err := rows.Scan(&chunkID, &content, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		vector, err := decodeVector(raw)
		if err != nil {
			log.Warn().Int64("chunk_id", chunkID).Err(err).Msg("Skipping chunk with unreadable embedding")
			continue
		}

		scored = append(scored, signal.ChunkScore{
			ChunkID: chunkID,
			Content: content,
			Score:   Cosine(queryVec, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
