package signal

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
)

// ChunkScore pairs a knowledge chunk with its similarity to the message.
type ChunkScore struct {
	ChunkID int64   `json:"chunk_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// RetrievalSignal is the per-message bundle the decision engine consumes.
// It is ephemeral: beyond the audit snapshot it is never persisted.
type RetrievalSignal struct {
	Chunks      []ChunkScore `json:"chunks"`
	Aggregate   float64      `json:"aggregate"`
	Vague       bool         `json:"vague"`
	Unavailable bool         `json:"unavailable"`
}

// Searcher is the boundary to the embedding/vector-search collaborator.
type Searcher interface {
	Search(ctx context.Context, text string, knowledgeBaseID int64, k int) ([]ChunkScore, error)
}

// Computer turns one inbound message into a RetrievalSignal.
type Computer struct {
	searcher Searcher
	topK     int
	timeout  time.Duration
}

// NewComputer creates a new signal computer
func NewComputer(searcher Searcher, topK int, timeout time.Duration) *Computer {
	if topK <= 0 {
		topK = 5
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Computer{searcher: searcher, topK: topK, timeout: timeout}
}

// Compute runs a single bounded retrieval attempt. On timeout or error the
// signal comes back with Unavailable=true and a zero aggregate, which the
// engine treats as below the no-context floor. The chat path never stalls on
// retrieval.
func (c *Computer) Compute(ctx context.Context, text string, knowledgeBaseID int64) RetrievalSignal {
	sig := RetrievalSignal{Vague: IsVague(text)}

	searchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chunks, err := c.searcher.Search(searchCtx, text, knowledgeBaseID, c.topK)
	if err != nil {
		log.Warn().
			Int64("knowledge_base_id", knowledgeBaseID).
			Err(err).
			Msg("Retrieval failed, signal marked unavailable")
		sig.Unavailable = true
		return sig
	}

	sig.Chunks = chunks
	// Aggregate similarity is the best single-chunk score.
	for _, chunk := range chunks {
		if chunk.Score > sig.Aggregate {
			sig.Aggregate = chunk.Score
		}
	}

	return sig
}

// genericTemplates are phrasings that carry no answerable content on their own.
var genericTemplates = []string{
	"tell me more",
	"go on",
	"what do you think",
	"interesting",
	"how so",
	"say more",
	"anything else",
	"and then",
	"really",
	"more please",
}

// IsVague applies the vagueness heuristic: very short text, a generic
// template phrasing, or almost no concrete entities to anchor retrieval on.
func IsVague(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	lower := strings.ToLower(strings.TrimRight(trimmed, ".!?"))
	for _, tmpl := range genericTemplates {
		if lower == tmpl {
			return true
		}
	}

	words := strings.Fields(trimmed)
	if len(words) <= 2 && len([]rune(trimmed)) < 12 {
		return true
	}

	// Short questions with no concrete entity (capitalized word past the
	// first, or a number) have nothing to retrieve against.
	if len(words) <= 4 && countConcreteEntities(words) == 0 {
		return true
	}

	return false
}

func countConcreteEntities(words []string) int {
	count := 0
	for i, word := range words {
		runes := []rune(word)
		if len(runes) == 0 {
			continue
		}
		if i > 0 && unicode.IsUpper(runes[0]) {
			count++
			continue
		}
		for _, r := range runes {
			if unicode.IsDigit(r) {
				count++
				break
			}
		}
	}
	return count
}
