package canonical

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedEmbedder returns a canned vector per normalized text, so similarity
// between two phrasings is fully under the test's control.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := strings.ToLower(strings.TrimSpace(text))
	if vec, ok := f.vectors[key]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestPromoteThenLookupServesIdenticalText(t *testing.T) {
	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"what's your favorite color?":   {1, 0, 0},
		"what is your favourite colour": {0.98, 0.19, 0},
	}}
	store := NewMemoryStore(embedder)
	ctx := context.Background()

	require.NoError(t, store.Promote(ctx, 7, "What's your favorite color?", "Blue"))

	match, err := store.Lookup(ctx, 7, "what is your favourite colour")
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, "Blue", match.AnswerText)
	assert.Greater(t, match.Similarity, 0.85)
}

func TestLookupReturnsNilForEmptyAgent(t *testing.T) {
	store := NewMemoryStore(&fixedEmbedder{})

	match, err := store.Lookup(context.Background(), 7, "anything")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestLookupIsScopedToAgent(t *testing.T) {
	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"what's your favorite color?": {1, 0, 0},
	}}
	store := NewMemoryStore(embedder)
	ctx := context.Background()

	require.NoError(t, store.Promote(ctx, 7, "What's your favorite color?", "Blue"))

	match, err := store.Lookup(ctx, 8, "What's your favorite color?")
	require.NoError(t, err)
	assert.Nil(t, match, "agent 8 has no answers of its own")
}

func TestLookupPicksNearestOfSeveral(t *testing.T) {
	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"do you ship internationally?": {1, 0, 0},
		"what are your opening hours?": {0, 1, 0},
		"when are you open":            {0.1, 0.99, 0},
	}}
	store := NewMemoryStore(embedder)
	ctx := context.Background()

	require.NoError(t, store.Promote(ctx, 7, "Do you ship internationally?", "Yes, worldwide."))
	require.NoError(t, store.Promote(ctx, 7, "What are your opening hours?", "9 to 5, weekdays."))

	match, err := store.Lookup(ctx, 7, "when are you open")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "9 to 5, weekdays.", match.AnswerText)
}
