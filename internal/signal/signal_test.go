package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSearcher struct {
	chunks []ChunkScore
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeSearcher) Search(ctx context.Context, text string, knowledgeBaseID int64, k int) ([]ChunkScore, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.chunks, f.err
}

func TestComputeAggregateIsBestChunkScore(t *testing.T) {
	searcher := &fakeSearcher{chunks: []ChunkScore{
		{ChunkID: 1, Score: 0.42},
		{ChunkID: 2, Score: 0.81},
		{ChunkID: 3, Score: 0.63},
	}}
	c := NewComputer(searcher, 5, time.Second)

	sig := c.Compute(context.Background(), "When does the Riverside office open?", 3)

	assert.Equal(t, 0.81, sig.Aggregate)
	assert.Len(t, sig.Chunks, 3)
	assert.False(t, sig.Unavailable)
}

func TestComputeSearchErrorMarksUnavailable(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("connection refused")}
	c := NewComputer(searcher, 5, time.Second)

	sig := c.Compute(context.Background(), "When does the Riverside office open?", 3)

	assert.True(t, sig.Unavailable)
	assert.Zero(t, sig.Aggregate)
	assert.Empty(t, sig.Chunks)
}

func TestComputeTimesOutSlowSearch(t *testing.T) {
	searcher := &fakeSearcher{delay: 200 * time.Millisecond}
	c := NewComputer(searcher, 5, 10*time.Millisecond)

	start := time.Now()
	sig := c.Compute(context.Background(), "When does the Riverside office open?", 3)

	assert.True(t, sig.Unavailable)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestComputeFlagsVagueText(t *testing.T) {
	searcher := &fakeSearcher{chunks: []ChunkScore{{ChunkID: 1, Score: 0.9}}}
	c := NewComputer(searcher, 5, time.Second)

	sig := c.Compute(context.Background(), "tell me more", 3)

	assert.True(t, sig.Vague)
}

func TestIsVague(t *testing.T) {
	vague := []string{
		"",
		"   ",
		"tell me more",
		"Tell me more!",
		"go on",
		"hi",
		"ok then",
		"what about it",
	}
	for _, text := range vague {
		assert.True(t, IsVague(text), "expected vague: %q", text)
	}

	concrete := []string{
		"When does the Riverside office open?",
		"what is your favourite colour of paint",
		"Is the API rate limited to 100 requests?",
		"meeting at 3",
	}
	for _, text := range concrete {
		assert.False(t, IsVague(text), "expected not vague: %q", text)
	}
}
