package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexhq/duplex/internal/generation"
)

// abortingGenerator mimics the model client's streaming contract: an error
// from the stream callback aborts the call immediately.
type abortingGenerator struct {
	chunks []string
	calls  int
}

func (g *abortingGenerator) Generate(_ context.Context, _ string, stream generation.StreamFunc) (string, error) {
	g.calls++
	var full strings.Builder
	for _, chunk := range g.chunks {
		if stream != nil {
			if err := stream([]byte(chunk)); err != nil {
				return "", fmt.Errorf("streaming func returned an error: %w", err)
			}
		}
		full.WriteString(chunk)
	}
	return full.String(), nil
}

// brokenWriter accepts the first write, then fails like a dropped client.
type brokenWriter struct {
	writes int
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("write tcp: broken pipe")
	}
	return len(p), nil
}

func TestLatchedStreamSurvivesClientDisconnect(t *testing.T) {
	gen := &abortingGenerator{chunks: []string{"The ", "office ", "opens ", "at nine."}}
	resilient := generation.NewResilient(gen, time.Second)
	w := &brokenWriter{}

	text, err := resilient.Generate(context.Background(), "prompt", latchedStream(w, func() {}))

	require.NoError(t, err)
	assert.Equal(t, "The office opens at nine.", text)
	assert.Equal(t, 1, gen.calls, "a dead stream must not trigger a retry")
	assert.Equal(t, 2, w.writes, "writes stop after the first failure")
}

func TestLatchedStreamForwardsWhileHealthy(t *testing.T) {
	gen := &abortingGenerator{chunks: []string{"a", "b"}}
	var out strings.Builder

	text, err := gen.Generate(context.Background(), "prompt", latchedStream(&out, func() {}))

	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	assert.Equal(t, "data: a\n\ndata: b\n\n", out.String())
}
