package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyGenerator struct {
	failures int
	calls    int
}

func (g *flakyGenerator) Generate(ctx context.Context, prompt string, stream StreamFunc) (string, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", errors.New("connection reset by peer")
	}
	return "the answer", nil
}

func TestResilientRecoversFromOneFailure(t *testing.T) {
	gen := &flakyGenerator{failures: 1}
	r := NewResilient(gen, time.Second)

	text, err := r.Generate(context.Background(), "prompt", nil)

	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
	assert.Equal(t, 2, gen.calls)
}

func TestResilientGivesUpAfterSingleRetry(t *testing.T) {
	gen := &flakyGenerator{failures: 10}
	r := NewResilient(gen, time.Second)

	_, err := r.Generate(context.Background(), "prompt", nil)

	require.Error(t, err)
	assert.Equal(t, 2, gen.calls, "one attempt plus one retry, never a loop")
}

func TestResilientPassesThroughSuccess(t *testing.T) {
	gen := &flakyGenerator{}
	r := NewResilient(gen, time.Second)

	text, err := r.Generate(context.Background(), "prompt", nil)

	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
	assert.Equal(t, 1, gen.calls)
}
