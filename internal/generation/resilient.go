package generation

import (
	"context"
	"time"

	"github.com/duplexhq/duplex/internal/retry"
)

// Resilient wraps a Generator with the chat path's failure policy: one
// bounded attempt plus one synchronous retry, then the caller downgrades the
// message to its fallback path. Never an unbounded loop.
type Resilient struct {
	generator Generator
	config    retry.RetryConfig
	timeout   time.Duration
}

// NewResilient creates a resilient generator with the chat-path retry policy
func NewResilient(generator Generator, timeout time.Duration) *Resilient {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Resilient{
		generator: generator,
		config:    retry.ChatPathRetryConfig(),
		timeout:   timeout,
	}
}

// Generate runs the generation with a per-attempt timeout. A retried
// attempt restarts the stream from the beginning.
func (r *Resilient) Generate(ctx context.Context, prompt string, stream StreamFunc) (string, error) {
	var response string

	result := retry.RetryWithBackoffAndReason(ctx, r.config, func() (error, string) {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		text, err := r.generator.Generate(attemptCtx, prompt, stream)
		if err != nil {
			if retry.IsRetryableError(err) {
				return err, "generation_retryable"
			}
			return err, "generation_failed"
		}

		response = text
		return nil, "success"
	})

	if !result.Success {
		return "", result.LastError
	}
	return response, nil
}
