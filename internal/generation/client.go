// Package generation is the boundary to the text-generation collaborator.
// The model itself is opaque; this package owns prompt assembly, streaming,
// and the bounded-retry behavior of the chat path.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/duplexhq/duplex/internal/signal"
)

// StreamFunc receives generated tokens as they arrive. A nil StreamFunc
// means the caller wants only the final text.
type StreamFunc func(chunk []byte) error

// Generator produces text from a prompt, optionally streaming tokens.
type Generator interface {
	Generate(ctx context.Context, prompt string, stream StreamFunc) (string, error)
}

// Config configures the OpenAI-compatible generation client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client is the langchain-backed generator.
type Client struct {
	llm   llms.Model
	model string
}

// NewClient creates a new generation client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("generation API key is required")
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
	}
	if config.Model != "" {
		opts = append(opts, openai.WithModel(config.Model))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation client: %w", err)
	}

	return &Client{llm: llm, model: config.Model}, nil
}

// Generate calls the model with a single prompt. When stream is non-nil,
// tokens are forwarded as they arrive; the full text is returned either way.
func (c *Client) Generate(ctx context.Context, prompt string, stream StreamFunc) (string, error) {
	var callOpts []llms.CallOption
	if stream != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return stream(chunk)
		}))
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("generation call failed: %w", err)
	}
	return response, nil
}

// BuildAnswerPrompt assembles the grounded auto-answer prompt from the
// retrieval signal's top-K chunks.
func BuildAnswerPrompt(agentName, question string, grounding []signal.ChunkScore) string {
	var prompt strings.Builder

	prompt.WriteString("You are a delegated assistant answering on behalf of ")
	prompt.WriteString(agentName)
	prompt.WriteString(".\n")
	prompt.WriteString("Answer the question using ONLY the knowledge excerpts below.\n")
	prompt.WriteString("If the excerpts do not cover the question, say you are not sure rather than inventing an answer.\n\n")

	prompt.WriteString("# Knowledge\n\n")
	for i, chunk := range grounding {
		prompt.WriteString(fmt.Sprintf("## Excerpt %d (relevance %.2f)\n", i+1, chunk.Score))
		prompt.WriteString(chunk.Content)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("# Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n")

	return prompt.String()
}

// BuildClarifyPrompt asks the model for one targeted follow-up question,
// returned as JSON so parsing stays deterministic.
func BuildClarifyPrompt(question string) string {
	var prompt strings.Builder

	prompt.WriteString("The following message is too vague to answer directly.\n")
	prompt.WriteString("Write ONE short follow-up question that would let you answer it.\n\n")
	prompt.WriteString("Respond as JSON:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\"question\": \"your follow-up question\"}\n")
	prompt.WriteString("```\n\n")
	prompt.WriteString("# Message\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n")

	return prompt.String()
}
