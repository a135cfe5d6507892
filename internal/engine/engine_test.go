package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexhq/duplex/internal/canonical"
	"github.com/duplexhq/duplex/internal/directory"
	"github.com/duplexhq/duplex/internal/policy"
	"github.com/duplexhq/duplex/internal/signal"
)

func baseInput() Input {
	return Input{
		MessageText: "What time do you open on weekends?",
		Signal: signal.RetrievalSignal{
			Chunks: []signal.ChunkScore{
				{ChunkID: 1, Content: "We open at 9am on Saturdays and Sundays.", Score: 0.75},
			},
			Aggregate: 0.75,
		},
		Policy: policy.Defaults(100),
		Sender: directory.Sender{UserID: 42, Tier: policy.TierFree},
		Agent: directory.AgentDescriptor{
			AgentID:         7,
			OwnerID:         100,
			KnowledgeBaseID: 3,
			Trust:           directory.TrustStandard,
			Primary:         true,
		},
		Quota:      QuotaSnapshot{Used: 0, Limit: 10},
		Thresholds: Thresholds{Canonical: 0.85, NoContextFloor: 0.2},
	}
}

func TestConfidentSignalAutoAnswers(t *testing.T) {
	in := baseInput()

	decision := New().Evaluate(in)

	assert.Equal(t, PathAutoAnswer, decision.Path)
	assert.Equal(t, "A", decision.Path.Code())
	assert.False(t, decision.Bypassed)
	assert.Equal(t, 0.75, decision.Confidence)
	require.Len(t, decision.Grounding, 1)
}

func TestNoContextQueuesForHuman(t *testing.T) {
	in := baseInput()
	in.Signal.Aggregate = 0.1
	in.Signal.Chunks = nil

	decision := New().Evaluate(in)

	assert.Equal(t, PathQueueHuman, decision.Path)
	assert.Equal(t, "E", decision.Path.Code())
}

func TestRetrievalUnavailableQueuesForHuman(t *testing.T) {
	in := baseInput()
	in.Signal = signal.RetrievalSignal{Unavailable: true}

	decision := New().Evaluate(in)

	assert.Equal(t, PathQueueHuman, decision.Path)
	assert.Equal(t, "retrieval unavailable", decision.Reason)
}

func TestVagueMessageAsksForClarification(t *testing.T) {
	in := baseInput()
	in.MessageText = "tell me more"
	in.Signal.Vague = true

	decision := New().Evaluate(in)

	assert.Equal(t, PathClarify, decision.Path)
}

func TestVagueMessageWithClarificationDisabledFallsThrough(t *testing.T) {
	in := baseInput()
	in.MessageText = "tell me more"
	in.Signal.Vague = true
	in.Policy.ClarificationEnabled = false

	decision := New().Evaluate(in)

	assert.NotEqual(t, PathClarify, decision.Path)
}

func TestCanonicalMatchServesStoredAnswer(t *testing.T) {
	in := baseInput()
	in.MessageText = "what is your favourite colour"
	in.Canonical = &canonical.Match{AnswerID: 5, AnswerText: "Blue", Similarity: 0.92}

	decision := New().Evaluate(in)

	assert.Equal(t, PathCanonical, decision.Path)
	assert.Equal(t, "Blue", decision.CanonicalAnswer)
	assert.Equal(t, 0.92, decision.Confidence)
}

func TestCanonicalBelowThresholdIsIgnored(t *testing.T) {
	in := baseInput()
	in.Canonical = &canonical.Match{AnswerID: 5, AnswerText: "Blue", Similarity: 0.7}

	decision := New().Evaluate(in)

	assert.Equal(t, PathAutoAnswer, decision.Path)
}

// A question too vague to answer is also too vague to key a cached answer
// on, so the clarification rule wins over a canonical match.
func TestVaguenessPrecedesCanonicalMatch(t *testing.T) {
	in := baseInput()
	in.Signal.Vague = true
	in.Canonical = &canonical.Match{AnswerID: 5, AnswerText: "Blue", Similarity: 0.95}

	decision := New().Evaluate(in)

	assert.Equal(t, PathClarify, decision.Path)
}

func TestBlockedTopicRefusesRegardlessOfScore(t *testing.T) {
	in := baseInput()
	in.MessageText = "Who are you voting for in the election?"
	in.Signal.Aggregate = 0.9
	in.Policy.BlockedTopics = []string{"politics"}

	decision := New().Evaluate(in)

	assert.Equal(t, PathRefuse, decision.Path)
	assert.Equal(t, "politics", decision.BlockedTopic)
}

func TestDisallowedTierRefuses(t *testing.T) {
	in := baseInput()
	in.Policy.AllowedSenderTiers = []string{policy.TierPremium}
	in.Sender.Tier = policy.TierFree

	decision := New().Evaluate(in)

	assert.Equal(t, PathRefuse, decision.Path)
}

func TestTrustedAgentBypassesEverything(t *testing.T) {
	in := baseInput()
	in.Agent.Trust = directory.TrustTrusted
	in.Signal.Aggregate = 0.05
	in.Signal.Vague = true

	decision := New().Evaluate(in)

	assert.Equal(t, PathAutoAnswer, decision.Path)
	assert.True(t, decision.Bypassed)
}

func TestTrustedAgentNeverProducesOtherPaths(t *testing.T) {
	// Trust does not override policy gates: a refused tier or blocked topic
	// still refuses. Everything else resolves to a direct answer.
	inputs := []func(*Input){
		func(in *Input) { in.Signal.Aggregate = 0.0 },
		func(in *Input) { in.Signal.Vague = true },
		func(in *Input) { in.Signal.Unavailable = true },
		func(in *Input) {
			in.Canonical = &canonical.Match{AnswerText: "cached", Similarity: 0.99}
		},
		func(in *Input) { in.Quota = QuotaSnapshot{Used: 10, Limit: 10} },
	}

	for _, mutate := range inputs {
		in := baseInput()
		in.Agent.Trust = directory.TrustTrusted
		mutate(&in)

		decision := New().Evaluate(in)
		assert.Equal(t, PathAutoAnswer, decision.Path)
		assert.True(t, decision.Bypassed)
	}
}

func TestNovelQueryOffersEscalation(t *testing.T) {
	in := baseInput()
	in.Signal.Aggregate = 0.4 // above floor, below threshold
	in.Policy.EscalationEnabled = true

	decision := New().Evaluate(in)

	assert.Equal(t, PathEscalate, decision.Path)
	assert.Equal(t, "D", decision.Path.Code())
}

func TestNovelQueryWithEscalationDisabledQueuesForHuman(t *testing.T) {
	in := baseInput()
	in.Signal.Aggregate = 0.4

	decision := New().Evaluate(in)

	assert.Equal(t, PathQueueHuman, decision.Path)
}

func TestExhaustedQuotaRefusesWithReason(t *testing.T) {
	in := baseInput()
	in.Signal.Aggregate = 0.4
	in.Policy.EscalationEnabled = true
	in.Quota = QuotaSnapshot{Used: 1, Limit: 1}

	decision := New().Evaluate(in)

	assert.Equal(t, PathRefuse, decision.Path)
	assert.Equal(t, ReasonQuotaExhausted, decision.Reason)
}

func TestEvaluationIsDeterministic(t *testing.T) {
	in := baseInput()
	in.Signal.Aggregate = 0.4
	in.Policy.EscalationEnabled = true
	eng := New()

	first := eng.Evaluate(in)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, eng.Evaluate(in)); diff != "" {
			t.Fatalf("replay diverged (-first +replay):\n%s", diff)
		}
	}
}

func TestEveryInputGetsExactlyOneDecision(t *testing.T) {
	rules := DefaultRules()
	last := rules[len(rules)-1]
	assert.True(t, last.When(Input{}), "fallback rule must match anything")
}
