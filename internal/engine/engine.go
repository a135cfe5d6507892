// Package engine holds the routing decision function. It is pure: given the
// same signal, policy, quota snapshot, and agent descriptor it always returns
// the same decision, and it performs no I/O of its own.
package engine

import (
	"fmt"

	"github.com/duplexhq/duplex/internal/canonical"
	"github.com/duplexhq/duplex/internal/directory"
	"github.com/duplexhq/duplex/internal/policy"
	"github.com/duplexhq/duplex/internal/signal"
)

// Path is one of the six handling paths for an inbound message.
type Path string

const (
	PathAutoAnswer Path = "auto_answer" // A: generate grounded on top-K chunks
	PathClarify    Path = "clarify"     // B: ask a targeted follow-up question
	PathCanonical  Path = "canonical"   // C: serve a stored answer verbatim
	PathEscalate   Path = "escalate"    // D: offer escalation to the owner
	PathQueueHuman Path = "queue_human" // E: placeholder, notify owner out-of-band
	PathRefuse     Path = "refuse"      // F: deterministic refusal
)

// Code returns the single-letter audit code for the path.
func (p Path) Code() string {
	switch p {
	case PathAutoAnswer:
		return "A"
	case PathClarify:
		return "B"
	case PathCanonical:
		return "C"
	case PathEscalate:
		return "D"
	case PathQueueHuman:
		return "E"
	case PathRefuse:
		return "F"
	}
	return "?"
}

// ReasonQuotaExhausted marks refusals caused by the owner's escalation day
// limit. The executor keys its refusal wording on it.
const ReasonQuotaExhausted = "daily escalation limit reached"

// Thresholds are the configured routing cut-offs.
type Thresholds struct {
	Canonical      float64 // minimum canonical-answer similarity for Path C
	NoContextFloor float64 // aggregate similarity below this means no usable context
}

// QuotaSnapshot is the quota state the engine decides against. The actual
// reservation stays atomic in the tracker; the snapshot only pre-filters
// obviously exhausted owners.
type QuotaSnapshot struct {
	Used  int
	Limit int
}

// Exhausted reports whether no slots remain.
func (q QuotaSnapshot) Exhausted() bool {
	return q.Used >= q.Limit
}

// Input bundles everything one evaluation needs. All external lookups happen
// before the engine runs.
type Input struct {
	MessageText string
	Signal      signal.RetrievalSignal
	Policy      policy.OrchestratorPolicy
	Sender      directory.Sender
	Agent       directory.AgentDescriptor
	Canonical   *canonical.Match
	Quota       QuotaSnapshot
	Thresholds  Thresholds
}

// Decision is the engine's verdict for one message.
type Decision struct {
	Path            Path                `json:"path"`
	Bypassed        bool                `json:"bypassed,omitempty"`
	Confidence      float64             `json:"confidence"`
	Reason          string              `json:"reason"`
	Grounding       []signal.ChunkScore `json:"grounding,omitempty"`
	CanonicalAnswer string              `json:"canonical_answer,omitempty"`
	BlockedTopic    string              `json:"blocked_topic,omitempty"`
}

// Rule is one independently testable predicate/action pair. Rules are
// evaluated in order; the first whose When fires produces the decision.
type Rule struct {
	Name   string
	When   func(Input) bool
	Decide func(Input) Decision
}

// Engine evaluates the ordered rule list.
type Engine struct {
	rules []Rule
}

// New creates an engine with the default rule ordering.
func New() *Engine {
	return &Engine{rules: DefaultRules()}
}

// Evaluate runs the rule list, first match wins. The fallback rule always
// matches, so every message gets exactly one decision.
func (e *Engine) Evaluate(in Input) Decision {
	for _, rule := range e.rules {
		if rule.When(in) {
			return rule.Decide(in)
		}
	}
	// Unreachable: the fallback rule matches everything.
	return Decision{Path: PathRefuse, Reason: "no_rule_matched"}
}

// Rules exposes the rule list for inspection and per-rule tests.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// DefaultRules returns the production rule ordering. The vagueness check
// deliberately precedes the canonical match: a question too vague to answer
// is also too vague to safely key a cached answer on.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "sender_not_allowed",
			When: func(in Input) bool {
				return !in.Policy.AllowsTier(in.Sender.Tier)
			},
			Decide: func(in Input) Decision {
				return Decision{
					Path:       PathRefuse,
					Confidence: in.Signal.Aggregate,
					Reason:     fmt.Sprintf("sender tier %q is not allowed by owner policy", in.Sender.Tier),
				}
			},
		},
		{
			Name: "blocked_topic",
			When: func(in Input) bool {
				return in.Policy.MatchBlockedTopic(in.MessageText) != ""
			},
			Decide: func(in Input) Decision {
				topic := in.Policy.MatchBlockedTopic(in.MessageText)
				return Decision{
					Path:         PathRefuse,
					Confidence:   in.Signal.Aggregate,
					Reason:       fmt.Sprintf("message matches blocked topic %q", topic),
					BlockedTopic: topic,
				}
			},
		},
		{
			Name: "trusted_bypass",
			When: func(in Input) bool {
				return in.Agent.Trust == directory.TrustTrusted
			},
			Decide: func(in Input) Decision {
				return Decision{
					Path:       PathAutoAnswer,
					Bypassed:   true,
					Confidence: in.Signal.Aggregate,
					Reason:     "trusted agent bypasses routing rules",
					Grounding:  in.Signal.Chunks,
				}
			},
		},
		{
			Name: "needs_clarification",
			When: func(in Input) bool {
				return in.Signal.Vague && in.Policy.ClarificationEnabled
			},
			Decide: func(in Input) Decision {
				return Decision{
					Path:       PathClarify,
					Confidence: in.Signal.Aggregate,
					Reason:     "message too vague to answer, asking a follow-up",
				}
			},
		},
		{
			Name: "canonical_match",
			When: func(in Input) bool {
				return in.Canonical != nil && in.Canonical.Similarity >= in.Thresholds.Canonical
			},
			Decide: func(in Input) Decision {
				return Decision{
					Path:            PathCanonical,
					Confidence:      in.Canonical.Similarity,
					Reason:          fmt.Sprintf("canonical answer matched at %.2f", in.Canonical.Similarity),
					CanonicalAnswer: in.Canonical.AnswerText,
				}
			},
		},
		{
			Name: "no_context",
			When: func(in Input) bool {
				return in.Signal.Unavailable || in.Signal.Aggregate < in.Thresholds.NoContextFloor
			},
			Decide: func(in Input) Decision {
				reason := "no knowledge context for this message"
				if in.Signal.Unavailable {
					reason = "retrieval unavailable"
				}
				return Decision{
					Path:       PathQueueHuman,
					Confidence: in.Signal.Aggregate,
					Reason:     reason,
				}
			},
		},
		{
			Name: "confident_auto_answer",
			When: func(in Input) bool {
				return in.Signal.Aggregate >= in.Policy.ConfidenceThreshold
			},
			Decide: func(in Input) Decision {
				return Decision{
					Path:       PathAutoAnswer,
					Confidence: in.Signal.Aggregate,
					Reason:     fmt.Sprintf("similarity %.2f clears threshold %.2f", in.Signal.Aggregate, in.Policy.ConfidenceThreshold),
					Grounding:  in.Signal.Chunks,
				}
			},
		},
		{
			Name: "novel_query_fallback",
			When: func(Input) bool { return true },
			Decide: func(in Input) Decision {
				if !in.Policy.EscalationEnabled {
					return Decision{
						Path:       PathQueueHuman,
						Confidence: in.Signal.Aggregate,
						Reason:     "below confidence threshold and escalation disabled, queued for owner",
					}
				}
				if in.Quota.Exhausted() {
					return Decision{
						Path:       PathRefuse,
						Confidence: in.Signal.Aggregate,
						Reason:     ReasonQuotaExhausted,
					}
				}
				return Decision{
					Path:       PathEscalate,
					Confidence: in.Signal.Aggregate,
					Reason:     fmt.Sprintf("similarity %.2f below threshold %.2f, offering escalation", in.Signal.Aggregate, in.Policy.ConfidenceThreshold),
					Grounding:  in.Signal.Chunks,
				}
			},
		},
	}
}
