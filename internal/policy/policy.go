package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Sender tiers recognized by the orchestrator.
const (
	TierFree     = "free"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// OrchestratorPolicy is the per-owner routing policy. There is exactly one
// representation of a policy in the codebase; every storage format funnels
// through Normalize before the engine ever sees it.
type OrchestratorPolicy struct {
	OwnerID              int64     `json:"owner_id"`
	ConfidenceThreshold  float64   `json:"confidence_threshold"`
	BlockedTopics        []string  `json:"blocked_topics"`
	AllowedSenderTiers   []string  `json:"allowed_sender_tiers"`
	EscalationEnabled    bool      `json:"escalation_enabled"`
	DailyEscalationLimit int       `json:"daily_escalation_limit"`
	ClarificationEnabled bool      `json:"clarification_enabled"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Defaults returns the safe default policy used when an owner has no stored
// policy record, or when the stored record is malformed.
func Defaults(ownerID int64) OrchestratorPolicy {
	return OrchestratorPolicy{
		OwnerID:              ownerID,
		ConfidenceThreshold:  0.6,
		BlockedTopics:        nil,
		AllowedSenderTiers:   []string{TierFree, TierStandard, TierPremium},
		EscalationEnabled:    false,
		DailyEscalationLimit: 10,
		ClarificationEnabled: true,
	}
}

// Normalize validates a decoded policy and repairs out-of-range fields back
// to their defaults. It never fails: a policy always comes out usable.
func Normalize(p OrchestratorPolicy) OrchestratorPolicy {
	def := Defaults(p.OwnerID)

	if p.ConfidenceThreshold <= 0 || p.ConfidenceThreshold > 1 {
		p.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if len(p.AllowedSenderTiers) == 0 {
		p.AllowedSenderTiers = def.AllowedSenderTiers
	}
	if p.DailyEscalationLimit <= 0 {
		p.DailyEscalationLimit = def.DailyEscalationLimit
	}

	topics := make([]string, 0, len(p.BlockedTopics))
	for _, t := range p.BlockedTopics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		topics = nil
	}
	p.BlockedTopics = topics

	tiers := make([]string, 0, len(p.AllowedSenderTiers))
	for _, tier := range p.AllowedSenderTiers {
		tier = strings.ToLower(strings.TrimSpace(tier))
		if tier != "" {
			tiers = append(tiers, tier)
		}
	}
	p.AllowedSenderTiers = tiers

	return p
}

// Decode is the single deserialization path for stored policies. Older rows
// stored the policy as a comma-separated settings string; newer rows store
// JSON. Both land in the same OrchestratorPolicy value. A payload that cannot
// be decoded yields the defaults and a non-nil error so callers can log it.
func Decode(ownerID int64, raw []byte) (OrchestratorPolicy, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return Defaults(ownerID), nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var p OrchestratorPolicy
		if err := json.Unmarshal(raw, &p); err != nil {
			return Defaults(ownerID), fmt.Errorf("malformed policy json for owner %d: %w", ownerID, err)
		}
		p.OwnerID = ownerID
		return Normalize(p), nil
	}

	return decodeLegacy(ownerID, trimmed)
}

// decodeLegacy parses the historical "key=value;key=value" encoding.
func decodeLegacy(ownerID int64, raw string) (OrchestratorPolicy, error) {
	p := Defaults(ownerID)

	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return Defaults(ownerID), fmt.Errorf("malformed legacy policy entry %q for owner %d", pair, ownerID)
		}

		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "confidence":
			if _, err := fmt.Sscanf(value, "%f", &p.ConfidenceThreshold); err != nil {
				return Defaults(ownerID), fmt.Errorf("malformed legacy confidence %q for owner %d", value, ownerID)
			}
		case "blocked_topics":
			if value != "" {
				p.BlockedTopics = strings.Split(value, ",")
			}
		case "allowed_tiers":
			if value != "" {
				p.AllowedSenderTiers = strings.Split(value, ",")
			}
		case "escalation":
			p.EscalationEnabled = value == "on" || value == "true"
		case "daily_limit":
			if _, err := fmt.Sscanf(value, "%d", &p.DailyEscalationLimit); err != nil {
				return Defaults(ownerID), fmt.Errorf("malformed legacy daily_limit %q for owner %d", value, ownerID)
			}
		case "clarification":
			p.ClarificationEnabled = value == "on" || value == "true"
		}
	}

	return Normalize(p), nil
}

// AllowsTier reports whether a sender tier may reach this owner's agent.
func (p OrchestratorPolicy) AllowsTier(tier string) bool {
	tier = strings.ToLower(strings.TrimSpace(tier))
	for _, allowed := range p.AllowedSenderTiers {
		if allowed == tier {
			return true
		}
	}
	return false
}

// topicLexicon maps a blocked topic to terms that count as mentions of it.
// A message about an "election" is a politics message even though it never
// says "politics".
var topicLexicon = map[string][]string{
	"politics": {"election", "vote", "voting", "campaign", "president", "parliament", "senator", "ballot"},
	"medical":  {"diagnosis", "prescription", "symptom", "medication", "dosage", "treatment"},
	"finance":  {"investment", "stock", "crypto", "portfolio", "loan", "mortgage"},
	"legal":    {"lawsuit", "contract", "liability", "attorney", "litigation"},
}

// MatchBlockedTopic returns the first blocked topic mentioned in the text,
// or "" when the text is clean. A topic matches on the topic word itself or
// on any of its lexicon terms, case-insensitively.
func (p OrchestratorPolicy) MatchBlockedTopic(text string) string {
	if len(p.BlockedTopics) == 0 {
		return ""
	}

	lower := strings.ToLower(text)
	for _, topic := range p.BlockedTopics {
		if strings.Contains(lower, topic) {
			return topic
		}
		for _, term := range topicLexicon[topic] {
			if strings.Contains(lower, term) {
				return topic
			}
		}
	}
	return ""
}

// encode serializes a policy into its stored JSON payload.
func encode(p OrchestratorPolicy) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy for owner %d: %w", p.OwnerID, err)
	}
	return data, nil
}
