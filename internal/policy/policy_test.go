package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreSafe(t *testing.T) {
	p := Defaults(1)

	assert.Equal(t, 0.6, p.ConfidenceThreshold)
	assert.Empty(t, p.BlockedTopics)
	assert.False(t, p.EscalationEnabled)
	assert.True(t, p.ClarificationEnabled)
	assert.ElementsMatch(t, []string{TierFree, TierStandard, TierPremium}, p.AllowedSenderTiers)
}

func TestDecodeJSON(t *testing.T) {
	raw := []byte(`{
		"confidence_threshold": 0.7,
		"blocked_topics": ["Politics", " medical "],
		"allowed_sender_tiers": ["premium"],
		"escalation_enabled": true,
		"daily_escalation_limit": 3,
		"clarification_enabled": false
	}`)

	p, err := Decode(42, raw)
	require.NoError(t, err)

	assert.Equal(t, int64(42), p.OwnerID)
	assert.Equal(t, 0.7, p.ConfidenceThreshold)
	assert.Equal(t, []string{"politics", "medical"}, p.BlockedTopics)
	assert.Equal(t, []string{"premium"}, p.AllowedSenderTiers)
	assert.True(t, p.EscalationEnabled)
	assert.Equal(t, 3, p.DailyEscalationLimit)
	assert.False(t, p.ClarificationEnabled)
}

func TestDecodeLegacyEncoding(t *testing.T) {
	raw := []byte("confidence=0.8;blocked_topics=politics,legal;escalation=on;daily_limit=5")

	p, err := Decode(42, raw)
	require.NoError(t, err)

	assert.Equal(t, 0.8, p.ConfidenceThreshold)
	assert.Equal(t, []string{"politics", "legal"}, p.BlockedTopics)
	assert.True(t, p.EscalationEnabled)
	assert.Equal(t, 5, p.DailyEscalationLimit)
	assert.True(t, p.ClarificationEnabled, "unset legacy keys keep their defaults")
}

func TestDecodeMalformedFallsBackToDefaults(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"confidence_threshold": not-json`),
		[]byte("confidence=abc;;;"),
		[]byte("just some garbage"),
	}

	for _, raw := range cases {
		p, err := Decode(42, raw)
		assert.Error(t, err)
		assert.Equal(t, Defaults(42), p, "raw=%q", raw)
	}
}

func TestDecodeEmptyGivesDefaultsWithoutError(t *testing.T) {
	p, err := Decode(42, nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(42), p)
}

func TestNormalizeRepairsOutOfRangeFields(t *testing.T) {
	p := Normalize(OrchestratorPolicy{
		OwnerID:              1,
		ConfidenceThreshold:  1.5,
		DailyEscalationLimit: -4,
		BlockedTopics:        []string{"  ", "Politics"},
		AllowedSenderTiers:   []string{"Premium", ""},
	})

	assert.Equal(t, 0.6, p.ConfidenceThreshold)
	assert.Equal(t, 10, p.DailyEscalationLimit)
	assert.Equal(t, []string{"politics"}, p.BlockedTopics)
	assert.Equal(t, []string{"premium"}, p.AllowedSenderTiers)
}

func TestAllowsTier(t *testing.T) {
	p := Defaults(1)
	p.AllowedSenderTiers = []string{TierPremium}

	assert.True(t, p.AllowsTier("premium"))
	assert.True(t, p.AllowsTier(" Premium "))
	assert.False(t, p.AllowsTier(TierFree))
}

func TestMatchBlockedTopic(t *testing.T) {
	p := Defaults(1)
	p.BlockedTopics = []string{"politics"}

	assert.Equal(t, "politics", p.MatchBlockedTopic("Let's talk politics"))
	assert.Equal(t, "politics", p.MatchBlockedTopic("Who won the election?"))
	assert.Equal(t, "", p.MatchBlockedTopic("What time do you open?"))

	clean := Defaults(1)
	assert.Equal(t, "", clean.MatchBlockedTopic("Who won the election?"))
}
