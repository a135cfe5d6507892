package generation

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseClarifyResponse extracts the follow-up question from the model's JSON
// response. Models routinely wrap JSON in markdown fences or emit slightly
// broken JSON; the repair pass recovers those before giving up. As a last
// resort the raw text itself is used as the question.
func ParseClarifyResponse(raw string) string {
	jsonStr := extractJSON(raw)
	if jsonStr != "" {
		if q := parseQuestion(jsonStr); q != "" {
			return q
		}

		if repaired, err := jsonrepair.JSONRepair(jsonStr); err == nil {
			if q := parseQuestion(repaired); q != "" {
				return q
			}
		}
	}

	return strings.TrimSpace(raw)
}

func parseQuestion(jsonStr string) string {
	var parsed struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Question)
}

// extractJSON pulls the JSON object out of a possibly fenced response.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		return ""
	}
	return response[start : end+1]
}
