package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Model replies often wrap the decision object in prose or markdown
// fences. Extraction is best-effort: find the first well-formed JSON
// object, reject everything else. Callers fall back to a deterministic
// decision on any error, so extraction never needs to be clever.

// extractJSON finds and returns the first well-formed JSON object in a
// model reply. It handles pure-JSON replies, markdown code fences, and
// objects embedded in surrounding text.
func extractJSON(reply string) (string, error) {
	reply = stripCodeFences(reply)

	var probe any
	if err := json.Unmarshal([]byte(reply), &probe); err == nil {
		if _, ok := probe.(map[string]any); ok {
			return reply, nil
		}
	}

	start := strings.Index(reply, "{")
	if start != -1 {
		if end := strings.LastIndex(reply, "}"); end > start {
			candidate := reply[start : end+1]
			var probe map[string]any
			if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
				return candidate, nil
			}
		}
	}

	preview := reply
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no well-formed JSON object in reply: %q", preview)
}

// stripCodeFences removes a leading ```json (or bare ```) fence and its
// closing fence.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}

// rawDecision is the wire shape the model is asked to produce. All
// fields are optional; normalization supplies defaults and caps.
type rawDecision struct {
	Think         string   `json:"think"`
	Action        string   `json:"action"`
	SearchQueries []string `json:"searchQueries"`
	URLIndices    []int    `json:"urlIndices"`
	SubQuestions  []string `json:"subQuestions"`
	Answer        string   `json:"answer"`
	References    []string `json:"references"`
	IsFinal       bool     `json:"isFinal"`
	CodingIssue   string   `json:"codingIssue"`
	Code          string   `json:"code"`
}

// parseDecision runs the two-stage pipeline: extract a candidate JSON
// block, then validate it against the per-action schema and decode it.
// Any failure is returned to the caller, which falls back.
func parseDecision(reply string) (rawDecision, error) {
	block, err := extractJSON(reply)
	if err != nil {
		return rawDecision{}, err
	}

	var peek struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal([]byte(block), &peek); err != nil {
		return rawDecision{}, fmt.Errorf("decision block not decodable: %w", err)
	}
	if !ValidAction(peek.Action) {
		return rawDecision{}, fmt.Errorf("unknown action %q", peek.Action)
	}

	if err := validateDecision(ActionType(peek.Action), block); err != nil {
		return rawDecision{}, err
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return rawDecision{}, fmt.Errorf("decision block failed to parse: %w", err)
	}
	return raw, nil
}
