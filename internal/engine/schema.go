package engine

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Per-action JSON schemas for the model's decision object. Validation
// rejects shape errors (wrong types) before normalization; missing param
// fields are allowed because normalization supplies defaults.

var decisionSchemas = map[ActionType]string{
	ActionSearch: `{
		"type": "object",
		"properties": {
			"think": {"type": "string"},
			"action": {"const": "search"},
			"searchQueries": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["action"]
	}`,
	ActionVisit: `{
		"type": "object",
		"properties": {
			"think": {"type": "string"},
			"action": {"const": "visit"},
			"urlIndices": {"type": "array", "items": {"type": "integer"}}
		},
		"required": ["action"]
	}`,
	ActionReflect: `{
		"type": "object",
		"properties": {
			"think": {"type": "string"},
			"action": {"const": "reflect"},
			"subQuestions": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["action"]
	}`,
	ActionAnswer: `{
		"type": "object",
		"properties": {
			"think": {"type": "string"},
			"action": {"const": "answer"},
			"answer": {"type": "string"},
			"references": {"type": "array", "items": {"type": "string"}},
			"isFinal": {"type": "boolean"}
		},
		"required": ["action"]
	}`,
	ActionCoding: `{
		"type": "object",
		"properties": {
			"think": {"type": "string"},
			"action": {"const": "coding"},
			"codingIssue": {"type": "string"},
			"code": {"type": "string"}
		},
		"required": ["action"]
	}`,
}

// validateDecision checks a decision block against the schema for its
// action.
func validateDecision(action ActionType, block string) error {
	schema, ok := decisionSchemas[action]
	if !ok {
		return fmt.Errorf("no schema for action %q", action)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(block),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("decision for %s rejected: %s", action, strings.Join(msgs, "; "))
	}
	return nil
}
