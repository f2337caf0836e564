// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llmjudge

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// gEvalSchema constrains the judge model's response shape before any
// field is trusted: an out-of-range score or missing verdict fails
// schema validation rather than silently defaulting.
const gEvalSchema = `{
  "type": "object",
  "required": ["score", "verdict", "reasoning"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 100},
    "verdict": {"type": "string", "enum": ["PASS", "FAIL", "PARTIAL"]},
    "reasoning": {"type": "string"},
    "issues": {"type": "array", "items": {"type": "string"}}
  }
}`

const ragasSubMetricSchema = `{
  "type": "object",
  "required": ["score", "reasoning"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`

var (
	gEvalLoader       = gojsonschema.NewStringLoader(gEvalSchema)
	ragasMetricLoader = gojsonschema.NewStringLoader(ragasSubMetricSchema)
)

// validateJSON checks documentJSON against schemaLoader and returns a
// combined error describing every violation, so a malformed judge
// response is rejected deterministically instead of parsed partially.
func validateJSON(schemaLoader gojsonschema.JSONLoader, documentJSON string) error {
	doc := gojsonschema.NewStringLoader(documentJSON)
	result, err := gojsonschema.Validate(schemaLoader, doc)
	if err != nil {
		return fmt.Errorf("llmjudge: schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("llmjudge: judge response failed schema validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// extractJSONObject pulls the outermost {...} span out of a raw LLM
// response, tolerating surrounding prose the way the teacher's
// hardcoded-prompt judge does.
func extractJSONObject(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("llmjudge: no JSON object found in response")
	}
	return response[start : end+1], nil
}
