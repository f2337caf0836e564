// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llmjudge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weaveloop/weaved/pkg/eval"
)

// Criterion is one weighted dimension listed in the G-Eval judge
// prompt.
type Criterion struct {
	Name        string
	Description string
	Weight      float64
}

// GEvalEvaluator scores a trace with one judge call whose prompt lists
// every weighted criterion and asks for a single weighted overall score
// (0-100). Per-criterion scores are not requested and no weighted mean
// is computed here; the judge's overall score is used as returned. It
// costs one LLM call per evaluation.
type GEvalEvaluator struct {
	provider      Provider
	criteria      []Criterion
	minPassScore  float64
	costPerCallUs int64
}

func NewGEvalEvaluator(provider Provider, criteria []Criterion, minPassScore float64, costPerCallMicros int64) *GEvalEvaluator {
	return &GEvalEvaluator{provider: provider, criteria: criteria, minPassScore: minPassScore, costPerCallUs: costPerCallMicros}
}

func (g *GEvalEvaluator) ID() string              { return "llmjudge.geval" }
func (g *GEvalEvaluator) IsParallelizable() bool   { return true }
func (g *GEvalEvaluator) CostPerEvalMicros() int64 { return g.costPerCallUs }

func (g *GEvalEvaluator) Evaluate(ctx context.Context, tc *eval.TraceContext) (*eval.Result, error) {
	prompt := g.buildPrompt(tc)
	raw, err := g.provider.Chat(ctx, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("llmjudge.geval: provider call failed: %w", err)
	}

	jsonStr, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	if err := validateJSON(gEvalLoader, jsonStr); err != nil {
		return nil, err
	}

	var parsed struct {
		Score     float64  `json:"score"`
		Verdict   string   `json:"verdict"`
		Reasoning string   `json:"reasoning"`
		Issues    []string `json:"issues"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("llmjudge.geval: unmarshal judge response: %w", err)
	}

	return &eval.Result{
		EvaluatorID: g.ID(),
		Passed:      parsed.Score >= g.minPassScore,
		Confidence:  parsed.Score / 100.0,
		Metrics: map[string]interface{}{
			"score":   parsed.Score,
			"verdict": parsed.Verdict,
		},
		Explanation:        parsed.Reasoning,
		ActionableFeedback: strings.Join(parsed.Issues, "; "),
		CostMicros:         g.costPerCallUs,
	}, nil
}

func (g *GEvalEvaluator) buildPrompt(tc *eval.TraceContext) string {
	var sb strings.Builder
	sb.WriteString("Evaluate this agent trace against the weighted criteria below.\n\n")
	fmt.Fprintf(&sb, "## INPUT\n%s\n\n## OUTPUT\n%s\n\n", tc.Input, tc.Output)
	sb.WriteString("## CRITERIA\n")
	for _, c := range g.criteria {
		fmt.Fprintf(&sb, "- %s (weight %.2f): %s\n", c.Name, c.Weight, c.Description)
	}
	sb.WriteString(`
Return ONLY a JSON object:
{
  "score": <weighted overall score 0-100>,
  "verdict": "PASS|FAIL|PARTIAL",
  "reasoning": "<2-3 sentence explanation>",
  "issues": ["<specific problem>"]
}`)
	return sb.String()
}
