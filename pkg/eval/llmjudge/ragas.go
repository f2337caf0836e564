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

	"golang.org/x/sync/errgroup"

	"github.com/weaveloop/weaved/pkg/eval"
)

// ragasSubMetric is one of RAGAS's four retrieval-quality dimensions,
// each scored by an independent judge call so a cheap/fast metric
// isn't held up by a slow one.
type ragasSubMetric struct {
	name   string
	prompt func(tc *eval.TraceContext) string
}

var ragasSubMetrics = []ragasSubMetric{
	{name: "faithfulness", prompt: func(tc *eval.TraceContext) string {
		return fmt.Sprintf(ragasPromptTemplate, "faithfulness",
			"whether every claim in the output is supported by the retrieved context", tc.Input, tc.Output, formatContext(tc.Context))
	}},
	{name: "answer_relevance", prompt: func(tc *eval.TraceContext) string {
		return fmt.Sprintf(ragasPromptTemplate, "answer_relevance",
			"whether the output directly addresses the input question", tc.Input, tc.Output, formatContext(tc.Context))
	}},
	{name: "context_precision", prompt: func(tc *eval.TraceContext) string {
		return fmt.Sprintf(ragasPromptTemplate, "context_precision",
			"whether retrieved context relevant to the question ranks above irrelevant context", tc.Input, tc.Output, formatContext(tc.Context))
	}},
	{name: "context_recall", prompt: func(tc *eval.TraceContext) string {
		return fmt.Sprintf(ragasPromptTemplate, "context_recall",
			"whether all information needed to answer the question was present in the retrieved context", tc.Input, tc.Output, formatContext(tc.Context))
	}},
}

const ragasPromptTemplate = `Score this agent trace on the %s dimension: %s.

## INPUT
%s

## OUTPUT
%s

## RETRIEVED CONTEXT
%s

Return ONLY a JSON object:
{
  "score": <0.0 to 1.0>,
  "reasoning": "<one sentence>"
}`

// formatContext renders the retrieved context chunks RAGAS judges the
// output against as a numbered list the judge prompt can reference.
func formatContext(chunks []string) string {
	var sb strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, c)
	}
	return sb.String()
}

// RAGASEvaluator scores a trace across four concurrent sub-metrics
// and combines them via harmonic mean, which (unlike an arithmetic
// mean) punishes a single collapsed dimension rather than averaging
// it away.
type RAGASEvaluator struct {
	provider      Provider
	minPassScore  float64
	costPerCallUs int64
}

func NewRAGASEvaluator(provider Provider, minPassScore float64, costPerCallMicros int64) *RAGASEvaluator {
	return &RAGASEvaluator{provider: provider, minPassScore: minPassScore, costPerCallUs: costPerCallMicros}
}

func (r *RAGASEvaluator) ID() string              { return "llmjudge.ragas" }
func (r *RAGASEvaluator) IsParallelizable() bool   { return true }
func (r *RAGASEvaluator) CostPerEvalMicros() int64 { return r.costPerCallUs * int64(len(ragasSubMetrics)) }

// ErrMissingField is returned when a RAGAS evaluation is attempted
// without input, output, or at least one retrieved context chunk —
// every sub-metric depends on comparing the output against context,
// so a silent zero-context run would score a different question.
var ErrMissingField = fmt.Errorf("llmjudge.ragas: input, output, and a non-empty context[] are required")

func (r *RAGASEvaluator) Evaluate(ctx context.Context, tc *eval.TraceContext) (*eval.Result, error) {
	if tc.Input == "" || tc.Output == "" || len(tc.Context) == 0 {
		return nil, ErrMissingField
	}

	scores := make([]float64, len(ragasSubMetrics))
	reasons := make([]string, len(ragasSubMetrics))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range ragasSubMetrics {
		i, m := i, m
		g.Go(func() error {
			score, reason, err := r.scoreOne(gctx, m, tc)
			if err != nil {
				return fmt.Errorf("llmjudge.ragas: sub-metric %s: %w", m.name, err)
			}
			scores[i] = score
			reasons[i] = reason
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overall := harmonicMean(scores)
	metrics := make(map[string]interface{}, len(ragasSubMetrics)+1)
	for i, m := range ragasSubMetrics {
		metrics[m.name] = scores[i]
	}
	metrics["overall_score"] = overall

	return &eval.Result{
		EvaluatorID: r.ID(),
		Passed:      overall >= r.minPassScore,
		Confidence:  overall,
		Metrics:     metrics,
		Explanation: reasons[0],
		CostMicros:  r.CostPerEvalMicros(),
	}, nil
}

func (r *RAGASEvaluator) scoreOne(ctx context.Context, m ragasSubMetric, tc *eval.TraceContext) (float64, string, error) {
	raw, err := r.provider.Chat(ctx, []Message{{Role: "user", Content: m.prompt(tc)}})
	if err != nil {
		return 0, "", err
	}
	jsonStr, err := extractJSONObject(raw)
	if err != nil {
		return 0, "", err
	}
	if err := validateJSON(ragasMetricLoader, jsonStr); err != nil {
		return 0, "", err
	}
	var parsed struct {
		Score     float64 `json:"score"`
		Reasoning string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return 0, "", err
	}
	return parsed.Score, parsed.Reasoning, nil
}

// harmonicMean returns 0 if any score is 0, by design: RAGAS's whole
// point is that a single failed dimension should sink the aggregate.
func harmonicMean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sumInv float64
	for _, s := range scores {
		if s <= 0 {
			return 0
		}
		sumInv += 1.0 / s
	}
	return float64(len(scores)) / sumInv
}
