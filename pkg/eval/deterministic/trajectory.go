// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package deterministic

import (
	"context"
	"fmt"

	"github.com/agext/levenshtein"

	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/eval"
)

// TrajectoryConfig configures duplicate and backtrack detection.
// RedundancyThreshold is the normalized Levenshtein similarity above
// which two non-identical tool-call keys count as a semantic (rather
// than exact) duplicate. OptimalSteps, when positive, turns on the
// step-efficiency term (optimal/actual, averaged into the main score).
type TrajectoryConfig struct {
	RedundancyThreshold float64
	MaxStepBudget       int
	OptimalSteps        int
	PassThreshold       float64
}

func DefaultTrajectoryConfig() TrajectoryConfig {
	return TrajectoryConfig{RedundancyThreshold: 0.85, MaxStepBudget: 20, PassThreshold: 0.6}
}

// TrajectoryEvaluator scores how efficiently an agent reached its
// final output: fewer tool calls, fewer repeated steps, and fewer
// dead-end backtracks score higher. It operates on the recorded edge
// sequence plus, where available, each tool-like edge's payload.
type TrajectoryEvaluator struct {
	cfg TrajectoryConfig
}

func NewTrajectoryEvaluator(cfg TrajectoryConfig) *TrajectoryEvaluator {
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = 0.6
	}
	return &TrajectoryEvaluator{cfg: cfg}
}

func (e *TrajectoryEvaluator) ID() string              { return "deterministic.trajectory_efficiency" }
func (e *TrajectoryEvaluator) IsParallelizable() bool   { return true }
func (e *TrajectoryEvaluator) CostPerEvalMicros() int64 { return 0 }

func (e *TrajectoryEvaluator) Evaluate(ctx context.Context, tc *eval.TraceContext) (*eval.Result, error) {
	var toolSteps []string
	for _, ed := range tc.Edges {
		if ed.SpanType.IsToolLike() {
			toolSteps = append(toolSteps, toolKey(ed, tc.Payloads[ed.EdgeID]))
		}
	}
	stepCount := len(toolSteps)

	exactDup, semDup := countDuplicates(toolSteps, e.cfg.RedundancyThreshold)
	backtracks := countBacktracks(tc.Edges)

	score := 1.0
	if stepCount > 0 {
		score = clamp01(1.0 - float64(exactDup+semDup)/float64(stepCount))
	}

	if e.cfg.OptimalSteps > 0 && stepCount > 0 {
		efficiency := float64(e.cfg.OptimalSteps) / float64(stepCount)
		if efficiency > 1.0 {
			efficiency = 1.0
		}
		score = (score + efficiency) / 2.0
	}

	if stepCount > e.cfg.MaxStepBudget {
		over := float64(stepCount-e.cfg.MaxStepBudget) / float64(e.cfg.MaxStepBudget)
		score -= over
	}

	if stepCount > 0 {
		score -= (float64(backtracks) / float64(stepCount)) * 0.2
	}
	score = clamp01(score)

	return &eval.Result{
		EvaluatorID: e.ID(),
		Passed:      score >= e.cfg.PassThreshold,
		Confidence:  1.0,
		Metrics: map[string]interface{}{
			"step_count":          stepCount,
			"exact_duplicates":    exactDup,
			"semantic_duplicates": semDup,
			"backtracks":          backtracks,
			"efficiency_score":    score,
		},
		Explanation: fmt.Sprintf("%d tool steps, %d exact + %d semantic duplicates, %d backtracks, score=%.2f",
			stepCount, exactDup, semDup, backtracks, score),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// toolKey builds a comparable string identifying a tool invocation by
// its recorded call, not just its span type and agent: when the raw
// payload is available it is used verbatim (the same tool called with
// different arguments produces a different key), falling back to
// span-type/agent when no payload was captured for the edge.
func toolKey(ed edge.Edge, payload []byte) string {
	if len(payload) > 0 {
		return string(payload)
	}
	return fmt.Sprintf("%d:%d", ed.SpanType, ed.AgentID)
}

// countDuplicates returns (exact, semantic) duplicate counts: a step
// whose key is byte-identical to an earlier step is an exact
// duplicate; one that isn't identical but scores at or above
// threshold on normalized Levenshtein similarity against some earlier
// step is a semantic duplicate. Each step is counted against its
// first occurrence only, and every step counts toward at most one
// bucket.
func countDuplicates(steps []string, threshold float64) (exact int, semantic int) {
	seen := make([]string, 0, len(steps))
	for _, s := range steps {
		isExact := false
		isSemantic := false
		for _, prior := range seen {
			if s == prior {
				isExact = true
				break
			}
			if levenshtein.Similarity(s, prior, nil) >= threshold {
				isSemantic = true
			}
		}
		switch {
		case isExact:
			exact++
		case isSemantic:
			semantic++
		default:
			seen = append(seen, s)
		}
	}
	return exact, semantic
}

// countBacktracks counts Error edges immediately followed (in the
// time-ordered edge sequence) by a ToolCall or Retrieval edge — the
// agent hit a failure and re-tried rather than continuing forward.
func countBacktracks(edges []edge.Edge) int {
	backtracks := 0
	for i := 0; i+1 < len(edges); i++ {
		if edges[i].SpanType != edge.SpanError {
			continue
		}
		next := edges[i+1].SpanType
		if next == edge.SpanToolCall || next == edge.SpanRetrieval {
			backtracks++
		}
	}
	return backtracks
}
