// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package deterministic implements evaluators whose verdicts are pure
// functions of the trace's own recorded fields — latency, cost, and
// trajectory efficiency — with no external model call and therefore
// zero per-eval cost.
package deterministic

import (
	"context"
	"fmt"
	"sort"

	"github.com/weaveloop/weaved/pkg/eval"
)

// LatencyThresholds configures pass/fail cutoffs in milliseconds for
// the p50/p95/p99 percentiles computed across the trace's edges, plus
// a ceiling on the trace's total wall-clock duration.
type LatencyThresholds struct {
	P50MaxMs   int64
	P95MaxMs   int64
	P99MaxMs   int64
	TotalMaxMs int64
}

// LatencyEvaluator flags traces whose duration percentiles exceed the
// configured thresholds. It is a pure function of DurationUs across
// the trace's edges, so results are deterministic and parallelizable.
type LatencyEvaluator struct {
	thresholds LatencyThresholds
}

func NewLatencyEvaluator(t LatencyThresholds) *LatencyEvaluator {
	return &LatencyEvaluator{thresholds: t}
}

func (e *LatencyEvaluator) ID() string              { return "deterministic.latency" }
func (e *LatencyEvaluator) IsParallelizable() bool   { return true }
func (e *LatencyEvaluator) CostPerEvalMicros() int64 { return 0 }

func (e *LatencyEvaluator) Evaluate(ctx context.Context, tc *eval.TraceContext) (*eval.Result, error) {
	if len(tc.Edges) == 0 {
		return nil, fmt.Errorf("deterministic.latency: empty trace context")
	}

	durations := make([]float64, len(tc.Edges))
	var totalMs float64
	for i, ed := range tc.Edges {
		ms := float64(ed.DurationUs) / 1000.0
		durations[i] = ms
		totalMs += ms
	}
	sort.Float64s(durations)

	p50 := percentile(durations, 50)
	p95 := percentile(durations, 95)
	p99 := percentile(durations, 99)

	passed := int64(p50) <= e.thresholds.P50MaxMs &&
		int64(p95) <= e.thresholds.P95MaxMs &&
		int64(p99) <= e.thresholds.P99MaxMs &&
		(e.thresholds.TotalMaxMs <= 0 || int64(totalMs) <= e.thresholds.TotalMaxMs)

	return &eval.Result{
		EvaluatorID: e.ID(),
		Passed:      passed,
		Confidence:  1.0,
		Metrics: map[string]interface{}{
			"p50_ms":   p50,
			"p95_ms":   p95,
			"p99_ms":   p99,
			"total_ms": totalMs,
		},
		Explanation: fmt.Sprintf("p50=%.1fms p95=%.1fms p99=%.1fms total=%.1fms", p50, p95, p99, totalMs),
	}, nil
}

// percentile uses the same linear-interpolation method as numpy's
// default ("linear") interpolation: rank = p/100 * (n-1).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
