// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package deterministic

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/eval"
)

func tcWithDurations(durationsMs ...uint32) *eval.TraceContext {
	edges := make([]edge.Edge, len(durationsMs))
	for i, d := range durationsMs {
		edges[i] = edge.Edge{EdgeID: uuid.New(), DurationUs: d * 1000}
	}
	return &eval.TraceContext{Edges: edges}
}

func TestPercentileMatchesLinearInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	require.InDelta(t, 25, percentile(sorted, 50), 0.01)
	require.InDelta(t, 10, percentile(sorted, 0), 0.01)
	require.InDelta(t, 40, percentile(sorted, 100), 0.01)
}

func TestLatencyEvaluatorPassesWithinThresholds(t *testing.T) {
	e := NewLatencyEvaluator(LatencyThresholds{P50MaxMs: 100, P95MaxMs: 200, P99MaxMs: 300})
	r, err := e.Evaluate(context.Background(), tcWithDurations(50, 60, 70))
	require.NoError(t, err)
	require.True(t, r.Passed)
}

func TestLatencyEvaluatorFailsOverThreshold(t *testing.T) {
	e := NewLatencyEvaluator(LatencyThresholds{P50MaxMs: 10, P95MaxMs: 20, P99MaxMs: 30})
	r, err := e.Evaluate(context.Background(), tcWithDurations(500, 600, 700))
	require.NoError(t, err)
	require.False(t, r.Passed)
}

func TestLatencyEvaluatorFailsOverTotalDurationEvenWithinPercentiles(t *testing.T) {
	e := NewLatencyEvaluator(LatencyThresholds{P50MaxMs: 1000, P95MaxMs: 1000, P99MaxMs: 1000, TotalMaxMs: 100})
	r, err := e.Evaluate(context.Background(), tcWithDurations(50, 50, 50))
	require.NoError(t, err)
	require.False(t, r.Passed, "150ms total exceeds a 100ms total_threshold even though every percentile is under 1000ms")
}

func TestLatencyEvaluatorRejectsEmptyTrace(t *testing.T) {
	e := NewLatencyEvaluator(LatencyThresholds{})
	_, err := e.Evaluate(context.Background(), &eval.TraceContext{})
	require.Error(t, err)
}
