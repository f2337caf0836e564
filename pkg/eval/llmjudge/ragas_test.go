// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llmjudge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weaveloop/weaved/pkg/eval"
)

func TestHarmonicMeanZeroIfAnyScoreZero(t *testing.T) {
	require.Equal(t, 0.0, harmonicMean([]float64{0.9, 0.9, 0, 0.9}))
}

func TestHarmonicMeanAllOnes(t *testing.T) {
	require.InDelta(t, 1.0, harmonicMean([]float64{1, 1, 1, 1}), 0.0001)
}

func TestRAGASEvaluateAggregatesAllFourSubMetrics(t *testing.T) {
	p := &fakeProvider{response: `{"score": 0.9, "reasoning": "good"}`}
	e := NewRAGASEvaluator(p, 0.7, 100)
	r, err := e.Evaluate(context.Background(), &eval.TraceContext{Input: "q", Output: "a", Context: []string{"the retrieved passage"}})
	require.NoError(t, err)
	require.True(t, r.Passed)
	require.Len(t, r.Metrics, len(ragasSubMetrics)+1)
	require.Equal(t, int64(400), r.CostMicros)
}

func TestRAGASEvaluateFailsOnSubMetricError(t *testing.T) {
	p := &fakeProvider{err: context.DeadlineExceeded}
	e := NewRAGASEvaluator(p, 0.7, 100)
	_, err := e.Evaluate(context.Background(), &eval.TraceContext{Input: "q", Output: "a", Context: []string{"ctx"}})
	require.Error(t, err)
}

func TestRAGASEvaluateRejectsMissingContext(t *testing.T) {
	p := &fakeProvider{response: `{"score": 0.9, "reasoning": "good"}`}
	e := NewRAGASEvaluator(p, 0.7, 100)
	_, err := e.Evaluate(context.Background(), &eval.TraceContext{Input: "q", Output: "a"})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestRAGASEvaluateRejectsMissingInputOrOutput(t *testing.T) {
	p := &fakeProvider{response: `{"score": 0.9, "reasoning": "good"}`}
	e := NewRAGASEvaluator(p, 0.7, 100)
	_, err := e.Evaluate(context.Background(), &eval.TraceContext{Output: "a", Context: []string{"ctx"}})
	require.ErrorIs(t, err, ErrMissingField)
}
