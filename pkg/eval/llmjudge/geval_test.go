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

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Model() string { return "fake-judge-v1" }
func (f *fakeProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	return f.response, f.err
}

func TestGEvalParsesValidResponse(t *testing.T) {
	p := &fakeProvider{response: `here is my verdict: {"score": 92, "verdict": "PASS", "reasoning": "solid", "issues": []}`}
	e := NewGEvalEvaluator(p, []Criterion{{Name: "correctness", Weight: 1}}, 80, 500)
	r, err := e.Evaluate(context.Background(), &eval.TraceContext{Input: "q", Output: "a"})
	require.NoError(t, err)
	require.True(t, r.Passed)
	require.Equal(t, int64(500), r.CostMicros)
}

func TestGEvalRejectsOutOfRangeScore(t *testing.T) {
	p := &fakeProvider{response: `{"score": 150, "verdict": "PASS", "reasoning": "x"}`}
	e := NewGEvalEvaluator(p, nil, 80, 500)
	_, err := e.Evaluate(context.Background(), &eval.TraceContext{})
	require.Error(t, err)
}

func TestGEvalRejectsMissingJSON(t *testing.T) {
	p := &fakeProvider{response: "no json here"}
	e := NewGEvalEvaluator(p, nil, 80, 500)
	_, err := e.Evaluate(context.Background(), &eval.TraceContext{})
	require.Error(t, err)
}

func TestGEvalFailsBelowThreshold(t *testing.T) {
	p := &fakeProvider{response: `{"score": 40, "verdict": "FAIL", "reasoning": "weak"}`}
	e := NewGEvalEvaluator(p, nil, 80, 500)
	r, err := e.Evaluate(context.Background(), &eval.TraceContext{})
	require.NoError(t, err)
	require.False(t, r.Passed)
}
