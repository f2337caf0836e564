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

	"github.com/weaveloop/weaved/pkg/cost"
	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/eval"
)

func TestCostEvaluatorPassesUnderCeiling(t *testing.T) {
	pricing := cost.NewPricingTable()
	e := NewCostEvaluator(pricing, 10_000_000)
	tc := &eval.TraceContext{
		Edges:    []edge.Edge{{EdgeID: uuid.New(), TokenCount: 1000}},
		Metadata: map[string]string{},
	}
	r, err := e.Evaluate(context.Background(), tc)
	require.NoError(t, err)
	require.True(t, r.Passed)
}

func TestCostEvaluatorFailsOverCeiling(t *testing.T) {
	pricing := cost.NewPricingTable()
	e := NewCostEvaluator(pricing, 1)
	tc := &eval.TraceContext{
		Edges:    []edge.Edge{{EdgeID: uuid.New(), TokenCount: 1_000_000}},
		Metadata: map[string]string{},
	}
	r, err := e.Evaluate(context.Background(), tc)
	require.NoError(t, err)
	require.False(t, r.Passed)
}
