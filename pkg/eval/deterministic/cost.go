// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package deterministic

import (
	"context"
	"fmt"

	"github.com/weaveloop/weaved/pkg/cost"
	"github.com/weaveloop/weaved/pkg/eval"
)

// CostEvaluator flags traces whose total attributed cost (computed
// through the same pricing table billing uses) exceeds a per-trace
// micro-dollar ceiling.
type CostEvaluator struct {
	pricing     *cost.PricingTable
	maxMicros   int64
}

func NewCostEvaluator(pricing *cost.PricingTable, maxMicros int64) *CostEvaluator {
	return &CostEvaluator{pricing: pricing, maxMicros: maxMicros}
}

func (e *CostEvaluator) ID() string              { return "deterministic.cost" }
func (e *CostEvaluator) IsParallelizable() bool   { return true }
func (e *CostEvaluator) CostPerEvalMicros() int64 { return 0 }

func (e *CostEvaluator) Evaluate(ctx context.Context, tc *eval.TraceContext) (*eval.Result, error) {
	var total int64
	for _, ed := range tc.Edges {
		rate := e.pricing.Rate(tc.Metadata["model"])
		// TokenCount is the combined input+output count recorded at
		// ingest; billed entirely as output tokens absent a finer split.
		total += cost.OutputCostMicros(rate, int64(ed.TokenCount))
	}

	return &eval.Result{
		EvaluatorID: e.ID(),
		Passed:      total <= e.maxMicros,
		Confidence:  1.0,
		Metrics: map[string]interface{}{
			"total_cost_micros": total,
			"max_cost_micros":   e.maxMicros,
		},
		Explanation: fmt.Sprintf("trace cost %s against ceiling %s", cost.FormatUSD(total), cost.FormatUSD(e.maxMicros)),
	}, nil
}
