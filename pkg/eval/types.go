// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package eval is the evaluator runtime: it builds trace contexts from
// the storage engine, dispatches evaluators through a capability-set
// interface (no class hierarchy), and caches results by a
// content-addressed key.
package eval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/weaveloop/weaved/pkg/edge"
)

// TraceContext is the root edge plus its causal descendants and
// decoded input/output/metadata snapshots, as built by the runtime
// before any evaluator runs.
type TraceContext struct {
	TraceID  uuid.UUID
	TenantID uint64
	Root     edge.Edge
	Edges    []edge.Edge // root + descendants, time-ordered
	Payloads map[uuid.UUID][]byte // edge_id -> raw payload, only for edges with HasPayload
	Input    string
	Output   string
	Context  []string // retrieved context chunks RAGAS scores the output against
	Metadata map[string]string
}

// Result is one evaluator's verdict, bound to one trace root edge_id.
// Cost fields use exact-decimal micro-dollars, never float, matching
// the cost package's convention.
type Result struct {
	EvaluatorID       string
	Passed            bool
	Confidence        float64
	Metrics           map[string]interface{}
	Explanation       string
	CostMicros        int64
	DurationMs        int64
	ActionableFeedback string
}

// Evaluator is the capability set every evaluator (deterministic or
// LLM-judge) implements. Variants differ only in IsParallelizable and
// whether CostPerEvalMicros returns non-zero — there is no class
// hierarchy, only this interface dispatched through a registry.
type Evaluator interface {
	ID() string
	Evaluate(ctx context.Context, tc *TraceContext) (*Result, error)
	IsParallelizable() bool
	CostPerEvalMicros() int64
}

// Criteria is the criteria list used for cache-key construction; the
// key is built from a sorted copy, which makes it invariant under input
// ordering. Duplicates are not removed.
type Criteria []string

func (c Criteria) sorted() Criteria {
	out := append(Criteria(nil), c...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// timeoutOrDefault returns d if positive, else a conservative default
// so evaluator calls always carry a deadline per the concurrency model.
func timeoutOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return 30 * time.Second
}
