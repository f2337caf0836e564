// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package eval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weaveloop/weaved/pkg/causal"
	"github.com/weaveloop/weaved/pkg/edge"
)

// Registry holds the set of evaluators the runtime can dispatch by
// id, mirroring the agent registry's RWMutex-guarded map pattern.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.ID()] = e
}

func (r *Registry) Get(id string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[id]
	return e, ok
}

func (r *Registry) All() []Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Evaluator, 0, len(r.evaluators))
	for _, e := range r.evaluators {
		out = append(out, e)
	}
	return out
}

// Engine is the minimal storage surface the runtime needs to build a
// TraceContext: fetch one edge by id.
type Engine interface {
	Get(tenantID uint64, id uuid.UUID) (*edge.Edge, []byte, error)
}

// Runtime builds trace contexts, consults the result cache, dispatches
// evaluators (fanning parallelizable ones out concurrently under one
// shared timeout), and appends every fresh result to the log.
type Runtime struct {
	registry *Registry
	cache    *ResultCache
	log      *Log
	graph    *causal.Graph
	timeout  time.Duration
	logger   *zap.Logger
}

func NewRuntime(registry *Registry, cache *ResultCache, log *Log, graph *causal.Graph, timeout time.Duration, logger *zap.Logger) *Runtime {
	return &Runtime{
		registry: registry,
		cache:    cache,
		log:      log,
		graph:    graph,
		timeout:  timeoutOrDefault(timeout),
		logger:   logger,
	}
}

// BuildTraceContext assembles a TraceContext from the root edge and
// its causal descendants, decoding payload input/output if present.
// payloads, when non-nil, lets evaluators that need raw span content
// (trajectory's tool-call keying, RAGAS's context requirement) look it
// up by edge id without a second storage round trip.
func (rt *Runtime) BuildTraceContext(root edge.Edge, descendants []edge.Edge, input, output string, retrievedContext []string, payloads map[uuid.UUID][]byte, metadata map[string]string) *TraceContext {
	edges := append([]edge.Edge{root}, descendants...)
	return &TraceContext{
		TraceID:  root.EdgeID,
		TenantID: root.TenantID,
		Root:     root,
		Edges:    edges,
		Payloads: payloads,
		Input:    input,
		Output:   output,
		Context:  retrievedContext,
		Metadata: metadata,
	}
}

// Evaluate runs evaluatorIDs against tc: cache hits are returned
// immediately, parallelizable misses fan out concurrently under one
// shared timeout via errgroup, sequential ones run in registration
// order after. Every fresh result is appended to the log before
// being returned.
func (rt *Runtime) Evaluate(ctx context.Context, tc *TraceContext, evaluatorIDs []string, criteria Criteria) ([]*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, rt.timeout)
	defer cancel()

	results := make([]*Result, len(evaluatorIDs))
	var parallel, sequential []int

	for i, id := range evaluatorIDs {
		e, ok := rt.registry.Get(id)
		if !ok {
			return nil, fmt.Errorf("eval: unknown evaluator %q", id)
		}
		if cached, hit := rt.cache.Get(id, tc.TraceID, criteria); hit {
			results[i] = cached
			continue
		}
		if e.IsParallelizable() {
			parallel = append(parallel, i)
		} else {
			sequential = append(sequential, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range parallel {
		idx := idx
		id := evaluatorIDs[idx]
		g.Go(func() error {
			e, _ := rt.registry.Get(id)
			r, err := rt.runOne(gctx, e, tc, criteria)
			if err != nil {
				return err
			}
			results[idx] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, idx := range sequential {
		id := evaluatorIDs[idx]
		e, _ := rt.registry.Get(id)
		r, err := rt.runOne(ctx, e, tc, criteria)
		if err != nil {
			return nil, err
		}
		results[idx] = r
	}

	return results, nil
}

func (rt *Runtime) runOne(ctx context.Context, e Evaluator, tc *TraceContext, criteria Criteria) (*Result, error) {
	start := time.Now()
	r, err := e.Evaluate(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("eval: evaluator %s failed: %w", e.ID(), err)
	}
	r.DurationMs = time.Since(start).Milliseconds()

	rt.cache.Put(e.ID(), tc.TraceID, criteria, r)
	if rt.log != nil {
		if err := rt.log.Append(LogEntry{TraceID: tc.TraceID, TenantID: tc.TenantID, Result: *r, WrittenAt: time.Now()}); err != nil {
			rt.logger.Warn("eval log append failed", zap.Error(err), zap.String("evaluator_id", e.ID()))
		}
	}
	return r, nil
}
