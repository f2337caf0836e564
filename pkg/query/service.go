// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/weaveloop/weaved/pkg/causal"
	"github.com/weaveloop/weaved/pkg/concept"
	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/vector"
)

// Engine is the storage surface the query service reads from.
type Engine interface {
	ScanRange(tenantID uint64, startUs, endUs int64) ([]edge.Edge, error)
	Get(tenantID uint64, id uuid.UUID) (*edge.Edge, []byte, error)
}

// Page is one cursor-paginated slice of results.
type Page struct {
	Edges      []edge.Edge
	NextCursor string
	HasMore    bool
}

// Service answers the four read operations against one project's
// engine plus its auxiliary indices.
type Service struct {
	engine Engine
	vec    *vector.Index
	con    *concept.Index
	graph  *causal.Graph
}

func NewService(engine Engine, vec *vector.Index, con *concept.Index, graph *causal.Graph) *Service {
	return &Service{engine: engine, vec: vec, con: con, graph: graph}
}

// ListRange returns edges for tenantID within [startUs, endUs), newest
// first, paginated by cursor with at most limit results per page.
func (s *Service) ListRange(ctx context.Context, tenantID uint64, startUs, endUs int64, cursor string, limit int) (Page, error) {
	c, err := DecodeCursor(cursor)
	if err != nil {
		return Page{}, err
	}

	all, err := s.engine.ScanRange(tenantID, startUs, endUs)
	if err != nil {
		return Page{}, err
	}
	// ScanRange returns ascending by timestamp; the list API is
	// newest-first, so reverse.
	reverse(all)

	var page []edge.Edge
	for _, ed := range all {
		if cursor != "" && !c.isPast(ed.TimestampUs, ed.EdgeID) {
			continue
		}
		page = append(page, ed)
		if len(page) == limit+1 {
			break
		}
	}

	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}

	var next string
	if hasMore && len(page) > 0 {
		last := page[len(page)-1]
		next = Cursor{TimestampUs: last.TimestampUs, EdgeID: last.EdgeID}.Encode()
	}

	return Page{Edges: page, NextCursor: next, HasMore: hasMore}, nil
}

// SemanticSearchResult pairs a matched edge with its similarity score.
type SemanticSearchResult struct {
	Edge       edge.Edge
	Similarity float32
}

// SemanticSearch runs a vector-index nearest-neighbor query, then
// hydrates each hit's full edge from the engine so the caller gets
// durable fields (not just the id the index tracks).
func (s *Service) SemanticSearch(ctx context.Context, tenantID uint64, query []float32, limit int) ([]SemanticSearchResult, error) {
	hits := s.vec.Search(query, tenantID, limit, 4)
	out := make([]SemanticSearchResult, 0, len(hits))
	for _, h := range hits {
		ed, _, err := s.engine.Get(tenantID, h.ID)
		if err != nil {
			continue // vector index can lag storage under eviction; skip stale hits
		}
		out = append(out, SemanticSearchResult{Edge: *ed, Similarity: h.Similarity})
	}
	return out, nil
}

// ContentSearch does a substring scan over decoded payloads in
// [startUs, endUs), case-insensitive. There is no full-text index in
// this system; this is intentionally a linear scan bounded by the
// caller's time range.
func (s *Service) ContentSearch(ctx context.Context, tenantID uint64, startUs, endUs int64, substr string, limit int) ([]edge.Edge, error) {
	all, err := s.engine.ScanRange(tenantID, startUs, endUs)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(substr)

	var out []edge.Edge
	for _, ed := range all {
		_, payload, err := s.engine.Get(tenantID, ed.EdgeID)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(payload)), needle) {
			out = append(out, ed)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// GetTrace assembles the full causal trace rooted at rootID: the root
// edge plus every descendant, time-ordered.
func (s *Service) GetTrace(ctx context.Context, tenantID uint64, rootID uuid.UUID) ([]edge.Edge, error) {
	edges, _, err := s.getTrace(tenantID, rootID)
	return edges, err
}

// GetTraceWithPayloads is GetTrace plus each edge's raw payload bytes,
// keyed by edge id, for callers (the evaluator runtime) that need the
// recorded tool-call arguments rather than just the edge headers.
func (s *Service) GetTraceWithPayloads(ctx context.Context, tenantID uint64, rootID uuid.UUID) ([]edge.Edge, map[uuid.UUID][]byte, error) {
	return s.getTrace(tenantID, rootID)
}

func (s *Service) getTrace(tenantID uint64, rootID uuid.UUID) ([]edge.Edge, map[uuid.UUID][]byte, error) {
	root, rootPayload, err := s.engine.Get(tenantID, rootID)
	if err != nil {
		return nil, nil, fmt.Errorf("query: get trace root: %w", err)
	}

	descendantIDs, err := s.graph.GetDescendants(rootID)
	if err != nil {
		return nil, nil, fmt.Errorf("query: get trace descendants: %w", err)
	}

	out := []edge.Edge{*root}
	payloads := make(map[uuid.UUID][]byte)
	if len(rootPayload) > 0 {
		payloads[root.EdgeID] = rootPayload
	}
	for _, id := range descendantIDs {
		ed, payload, err := s.engine.Get(tenantID, id)
		if err != nil {
			continue
		}
		out = append(out, *ed)
		if len(payload) > 0 {
			payloads[ed.EdgeID] = payload
		}
	}
	sortByTimestamp(out)
	return out, payloads, nil
}

func reverse(edges []edge.Edge) {
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
}

func sortByTimestamp(edges []edge.Edge) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && edges[j-1].TimestampUs > edges[j].TimestampUs; j-- {
			edges[j-1], edges[j] = edges[j], edges[j-1]
		}
	}
}
