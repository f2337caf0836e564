// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/weaveloop/weaved/pkg/causal"
	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/vector"
)

type fakeEngine struct {
	edges    []edge.Edge
	payloads map[uuid.UUID][]byte
}

func (f *fakeEngine) ScanRange(tenantID uint64, startUs, endUs int64) ([]edge.Edge, error) {
	var out []edge.Edge
	for _, e := range f.edges {
		if e.TenantID == tenantID && e.TimestampUs >= startUs && e.TimestampUs < endUs {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEngine) Get(tenantID uint64, id uuid.UUID) (*edge.Edge, []byte, error) {
	for _, e := range f.edges {
		if e.EdgeID == id && e.TenantID == tenantID {
			ed := e
			return &ed, f.payloads[id], nil
		}
	}
	return nil, nil, fmt.Errorf("not found")
}

func TestListRangePaginatesByCursor(t *testing.T) {
	eng := &fakeEngine{payloads: map[uuid.UUID][]byte{}}
	for i := int64(0); i < 5; i++ {
		eng.edges = append(eng.edges, edge.Edge{EdgeID: uuid.New(), TenantID: 1, TimestampUs: i * 1000})
	}
	svc := NewService(eng, nil, nil, nil)

	page1, err := svc.ListRange(context.Background(), 1, 0, 10000, "", 2)
	require.NoError(t, err)
	require.Len(t, page1.Edges, 2)
	require.True(t, page1.HasMore)
	require.Equal(t, int64(4000), page1.Edges[0].TimestampUs) // newest first

	page2, err := svc.ListRange(context.Background(), 1, 0, 10000, page1.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Edges, 2)
	require.NotEqual(t, page1.Edges[0].EdgeID, page2.Edges[0].EdgeID)
}

func TestContentSearchFindsSubstringCaseInsensitive(t *testing.T) {
	id := uuid.New()
	eng := &fakeEngine{
		edges:    []edge.Edge{{EdgeID: id, TenantID: 1, TimestampUs: 100}},
		payloads: map[uuid.UUID][]byte{id: []byte(`{"text":"Hello World"}`)},
	}
	svc := NewService(eng, nil, nil, nil)
	out, err := svc.ContentSearch(context.Background(), 1, 0, 1000, "hello", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestGetTraceIncludesDescendants(t *testing.T) {
	root := uuid.New()
	child := uuid.New()
	eng := &fakeEngine{
		edges: []edge.Edge{
			{EdgeID: root, TenantID: 1, TimestampUs: 100},
			{EdgeID: child, TenantID: 1, TimestampUs: 200},
		},
		payloads: map[uuid.UUID][]byte{},
	}
	g := causal.NewGraph()
	g.Link(root, uuid.Nil)
	g.Link(child, root)

	svc := NewService(eng, nil, nil, g)
	trace, err := svc.GetTrace(context.Background(), 1, root)
	require.NoError(t, err)
	require.Len(t, trace, 2)
	require.Equal(t, root, trace[0].EdgeID)
	require.Equal(t, child, trace[1].EdgeID)
}

func TestSemanticSearchHydratesFromEngine(t *testing.T) {
	id := uuid.New()
	eng := &fakeEngine{
		edges:    []edge.Edge{{EdgeID: id, TenantID: 1, TimestampUs: 1}},
		payloads: map[uuid.UUID][]byte{},
	}
	idx := vector.New(vector.DefaultConfig())
	idx.Insert(id, 1, []float32{1, 0, 0})

	svc := NewService(eng, idx, nil, nil)
	results, err := svc.SemanticSearch(context.Background(), 1, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id, results[0].Edge.EdgeID)
}
