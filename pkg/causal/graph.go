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

// Package causal maintains the parent->child and child->parent edge
// adjacency used to reconstruct traces and walk ancestors/descendants.
// A hot map handles live inserts; no compacted (CSR) snapshot is built,
// so all adjacency stays in the in-memory maps.
package causal

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrCycleDetected signals a causal-graph invariant violation: the
// relation is contractually a DAG, so a cycle found during traversal
// must be surfaced, never silently resolved.
var ErrCycleDetected = errors.New("causal: cycle detected in graph traversal")

// Graph is the hot, mutable adjacency structure. Safe for concurrent
// use: one RWMutex guards both directions since they are always
// updated together.
type Graph struct {
	mu       sync.RWMutex
	children map[uuid.UUID][]uuid.UUID
	parents  map[uuid.UUID]uuid.UUID
	pending  map[uuid.UUID][]uuid.UUID // children deferred until their parent is known
}

func NewGraph() *Graph {
	return &Graph{
		children: make(map[uuid.UUID][]uuid.UUID),
		parents:  make(map[uuid.UUID]uuid.UUID),
		pending:  make(map[uuid.UUID][]uuid.UUID),
	}
}

// Link records that child's causal parent is parent. If parent has not
// been seen yet (out-of-order ingestion), the link is deferred: the
// edge is still queryable by ID elsewhere (the storage engine), but it
// is not linked into the graph until Reconcile is called after the
// parent arrives. This never attempts implicit cycle-breaking.
func (g *Graph) Link(child, parent uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if parent == uuid.Nil {
		// root: no parent link to record, but mark the root as seen so
		// its children link directly instead of being deferred
		if _, ok := g.children[child]; !ok {
			g.children[child] = nil
		}
		return
	}

	if _, seen := g.parents[parent]; !seen && !g.hasAnyEdge(parent) {
		g.pending[parent] = append(g.pending[parent], child)
		return
	}
	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = parent
}

// hasAnyEdge reports whether id has appeared as a child or a parent
// anywhere in the graph yet (caller holds the lock).
func (g *Graph) hasAnyEdge(id uuid.UUID) bool {
	if _, ok := g.children[id]; ok {
		return true
	}
	if _, ok := g.parents[id]; ok {
		return true
	}
	return false
}

// Reconcile links any pending children now that parent itself has been
// observed (e.g. flushed and re-scanned).
func (g *Graph) Reconcile(parent uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kids := g.pending[parent]
	if len(kids) == 0 {
		return
	}
	delete(g.pending, parent)
	g.children[parent] = append(g.children[parent], kids...)
	for _, k := range kids {
		g.parents[k] = parent
	}
}

// GetChildren returns the direct children of id, O(degree).
func (g *Graph) GetChildren(id uuid.UUID) []uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]uuid.UUID(nil), g.children[id]...)
}

// GetParent returns the direct parent of id, or uuid.Nil if id is a
// root or unknown.
func (g *Graph) GetParent(id uuid.UUID) uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parents[id]
}

// GetDescendants performs BFS from id, returning every reachable
// descendant. Terminates via a visited set; if traversal reaches a node
// it has already visited (a cycle, which the causal relation forbids by
// contract, but also a node reachable along two paths) or exceeds a
// step bound derived from the graph's size, it returns ErrCycleDetected
// instead of looping forever.
func (g *Graph) GetDescendants(id uuid.UUID) ([]uuid.UUID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[uuid.UUID]bool{id: true}
	queue := []uuid.UUID{id}
	var out []uuid.UUID
	steps := 0
	maxSteps := len(g.children)*2 + len(g.parents)*2 + 1

	for len(queue) > 0 {
		steps++
		if steps > maxSteps {
			return nil, ErrCycleDetected
		}
		cur := queue[0]
		queue = queue[1:]
		for _, child := range g.children[cur] {
			if visited[child] {
				return nil, ErrCycleDetected
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out, nil
}

// GetAncestors walks parent pointers from id to the root. Terminates
// via a visited set; a repeat visit indicates a cycle.
func (g *Graph) GetAncestors(id uuid.UUID) ([]uuid.UUID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[uuid.UUID]bool{id: true}
	var out []uuid.UUID
	cur := id
	for {
		parent, ok := g.parents[cur]
		if !ok || parent == uuid.Nil {
			return out, nil
		}
		if visited[parent] {
			return nil, ErrCycleDetected
		}
		visited[parent] = true
		out = append(out, parent)
		cur = parent
	}
}
