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

// Package vector implements an HNSW-style approximate nearest neighbor
// index over cosine similarity, with mandatory tenant post-filtering so
// an over-fetch can never leak a cross-tenant candidate to a caller.
package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// Config controls graph shape. M is the max neighbors per node per
// layer; EfConstruction is the candidate list size used while building
// links; EfSearch is the candidate list size used while querying.
type Config struct {
	M              int
	EfConstruction int
	EfSearch       int
	LevelMult      float64
}

func DefaultConfig() Config {
	return Config{M: 16, EfConstruction: 200, EfSearch: 64, LevelMult: 1.0 / math.Log(16)}
}

type node struct {
	id        uuid.UUID
	tenantID  uint64
	vec       []float32
	neighbors [][]uuid.UUID // per layer
}

// Index is a single HNSW graph. Callers scope one Index per embedding
// space; tenant isolation is enforced at query time via post-filter,
// never by partitioning the graph itself (partitioning would forbid
// cross-tenant candidates from ever being considered for over-fetch,
// which the spec requires as the mechanism that makes the post-filter
// meaningfully testable).
type Index struct {
	cfg Config
	rnd *rand.Rand

	mu        sync.RWMutex
	nodes     map[uuid.UUID]*node
	entryID   uuid.UUID
	topLevel  int
}

func New(cfg Config) *Index {
	return &Index{
		cfg:   cfg,
		rnd:   rand.New(rand.NewSource(1)),
		nodes: make(map[uuid.UUID]*node),
	}
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func (x *Index) randomLevel() int {
	lvl := 0
	for x.rnd.Float64() < 0.5 && lvl < 32 {
		lvl++
	}
	return lvl
}

// Insert adds vec under tenantID, keyed by id. The ingest paths do not
// call it; the index holds only what callers insert.
func (x *Index) Insert(id uuid.UUID, tenantID uint64, vec []float32) {
	x.mu.Lock()
	defer x.mu.Unlock()

	level := x.randomLevel()
	n := &node{id: id, tenantID: tenantID, vec: vec, neighbors: make([][]uuid.UUID, level+1)}
	x.nodes[id] = n

	if len(x.nodes) == 1 {
		x.entryID = id
		x.topLevel = level
		return
	}

	entry := x.entryID
	for lvl := x.topLevel; lvl > level; lvl-- {
		entry = x.greedyClosest(entry, vec, lvl)
	}
	for lvl := min(level, x.topLevel); lvl >= 0; lvl-- {
		candidates := x.searchLayer(vec, entry, x.cfg.EfConstruction, lvl)
		neighbors := selectNeighbors(candidates, x.cfg.M)
		n.neighbors[lvl] = neighbors
		for _, nb := range neighbors {
			nbNode := x.nodes[nb]
			if lvl < len(nbNode.neighbors) {
				nbNode.neighbors[lvl] = append(nbNode.neighbors[lvl], id)
				if len(nbNode.neighbors[lvl]) > x.cfg.M*2 {
					nbNode.neighbors[lvl] = selectNeighbors(x.rescored(nbNode, lvl), x.cfg.M)
				}
			}
		}
		if len(candidates) > 0 {
			entry = candidates[0].id
		}
	}
	if level > x.topLevel {
		x.topLevel = level
		x.entryID = id
	}
}

func (x *Index) rescored(n *node, lvl int) []scored {
	out := make([]scored, 0, len(n.neighbors[lvl]))
	for _, nb := range n.neighbors[lvl] {
		out = append(out, scored{id: nb, sim: cosine(n.vec, x.nodes[nb].vec)})
	}
	return out
}

type scored struct {
	id  uuid.UUID
	sim float32
}

func (x *Index) greedyClosest(from uuid.UUID, query []float32, lvl int) uuid.UUID {
	best := from
	bestSim := cosine(x.nodes[from].vec, query)
	improved := true
	for improved {
		improved = false
		n := x.nodes[best]
		if lvl >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[lvl] {
			sim := cosine(x.nodes[nb].vec, query)
			if sim > bestSim {
				bestSim = sim
				best = nb
				improved = true
			}
		}
	}
	return best
}

// searchLayer runs a bounded best-first search at one layer, returning
// up to ef candidates sorted by descending similarity.
func (x *Index) searchLayer(query []float32, entry uuid.UUID, ef int, lvl int) []scored {
	visited := map[uuid.UUID]bool{entry: true}
	candidates := &maxHeap{{id: entry, sim: cosine(x.nodes[entry].vec, query)}}
	heap.Init(candidates)
	results := &minHeap{(*candidates)[0]}

	for candidates.Len() > 0 {
		cur := heap.Pop(candidates).(scored)
		if results.Len() >= ef && cur.sim < (*results)[0].sim {
			break
		}
		n := x.nodes[cur.id]
		if lvl >= len(n.neighbors) {
			continue
		}
		for _, nbID := range n.neighbors[lvl] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			sim := cosine(x.nodes[nbID].vec, query)
			heap.Push(candidates, scored{id: nbID, sim: sim})
			heap.Push(results, scored{id: nbID, sim: sim})
			if results.Len() > ef {
				heap.Pop(results)
			}
		}
	}

	out := make([]scored, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(scored)
	}
	return out
}

func selectNeighbors(candidates []scored, m int) []uuid.UUID {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// Result is one ranked candidate returned from Search, already
// tenant-filtered.
type Result struct {
	ID        uuid.UUID
	Similarity float32
}

// Search returns up to limit results for tenantID. overFetch multiplies
// limit for the internal candidate fetch before the mandatory tenant
// post-filter is applied — cross-tenant candidates must be fetched
// internally (to exercise the post-filter honestly) but must never
// appear in the returned slice.
func (x *Index) Search(query []float32, tenantID uint64, limit int, overFetch int) []Result {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.nodes) == 0 {
		return nil
	}
	if overFetch < 1 {
		overFetch = 1
	}
	fetchN := limit * overFetch

	entry := x.entryID
	for lvl := x.topLevel; lvl > 0; lvl-- {
		entry = x.greedyClosest(entry, query, lvl)
	}
	candidates := x.searchLayer(query, entry, max(fetchN, x.cfg.EfSearch), 0)

	out := make([]Result, 0, limit)
	for _, c := range candidates {
		if x.nodes[c.id].tenantID != tenantID {
			continue // mandatory post-filter: cross-tenant leakage is a correctness bug
		}
		out = append(out, Result{ID: c.id, Similarity: c.sim})
		if len(out) >= limit {
			break
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type maxHeap []scored

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].sim > h[j].sim }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

type minHeap []scored

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].sim < h[j].sim }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
