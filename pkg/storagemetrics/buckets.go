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

// Package storagemetrics maintains pre-aggregated time-bucketed metrics
// (minute/hour/day) alongside the WAL/LSM engine, plus O(1) secondary
// indices by session and project.
package storagemetrics

import (
	"sync"
	"time"

	"github.com/weaveloop/weaved/pkg/edge"
)

type Granularity int

const (
	Minute Granularity = iota
	Hour
	Day
)

func (g Granularity) duration() time.Duration {
	switch g {
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Bucket is one pre-aggregated time window for one project.
type Bucket struct {
	BucketStartUs  int64
	ProjectID      uint16
	RequestCount   int64
	ErrorCount     int64
	TotalTokens    int64
	TotalDurationUs int64
	MinDurationUs  int64
	MaxDurationUs  int64
	TotalCostMicros int64
	uniqueSessions map[uint64]struct{}
	uniqueAgents   map[uint64]struct{}
}

func newBucket(start int64, projectID uint16) *Bucket {
	return &Bucket{
		BucketStartUs:  start,
		ProjectID:      projectID,
		MinDurationUs:  -1,
		uniqueSessions: make(map[uint64]struct{}),
		uniqueAgents:   make(map[uint64]struct{}),
	}
}

// UniqueSessions returns the distinct session count observed so far.
func (b *Bucket) UniqueSessions() int { return len(b.uniqueSessions) }

// UniqueAgents returns the distinct agent count observed so far.
func (b *Bucket) UniqueAgents() int { return len(b.uniqueAgents) }

func bucketStart(tsUs int64, g Granularity) int64 {
	d := g.duration().Microseconds()
	return (tsUs / d) * d
}

// Index holds all three granularities plus the session/project secondary
// indices, updated under one write lock per insert. Minute/hour/day
// invariant: summing minute buckets over an interval equals the hour
// bucket for the enclosing hour (enforced by construction, since all
// three are derived from the same insert).
type Index struct {
	mu sync.RWMutex

	buckets map[Granularity]map[bucketKey]*Bucket

	bySession map[uint64][]uuidKey
	byProject map[uint16][]uuidKey

	retention map[Granularity]time.Duration
}

type bucketKey struct {
	start     int64
	projectID uint16
}

type uuidKey = edge.Edge // stored by value; EdgeID identifies the entry

func NewIndex() *Index {
	return &Index{
		buckets: map[Granularity]map[bucketKey]*Bucket{
			Minute: {}, Hour: {}, Day: {},
		},
		bySession: make(map[uint64][]uuidKey),
		byProject: make(map[uint16][]uuidKey),
		retention: map[Granularity]time.Duration{
			Minute: 24 * time.Hour,
			Hour:   30 * 24 * time.Hour,
			Day:    0, // indefinite
		},
	}
}

// Insert updates minute/hour/day buckets and the secondary indices for
// one edge. Safe for concurrent use.
func (idx *Index) Insert(ed edge.Edge) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, g := range []Granularity{Minute, Hour, Day} {
		start := bucketStart(ed.TimestampUs, g)
		key := bucketKey{start: start, projectID: ed.ProjectID}
		b, ok := idx.buckets[g][key]
		if !ok {
			b = newBucket(start, ed.ProjectID)
			idx.buckets[g][key] = b
		}
		b.RequestCount++
		if ed.SpanType == edge.SpanError {
			b.ErrorCount++
		}
		b.TotalTokens += int64(ed.TokenCount)
		dur := int64(ed.DurationUs)
		b.TotalDurationUs += dur
		if b.MinDurationUs == -1 || dur < b.MinDurationUs {
			b.MinDurationUs = dur
		}
		if dur > b.MaxDurationUs {
			b.MaxDurationUs = dur
		}
		b.uniqueSessions[ed.SessionID] = struct{}{}
		b.uniqueAgents[ed.AgentID] = struct{}{}
	}

	idx.bySession[ed.SessionID] = append(idx.bySession[ed.SessionID], ed)
	idx.byProject[ed.ProjectID] = append(idx.byProject[ed.ProjectID], ed)
}

// Range returns buckets over [startUs, endUs) of the finest granularity
// (minute, then hour, then day) whose estimated row count is at most
// maxRows, falling back to day buckets when none fits.
func (idx *Index) Range(projectID uint16, startUs, endUs int64, maxRows int) ([]*Bucket, Granularity) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, g := range []Granularity{Minute, Hour, Day} {
		span := endUs - startUs
		estRows := span / g.duration().Microseconds()
		if estRows <= int64(maxRows) || g == Day {
			return idx.collect(g, projectID, startUs, endUs), g
		}
	}
	return idx.collect(Day, projectID, startUs, endUs), Day
}

func (idx *Index) collect(g Granularity, projectID uint16, startUs, endUs int64) []*Bucket {
	var out []*Bucket
	for key, b := range idx.buckets[g] {
		if key.projectID == projectID && key.start >= startUs && key.start < endUs {
			out = append(out, b)
		}
	}
	return out
}

// BySession returns every edge seen for sessionID, in insertion order.
func (idx *Index) BySession(sessionID uint64) []edge.Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]edge.Edge(nil), idx.bySession[sessionID]...)
}

// ByProject returns every edge seen for projectID, in insertion order.
func (idx *Index) ByProject(projectID uint16) []edge.Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]edge.Edge(nil), idx.byProject[projectID]...)
}

// Prune drops buckets older than each granularity's retention window,
// holding the write lock for one pass over the minute and hour buckets.
// Idempotent: calling it twice in a row the second time removes nothing.
func (idx *Index) Prune(nowUs int64) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for g, retention := range idx.retention {
		if retention == 0 {
			continue // day buckets retained indefinitely
		}
		cutoff := nowUs - retention.Microseconds()
		for key := range idx.buckets[g] {
			if key.start < cutoff {
				delete(idx.buckets[g], key)
				removed++
			}
		}
	}
	return removed
}
