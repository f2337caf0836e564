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

// Package concept maintains the normalized concept -> observation
// inverted index, with co-occurrence and frequency tracking.
package concept

import (
	"sort"
	"strings"
	"sync"
)

// Normalize splits camelCase on lowercase->uppercase transitions,
// replaces underscores with hyphens, lowercases, strips non-alphanumeric
// characters except hyphens, and trims leading/trailing hyphens.
// normalize(normalize(s)) == normalize(s) for every string s.
func Normalize(s string) string {
	var withSplits strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && isUpper(r) && isLower(runes[i-1]) {
			withSplits.WriteByte('-')
		}
		withSplits.WriteRune(r)
	}

	lowered := strings.ToLower(withSplits.String())
	lowered = strings.ReplaceAll(lowered, "_", "-")

	var cleaned strings.Builder
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			cleaned.WriteRune(r)
		}
	}
	return strings.Trim(cleaned.String(), "-")
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isLower(r rune) bool { return r >= 'a' && r <= 'z' }

// Entry is one (concept, observation) association.
type Entry struct {
	ProjectID     string
	Concept       string
	ObservationID string
	Confidence    float64
}

// Index holds the inverted concept->observation map, the reverse
// observation->concepts map, and per-concept frequency counters.
type Index struct {
	mu            sync.RWMutex
	byConcept     map[string][]Entry // key: project/concept
	byObservation map[string][]string // key: observation id -> concepts
	frequency     map[string]int64    // key: project/concept
}

func NewIndex() *Index {
	return &Index{
		byConcept:     make(map[string][]Entry),
		byObservation: make(map[string][]string),
		frequency:     make(map[string]int64),
	}
}

func conceptKey(project, concept string) string { return project + "/" + concept }

// Add records that observationID mentions concept (already normalized
// by the caller, or not — Add normalizes defensively) with confidence.
func (idx *Index) Add(project, observationID, concept string, confidence float64) {
	concept = Normalize(concept)
	if concept == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := conceptKey(project, concept)
	idx.byConcept[key] = append(idx.byConcept[key], Entry{
		ProjectID: project, Concept: concept, ObservationID: observationID, Confidence: confidence,
	})
	idx.byObservation[observationID] = append(idx.byObservation[observationID], concept)
	idx.frequency[key]++
}

// FindObservations returns the union of observation IDs mentioning any
// of concepts with confidence >= minConfidence, deduped, truncated to
// limit.
func (idx *Index) FindObservations(project string, concepts []string, minConfidence float64, limit int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, c := range concepts {
		key := conceptKey(project, Normalize(c))
		for _, e := range idx.byConcept[key] {
			if e.Confidence < minConfidence || seen[e.ObservationID] {
				continue
			}
			seen[e.ObservationID] = true
			out = append(out, e.ObservationID)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// FindRelated ranks concepts co-occurring with concept (on the same
// observation) by co-occurrence count, truncated to limit.
func (idx *Index) FindRelated(project, conceptName string, limit int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	target := conceptKey(project, Normalize(conceptName))
	counts := make(map[string]int)
	for _, e := range idx.byConcept[target] {
		for _, c := range idx.byObservation[e.ObservationID] {
			if c == Normalize(conceptName) {
				continue
			}
			counts[c]++
		}
	}

	type kv struct {
		concept string
		count   int
	}
	ranked := make([]kv, 0, len(counts))
	for c, n := range counts {
		ranked = append(ranked, kv{c, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].concept < ranked[j].concept
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, kv := range ranked {
		out[i] = kv.concept
	}
	return out
}

// TopConcepts returns the limit highest-frequency concepts for project,
// via prefix scan over the project's keys.
func (idx *Index) TopConcepts(project string, limit int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	prefix := project + "/"
	type kv struct {
		concept string
		freq    int64
	}
	var ranked []kv
	for key, freq := range idx.frequency {
		if strings.HasPrefix(key, prefix) {
			ranked = append(ranked, kv{strings.TrimPrefix(key, prefix), freq})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].freq != ranked[j].freq {
			return ranked[i].freq > ranked[j].freq
		}
		return ranked[i].concept < ranked[j].concept
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, kv := range ranked {
		out[i] = kv.concept
	}
	return out
}
