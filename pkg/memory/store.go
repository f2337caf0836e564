// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package memory is the append-only observation store and the
// token-budgeted context packer built on top of it.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObservationType is one of the twelve kinds the memory agent tags an
// observation with when it distills a batch of tool events.
type ObservationType uint8

const (
	ObsImplementation ObservationType = iota
	ObsDebugging
	ObsRefactoring
	ObsTesting
	ObsArchitecture
	ObsDesign
	ObsResearch
	ObsDocumentation
	ObsConfiguration
	ObsReview
	ObsLearning
	ObsPlanning
)

var observationTypeNames = [...]string{
	"implementation", "debugging", "refactoring", "testing",
	"architecture", "design", "research", "documentation",
	"configuration", "review", "learning", "planning",
}

func (t ObservationType) String() string {
	if int(t) < len(observationTypeNames) {
		return observationTypeNames[t]
	}
	return "implementation"
}

// ParseObservationType parses a type name case-insensitively, falling
// back to ObsImplementation for unrecognized input so a malformed tag
// never aborts ingestion of an otherwise-good observation.
func ParseObservationType(s string) ObservationType {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range observationTypeNames {
		if name == s {
			return ObservationType(i)
		}
	}
	return ObsImplementation
}

func (t ObservationType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ObservationType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseObservationType(s)
	return nil
}

// Observation is one durable, immutable note the memory agent recorded
// from a batch of tool events — a distilled fact, not the raw edge
// payload.
type Observation struct {
	ID            uuid.UUID       `json:"id"`
	ProjectID     uint16          `json:"project_id"`
	AgentID       uint64          `json:"agent_id,omitempty"`
	SessionID     uint64          `json:"session_id"`
	Type          ObservationType `json:"type"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle,omitempty"`
	Facts         []string        `json:"facts,omitempty"`
	Narrative     string          `json:"narrative,omitempty"`
	Concepts      []string        `json:"concepts,omitempty"`
	FilesRead     []string        `json:"files_read,omitempty"`
	FilesModified []string        `json:"files_modified,omitempty"`
	CreatedAtUs   int64           `json:"created_at_us"`
	Deleted       bool            `json:"deleted,omitempty"`

	// Concept, Text, and Confidence are kept for the context packer
	// (pkg/memory's other consumer, which ranks and renders a single
	// line per observation); Append fills Concept from Concepts and Text
	// from Narrative or Title when the caller leaves them unset, and
	// stores Confidence as given.
	Concept    string    `json:"concept,omitempty"`
	Text       string    `json:"text,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Key returns the composite primary key
// `obs/{project_id}/{session_id}/{timestamp}/{id}`, which also defines
// the store's primary sort order: a prefix scan over project/session
// yields observations in creation order.
func (o Observation) Key() string {
	return fmt.Sprintf("obs/%d/%d/%020d/%s", o.ProjectID, o.SessionID, o.CreatedAtUs, o.ID)
}

// Store is the append-only observation log: one JSON file per
// observation under dataDir/observations (per the on-disk layout),
// with in-memory sorted indices by primary key, project, and agent
// standing in for the teacher's BTreeMap-backed indices.
type Store struct {
	mu        sync.RWMutex
	dataDir   string
	byKey     map[string]*Observation
	keys      []string            // sorted ascending: the primary index
	byProject map[uint16][]string // sorted ascending, scoped to one project
	byAgent   map[uint64][]string // sorted ascending, scoped to one agent
}

// NewStore builds an in-memory-only store with no disk persistence,
// useful for tests and for callers that only need the indices.
func NewStore() *Store {
	return &Store{
		byKey:     make(map[string]*Observation),
		byProject: make(map[uint16][]string),
		byAgent:   make(map[uint64][]string),
	}
}

// OpenStore builds a store backed by dataDir/observations, replaying
// every observation file already on disk so a restart recovers the
// full index — the same on-open load pattern as the agent registry.
func OpenStore(dataDir string) (*Store, error) {
	s := NewStore()
	s.dataDir = dataDir

	dir := filepath.Join(dataDir, "observations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create observations dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("memory: read observations dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // a torn write from a crashed append; skip it
		}
		var o Observation
		if err := json.Unmarshal(data, &o); err != nil {
			continue
		}
		s.index(o)
	}
	return s, nil
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.dataDir, "observations", id.String()+".json")
}

// Append persists o (assigning an ID and CreatedAtUs if unset) and
// indexes it. Observations are never mutated or deleted in place;
// corrections are new observations with a later CreatedAtUs.
func (s *Store) Append(o Observation) (Observation, error) {
	if o.ID == (uuid.UUID{}) {
		o.ID = uuid.New()
	}
	if o.CreatedAtUs == 0 {
		o.CreatedAtUs = time.Now().UnixMicro()
	}
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.UnixMicro(o.CreatedAtUs)
	}
	if o.Concept == "" && len(o.Concepts) > 0 {
		o.Concept = o.Concepts[0]
	}
	if o.Text == "" {
		switch {
		case o.Narrative != "":
			o.Text = o.Narrative
		case o.Title != "":
			o.Text = o.Title
		}
	}

	if s.dataDir != "" {
		body, err := json.MarshalIndent(o, "", "  ")
		if err != nil {
			return Observation{}, fmt.Errorf("memory: marshal observation: %w", err)
		}
		if err := os.WriteFile(s.path(o.ID), body, 0o644); err != nil {
			return Observation{}, fmt.Errorf("memory: persist observation: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index(o)
	return o, nil
}

// index inserts o into the in-memory indices in sorted-key order; it
// does not touch disk (used both by Append and by OpenStore replay).
func (s *Store) index(o Observation) {
	obs := o
	key := obs.Key()
	s.byKey[key] = &obs
	s.keys = insertSorted(s.keys, key)
	s.byProject[obs.ProjectID] = insertSorted(s.byProject[obs.ProjectID], key)
	s.byAgent[obs.AgentID] = insertSorted(s.byAgent[obs.AgentID], key)
}

func insertSorted(keys []string, key string) []string {
	i := sort.SearchStrings(keys, key)
	keys = append(keys, "")
	copy(keys[i+1:], keys[i:])
	keys[i] = key
	return keys
}

// Filter describes an observation query: optional scoping by
// project/session/agent, optional type, an inclusive time range over
// CreatedAtUs, a case-insensitive substring match over title,
// subtitle, narrative, text, and facts, a result limit, and sort
// order.
type Filter struct {
	ProjectID      *uint16
	SessionID      *uint64
	AgentID        *uint64
	Type           *ObservationType
	SinceUs        int64
	UntilUs        int64 // 0 means unbounded
	Substring      string
	Limit          int
	Sort           string // "newest" (default) or "oldest"
	IncludeDeleted bool
}

// Find returns observations matching f, newest-first unless
// f.Sort == "oldest", truncated to f.Limit (0 means unbounded).
func (s *Store) Find(f Filter) []Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.keys
	switch {
	case f.ProjectID != nil:
		keys = s.byProject[*f.ProjectID]
	case f.AgentID != nil:
		keys = s.byAgent[*f.AgentID]
	}

	needle := strings.ToLower(f.Substring)
	var out []Observation
	for _, k := range keys {
		o := s.byKey[k]
		if o == nil || (o.Deleted && !f.IncludeDeleted) {
			continue
		}
		if f.SessionID != nil && o.SessionID != *f.SessionID {
			continue
		}
		if f.ProjectID != nil && o.ProjectID != *f.ProjectID {
			continue
		}
		if f.AgentID != nil && o.AgentID != *f.AgentID {
			continue
		}
		if f.Type != nil && o.Type != *f.Type {
			continue
		}
		if f.SinceUs != 0 && o.CreatedAtUs < f.SinceUs {
			continue
		}
		if f.UntilUs != 0 && o.CreatedAtUs > f.UntilUs {
			continue
		}
		if needle != "" && !containsSubstring(o, needle) {
			continue
		}
		out = append(out, *o)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAtUs < out[j].CreatedAtUs })
	if f.Sort != "oldest" {
		reverseObservations(out)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func containsSubstring(o *Observation, needle string) bool {
	if strings.Contains(strings.ToLower(o.Title), needle) ||
		strings.Contains(strings.ToLower(o.Subtitle), needle) ||
		strings.Contains(strings.ToLower(o.Narrative), needle) ||
		strings.Contains(strings.ToLower(o.Text), needle) {
		return true
	}
	for _, fact := range o.Facts {
		if strings.Contains(strings.ToLower(fact), needle) {
			return true
		}
	}
	return false
}

func reverseObservations(obs []Observation) {
	for i, j := 0, len(obs)-1; i < j; i, j = i+1, j-1 {
		obs[i], obs[j] = obs[j], obs[i]
	}
}

// BySession returns every observation recorded for sessionID, newest
// first.
func (s *Store) BySession(sessionID uint64) []Observation {
	return s.Find(Filter{SessionID: &sessionID})
}

// ByAgent returns every observation recorded for agentID, newest
// first.
func (s *Store) ByAgent(agentID uint64) []Observation {
	return s.Find(Filter{AgentID: &agentID})
}

// ByProject returns every observation recorded for projectID, newest
// first.
func (s *Store) ByProject(projectID uint16) []Observation {
	return s.Find(Filter{ProjectID: &projectID})
}

// Len returns the total number of observations recorded, including
// soft-deleted ones still awaiting compaction.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Delete soft-deletes id: it is marked Deleted and excluded from Find
// results, but its index entry and on-disk file are kept until the
// next Compact so a concurrent reader never observes a torn index.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.keys {
		o := s.byKey[k]
		if o.ID != id {
			continue
		}
		o.Deleted = true
		if s.dataDir != "" {
			body, err := json.MarshalIndent(o, "", "  ")
			if err != nil {
				return fmt.Errorf("memory: marshal tombstone: %w", err)
			}
			if err := os.WriteFile(s.path(id), body, 0o644); err != nil {
				return fmt.Errorf("memory: persist tombstone: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("memory: observation %s not found", id)
}

// Compact drops every soft-deleted observation from the in-memory
// indices and, when disk-backed, removes its file — rewriting the
// index the way the storage engine's compaction rewrites live
// records to a fresh segment.
func (s *Store) Compact() (removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keptKeys := make([]string, 0, len(s.keys))
	keptByProject := make(map[uint16][]string, len(s.byProject))
	keptByAgent := make(map[uint64][]string, len(s.byAgent))
	for _, k := range s.keys {
		o := s.byKey[k]
		if o.Deleted {
			removed++
			delete(s.byKey, k)
			if s.dataDir != "" {
				if rmErr := os.Remove(s.path(o.ID)); rmErr != nil && !os.IsNotExist(rmErr) {
					err = fmt.Errorf("memory: remove compacted observation: %w", rmErr)
				}
			}
			continue
		}
		keptKeys = append(keptKeys, k)
		keptByProject[o.ProjectID] = append(keptByProject[o.ProjectID], k)
		keptByAgent[o.AgentID] = append(keptByAgent[o.AgentID], k)
	}
	s.keys = keptKeys
	s.byProject = keptByProject
	s.byAgent = keptByAgent
	return removed, err
}

// SortByRecordedAt sorts observations ascending by RecordedAt; used
// by the context packer when merging multiple index results.
func SortByRecordedAt(obs []Observation) {
	sort.Slice(obs, func(i, j int) bool { return obs[i].RecordedAt.Before(obs[j].RecordedAt) })
}
