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

// Package registry persists agent_id -> display metadata with
// atomic write-rename durability and auto-registration of first-seen
// agents.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Metadata is the display record for one agent_id.
type Metadata struct {
	AgentID     uint64    `json:"agent_id"`
	DisplayName string    `json:"display_name"`
	Namespace   string    `json:"namespace,omitempty"`
	Name        string    `json:"name,omitempty"`
	Version     string    `json:"version,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Registry is an in-memory map guarded by a RWMutex, persisted to
// agents.json via atomic write-rename (.tmp -> rename, keeping a .bak
// of the prior file).
type Registry struct {
	mu      sync.RWMutex
	path    string
	agents  map[uint64]*Metadata
}

func Open(path string) (*Registry, error) {
	r := &Registry{path: path, agents: make(map[uint64]*Metadata)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	var list []*Metadata
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	for _, m := range list {
		r.agents[m.AgentID] = m
	}
	return r, nil
}

// displayName implements the `{namespace}.{name}.{version}` pattern,
// falling back to `Unknown Agent ({id})` when the parts are unset.
func displayName(agentID uint64, namespace, name, version string) string {
	if namespace == "" && name == "" && version == "" {
		return fmt.Sprintf("Unknown Agent (%d)", agentID)
	}
	return fmt.Sprintf("%s.%s.%s", namespace, name, version)
}

// Touch records agentID as seen, auto-registering it on first sight
// with a generated display name, and updating LastSeen otherwise.
func (r *Registry) Touch(agentID uint64, namespace, name, version string, now time.Time) *Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.agents[agentID]
	if !ok {
		m = &Metadata{
			AgentID:     agentID,
			DisplayName: displayName(agentID, namespace, name, version),
			Namespace:   namespace,
			Name:        name,
			Version:     version,
			FirstSeen:   now,
		}
		r.agents[agentID] = m
	}
	m.LastSeen = now
	return m
}

// Get returns the metadata for agentID, if registered.
func (r *Registry) Get(agentID uint64) (*Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.agents[agentID]
	return m, ok
}

// Save persists the registry via atomic write-rename: write to
// {path}.tmp, fsync, rename over path, keeping the previous contents at
// {path}.bak.
func (r *Registry) Save() error {
	r.mu.RLock()
	list := make([]*Metadata, 0, len(r.agents))
	for _, m := range r.agents {
		list = append(list, m)
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("registry: mkdir: %w", err)
	}
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("registry: create tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("registry: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("registry: fsync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("registry: close tmp: %w", err)
	}

	if _, err := os.Stat(r.path); err == nil {
		_ = os.Rename(r.path, r.path+".bak")
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("registry: rename tmp over path: %w", err)
	}
	return nil
}
