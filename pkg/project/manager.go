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

// Package project manages the LRU cache of opened per-project storage
// engines, enforcing tenant isolation on every cross-project lookup.
package project

import (
	"container/list"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/storage"
)

// Opener opens (or creates) the storage engine for one project. Split
// out so tests can substitute a cheap in-memory stand-in.
type Opener func(dataDir string, projectID uint16) (*storage.Engine, error)

// Manager is the LRU cache of opened per-project engines. get_or_open is
// a cached-compute with single-flight semantics: concurrent callers for
// the same project_id share one open call.
type Manager struct {
	mu       sync.Mutex
	cap      int
	dataDir  string
	opener   Opener
	log      *zap.Logger

	items map[uint16]*list.Element // projectID -> LRU element
	order *list.List               // front = most recently used

	group singleflight.Group
}

type cacheEntry struct {
	projectID uint16
	engine    *storage.Engine
}

func New(dataDir string, cap int, opener Opener, reg prometheus.Registerer, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cap:     cap,
		dataDir: dataDir,
		opener:  opener,
		log:     log,
		items:   make(map[uint16]*list.Element),
		order:   list.New(),
	}
}

// projectDir returns the on-disk root for one project: {data_dir}/project_{id}.
func (m *Manager) projectDir(projectID uint16) string {
	return filepath.Join(m.dataDir, fmt.Sprintf("project_%d", projectID))
}

// GetOrOpen returns the engine for projectID, opening it if necessary.
// Concurrent callers for the same projectID share one open via
// single-flight; the LRU eviction (if triggered) flushes and closes the
// evicted engine before returning.
func (m *Manager) GetOrOpen(projectID uint16) (*storage.Engine, error) {
	m.mu.Lock()
	if el, ok := m.items[projectID]; ok {
		m.order.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		m.mu.Unlock()
		return entry.engine, nil
	}
	m.mu.Unlock()

	key := fmt.Sprint(projectID)
	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		m.mu.Lock()
		if el, ok := m.items[projectID]; ok {
			entry := el.Value.(*cacheEntry)
			m.mu.Unlock()
			return entry.engine, nil
		}
		m.mu.Unlock()

		eng, err := m.opener(m.projectDir(projectID), projectID)
		if err != nil {
			return nil, fmt.Errorf("project: open engine for project %d: %w", projectID, err)
		}

		m.mu.Lock()
		el := m.order.PushFront(&cacheEntry{projectID: projectID, engine: eng})
		m.items[projectID] = el
		var toEvict *cacheEntry
		if m.order.Len() > m.cap {
			back := m.order.Back()
			toEvict = back.Value.(*cacheEntry)
			m.order.Remove(back)
			delete(m.items, toEvict.projectID)
		}
		m.mu.Unlock()

		if toEvict != nil {
			if closeErr := toEvict.engine.Close(); closeErr != nil {
				m.log.Warn("evicted engine close failed", zap.Uint16("project_id", toEvict.projectID), zap.Error(closeErr))
			}
		}
		return eng, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Engine), nil
}

// GetOrOpenAndPut opens (or reuses) projectID's engine and persists ed
// through it in one call, for ingest paths (HTTP, OTLP) that only
// need write access and don't otherwise touch the engine handle.
func (m *Manager) GetOrOpenAndPut(projectID uint16, ed edge.Edge, payload []byte) error {
	eng, err := m.GetOrOpen(projectID)
	if err != nil {
		return err
	}
	return eng.Put(ed, payload)
}

// GetByEdgeID scans all open projects for id (used when the caller does
// not know which project an edge_id belongs to), still enforcing
// tenant_id == ctx tenant before returning anything.
func (m *Manager) GetByEdgeID(tenantID uint64, id uuid.UUID) (*edge.Edge, []byte, error) {
	m.mu.Lock()
	engines := make([]*storage.Engine, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		engines = append(engines, el.Value.(*cacheEntry).engine)
	}
	m.mu.Unlock()

	for _, eng := range engines {
		ed, payload, err := eng.Get(tenantID, id)
		if err == nil {
			return ed, payload, nil
		}
	}
	return nil, nil, storage.ErrNotFound
}

// Len reports the number of currently open projects.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// CloseAll flushes and closes every open project engine, for graceful
// shutdown.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	engines := make([]*storage.Engine, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		engines = append(engines, el.Value.(*cacheEntry).engine)
	}
	m.items = make(map[uint16]*list.Element)
	m.order.Init()
	m.mu.Unlock()

	var firstErr error
	for _, eng := range engines {
		if err := eng.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
