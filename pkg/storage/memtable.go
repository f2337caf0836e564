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

package storage

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memtable is the in-memory mutable buffer in front of the WAL-backed
// LSM. Keyed by (timestamp_us, edge_id) with a secondary index by
// tenant for isolation-aware scans. Never mutated in place except for
// the soft-delete flag.
type memtable struct {
	mu       sync.RWMutex
	byKey    map[recordKey]*record
	byTenant map[uint64]map[recordKey]struct{}
	byEdgeID map[uuid.UUID]recordKey
	bytes    int64
}

func newMemtable() *memtable {
	return &memtable{
		byKey:    make(map[recordKey]*record),
		byTenant: make(map[uint64]map[recordKey]struct{}),
		byEdgeID: make(map[uuid.UUID]recordKey),
	}
}

func (m *memtable) put(r *record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := r.key()
	m.byKey[k] = r
	m.byEdgeID[r.Edge.EdgeID] = k
	set, ok := m.byTenant[r.Edge.TenantID]
	if !ok {
		set = make(map[recordKey]struct{})
		m.byTenant[r.Edge.TenantID] = set
	}
	set[k] = struct{}{}
	m.bytes += int64(recordFixedLen + len(r.Payload))
}

func (m *memtable) softDelete(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byEdgeID[id]
	if !ok {
		return false
	}
	m.byKey[k].Edge.IsDeleted = true
	return true
}

func (m *memtable) getByEdgeID(id uuid.UUID) (*record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.byEdgeID[id]
	if !ok {
		return nil, false
	}
	r := m.byKey[k]
	return r, true
}

// scanRange returns every record with TimestampUs in [startUs, endUs),
// sorted by key, restricted to tenantID.
func (m *memtable) scanRange(tenantID uint64, startUs, endUs int64) []*record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.byTenant[tenantID]
	out := make([]*record, 0, len(set))
	for k := range set {
		if k.TimestampUs >= startUs && k.TimestampUs < endUs {
			out = append(out, m.byKey[k])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key().less(out[j].key()) })
	return out
}

// snapshot returns every record in key order, used to build an SSTable
// on flush.
func (m *memtable) snapshot() []*record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*record, 0, len(m.byKey))
	for _, r := range m.byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key().less(out[j].key()) })
	return out
}

func (m *memtable) size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bytes
}

func (m *memtable) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}
