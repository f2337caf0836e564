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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/weaveloop/weaved/pkg/edge"
)

var (
	ErrNotFound      = errors.New("storage: edge not found")
	ErrTenantMismatch = errors.New("storage: tenant mismatch")
	ErrClosed        = errors.New("storage: engine closed")
)

// Config bounds memtable flush behavior, independent of the group
// commit / compaction sub-configs defined alongside them.
type Config struct {
	GroupCommit      GroupCommitConfig
	Compaction       CompactionConfig
	FlushBytes       int64
	FlushInterval    time.Duration
	CompactionPoll   time.Duration
}

func DefaultConfig() Config {
	return Config{
		GroupCommit:    DefaultGroupCommitConfig(),
		Compaction:     DefaultCompactionConfig(),
		FlushBytes:     4 << 20,
		FlushInterval:  5 * time.Second,
		CompactionPoll: 500 * time.Millisecond,
	}
}

// Engine is a single project's WAL/LSM storage instance. The project
// manager (C9) owns the LRU cache of Engines across projects; an Engine
// itself knows nothing about any other project.
type Engine struct {
	projectID uint16
	dir       string
	log       *zap.Logger
	cfg       Config

	mu            sync.RWMutex
	active        *memtable
	flushing      *memtable // non-nil while a flush is in flight
	manifest      *manifest
	w             *wal
	walSegment    int
	compactionCfg CompactionConfig
	metrics       *engineMetrics

	closed   bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Open opens (creating if absent) the storage engine for one project
// rooted at dir, replaying its WAL to rebuild the memtable.
func Open(dir string, projectID uint16, cfg Config, reg prometheus.Registerer, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir project dir: %w", err)
	}

	mf, err := loadManifest(filepath.Join(dir, "data"))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		projectID:     projectID,
		dir:           dir,
		log:           log,
		cfg:           cfg,
		active:        newMemtable(),
		manifest:      mf,
		compactionCfg: cfg.Compaction,
		metrics:       newEngineMetrics(reg, fmt.Sprint(projectID)),
		stopCh:        make(chan struct{}),
	}

	if err := e.recoverWAL(); err != nil {
		return nil, fmt.Errorf("storage: wal recovery: %w", err)
	}

	w, err := openWAL(filepath.Join(dir, "wal"), e.walSegment, cfg.GroupCommit, log)
	if err != nil {
		return nil, err
	}
	e.w = w

	e.wg.Add(1)
	go e.backgroundLoop()

	return e, nil
}

func (e *Engine) walDir() string  { return filepath.Join(e.dir, "wal") }
func (e *Engine) dataDir(level int) string {
	return filepath.Join(e.dir, "data", fmt.Sprintf("L%d", level))
}

// recoverWAL replays every existing WAL segment in order into the
// active memtable before the engine accepts new writes.
func (e *Engine) recoverWAL() error {
	entries, err := os.ReadDir(e.walDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	maxSeg := -1
	for _, fi := range entries {
		var seg int
		if _, err := fmt.Sscanf(fi.Name(), "segment-%08d.log", &seg); err != nil {
			continue
		}
		if seg > maxSeg {
			maxSeg = seg
		}
		path := filepath.Join(e.walDir(), fi.Name())
		if err := replayWAL(path, func(r *record) error {
			e.active.put(r)
			return nil
		}); err != nil {
			return err
		}
	}
	if maxSeg >= 0 {
		e.walSegment = maxSeg
	}
	return nil
}

// Put durably appends edge (with optional payload) and makes it visible
// to reads once this call returns. Durability is per the engine's
// GroupCommit config.
func (e *Engine) Put(ed edge.Edge, payload []byte) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	e.mu.RUnlock()

	ed.HasPayload = len(payload) > 0
	r := &record{Edge: ed, Payload: payload}
	enc := frame(frameTypeEdge, encodeRecord(r))
	if err := e.w.append(enc); err != nil {
		return fmt.Errorf("storage: wal append: %w", err)
	}

	e.mu.Lock()
	e.active.put(r)
	needsFlush := e.active.size() >= e.cfg.FlushBytes
	e.mu.Unlock()

	if needsFlush {
		if err := e.flush(); err != nil {
			e.log.Warn("background flush failed on write path", zap.Error(err))
		}
	}
	return nil
}

// SoftDelete marks id deleted in the active memtable; an id that is no
// longer there returns ErrNotFound. The record is never hard-removed:
// compaction carries it forward with its deleted flag set.
func (e *Engine) SoftDelete(id uuid.UUID) error {
	e.mu.Lock()
	ok := e.active.softDelete(id)
	e.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Get looks up one edge by ID, checking the memtable then each level
// newest-first so the first hit wins.
func (e *Engine) Get(tenantID uint64, id uuid.UUID) (*edge.Edge, []byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if r, ok := e.active.getByEdgeID(id); ok {
		return e.checkTenant(r, tenantID)
	}
	if e.flushing != nil {
		if r, ok := e.flushing.getByEdgeID(id); ok {
			return e.checkTenant(r, tenantID)
		}
	}
	for lvl := 0; lvl < numLevels; lvl++ {
		entries := e.manifest.levelEntries(lvl)
		for i := len(entries) - 1; i >= 0; i-- {
			en := entries[i]
			st, err := openSSTable(filepath.Join(e.dataDir(en.Level), en.Name), en.Level, en.Seq)
			if err != nil {
				continue
			}
			if r, ok := st.get(id); ok {
				return e.checkTenant(r, tenantID)
			}
		}
	}
	return nil, nil, ErrNotFound
}

func (e *Engine) checkTenant(r *record, tenantID uint64) (*edge.Edge, []byte, error) {
	if r.Edge.TenantID != tenantID {
		return nil, nil, ErrTenantMismatch
	}
	ed := r.Edge
	return &ed, r.Payload, nil
}

// ScanRange returns every non-deleted edge for tenantID with
// TimestampUs in [startUs, endUs), newest overshadowing older
// duplicates, sorted by key.
func (e *Engine) ScanRange(tenantID uint64, startUs, endUs int64) ([]edge.Edge, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byID := make(map[uuid.UUID]*record)
	add := func(rs []*record) {
		for _, r := range rs {
			byID[r.Edge.EdgeID] = r
		}
	}

	for lvl := numLevels - 1; lvl >= 0; lvl-- {
		for _, en := range e.manifest.levelEntries(lvl) {
			st, err := openSSTable(filepath.Join(e.dataDir(en.Level), en.Name), en.Level, en.Seq)
			if err != nil {
				continue
			}
			add(st.scanRange(tenantID, startUs, endUs))
		}
	}
	if e.flushing != nil {
		add(e.flushing.scanRange(tenantID, startUs, endUs))
	}
	add(e.active.scanRange(tenantID, startUs, endUs))

	out := make([]edge.Edge, 0, len(byID))
	for _, r := range byID {
		if r.Edge.IsDeleted {
			continue
		}
		out = append(out, r.Edge)
	}
	sort.Slice(out, func(i, j int) bool {
		ki := recordKey{TimestampUs: out[i].TimestampUs, EdgeID: out[i].EdgeID}
		kj := recordKey{TimestampUs: out[j].TimestampUs, EdgeID: out[j].EdgeID}
		return ki.less(kj)
	})
	return out, nil
}

// flush swaps the active memtable out, writes it to L0, and publishes
// the updated manifest. The write lock is held only for the pointer
// swap, never across the file write.
func (e *Engine) flush() error {
	e.mu.Lock()
	if e.active.count() == 0 {
		e.mu.Unlock()
		return nil
	}
	toFlush := e.active
	e.flushing = toFlush
	e.active = newMemtable()
	e.mu.Unlock()

	records := toFlush.snapshot()
	seq := e.manifest.nextSeq()
	name := fmt.Sprintf("L0-%08d.sst", seq)
	dir := e.dataDir(0)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir L0: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := writeSSTable(path, records); err != nil {
		return fmt.Errorf("storage: flush write: %w", err)
	}

	if fi, err := os.Stat(path); err == nil {
		e.metrics.bytesFlushed.Add(float64(fi.Size()))
		e.metrics.bytesWrittenByLevel.WithLabelValues("0").Add(float64(fi.Size()))
	}

	newEntries := append(append([]manifestEntry(nil), e.manifest.entries...), manifestEntry{Level: 0, Seq: seq, Name: name})
	if err := e.manifest.publish(newEntries); err != nil {
		return fmt.Errorf("storage: publish post-flush manifest: %w", err)
	}

	e.mu.Lock()
	e.flushing = nil
	e.mu.Unlock()

	e.rotateWAL()
	return nil
}

// rotateWAL opens a fresh WAL segment once a flush has made the prior
// segment's contents redundant (everything in it is now in an
// sstable), so recovery after this point never replays stale data.
func (e *Engine) rotateWAL() {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.w
	e.walSegment++
	w, err := openWAL(e.walDir(), e.walSegment, e.cfg.GroupCommit, e.log)
	if err != nil {
		e.log.Warn("wal rotation failed, continuing on old segment", zap.Error(err))
		e.walSegment--
		return
	}
	e.w = w
	if old != nil {
		_ = old.close()
		_ = os.Remove(filepath.Join(e.walDir(), fmt.Sprintf("segment-%08d.log", e.walSegment-1)))
	}
}

func (e *Engine) backgroundLoop() {
	defer e.wg.Done()
	flushTicker := time.NewTicker(e.cfg.FlushInterval)
	compactTicker := time.NewTicker(e.cfg.CompactionPoll)
	defer flushTicker.Stop()
	defer compactTicker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-flushTicker.C:
			e.mu.RLock()
			needsFlush := e.active.count() > 0
			e.mu.RUnlock()
			if needsFlush {
				if err := e.flush(); err != nil {
					e.log.Warn("periodic flush failed", zap.Error(err))
				}
			}
		case <-compactTicker.C:
			if _, err := e.maybeCompact(); err != nil {
				e.log.Warn("compaction pass failed", zap.Error(err))
			}
		}
	}
}

// Close flushes any pending memtable contents and stops background
// work. Safe to call once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()

	if err := e.flush(); err != nil {
		return fmt.Errorf("storage: final flush on close: %w", err)
	}
	return e.w.close()
}
