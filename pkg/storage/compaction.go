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
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// CompactionConfig bounds when L0 merges into L1 and the per-level size
// ratio that triggers Li -> Li+1 merges.
type CompactionConfig struct {
	L0FileCountTrigger int
	LevelSizeRatio     int
}

func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{L0FileCountTrigger: 4, LevelSizeRatio: 10}
}

// maybeCompact runs at most one compaction pass: L0->L1 if L0 exceeds
// its file count trigger, else the first Li->Li+1 whose file count
// exceeds LevelSizeRatio (a simplified stand-in for byte-size ratio,
// sufficient at this scale since sstables are roughly uniform size).
// It reports whether a pass actually ran.
func (e *Engine) maybeCompact() (bool, error) {
	l0 := e.manifest.levelEntries(0)
	if len(l0) > e.compactionCfg.L0FileCountTrigger {
		return true, e.compactLevel(0)
	}
	for lvl := 1; lvl < numLevels-1; lvl++ {
		cur := e.manifest.levelEntries(lvl)
		if len(cur) > e.compactionCfg.LevelSizeRatio {
			return true, e.compactLevel(lvl)
		}
	}
	return false, nil
}

// Compact drains every compaction pass the current manifest state
// still owes, back to back, instead of waiting for the background
// poll loop's ticker — for manual/CLI-triggered maintenance. It stops
// once a pass reports no remaining work or numLevels passes have run,
// whichever comes first.
func (e *Engine) Compact() error {
	for i := 0; i < numLevels; i++ {
		ran, err := e.maybeCompact()
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
	}
	return nil
}

// compactLevel merges every file in level plus every file in level+1
// into one new sstable at level+1, dedupes by edge_id (the
// entry from the higher sequence number wins — it was written later),
// and atomically publishes the updated manifest with the merged files
// removed and the new file added.
func (e *Engine) compactLevel(level int) error {
	src := e.manifest.levelEntries(level)
	dst := e.manifest.levelEntries(level + 1)
	if len(src) == 0 {
		return nil
	}

	type seqRecord struct {
		seq int
		r   *record
	}
	latest := make(map[uuid.UUID]seqRecord)

	consume := func(entries []manifestEntry) error {
		for _, en := range entries {
			st, err := openSSTable(filepath.Join(e.dataDir(en.Level), en.Name), en.Level, en.Seq)
			if err != nil {
				return err
			}
			for _, r := range st.records {
				if cur, ok := latest[r.Edge.EdgeID]; !ok || en.Seq > cur.seq {
					latest[r.Edge.EdgeID] = seqRecord{seq: en.Seq, r: r}
				}
			}
		}
		return nil
	}
	if err := consume(src); err != nil {
		return fmt.Errorf("storage: compaction read level %d: %w", level, err)
	}
	if err := consume(dst); err != nil {
		return fmt.Errorf("storage: compaction read level %d: %w", level+1, err)
	}

	merged := make([]*record, 0, len(latest))
	for _, sr := range latest {
		merged = append(merged, sr.r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].key().less(merged[j].key()) })

	newSeq := e.manifest.nextSeq()
	newName := fmt.Sprintf("L%d-%08d.sst", level+1, newSeq)
	newDir := e.dataDir(level + 1)
	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir level dir: %w", err)
	}
	newPath := filepath.Join(newDir, newName)
	if err := writeSSTable(newPath, merged); err != nil {
		return fmt.Errorf("storage: compaction write: %w", err)
	}

	var bytesWritten int64
	if fi, err := os.Stat(newPath); err == nil {
		bytesWritten = fi.Size()
	}
	e.metrics.bytesWrittenByLevel.WithLabelValues(fmt.Sprint(level + 1)).Add(float64(bytesWritten))
	e.metrics.compactions.WithLabelValues(fmt.Sprint(level + 1)).Inc()

	newEntries := make([]manifestEntry, 0, len(e.manifest.entries))
	removed := make(map[string]bool)
	for _, en := range src {
		removed[filepath.Join(fmt.Sprint(en.Level), en.Name)] = true
	}
	for _, en := range dst {
		removed[filepath.Join(fmt.Sprint(en.Level), en.Name)] = true
	}
	for _, en := range e.manifest.entries {
		if removed[filepath.Join(fmt.Sprint(en.Level), en.Name)] {
			continue
		}
		newEntries = append(newEntries, en)
	}
	newEntries = append(newEntries, manifestEntry{Level: level + 1, Seq: newSeq, Name: newName})

	if err := e.manifest.publish(newEntries); err != nil {
		return fmt.Errorf("storage: publish post-compaction manifest: %w", err)
	}

	for _, en := range src {
		_ = os.Remove(filepath.Join(e.dataDir(en.Level), en.Name))
	}
	for _, en := range dst {
		_ = os.Remove(filepath.Join(e.dataDir(en.Level), en.Name))
	}
	return nil
}
