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
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// sstable is an immutable sorted table produced by a memtable flush or
// by compaction. Shared read-only by every holder once built; only the
// compactor ever replaces the set of live sstables, via the manifest.
type sstable struct {
	path    string
	level   int
	seq     int
	minKey  recordKey
	maxKey  recordKey
	records []*record // decompressed in full on open; fine at this scale
}

// writeSSTable serializes sorted records to path, zstd-compressed, with
// a trailing CRC32 so readers can detect a truncated write.
func writeSSTable(path string, records []*record) error {
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, uint32(len(records)))
	for _, r := range records {
		enc := encodeRecord(r)
		binary.Write(&body, binary.BigEndian, uint32(len(enc)))
		body.Write(enc)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("storage: zstd writer: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(body.Bytes(), nil)

	framed := frame(frameTypeEdge, compressed)
	if err := os.WriteFile(path, framed, 0o644); err != nil {
		return fmt.Errorf("storage: write sstable %s: %w", path, err)
	}
	return nil
}

func openSSTable(path string, level, seq int) (*sstable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read sstable %s: %w", path, err)
	}
	_, payload, _, ok := readFrame(raw, 0)
	if !ok {
		return nil, fmt.Errorf("storage: corrupt sstable %s: crc mismatch", path)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: zstd reader: %w", err)
	}
	defer dec.Close()
	body, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: decompress sstable %s: %w", path, err)
	}

	if len(body) < 4 {
		return nil, fmt.Errorf("storage: truncated sstable body %s", path)
	}
	count := binary.BigEndian.Uint32(body[:4])
	off := 4
	records := make([]*record, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(body) {
			return nil, fmt.Errorf("storage: truncated sstable entry %s", path)
		}
		elen := binary.BigEndian.Uint32(body[off:])
		off += 4
		if off+int(elen) > len(body) {
			return nil, fmt.Errorf("storage: truncated sstable entry %s", path)
		}
		r, err := decodeRecord(body[off : off+int(elen)])
		if err != nil {
			return nil, fmt.Errorf("storage: decode sstable entry %s: %w", path, err)
		}
		records = append(records, r)
		off += int(elen)
	}

	st := &sstable{path: path, level: level, seq: seq, records: records}
	if len(records) > 0 {
		st.minKey = records[0].key()
		st.maxKey = records[len(records)-1].key()
	}
	return st, nil
}

// get returns the record for id if present in this table.
func (s *sstable) get(id uuid.UUID) (*record, bool) {
	for _, r := range s.records {
		if r.Edge.EdgeID == id {
			return r, true
		}
	}
	return nil, false
}

func (s *sstable) scanRange(tenantID uint64, startUs, endUs int64) []*record {
	lo := sort.Search(len(s.records), func(i int) bool { return s.records[i].Edge.TimestampUs >= startUs })
	var out []*record
	for i := lo; i < len(s.records) && s.records[i].Edge.TimestampUs < endUs; i++ {
		if s.records[i].Edge.TenantID == tenantID {
			out = append(out, s.records[i])
		}
	}
	return out
}
