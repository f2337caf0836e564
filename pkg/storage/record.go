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

// Package storage implements the per-project WAL/LSM storage engine
// (leveled L0..L6), durable via group-commit fsync and recoverable via
// CRC32-validated frame replay.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
	"github.com/weaveloop/weaved/pkg/edge"
)

// recordKey is the memtable/SSTable sort key: (timestamp_us, edge_id).
// Sorting by this key gives time-ordered scans and a stable tiebreak
// between edges recorded in the same microsecond.
type recordKey struct {
	TimestampUs int64
	EdgeID      uuid.UUID
}

func (k recordKey) less(o recordKey) bool {
	if k.TimestampUs != o.TimestampUs {
		return k.TimestampUs < o.TimestampUs
	}
	return bytes.Compare(k.EdgeID[:], o.EdgeID[:]) < 0
}

// record is one logical write: an edge header plus an optional payload.
// It is the unit framed into the WAL and the unit stored in SSTables.
type record struct {
	Edge    edge.Edge
	Payload []byte // nil if !Edge.HasPayload
}

func (k recordKey) marshal() []byte {
	b := make([]byte, 8+16)
	binary.BigEndian.PutUint64(b[:8], uint64(k.TimestampUs))
	copy(b[8:], k.EdgeID[:])
	return b
}

// encodeRecord serializes a record into a fixed header plus optional
// payload, independent of any WAL/SSTable framing.
func encodeRecord(r *record) []byte {
	var buf bytes.Buffer
	var flags uint8
	if r.Edge.HasPayload {
		flags |= 1
	}
	if r.Edge.IsDeleted {
		flags |= 2
	}

	write := func(v interface{}) { _ = binary.Write(&buf, binary.BigEndian, v) }

	buf.Write(r.Edge.EdgeID[:])
	write(r.Edge.TenantID)
	write(r.Edge.ProjectID)
	write(r.Edge.AgentID)
	write(r.Edge.SessionID)
	buf.Write(r.Edge.CausalParent[:])
	write(uint8(r.Edge.SpanType))
	write(r.Edge.TimestampUs)
	write(r.Edge.DurationUs)
	write(r.Edge.TokenCount)
	write(uint8(r.Edge.Environment))
	write(flags)
	write(uint32(len(r.Payload)))
	buf.Write(r.Payload)
	return buf.Bytes()
}

const recordFixedLen = 16 + 8 + 2 + 8 + 8 + 16 + 1 + 8 + 4 + 4 + 1 + 1 + 4

func decodeRecord(b []byte) (*record, error) {
	if len(b) < recordFixedLen {
		return nil, fmt.Errorf("storage: truncated record: %d bytes", len(b))
	}
	r := &record{}
	off := 0
	copy(r.Edge.EdgeID[:], b[off:off+16])
	off += 16
	r.Edge.TenantID = binary.BigEndian.Uint64(b[off:])
	off += 8
	r.Edge.ProjectID = binary.BigEndian.Uint16(b[off:])
	off += 2
	r.Edge.AgentID = binary.BigEndian.Uint64(b[off:])
	off += 8
	r.Edge.SessionID = binary.BigEndian.Uint64(b[off:])
	off += 8
	copy(r.Edge.CausalParent[:], b[off:off+16])
	off += 16
	r.Edge.SpanType = edge.SpanType(b[off])
	off++
	r.Edge.TimestampUs = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	r.Edge.DurationUs = binary.BigEndian.Uint32(b[off:])
	off += 4
	r.Edge.TokenCount = binary.BigEndian.Uint32(b[off:])
	off += 4
	r.Edge.Environment = edge.Environment(b[off])
	off++
	flags := b[off]
	off++
	r.Edge.HasPayload = flags&1 != 0
	r.Edge.IsDeleted = flags&2 != 0
	plen := binary.BigEndian.Uint32(b[off:])
	off += 4
	if len(b) < off+int(plen) {
		return nil, fmt.Errorf("storage: truncated payload: want %d have %d", plen, len(b)-off)
	}
	if plen > 0 {
		r.Payload = append([]byte(nil), b[off:off+int(plen)]...)
	}
	return r, nil
}

func (r *record) key() recordKey {
	return recordKey{TimestampUs: r.Edge.TimestampUs, EdgeID: r.Edge.EdgeID}
}

// frame wraps a payload with a type byte, length, and CRC32 so WAL and
// eval-log readers can validate each entry independently and stop
// cleanly at the first corrupt frame instead of misinterpreting bytes.
func frame(frameType byte, payload []byte) []byte {
	buf := make([]byte, 1+4+len(payload)+4)
	buf[0] = frameType
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	crc := crc32.ChecksumIEEE(buf[:5+len(payload)])
	binary.BigEndian.PutUint32(buf[5+len(payload):], crc)
	return buf
}

// readFrame reads one frame from b starting at offset off, returning the
// frame type, payload, and the offset just past the frame. ok is false
// on CRC mismatch or truncation, signaling the caller to stop (torn
// write at end of WAL, or corruption).
func readFrame(b []byte, off int) (frameType byte, payload []byte, next int, ok bool) {
	if off+5 > len(b) {
		return 0, nil, off, false
	}
	frameType = b[off]
	plen := binary.BigEndian.Uint32(b[off+1 : off+5])
	end := off + 5 + int(plen) + 4
	if end > len(b) || plen > 64<<20 {
		return 0, nil, off, false
	}
	payload = b[off+5 : off+5+int(plen)]
	wantCRC := binary.BigEndian.Uint32(b[off+5+int(plen):])
	gotCRC := crc32.ChecksumIEEE(b[off : off+5+int(plen)])
	if wantCRC != gotCRC {
		return 0, nil, off, false
	}
	return frameType, payload, end, true
}

const frameTypeEdge byte = 1
