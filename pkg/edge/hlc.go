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

package edge

import "sync"

// HLC is a hybrid logical clock tuple that preserves per-session write
// order despite clock skew between producers. Encoded on the wire as a
// single int64: physical_us in the high 54 bits, logical in the low 10
// bits, so comparison is a plain integer compare.
type HLC struct {
	PhysicalUs int64
	Logical    uint16
}

const logicalBits = 10
const logicalMask = (1 << logicalBits) - 1

// Encode packs the HLC into a single monotonically comparable int64.
func (h HLC) Encode() int64 {
	return (h.PhysicalUs << logicalBits) | int64(h.Logical&logicalMask)
}

// DecodeHLC unpacks a value produced by Encode.
func DecodeHLC(v int64) HLC {
	return HLC{PhysicalUs: v >> logicalBits, Logical: uint16(v & logicalMask)}
}

// Clock generates strictly increasing HLC values per session, so that
// for any two writes A then B on the same session, Encode(B) > Encode(A)
// even when the wall clock does not advance between them.
type Clock struct {
	mu   sync.Mutex
	last map[uint64]int64 // session_id -> last encoded HLC
}

// NewClock returns a ready-to-use per-session HLC generator.
func NewClock() *Clock {
	return &Clock{last: make(map[uint64]int64)}
}

// Next returns the next HLC for sessionID given the current wall-clock
// microsecond reading nowUs. hlc = max(now_us, last_seen+1) shifted into
// an encoded tuple; logical resets to 0 whenever the wall clock advances
// past the last physical reading, and increments when it doesn't.
func (c *Clock) Next(sessionID uint64, nowUs int64) HLC {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.last[sessionID]
	if !ok {
		h := HLC{PhysicalUs: nowUs, Logical: 0}
		c.last[sessionID] = h.Encode()
		return h
	}

	prevHLC := DecodeHLC(prev)
	var next HLC
	if nowUs > prevHLC.PhysicalUs {
		next = HLC{PhysicalUs: nowUs, Logical: 0}
	} else {
		next = HLC{PhysicalUs: prevHLC.PhysicalUs, Logical: prevHLC.Logical + 1}
	}
	c.last[sessionID] = next.Encode()
	return next
}

// NextMicros is Next collapsed back into a single µs-denominated
// timestamp: the physical reading, nudged forward by the logical tick
// count on collision. Callers that store timestamp_us directly (the
// ingest write paths) use this instead of Encode, since the packed
// HLC trades timestamp magnitude for ordering precision in a way that
// would break time-range queries expressed in real microseconds.
func (c *Clock) NextMicros(sessionID uint64, nowUs int64) int64 {
	h := c.Next(sessionID, nowUs)
	return h.PhysicalUs + int64(h.Logical)
}
