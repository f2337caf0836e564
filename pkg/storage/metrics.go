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
	"github.com/prometheus/client_golang/prometheus"
)

// engineMetrics exposes per-level and compaction-only write
// amplification counters so operators can detect runaway compaction.
type engineMetrics struct {
	bytesWrittenByLevel *prometheus.CounterVec
	bytesFlushed        prometheus.Counter
	compactions         *prometheus.CounterVec
}

func newEngineMetrics(reg prometheus.Registerer, projectLabel string) *engineMetrics {
	m := &engineMetrics{
		bytesWrittenByLevel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weaved_storage_bytes_written_total",
			Help: "Bytes written to sstables, by level. Ratio against bytesFlushed is write amplification.",
			ConstLabels: prometheus.Labels{"project": projectLabel},
		}, []string{"level"}),
		bytesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "weaved_storage_bytes_flushed_total",
			Help:        "Bytes flushed from memtable to L0, the write-amplification baseline.",
			ConstLabels: prometheus.Labels{"project": projectLabel},
		}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "weaved_storage_compactions_total",
			Help:        "Compaction passes performed, by target level.",
			ConstLabels: prometheus.Labels{"project": projectLabel},
		}, []string{"level"}),
	}
	if reg != nil {
		reg.MustRegister(m.bytesWrittenByLevel, m.bytesFlushed, m.compactions)
	}
	return m
}
