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

package admission

import "github.com/prometheus/client_golang/prometheus"

type controllerMetrics struct {
	requests          prometheus.Counter
	throttled         prometheus.Counter
	circuitRejections prometheus.Counter
	circuitTrips      prometheus.Counter
	loadScore         prometheus.Gauge
}

func newControllerMetrics(reg prometheus.Registerer, label string) *controllerMetrics {
	m := &controllerMetrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaved_admission_requests_total", Help: "Admission requests evaluated.",
			ConstLabels: prometheus.Labels{"scope": label},
		}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaved_admission_throttled_total", Help: "Requests rejected by the token bucket (429).",
			ConstLabels: prometheus.Labels{"scope": label},
		}),
		circuitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaved_admission_circuit_rejections_total", Help: "Requests rejected with the circuit open (503).",
			ConstLabels: prometheus.Labels{"scope": label},
		}),
		circuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaved_admission_circuit_trips_total", Help: "Times the adaptive circuit breaker opened.",
			ConstLabels: prometheus.Labels{"scope": label},
		}),
		loadScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weaved_admission_load_score", Help: "Adaptive load score (100 == at target p99).",
			ConstLabels: prometheus.Labels{"scope": label},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.throttled, m.circuitRejections, m.circuitTrips, m.loadScore)
	}
	return m
}
