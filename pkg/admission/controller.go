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

// Package admission implements the ingest admission controller: a lazy
// token bucket guarded by atomics plus a short-held mutex for the
// refill timestamp, and an adaptive circuit breaker driven by observed
// p99 latency.
package admission

import (
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config mirrors spec.md's token bucket plus adaptive circuit breaker
// parameters.
type Config struct {
	MaxRate        float64 // tokens/sec steady-state refill rate
	BurstSize      float64 // bucket capacity
	TargetP99Ms    float64 // latency target the load score is computed against
	CircuitOpenAt  float64 // load score threshold that opens the circuit
	CircuitCloseAt float64 // load score threshold that closes the circuit
}

func DefaultConfig() Config {
	return Config{MaxRate: 1000, BurstSize: 100, TargetP99Ms: 200, CircuitOpenAt: 150, CircuitCloseAt: 100}
}

// Decision is the result of TryAcquire.
type Decision struct {
	Admitted     bool
	RetryAfterMs int64
}

// Controller is one tenant- or project-scoped admission gate. Priority
// spans (name containing "error" or "root") are exempted from sampling
// but still counted toward metrics.
type Controller struct {
	cfg Config

	tokens     atomic.Uint64 // float64 bits, via math.Float64bits
	mu         sync.Mutex    // guards lastRefill only
	lastRefill time.Time

	circuitOpen atomic.Bool
	loadScore   atomic.Uint64 // float64 bits

	latencies   *ringBuffer
	metrics     *controllerMetrics
}

func New(cfg Config, reg prometheus.Registerer, label string) *Controller {
	c := &Controller{cfg: cfg, lastRefill: time.Now(), latencies: newRingBuffer(256)}
	c.tokens.Store(math.Float64bits(cfg.BurstSize))
	c.metrics = newControllerMetrics(reg, label)
	return c
}

func (c *Controller) getTokens() float64  { return math.Float64frombits(c.tokens.Load()) }
func (c *Controller) setTokens(v float64) { c.tokens.Store(math.Float64bits(v)) }

// refill lazily tops up the bucket based on elapsed wall time since the
// last refill. Only the timestamp read/update is mutex-guarded; the
// token count itself is an atomic so readers never block on refill.
func (c *Controller) refill() {
	c.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(c.lastRefill).Seconds()
	c.lastRefill = now
	c.mu.Unlock()

	if elapsed <= 0 {
		return
	}
	for {
		cur := c.getTokens()
		next := math.Min(c.cfg.BurstSize, cur+elapsed*c.cfg.MaxRate)
		if c.tokens.CompareAndSwap(math.Float64bits(cur), math.Float64bits(next)) {
			return
		}
	}
}

// TryAcquire attempts to admit n units (typically n = batch size of
// spans in one ingest call). spanName is consulted for the priority
// exemption; is exempted from bucket depletion but the circuit breaker
// still applies.
func (c *Controller) TryAcquire(n float64, spanName string) Decision {
	c.refill()
	c.metrics.requests.Inc()

	if c.circuitOpen.Load() {
		c.metrics.circuitRejections.Inc()
		return Decision{Admitted: false, RetryAfterMs: 1000}
	}

	priority := isPriority(spanName)

	for {
		cur := c.getTokens()
		if cur < n && !priority {
			retryAfterMs := int64(math.Ceil((n - cur) / c.cfg.MaxRate * 1000))
			c.metrics.throttled.Inc()
			return Decision{Admitted: false, RetryAfterMs: retryAfterMs}
		}
		next := cur
		if !priority {
			next = cur - n
		}
		if c.tokens.CompareAndSwap(math.Float64bits(cur), math.Float64bits(next)) {
			return Decision{Admitted: true}
		}
	}
}

func isPriority(spanName string) bool {
	lower := strings.ToLower(spanName)
	return strings.Contains(lower, "error") || strings.Contains(lower, "root")
}

// ObserveLatency feeds one request's latency (ms) into the p99 window
// used to drive the adaptive circuit breaker. Call this from the
// request's completion path, not its admission path.
func (c *Controller) ObserveLatency(ms float64) {
	c.latencies.add(ms)
	p99 := c.latencies.percentile(99)
	if p99 <= 0 {
		return
	}
	score := 100 * p99 / c.cfg.TargetP99Ms
	c.loadScore.Store(math.Float64bits(score))
	c.metrics.loadScore.Set(score)

	if score > c.cfg.CircuitOpenAt {
		if !c.circuitOpen.Swap(true) {
			c.metrics.circuitTrips.Inc()
		}
	} else if score < c.cfg.CircuitCloseAt {
		c.circuitOpen.Store(false)
	}
}

// LoadScore returns the most recently computed adaptive load score.
func (c *Controller) LoadScore() float64 {
	return math.Float64frombits(c.loadScore.Load())
}

// CircuitOpen reports whether the adaptive breaker currently rejects
// all traffic outright, priority spans included (503, distinct from
// 429 rate limiting).
func (c *Controller) CircuitOpen() bool { return c.circuitOpen.Load() }

// RetryAfterSeconds converts a millisecond retry-after hint into the
// integer seconds used in the HTTP Retry-After header: floor(ms/1000)+1.
func RetryAfterSeconds(ms int64) int64 {
	return ms/1000 + 1
}
