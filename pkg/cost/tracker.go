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

package cost

import (
	"sync"
)

// scope identifies one granularity's accumulator key.
type scope struct {
	kind string // "tenant" | "project" | "agent" | "session"
	id   uint64
}

// Tracker accumulates exact-decimal cost at tenant/project/agent/session
// granularities simultaneously from a single Record call, and keeps a
// rolling hourly history per tenant for forecasting.
type Tracker struct {
	mu       sync.Mutex
	totals   map[scope]int64
	hourly   map[uint64][]int64 // tenantID -> last 24 hourly totals, oldest first
	pricing  *PricingTable
	budgets  map[uint64]int64 // tenantID -> budget in micros
}

func NewTracker(pricing *PricingTable) *Tracker {
	return &Tracker{
		totals:  make(map[scope]int64),
		hourly:  make(map[uint64][]int64),
		pricing: pricing,
		budgets: make(map[uint64]int64),
	}
}

// Record attributes the cost of one edge's token usage to every
// enclosing scope at once.
func (t *Tracker) Record(tenantID, projectID, agentID, sessionID uint64, model string, inputTokens, outputTokens int64) int64 {
	rate := t.pricing.Rate(model)
	costMicros := InputCostMicros(rate, inputTokens) + OutputCostMicros(rate, outputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals[scope{"tenant", tenantID}] += costMicros
	t.totals[scope{"project", projectID}] += costMicros
	t.totals[scope{"agent", agentID}] += costMicros
	t.totals[scope{"session", sessionID}] += costMicros
	return costMicros
}

// RecordHourly feeds one hourly bucket's total cost into the tenant's
// rolling forecast window, keeping at most the last 24 samples.
func (t *Tracker) RecordHourly(tenantID uint64, hourTotalMicros int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := append(t.hourly[tenantID], hourTotalMicros)
	if len(h) > 24 {
		h = h[len(h)-24:]
	}
	t.hourly[tenantID] = h
}

func (t *Tracker) Total(kind string, id uint64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[scope{kind, id}]
}

// SetBudget configures the micro-dollar budget ceiling for tenantID.
func (t *Tracker) SetBudget(tenantID uint64, micros int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budgets[tenantID] = micros
}

// CheckBudget returns the tenant's current accumulated cost and whether
// it exceeds the configured budget.
func (t *Tracker) CheckBudget(tenantID uint64) (currentMicros int64, exceeded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.totals[scope{"tenant", tenantID}]
	budget, ok := t.budgets[tenantID]
	if !ok {
		return current, false
	}
	return current, current > budget
}

// ForecastHourlyMicros returns the exponential rolling mean over the
// last 24 hourly buckets for tenantID. Requires at least 3 samples;
// returns ok=false otherwise.
func (t *Tracker) ForecastHourlyMicros(tenantID uint64, alpha float64) (forecast int64, ok bool) {
	t.mu.Lock()
	h := append([]int64(nil), t.hourly[tenantID]...)
	t.mu.Unlock()

	if len(h) < 3 {
		return 0, false
	}
	ewma := float64(h[0])
	for _, v := range h[1:] {
		ewma = alpha*float64(v) + (1-alpha)*ewma
	}
	return int64(ewma), true
}
