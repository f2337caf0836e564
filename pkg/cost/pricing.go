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

// Package cost tracks hierarchical, exact-decimal cost attribution
// across tenant/project/agent/session granularities, plus forecasting
// and budget-alert checks.
package cost

import (
	"fmt"
	"sync"
)

// Rate holds per-million-token input/output rates in integer
// micro-dollars, never a float, to preserve billing integrity.
type Rate struct {
	InputMicrosPerMToken  int64
	OutputMicrosPerMToken int64
}

// defaultGPT4oMiniRates matches the spec's required default pricing
// table entry.
var defaultGPT4oMiniRates = Rate{InputMicrosPerMToken: 150_000, OutputMicrosPerMToken: 600_000}

// PricingTable is a hot-reloadable model -> Rate map, guarded by an
// RWMutex so a config-file watcher can swap it without a restart.
type PricingTable struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

func NewPricingTable() *PricingTable {
	return &PricingTable{rates: map[string]Rate{"gpt-4o-mini": defaultGPT4oMiniRates}}
}

// Set installs or replaces the rate for model.
func (p *PricingTable) Set(model string, r Rate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[model] = r
}

// Rate returns the configured rate for model, or the GPT-4o-mini
// default if the model is unrecognized.
func (p *PricingTable) Rate(model string) Rate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if r, ok := p.rates[model]; ok {
		return r
	}
	return defaultGPT4oMiniRates
}

// Reload atomically replaces the whole table, e.g. from a config-file
// watcher.
func (p *PricingTable) Reload(rates map[string]Rate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates = rates
}

// InputCostMicros returns the cost in whole micro-dollars of tokens
// input tokens at model's rate. Integer arithmetic only, never floating
// point: the product is divided down to micro-dollars and the remainder
// is dropped, so cost(N*tokens) == N*cost(tokens) holds exactly only
// when tokens*rate is a multiple of 1,000,000; otherwise the truncated
// fractions can make the two differ.
func InputCostMicros(rate Rate, tokens int64) int64 {
	return tokens * rate.InputMicrosPerMToken / 1_000_000
}

// OutputCostMicros is the output-token analogue of InputCostMicros.
func OutputCostMicros(rate Rate, tokens int64) int64 {
	return tokens * rate.OutputMicrosPerMToken / 1_000_000
}

// FormatUSD renders micro-dollars as a fixed-point USD string, e.g.
// 1_500_000 -> "$1.500000".
func FormatUSD(micros int64) string {
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	return fmt.Sprintf("%s$%d.%06d", sign, micros/1_000_000, micros%1_000_000)
}
