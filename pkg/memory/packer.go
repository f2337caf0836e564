// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter wraps a tiktoken encoder behind a mutex (the
// underlying BPE tables aren't safe for concurrent Encode calls) and
// falls back to a char/4 estimate if the encoding can't be loaded.
type TokenCounter struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{encoder: nil}
	}
	return &TokenCounter{encoder: enc}
}

func (tc *TokenCounter) Count(text string) int {
	if tc.encoder == nil {
		return len(text) / 4
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}

// Budget tracks tokens consumed against a ceiling with room reserved
// for the model's own output, mirroring a standard prompt-budgeting
// accumulator: Use fails closed rather than silently overdrawing.
type Budget struct {
	mu             sync.Mutex
	maxTokens      int
	reservedTokens int
	usedTokens     int
}

func NewBudget(maxTokens, reservedForOutput int) *Budget {
	return &Budget{maxTokens: maxTokens, reservedTokens: reservedForOutput}
}

func (b *Budget) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxTokens - b.reservedTokens - b.usedTokens
}

func (b *Budget) Use(tokens int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tokens > b.maxTokens-b.reservedTokens-b.usedTokens {
		return false
	}
	b.usedTokens += tokens
	return true
}

// Packer assembles a bounded-size context window from observations in
// the order the caller gives them, skipping any entry that would exceed
// the budget.
type Packer struct {
	counter *TokenCounter
}

func NewPacker(counter *TokenCounter) *Packer {
	return &Packer{counter: counter}
}

// Pack renders obs (already ranked by the caller, most-important
// first) into a single context string. Observations are considered in
// order; one that would overflow the budget is skipped (not
// truncated) so a later, smaller observation still gets a chance to
// fit.
func (p *Packer) Pack(obs []Observation, budget *Budget) (string, []Observation) {
	var out string
	var included []Observation
	for _, o := range obs {
		line := fmt.Sprintf("[%s] %s\n", o.Concept, o.Text)
		tokens := p.counter.Count(line)
		if !budget.Use(tokens) {
			continue
		}
		out += line
		included = append(included, o)
	}
	return out, included
}
