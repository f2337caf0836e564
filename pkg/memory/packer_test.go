// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudgetUseFailsClosedWhenOverflowing(t *testing.T) {
	b := NewBudget(100, 20)
	require.True(t, b.Use(70))
	require.False(t, b.Use(20), "70 used + 20 reserved + 20 more > 100 max")
	require.Equal(t, 10, b.Available())
}

func TestBudgetAvailableAccountsForReserved(t *testing.T) {
	b := NewBudget(100, 30)
	require.Equal(t, 70, b.Available())
}

func TestTokenCounterFallsBackWithoutEncoder(t *testing.T) {
	tc := &TokenCounter{encoder: nil}
	require.Equal(t, 3, tc.Count("twelve chars"[:12]))
}

func TestPackerSkipsOversizedEntriesButTakesLater(t *testing.T) {
	tc := &TokenCounter{encoder: nil} // char/4 estimate, deterministic for this test
	p := NewPacker(tc)
	budget := NewBudget(4, 0) // 4 tokens total available

	obs := []Observation{
		{Concept: "big", Text: "this text is far too long to fit the budget at all"},
		{Concept: "ok", Text: "hi"},
	}
	out, included := p.Pack(obs, budget)
	require.Len(t, included, 1)
	require.Equal(t, "ok", included[0].Concept)
	require.Contains(t, out, "hi")
}
