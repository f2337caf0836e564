// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package relevance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreNoDecayWhenHalfLifeZero(t *testing.T) {
	w := Weights{Alpha: 1, Beta: 1, Gamma: 0}
	s := Score(w, Input{Similarity: 0.5, AgeSeconds: 1e9, HalfLifeSeconds: 0})
	require.InDelta(t, 1.5, s, 0.0001)
}

func TestScoreDecaysByHalf(t *testing.T) {
	w := Weights{Alpha: 0, Beta: 1, Gamma: 0}
	s := Score(w, Input{AgeSeconds: 3600, HalfLifeSeconds: 3600})
	require.InDelta(t, 0.5, s, 0.0001)
}

func TestRankOrdersDescending(t *testing.T) {
	w := DefaultWeights()
	ids := []string{"a", "b", "c"}
	inputs := []Input{
		{Similarity: 0.1},
		{Similarity: 0.9},
		{Similarity: 0.5},
	}
	ranked := Rank(w, ids, inputs)
	require.Equal(t, []string{"b", "c", "a"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}

func TestRankStableOnTies(t *testing.T) {
	w := Weights{}
	ranked := Rank(w, []string{"x", "y", "z"}, []Input{{}, {}, {}})
	require.Equal(t, []string{"x", "y", "z"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}
