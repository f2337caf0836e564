// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package relevance combines vector similarity, temporal decay, and
// causal-graph influence into a single ranking score for memory
// retrieval.
package relevance

import "math"

// Weights configures the three-term linear combination. The caller
// is responsible for ensuring they sum to roughly 1.0; the scorer
// itself does not renormalize, so a misconfigured set is visible in
// output scores rather than silently corrected.
type Weights struct {
	Alpha float64 // similarity weight
	Beta  float64 // temporal decay weight
	Gamma float64 // graph influence weight
}

func DefaultWeights() Weights {
	return Weights{Alpha: 0.6, Beta: 0.25, Gamma: 0.15}
}

// Input holds the three raw signals for one candidate observation.
type Input struct {
	Similarity     float64 // cosine similarity in [0,1], from the vector index
	AgeSeconds     float64 // time since the observation was recorded
	HalfLifeSeconds float64 // decay half-life; <=0 disables decay (term = 1)
	GraphInfluence float64 // normalized in/out-degree centrality in [0,1]
}

// Score computes alpha*similarity + beta*temporal_decay + gamma*graph_influence.
func Score(w Weights, in Input) float64 {
	decay := 1.0
	if in.HalfLifeSeconds > 0 {
		decay = math.Exp(-math.Ln2 * in.AgeSeconds / in.HalfLifeSeconds)
	}
	return w.Alpha*in.Similarity + w.Beta*decay + w.Gamma*in.GraphInfluence
}

// Candidate pairs an identifier with its score, for ranking.
type Candidate struct {
	ID    string
	Score float64
}

// Rank scores every input and returns candidates sorted descending by
// score, stable on ties (by the caller's original order).
func Rank(w Weights, ids []string, inputs []Input) []Candidate {
	out := make([]Candidate, len(ids))
	for i := range ids {
		out[i] = Candidate{ID: ids[i], Score: Score(w, inputs[i])}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Score < out[j].Score; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
