// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package vector

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSearchReturnsNearestUnderSameTenant(t *testing.T) {
	idx := New(DefaultConfig())
	near := uuid.New()
	idx.Insert(near, 1, []float32{1, 0, 0})
	idx.Insert(uuid.New(), 1, []float32{0, 1, 0})
	idx.Insert(uuid.New(), 1, []float32{-1, 0, 0})

	res := idx.Search([]float32{0.9, 0.1, 0}, 1, 1, 3)
	require.Len(t, res, 1)
	require.Equal(t, near, res[0].ID)
}

func TestSearchNeverLeaksCrossTenant(t *testing.T) {
	idx := New(DefaultConfig())
	tenantOneEdge := uuid.New()
	idx.Insert(tenantOneEdge, 1, []float32{1, 0, 0})

	res := idx.Search([]float32{1, 0, 0}, 2, 5, 3)
	require.Empty(t, res, "tenant 2 must never see tenant 1's nearest neighbor")
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := New(DefaultConfig())
	require.Empty(t, idx.Search([]float32{1, 0, 0}, 1, 5, 3))
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	require.InDelta(t, float32(1.0), cosine(v, v), 1e-5)
}
