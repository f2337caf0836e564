// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterpretQueryRecognizesTimeWindow(t *testing.T) {
	interp := interpretQuery("errors in the last 6 hours for claude")
	require.Equal(t, "last_6_hours", interp.TimeRange)
	require.Equal(t, "claude", interp.ModelFilter)
	require.True(t, interp.ErrorFilter)
}

func TestInterpretQueryMinTokensMoreThan(t *testing.T) {
	interp := interpretQuery("traces with more than 500 tokens")
	require.Equal(t, 500, interp.MinTokens)
}

func TestInterpretQueryMinTokensAngleBracket(t *testing.T) {
	interp := interpretQuery("traces with >1200 tokens")
	require.Equal(t, 1200, interp.MinTokens)
}

func TestPercentileOfLinearInterpolation(t *testing.T) {
	xs := []float64{10, 20, 30, 40}
	require.InDelta(t, 25, percentileOf(xs, 50), 0.001)
}

func TestPercentileOfEmptyIsZero(t *testing.T) {
	require.Equal(t, 0.0, percentileOf(nil, 50))
}

func TestResolveTimeRangeLastWeek(t *testing.T) {
	now := int64(7 * 24 * 3600 * 1_000_000)
	start, end := resolveTimeRange("last_week", now)
	require.Equal(t, now, end)
	require.Equal(t, int64(0), start)
}

func TestProjectIDOfPrefersOverride(t *testing.T) {
	pid := uint16(5)
	p := Principal{ProjectID: &pid}
	require.Equal(t, uint16(9), projectIDOf(p, "9"))
	require.Equal(t, uint16(5), projectIDOf(p, ""))
}
