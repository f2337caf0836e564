// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCostExactnessUnderScaling(t *testing.T) {
	rate := Rate{InputMicrosPerMToken: 150_000, OutputMicrosPerMToken: 600_000}
	single := InputCostMicros(rate, 1000)
	scaled := InputCostMicros(rate, 7*1000)
	require.Equal(t, 7*single, scaled, "cost(N*tokens) must equal N*cost(tokens) under decimal arithmetic")
}

func TestRecordAttributesToAllScopes(t *testing.T) {
	tr := NewTracker(NewPricingTable())
	cost := tr.Record(1, 2, 3, 4, "gpt-4o-mini", 1_000_000, 500_000)
	require.Equal(t, cost, tr.Total("tenant", 1))
	require.Equal(t, cost, tr.Total("project", 2))
	require.Equal(t, cost, tr.Total("agent", 3))
	require.Equal(t, cost, tr.Total("session", 4))
}

func TestUnknownModelFallsBackToGPT4oMiniDefault(t *testing.T) {
	pt := NewPricingTable()
	require.Equal(t, defaultGPT4oMiniRates, pt.Rate("some-unknown-model"))
}

func TestCheckBudgetExceeded(t *testing.T) {
	tr := NewTracker(NewPricingTable())
	tr.SetBudget(1, 100)
	tr.Record(1, 0, 0, 0, "gpt-4o-mini", 10_000_000, 0) // well above 100 micros

	current, exceeded := tr.CheckBudget(1)
	require.True(t, exceeded)
	require.Greater(t, current, int64(100))
}

func TestForecastRequiresThreeSamples(t *testing.T) {
	tr := NewTracker(NewPricingTable())
	tr.RecordHourly(1, 100)
	tr.RecordHourly(1, 100)
	_, ok := tr.ForecastHourlyMicros(1, 0.3)
	require.False(t, ok)

	tr.RecordHourly(1, 100)
	forecast, ok := tr.ForecastHourlyMicros(1, 0.3)
	require.True(t, ok)
	require.Equal(t, int64(100), forecast)
}

func TestFormatUSD(t *testing.T) {
	require.Equal(t, "$1.500000", FormatUSD(1_500_000))
	require.Equal(t, "-$0.000001", FormatUSD(-1))
}
