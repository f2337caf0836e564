// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storagemetrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weaveloop/weaved/pkg/edge"
)

func TestMinuteBucketsSumToHourBucket(t *testing.T) {
	idx := NewIndex()
	hourStartUs := int64(0)
	for i := 0; i < 5; i++ {
		ts := hourStartUs + int64(i)*int64(time_Minute())
		idx.Insert(edge.Edge{ProjectID: 1, TimestampUs: ts, TokenCount: 10, DurationUs: 100})
	}

	minuteBuckets, _ := idx.Range(1, 0, 5*time_Minute(), 10000)
	var sumFromMinutes int64
	for _, b := range minuteBuckets {
		sumFromMinutes += b.TotalTokens
	}

	hourBuckets := idx.collect(Hour, 1, 0, time_Hour())
	require.Len(t, hourBuckets, 1)
	require.Equal(t, hourBuckets[0].TotalTokens, sumFromMinutes)
}

func TestPruneIsIdempotent(t *testing.T) {
	idx := NewIndex()
	idx.Insert(edge.Edge{ProjectID: 1, TimestampUs: 0})
	far := int64(40 * time_Hour())
	removedFirst := idx.Prune(far)
	removedSecond := idx.Prune(far)
	require.Greater(t, removedFirst, 0)
	require.Equal(t, 0, removedSecond)
}

func TestCoarsestGranularitySelection(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 3; i++ {
		idx.Insert(edge.Edge{ProjectID: 1, TimestampUs: int64(i) * time_Day()})
	}
	_, g := idx.Range(1, 0, 60*time_Day(), 100)
	require.Equal(t, Day, g, "a 60-day range with a 100-row cap should pick day granularity")
}

func time_Minute() int64 { return 60_000_000 }
func time_Hour() int64   { return 3600_000_000 }
func time_Day() int64    { return 86400_000_000 }
