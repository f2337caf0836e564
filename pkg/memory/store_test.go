// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAppendIndexesAllThreeDimensions(t *testing.T) {
	s := NewStore()
	s.Append(Observation{ProjectID: 1, AgentID: 2, SessionID: 3, Text: "a"})
	require.Len(t, s.ByProject(1), 1)
	require.Len(t, s.ByAgent(2), 1)
	require.Len(t, s.BySession(3), 1)
}

func TestBySessionNewestFirst(t *testing.T) {
	s := NewStore()
	s.Append(Observation{SessionID: 1, Text: "first"})
	s.Append(Observation{SessionID: 1, Text: "second"})
	obs := s.BySession(1)
	require.Equal(t, "second", obs[0].Text)
	require.Equal(t, "first", obs[1].Text)
}

func TestAppendAutoAssignsID(t *testing.T) {
	s := NewStore()
	s.Append(Observation{SessionID: 1})
	require.NotEqual(t, uuid.UUID{}, s.BySession(1)[0].ID)
}

func TestSortByRecordedAtAscending(t *testing.T) {
	now := time.Now()
	obs := []Observation{
		{Text: "later", RecordedAt: now.Add(time.Minute)},
		{Text: "earlier", RecordedAt: now},
	}
	SortByRecordedAt(obs)
	require.Equal(t, "earlier", obs[0].Text)
}

func TestFindFiltersByType(t *testing.T) {
	s := NewStore()
	s.Append(Observation{SessionID: 1, Type: ObsDebugging, Title: "fixed the race"})
	s.Append(Observation{SessionID: 1, Type: ObsPlanning, Title: "next steps"})

	debugType := ObsDebugging
	found := s.Find(Filter{SessionID: ptrUint64(1), Type: &debugType})
	require.Len(t, found, 1)
	require.Equal(t, "fixed the race", found[0].Title)
}

func TestFindFiltersByTimeRange(t *testing.T) {
	s := NewStore()
	s.Append(Observation{SessionID: 1, CreatedAtUs: 100, Title: "early"})
	s.Append(Observation{SessionID: 1, CreatedAtUs: 200, Title: "mid"})
	s.Append(Observation{SessionID: 1, CreatedAtUs: 300, Title: "late"})

	found := s.Find(Filter{SessionID: ptrUint64(1), SinceUs: 150, UntilUs: 250})
	require.Len(t, found, 1)
	require.Equal(t, "mid", found[0].Title)
}

func TestFindFiltersBySubstring(t *testing.T) {
	s := NewStore()
	s.Append(Observation{SessionID: 1, Title: "refactored the ingest path"})
	s.Append(Observation{SessionID: 1, Title: "wrote docs"})

	found := s.Find(Filter{SessionID: ptrUint64(1), Substring: "INGEST"})
	require.Len(t, found, 1)
	require.Equal(t, "refactored the ingest path", found[0].Title)
}

func TestFindRespectsLimitAndSortOldest(t *testing.T) {
	s := NewStore()
	s.Append(Observation{SessionID: 1, CreatedAtUs: 100, Title: "first"})
	s.Append(Observation{SessionID: 1, CreatedAtUs: 200, Title: "second"})
	s.Append(Observation{SessionID: 1, CreatedAtUs: 300, Title: "third"})

	found := s.Find(Filter{SessionID: ptrUint64(1), Sort: "oldest", Limit: 2})
	require.Len(t, found, 2)
	require.Equal(t, "first", found[0].Title)
	require.Equal(t, "second", found[1].Title)
}

func TestDeleteThenCompactRemovesObservation(t *testing.T) {
	s := NewStore()
	o, err := s.Append(Observation{SessionID: 1, Title: "stale note"})
	require.NoError(t, err)
	require.Len(t, s.BySession(1), 1)

	require.NoError(t, s.Delete(o.ID))
	require.Empty(t, s.BySession(1), "soft-deleted observations are excluded from Find")
	require.Equal(t, 1, s.Len(), "soft delete keeps the entry until compaction")

	removed, err := s.Compact()
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 0, s.Len())
}

func TestOpenStoreReplaysObservationsFromDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir)
	require.NoError(t, err)
	_, err = s.Append(Observation{ProjectID: 1, SessionID: 1, Title: "persisted"})
	require.NoError(t, err)

	reopened, err := OpenStore(dir)
	require.NoError(t, err)
	require.Len(t, reopened.BySession(1), 1)
	require.Equal(t, "persisted", reopened.BySession(1)[0].Title)
}

func ptrUint64(v uint64) *uint64 { return &v }
