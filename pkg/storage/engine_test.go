// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weaveloop/weaved/pkg/edge"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.FlushBytes = 1 << 30 // don't auto-flush mid-test unless we force it
	e, err := Open(dir, 1, cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPutAndGetRoundTrip(t *testing.T) {
	e := testEngine(t)
	id := edge.NewEdgeID()
	ed := edge.Edge{
		EdgeID: id, TenantID: 42, ProjectID: 1, SessionID: 7,
		SpanType: edge.SpanToolCall, TimestampUs: 1000, Environment: edge.EnvProd,
	}
	require.NoError(t, e.Put(ed, []byte(`{"k":"v"}`)))

	got, payload, err := e.Get(42, id)
	require.NoError(t, err)
	require.Equal(t, id, got.EdgeID)
	require.Equal(t, []byte(`{"k":"v"}`), payload)
}

func TestGetWrongTenantRejected(t *testing.T) {
	e := testEngine(t)
	id := edge.NewEdgeID()
	require.NoError(t, e.Put(edge.Edge{EdgeID: id, TenantID: 42, TimestampUs: 1}, nil))

	_, _, err := e.Get(99, id)
	require.ErrorIs(t, err, ErrTenantMismatch)
}

func TestGetMissingEdge(t *testing.T) {
	e := testEngine(t)
	_, _, err := e.Get(1, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSoftDeleteInvisibleInScan(t *testing.T) {
	e := testEngine(t)
	id := edge.NewEdgeID()
	require.NoError(t, e.Put(edge.Edge{EdgeID: id, TenantID: 1, TimestampUs: 500}, nil))
	require.NoError(t, e.SoftDelete(id))

	edges, err := e.ScanRange(1, 0, 1000)
	require.NoError(t, err)
	for _, ed := range edges {
		require.NotEqual(t, id, ed.EdgeID, "soft-deleted edge must never appear in scan results")
	}
}

func TestFlushThenGetSurvivesMemtableSwap(t *testing.T) {
	e := testEngine(t)
	id := edge.NewEdgeID()
	require.NoError(t, e.Put(edge.Edge{EdgeID: id, TenantID: 1, TimestampUs: 10}, []byte("payload")))
	require.NoError(t, e.flush())

	got, payload, err := e.Get(1, id)
	require.NoError(t, err)
	require.Equal(t, id, got.EdgeID)
	require.Equal(t, []byte("payload"), payload)
}

func TestRecoveryReplaysWAL(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	logger := zaptest.NewLogger(t)

	e1, err := Open(dir, 1, cfg, nil, logger)
	require.NoError(t, err)
	id := edge.NewEdgeID()
	require.NoError(t, e1.Put(edge.Edge{EdgeID: id, TenantID: 1, TimestampUs: 1}, []byte("x")))
	require.NoError(t, e1.w.close()) // simulate crash: skip graceful Close/flush

	e2, err := Open(dir, 1, cfg, nil, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e2.Close() })

	got, payload, err := e2.Get(1, id)
	require.NoError(t, err)
	require.Equal(t, id, got.EdgeID)
	require.Equal(t, []byte("x"), payload)
}

func TestScanRangeOrdersByTimestamp(t *testing.T) {
	e := testEngine(t)
	ids := make([]uuid.UUID, 3)
	for i, ts := range []int64{300, 100, 200} {
		ids[i] = edge.NewEdgeID()
		require.NoError(t, e.Put(edge.Edge{EdgeID: ids[i], TenantID: 1, TimestampUs: ts}, nil))
	}
	edges, err := e.ScanRange(1, 0, 1000)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	for i := 1; i < len(edges); i++ {
		require.LessOrEqual(t, edges[i-1].TimestampUs, edges[i].TimestampUs)
	}
}

func TestCompactionMergesL0IntoL1(t *testing.T) {
	e := testEngine(t)
	e.compactionCfg.L0FileCountTrigger = 0

	id := edge.NewEdgeID()
	require.NoError(t, e.Put(edge.Edge{EdgeID: id, TenantID: 1, TimestampUs: 1, TokenCount: 1}, nil))
	require.NoError(t, e.flush())
	require.NoError(t, e.Put(edge.Edge{EdgeID: edge.NewEdgeID(), TenantID: 1, TimestampUs: 2}, nil))
	require.NoError(t, e.flush())

	_, err := e.maybeCompact()
	require.NoError(t, err)

	l1 := e.manifest.levelEntries(1)
	require.NotEmpty(t, l1, "expected L0 files to compact into L1")
}
