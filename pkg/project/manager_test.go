// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package project

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weaveloop/weaved/pkg/storage"
)

func countingOpener(t *testing.T, opens *atomic.Int64) Opener {
	return func(dataDir string, projectID uint16) (*storage.Engine, error) {
		opens.Add(1)
		cfg := storage.DefaultConfig()
		cfg.FlushBytes = 1 << 30
		return storage.Open(dataDir, projectID, cfg, nil, zaptest.NewLogger(t))
	}
}

func TestGetOrOpenCachesSecondCall(t *testing.T) {
	var opens atomic.Int64
	m := New(t.TempDir(), 50, countingOpener(t, &opens), nil, nil)
	defer m.CloseAll()

	_, err := m.GetOrOpen(1)
	require.NoError(t, err)
	_, err = m.GetOrOpen(1)
	require.NoError(t, err)
	require.Equal(t, int64(1), opens.Load())
}

func TestGetOrOpenSingleFlightUnderConcurrency(t *testing.T) {
	var opens atomic.Int64
	m := New(t.TempDir(), 50, countingOpener(t, &opens), nil, nil)
	defer m.CloseAll()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.GetOrOpen(7)
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), opens.Load(), "concurrent opens of the same project should share one open")
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	var opens atomic.Int64
	m := New(t.TempDir(), 2, countingOpener(t, &opens), nil, nil)
	defer m.CloseAll()

	_, err := m.GetOrOpen(1)
	require.NoError(t, err)
	_, err = m.GetOrOpen(2)
	require.NoError(t, err)
	_, err = m.GetOrOpen(3) // evicts project 1 (least recently used)
	require.NoError(t, err)

	require.Equal(t, 2, m.Len())
	_, err = m.GetOrOpen(1) // re-opens; must not still be cached
	require.NoError(t, err)
	require.Equal(t, int64(4), opens.Load())
}
