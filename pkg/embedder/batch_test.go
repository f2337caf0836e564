// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package embedder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls    atomic.Int64
	failNext atomic.Bool
	mu       sync.Mutex
	batchSizes []int
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.batchSizes = append(f.batchSizes, len(texts))
	f.mu.Unlock()
	if f.failNext.Swap(false) {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestEmbedSingleRequestRoundTrip(t *testing.T) {
	p := &fakeProvider{}
	b := New(p, Config{Workers: 1, QueueSize: 16, MaxBatchSize: 32, MaxWaitTime: 5 * time.Millisecond})
	defer b.Close()

	r, err := b.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, r.Vector)
}

func TestEmbedBatchesConcurrentRequests(t *testing.T) {
	p := &fakeProvider{}
	b := New(p, Config{Workers: 1, QueueSize: 64, MaxBatchSize: 32, MaxWaitTime: 20 * time.Millisecond})
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Embed(context.Background(), "x")
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Less(t, p.calls.Load(), int64(10), "concurrent requests within the wait window should share fewer than 10 provider calls")
}

func TestEmbedProviderFailurePropagatesToWholeBatch(t *testing.T) {
	p := &fakeProvider{}
	p.failNext.Store(true)
	b := New(p, Config{Workers: 1, QueueSize: 16, MaxBatchSize: 32, MaxWaitTime: 5 * time.Millisecond})
	defer b.Close()

	_, err := b.Embed(context.Background(), "will fail")
	require.Error(t, err)
}

func TestEmbedQueueFullReturnsBackpressureError(t *testing.T) {
	p := &fakeProvider{}
	b := New(p, Config{Workers: 0, QueueSize: 1, MaxBatchSize: 32, MaxWaitTime: time.Second})
	defer func() { close(b.closed) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Occupies the one queue slot; no worker exists to drain it, so it
	// blocks on its reply channel until the test cancels its context.
	go func() { _, _ = b.Embed(ctx, "occupies the slot") }()
	require.Eventually(t, func() bool { return len(b.queue) == 1 }, time.Second, time.Millisecond)

	_, err := b.Embed(context.Background(), "should not fit")
	require.ErrorIs(t, err, ErrQueueFull)
}
