// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package embedder implements the async micro-batching embedding
// pipeline: multiple workers share a bounded channel, each collecting a
// batch by size-or-deadline before issuing one provider call.
package embedder

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Provider embeds a batch of texts in one call. A real instance wraps
// an HTTP client to an embedding model; this package only owns the
// batching discipline around it.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config controls batch shape. MaxBatchSize and MaxWaitTime race: a
// worker flushes whichever condition is met first.
type Config struct {
	Workers      int
	QueueSize    int
	MaxBatchSize int
	MaxWaitTime  time.Duration
}

func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 1024, MaxBatchSize: 32, MaxWaitTime: 10 * time.Millisecond}
}

type request struct {
	ctx   context.Context
	text  string
	reply chan reply
}

// Reply is one request's embedding result plus observability fields.
type Reply struct {
	Vector     []float32
	Err        error
	BatchWaitMs int64
	ComputeMs   int64
}

type reply = Reply

// Batcher is the shared bounded channel plus its worker pool.
type Batcher struct {
	cfg      Config
	provider Provider
	queue    chan request
	closed   chan struct{}
	wg       sync.WaitGroup
}

func New(provider Provider, cfg Config) *Batcher {
	b := &Batcher{
		cfg:      cfg,
		provider: provider,
		queue:    make(chan request, cfg.QueueSize),
		closed:   make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Embed enqueues one text and blocks until its batch has been computed.
// Returns ErrQueueFull immediately (no blocking send) when the shared
// channel is saturated, so the caller sees backpressure instead of
// blocking.
func (b *Batcher) Embed(ctx context.Context, text string) (Reply, error) {
	req := request{ctx: ctx, text: text, reply: make(chan reply, 1)}
	select {
	case b.queue <- req:
	default:
		return Reply{}, ErrQueueFull
	}

	select {
	case r := <-req.reply:
		return r, r.Err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// ErrQueueFull signals the bounded channel has no room; callers should
// treat this as backpressure, not a hard failure.
var ErrQueueFull = fmt.Errorf("embedder: batch queue full")

func (b *Batcher) worker() {
	defer b.wg.Done()
	for {
		var first request
		select {
		case first = <-b.queue:
		case <-b.closed:
			return
		}
		enqueuedAt := time.Now()
		batch := []request{first}

		deadline := time.NewTimer(b.cfg.MaxWaitTime)
	collect:
		for len(batch) < b.cfg.MaxBatchSize {
			select {
			case req := <-b.queue:
				batch = append(batch, req)
			case <-deadline.C:
				break collect
			case <-b.closed:
				deadline.Stop()
				break collect
			}
		}
		deadline.Stop()

		waitMs := time.Since(enqueuedAt).Milliseconds()
		b.flush(batch, waitMs)
	}
}

// flush issues one provider call for the whole batch. A provider
// failure propagates to every request in the batch — there is no
// partial success within a batch, per spec.
func (b *Batcher) flush(batch []request, waitMs int64) {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.text
	}

	start := time.Now()
	vectors, err := b.provider.Embed(batch[0].ctx, texts)
	computeMs := time.Since(start).Milliseconds()

	for i, r := range batch {
		if err != nil {
			r.reply <- Reply{Err: err, BatchWaitMs: waitMs, ComputeMs: computeMs}
			continue
		}
		r.reply <- Reply{Vector: vectors[i], BatchWaitMs: waitMs, ComputeMs: computeMs}
	}
}

// Close stops accepting new workers' collection loops once in-flight
// batches drain. Queued-but-uncollected requests receive ctx.Err() via
// their own context if the caller cancels; Close itself does not drain
// the queue, it only stops future collection loops.
func (b *Batcher) Close() {
	close(b.closed)
	b.wg.Wait()
}
