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

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GroupCommitConfig controls WAL batching. When Enabled, concurrent
// writers within Window are coalesced into a single fsync and all of
// their acks fire together; a write is durable once its batch's fsync
// returns. When disabled, every write fsyncs individually for the
// strictest ordering guarantee.
type GroupCommitConfig struct {
	Enabled bool
	Window  time.Duration
	MaxSize int
}

func DefaultGroupCommitConfig() GroupCommitConfig {
	return GroupCommitConfig{Enabled: true, Window: 2 * time.Millisecond, MaxSize: 256}
}

type walWriteRequest struct {
	data []byte
	done chan error
}

// wal is a single append-only segment file with group-commit batching.
// Segment rotation and multi-segment management is the caller's job;
// wal itself is one file plus the goroutine that batches writes to it.
type wal struct {
	log *zap.Logger
	cfg GroupCommitConfig

	mu   sync.Mutex // guards file + offset bookkeeping only, not the queue
	file *os.File
	path string

	reqCh  chan walWriteRequest
	closed chan struct{}
	wg     sync.WaitGroup
}

func openWAL(dir string, segment int, cfg GroupCommitConfig, log *zap.Logger) (*wal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir wal dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("segment-%08d.log", segment))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open wal segment: %w", err)
	}
	w := &wal{
		log:    log,
		cfg:    cfg,
		file:   f,
		path:   path,
		reqCh:  make(chan walWriteRequest, 1024),
		closed: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// append enqueues data for durable write and blocks until it is either
// fsynced (possibly as part of a batch with other concurrent callers)
// or an error occurs.
func (w *wal) append(data []byte) error {
	req := walWriteRequest{data: data, done: make(chan error, 1)}
	select {
	case w.reqCh <- req:
	case <-w.closed:
		return fmt.Errorf("storage: wal closed")
	}
	return <-req.done
}

func (w *wal) loop() {
	defer w.wg.Done()
	for {
		var first walWriteRequest
		select {
		case first = <-w.reqCh:
		case <-w.closed:
			return
		}

		batch := []walWriteRequest{first}
		if w.cfg.Enabled {
			deadline := time.NewTimer(w.cfg.Window)
		collect:
			for len(batch) < w.cfg.MaxSize {
				select {
				case req := <-w.reqCh:
					batch = append(batch, req)
				case <-deadline.C:
					break collect
				case <-w.closed:
					deadline.Stop()
					break collect
				}
			}
			deadline.Stop()
		}

		err := w.writeBatch(batch)
		for _, r := range batch {
			r.done <- err
		}
	}
}

func (w *wal) writeBatch(batch []walWriteRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range batch {
		if _, err := w.file.Write(r.data); err != nil {
			return fmt.Errorf("storage: wal write: %w", err)
		}
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("storage: wal fsync: %w", err)
	}
	return nil
}

func (w *wal) close() error {
	close(w.closed)
	w.wg.Wait()
	return w.file.Close()
}

// replay reads every valid frame from the segment in order, stopping at
// the first CRC mismatch or truncation (a torn write from an unclean
// shutdown discards everything after it, per spec).
func replayWAL(path string, onRecord func(*record) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("storage: read wal for replay: %w", err)
	}
	off := 0
	for off < len(data) {
		ftype, payload, next, ok := readFrame(data, off)
		if !ok {
			// Torn write or corruption: stop recovery at this offset.
			break
		}
		if ftype == frameTypeEdge {
			rec, err := decodeRecord(payload)
			if err != nil {
				break
			}
			if err := onRecord(rec); err != nil {
				return err
			}
		}
		off = next
	}
	return nil
}
