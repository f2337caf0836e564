// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package flywheel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SampleSource supplies the candidate traces for one export tick; the
// caller wires this to the storage engine plus evaluator result log.
type SampleSource func() ([]Sample, error)

// Config configures one scheduled export job.
type Config struct {
	Thresholds Thresholds
	Format     Format
	OutputDir  string
	Schedule   string // standard 5-field cron expression
}

func DefaultConfig() Config {
	return Config{
		Thresholds: DefaultThresholds(),
		Format:     FormatNative,
		Schedule:   "0 */6 * * *",
	}
}

// Exporter writes JSONL-formatted training samples to timestamped
// files under Config.OutputDir, on a cron schedule.
type Exporter struct {
	cfg    Config
	source SampleSource
	log    *zap.Logger
	cron   *cron.Cron
}

func NewExporter(cfg Config, source SampleSource, log *zap.Logger) *Exporter {
	return &Exporter{cfg: cfg, source: source, log: log, cron: cron.New()}
}

// Start schedules RunOnce on Config.Schedule and begins the cron
// scheduler's own goroutine.
func (e *Exporter) Start() error {
	_, err := e.cron.AddFunc(e.cfg.Schedule, func() {
		if err := e.RunOnce(); err != nil {
			e.log.Error("flywheel export tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("flywheel: invalid schedule %q: %w", e.cfg.Schedule, err)
	}
	e.cron.Start()
	return nil
}

func (e *Exporter) Stop() {
	ctx := e.cron.Stop()
	<-ctx.Done()
}

// RunOnce fetches samples, filters by threshold, renders in the
// configured format, and writes one JSONL file for this tick.
func (e *Exporter) RunOnce() error {
	return e.RunOnceWith(e.cfg.Thresholds, e.cfg.Format, 0)
}

// RunOnceWith runs one export tick with caller-supplied thresholds and
// format instead of the scheduled Config, for the on-demand
// POST /api/v1/flywheel/export endpoint. maxExamples caps the total
// positive+negative count written; 0 means unbounded.
func (e *Exporter) RunOnceWith(thresholds Thresholds, format Format, maxExamples int) error {
	samples, err := e.source()
	if err != nil {
		return fmt.Errorf("flywheel: sample source failed: %w", err)
	}

	labeled := Filter(thresholds, samples)
	if maxExamples > 0 && len(labeled) > maxExamples {
		labeled = labeled[:maxExamples]
	}
	if len(labeled) == 0 {
		e.log.Info("flywheel export tick produced no qualifying samples")
		return nil
	}

	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(e.cfg.OutputDir, fmt.Sprintf("export_%s_%s.jsonl", format, time.Now().UTC().Format("20060102T150405Z")))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	var positives, negatives int
	for _, s := range labeled {
		rec, err := Render(format, s)
		if err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
		if s.Label == LabelPositive {
			positives++
		} else {
			negatives++
		}
	}

	e.log.Info("flywheel export tick complete",
		zap.String("path", path),
		zap.Int("positive_count", positives),
		zap.Int("negative_count", negatives))
	return nil
}

// Source returns the configured SampleSource, for callers (e.g. the
// flywheel/candidates HTTP handler) that need the raw candidate list
// without writing an export file.
func (e *Exporter) Source() SampleSource { return e.source }
