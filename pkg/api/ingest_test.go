// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weaveloop/weaved/pkg/admission"
	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/project"
	"github.com/weaveloop/weaved/pkg/sanitize"
	"github.com/weaveloop/weaved/pkg/storage"
	"github.com/weaveloop/weaved/pkg/storagemetrics"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dataDir := t.TempDir()
	opener := func(dir string, projectID uint16) (*storage.Engine, error) {
		return storage.Open(dir, projectID, storage.DefaultConfig(), prometheus.NewRegistry(), zap.NewNop())
	}
	projects := project.New(dataDir, 8, opener, prometheus.NewRegistry(), zap.NewNop())
	t.Cleanup(func() { projects.CloseAll() })

	return NewServer(Deps{
		Projects:  projects,
		Admission: admission.New(admission.DefaultConfig(), prometheus.NewRegistry(), "test"),
		Metrics:   storagemetrics.NewIndex(),
		Limits:    sanitize.DefaultLimits(),
		Auth:      AuthConfig{Enabled: false},
		Log:       zap.NewNop(),
	})
}

func TestHandleIngestTracesPersistsSpan(t *testing.T) {
	s := newTestServer(t)

	body := `[{"project_id": 3, "span_type": "root", "timestamp_us": 1000, "duration_us": 50, "token_count": 10, "payload": {"input": "hi", "output": "hello"}}]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/traces", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.handleIngestTraces(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	eng, err := s.projects.GetOrOpen(3)
	require.NoError(t, err)
	edges, err := eng.ScanRange(0, 0, 2000)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, edge.SpanRoot, edges[0].SpanType)
}

func TestHandleIngestTracesRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/traces", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()

	s.handleIngestTraces(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngestTracesRejectsOversizedBody(t *testing.T) {
	s := newTestServer(t)
	s.limits.MaxPayloadBytes = 10

	req := httptest.NewRequest(http.MethodPost, "/api/v1/traces", bytes.NewBufferString(`[{"project_id": 1}]`))
	rec := httptest.NewRecorder()

	s.handleIngestTraces(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
