// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weaveloop/weaved/pkg/admission"
	"github.com/weaveloop/weaved/pkg/causal"
	"github.com/weaveloop/weaved/pkg/concept"
	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/eval"
	"github.com/weaveloop/weaved/pkg/project"
	"github.com/weaveloop/weaved/pkg/query"
	"github.com/weaveloop/weaved/pkg/sanitize"
	"github.com/weaveloop/weaved/pkg/storage"
	"github.com/weaveloop/weaved/pkg/storagemetrics"
	"github.com/weaveloop/weaved/pkg/vector"
)

// fakeEvaluator always returns a fixed, cheap verdict so eval handler
// tests don't depend on a live LLM judge.
type fakeEvaluator struct {
	id string
}

func (f *fakeEvaluator) ID() string { return f.id }
func (f *fakeEvaluator) Evaluate(ctx context.Context, tc *eval.TraceContext) (*eval.Result, error) {
	return &eval.Result{EvaluatorID: f.id, Passed: true, Confidence: 0.9}, nil
}
func (f *fakeEvaluator) IsParallelizable() bool  { return true }
func (f *fakeEvaluator) CostPerEvalMicros() int64 { return 0 }

// newEvalTestServer builds a Server with a real project/query stack
// (one root edge persisted under tenant 0, project 0) and a runtime
// wired to fakeEvaluator stand-ins for llmjudge.geval/llmjudge.ragas.
func newEvalTestServer(t *testing.T) (*Server, edge.Edge) {
	t.Helper()
	dataDir := t.TempDir()
	opener := func(dir string, projectID uint16) (*storage.Engine, error) {
		return storage.Open(dir, projectID, storage.DefaultConfig(), prometheus.NewRegistry(), zap.NewNop())
	}
	projects := project.New(dataDir, 8, opener, prometheus.NewRegistry(), zap.NewNop())
	t.Cleanup(func() { projects.CloseAll() })

	eng, err := projects.GetOrOpen(0)
	require.NoError(t, err)

	root := edge.Edge{
		EdgeID:      edge.NewEdgeID(),
		TenantID:    0,
		ProjectID:   0,
		SpanType:    edge.SpanRoot,
		TimestampUs: 1000,
		HasPayload:  true,
	}
	require.NoError(t, eng.Put(root, []byte(`{"input":"hi","output":"hello"}`)))

	graph := causal.NewGraph()
	qsvc := query.NewService(eng, vector.New(vector.DefaultConfig()), concept.NewIndex(), graph)

	registry := eval.NewRegistry()
	registry.Register(&fakeEvaluator{id: "llmjudge.geval"})
	registry.Register(&fakeEvaluator{id: "llmjudge.ragas"})

	cache := eval.NewResultCache(100, time.Minute)
	evalLogPath := dataDir + "/eval.log"
	log, err := eval.OpenLog(evalLogPath)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	runtime := eval.NewRuntime(registry, cache, log, graph, 5*time.Second, zap.NewNop())

	s := NewServer(Deps{
		Projects:  projects,
		Admission: admission.New(admission.DefaultConfig(), prometheus.NewRegistry(), "test"),
		Metrics:   storagemetrics.NewIndex(),
		Runtime:   runtime,
		Registry:  registry,
		QueryFor: func(projectID uint16) (*query.Service, error) {
			return qsvc, nil
		},
		Limits:      sanitize.DefaultLimits(),
		Auth:        AuthConfig{Enabled: false},
		EvalLogPath: evalLogPath,
		Log:         zap.NewNop(),
	})
	return s, root
}

func TestHandleGEvalReturnsResult(t *testing.T) {
	s, root := newEvalTestServer(t)

	body := `{"trace_id":"` + root.EdgeID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evals/geval", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.handleGEval(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "llmjudge.geval")
}

func TestHandleGEvalRejectsUnknownTrace(t *testing.T) {
	s, _ := newEvalTestServer(t)

	body := `{"trace_id":"` + edge.NewEdgeID().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evals/geval", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.handleGEval(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRAGASReturnsResult(t *testing.T) {
	s, root := newEvalTestServer(t)

	body := `{"trace_id":"` + root.EdgeID.String() + `","question":"what is it","answer":"an answer"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evals/ragas", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.handleRAGAS(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "llmjudge.ragas")
}

func TestHandleEvalHistoryReturnsLoggedResults(t *testing.T) {
	s, root := newEvalTestServer(t)

	body := `{"trace_id":"` + root.EdgeID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evals/geval", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.handleGEval(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	histReq := httptest.NewRequest(http.MethodGet, "/api/v1/evals/trace/"+root.EdgeID.String()+"/history", nil)
	histReq.SetPathValue("trace_id", root.EdgeID.String())
	histRec := httptest.NewRecorder()

	s.handleEvalHistory(histRec, histReq)
	require.Equal(t, http.StatusOK, histRec.Code)
	require.Contains(t, histRec.Body.String(), "llmjudge.geval")
}
