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

// Package api implements the HTTP ingest and query surface: trace
// ingest, time-series/project metrics, search, evaluator invocation,
// flywheel export, plus /healthz and /metrics.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weaveloop/weaved/pkg/admission"
	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/eval"
	"github.com/weaveloop/weaved/pkg/flywheel"
	"github.com/weaveloop/weaved/pkg/project"
	"github.com/weaveloop/weaved/pkg/query"
	"github.com/weaveloop/weaved/pkg/sanitize"
	"github.com/weaveloop/weaved/pkg/storagemetrics"
)

// Server bundles everything an HTTP request handler needs to serve
// the ingest and query APIs for one weaved instance.
type Server struct {
	projects  *project.Manager
	admission *admission.Controller
	metrics   *storagemetrics.Index
	runtime   *eval.Runtime
	registry  *eval.Registry
	exporter  *flywheel.Exporter
	queryFor    func(projectID uint16) (*query.Service, error)
	limits      sanitize.Limits
	auth        AuthConfig
	evalLogPath string
	log         *zap.Logger
	clock       *edge.Clock
}

// Deps collects the dependencies Server wires into handlers.
type Deps struct {
	Projects  *project.Manager
	Admission *admission.Controller
	Metrics   *storagemetrics.Index
	Runtime   *eval.Runtime
	Registry  *eval.Registry
	Exporter  *flywheel.Exporter
	QueryFor    func(projectID uint16) (*query.Service, error)
	Limits      sanitize.Limits
	Auth        AuthConfig
	EvalLogPath string
	Log         *zap.Logger
}

func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		projects:    d.Projects,
		admission:   d.Admission,
		metrics:     d.Metrics,
		runtime:     d.Runtime,
		registry:    d.Registry,
		exporter:    d.Exporter,
		queryFor:    d.QueryFor,
		limits:      d.Limits,
		auth:        d.Auth,
		evalLogPath: d.EvalLogPath,
		log:         log,
		clock:       edge.NewClock(),
	}
}

// Handler builds the routed API handler: every API route behind the
// auth middleware. The unauthenticated /healthz and /metrics routes
// are not here; HealthHandler serves them on a separate listener per
// SPEC_FULL.md §7 (metrics scraping never competes with ingest for
// connection slots).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/traces", s.handleIngestTraces)
	mux.HandleFunc("GET /api/v1/metrics/timeseries", s.handleTimeseries)
	mux.HandleFunc("GET /api/v1/projects/{project_id}/metrics", s.handleProjectMetrics)
	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/evals/geval", s.handleGEval)
	mux.HandleFunc("POST /api/v1/evals/ragas", s.handleRAGAS)
	mux.HandleFunc("GET /api/v1/evals/trace/{trace_id}/history", s.handleEvalHistory)
	mux.HandleFunc("GET /api/v1/flywheel/candidates", s.handleFlywheelCandidates)
	mux.HandleFunc("POST /api/v1/flywheel/export", s.handleFlywheelExport)

	return authMiddleware(s.auth, s.withRequestLog(mux))
}

// HealthHandler is the unauthenticated liveness/metrics mux, meant to
// be bound to METRICS_ADDR, a separate listener from the API.
func (s *Server) HealthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// withRequestLog wraps next with a per-request structured log line and
// feeds observed latency back into the admission controller's
// adaptive circuit breaker, matching the teacher's completion-path
// latency reporting.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
		if s.admission != nil {
			s.admission.ObserveLatency(elapsedMs)
		}
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
