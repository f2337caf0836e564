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

package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/weaveloop/weaved/internal/apierr"
	"github.com/weaveloop/weaved/pkg/eval"
)

type evalRequest struct {
	TraceID    string            `json:"trace_id"`
	Criteria   []string          `json:"criteria,omitempty"`
	Weights    map[string]float64 `json:"weights,omitempty"`
	Model      string            `json:"model,omitempty"`
	Input      string            `json:"input,omitempty"`
	Output     string            `json:"output,omitempty"`
	Context    []string          `json:"context,omitempty"`
	Question   string            `json:"question,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	GroundTruth string           `json:"ground_truth,omitempty"`
}

// buildTraceContext resolves trace_id against the owning project's
// query service and assembles an eval.TraceContext, filling
// input/output from the request body when the caller supplies them
// directly rather than relying on stored payload content.
func (s *Server) buildTraceContext(r *http.Request, req evalRequest) (*eval.TraceContext, error) {
	principal, _ := principalFromContext(r.Context())
	traceID, err := uuid.Parse(req.TraceID)
	if err != nil {
		return nil, apierr.New(apierr.CodeInvalidInput, "invalid trace_id", err)
	}

	projectID := projectIDOf(principal, "")
	svc, err := s.queryFor(projectID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageIO, "open project query service", err)
	}

	trace, payloads, err := svc.GetTraceWithPayloads(r.Context(), principal.TenantID, traceID)
	if err != nil {
		return nil, apierr.New(apierr.CodeNotFound, "trace not found", err)
	}
	if len(trace) == 0 {
		return nil, apierr.New(apierr.CodeNotFound, "trace not found", nil)
	}

	root := trace[0]
	descendants := trace[1:]

	metadata := map[string]string{}
	if req.Model != "" {
		metadata["model"] = req.Model
	}
	if req.GroundTruth != "" {
		metadata["ground_truth"] = req.GroundTruth
	}

	return s.runtime.BuildTraceContext(root, descendants, req.Input, req.Output, req.Context, payloads, metadata), nil
}

func (s *Server) handleGEval(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "malformed geval request", err))
		return
	}

	tc, err := s.buildTraceContext(r, req)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	results, err := s.runtime.Evaluate(r.Context(), tc, []string{"llmjudge.geval"}, eval.Criteria(req.Criteria))
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeDependency, "geval evaluation failed", err))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRAGAS(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "malformed ragas request", err))
		return
	}
	req.Input = req.Question
	req.Output = req.Answer

	tc, err := s.buildTraceContext(r, req)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	results, err := s.runtime.Evaluate(r.Context(), tc, []string{"llmjudge.ragas"}, nil)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeDependency, "ragas evaluation failed", err))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleEvalHistory answers GET /api/v1/evals/trace/{trace_id}/history
// by replaying the evaluation log and filtering to the requested
// trace, since the log (not the result cache) is the durable history
// of every evaluation ever run.
func (s *Server) handleEvalHistory(w http.ResponseWriter, r *http.Request) {
	traceID, err := uuid.Parse(r.PathValue("trace_id"))
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "invalid trace_id", err))
		return
	}

	var history []eval.LogEntry
	err = eval.ReplayLog(s.evalLogPath, func(entry eval.LogEntry) error {
		if entry.TraceID == traceID {
			history = append(history, entry)
		}
		return nil
	})
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeStorageIO, "replay evaluation log", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"trace_id": traceID, "history": history})
}
