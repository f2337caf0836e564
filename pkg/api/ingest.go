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
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/weaveloop/weaved/internal/apierr"
	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/sanitize"
)

// ingestSpan is the wire shape accepted at POST /api/v1/traces: the
// native edge representation (OTLP-shaped spans are normalized into
// this same shape by the OTLP gRPC service before reaching storage).
type ingestSpan struct {
	EdgeID       string                 `json:"edge_id,omitempty"`
	ProjectID    uint16                 `json:"project_id"`
	AgentID      uint64                 `json:"agent_id"`
	SessionID    uint64                 `json:"session_id"`
	CausalParent string                 `json:"causal_parent,omitempty"`
	SpanType     string                 `json:"span_type"`
	TimestampUs  int64                  `json:"timestamp_us"`
	DurationUs   uint32                 `json:"duration_us"`
	TokenCount   uint32                 `json:"token_count"`
	Environment  string                 `json:"environment,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

var spanTypeByName = map[string]edge.SpanType{
	"root":          edge.SpanRoot,
	"planning":      edge.SpanPlanning,
	"reasoning":     edge.SpanReasoning,
	"tool_call":     edge.SpanToolCall,
	"tool_response": edge.SpanToolResponse,
	"synthesis":     edge.SpanSynthesis,
	"response":      edge.SpanResponse,
	"error":         edge.SpanError,
	"retrieval":     edge.SpanRetrieval,
	"http_call":     edge.SpanHTTPCall,
	"database":      edge.SpanDatabase,
}

func parseSpanType(s string) edge.SpanType {
	if t, ok := spanTypeByName[s]; ok {
		return t
	}
	return edge.SpanCustom
}

func (s *Server) handleIngestTraces(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.limits.MaxPayloadBytes)+1))
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "reading request body", err))
		return
	}
	if err := sanitize.CheckSize(s.limits, body); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "request body too large", err))
		return
	}

	var spans []ingestSpan
	if err := json.Unmarshal(body, &spans); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "malformed trace payload", err))
		return
	}

	decision := s.admission.TryAcquire(float64(len(spans)), firstSpanName(spans))
	if !decision.Admitted {
		code := apierr.CodeRateLimited
		if s.admission.CircuitOpen() {
			code = apierr.CodeServiceUnavailable
		}
		retryAfterMs := decision.RetryAfterMs
		if retryAfterMs == 0 {
			retryAfterMs = 1000
		}
		apierr.WriteHTTP(w, apierr.New(code, "ingest temporarily throttled", nil).WithRetryAfter(retryAfterMs))
		return
	}

	for _, span := range spans {
		if err := s.ingestOne(principal.TenantID, span); err != nil {
			apierr.WriteHTTP(w, err)
			return
		}
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) ingestOne(tenantID uint64, span ingestSpan) error {
	eng, err := s.projects.GetOrOpen(span.ProjectID)
	if err != nil {
		return apierr.New(apierr.CodeStorageIO, "open project storage", err)
	}

	edgeID := uuid.New()
	if span.EdgeID != "" {
		if parsed, err := uuid.Parse(span.EdgeID); err == nil {
			edgeID = parsed
		}
	}
	var parent uuid.UUID
	if span.CausalParent != "" {
		if parsed, err := uuid.Parse(span.CausalParent); err == nil {
			parent = parsed
		}
	}

	ed := edge.Edge{
		EdgeID:       edgeID,
		TenantID:     tenantID,
		ProjectID:    span.ProjectID,
		AgentID:      span.AgentID,
		SessionID:    span.SessionID,
		CausalParent: parent,
		SpanType:     parseSpanType(span.SpanType),
		// HLC-compensated so two spans on the same session never
		// land on the same or a decreasing timestamp_us, even when
		// the producer's wall clock stalls or skews between calls.
		TimestampUs: s.clock.NextMicros(span.SessionID, span.TimestampUs),
		DurationUs:  span.DurationUs,
		TokenCount:  span.TokenCount,
		Environment: edge.ParseEnvironment(span.Environment),
	}

	var payload []byte
	if span.Payload != nil {
		if err := sanitize.CheckFieldCount(s.limits, span.Payload); err != nil {
			return apierr.New(apierr.CodeInvalidInput, "span payload has too many fields", err)
		}
		raw, err := json.Marshal(span.Payload)
		if err != nil {
			return apierr.New(apierr.CodeInvalidInput, "malformed span payload", err)
		}
		payload = sanitize.RedactJSON(raw, nil)
		ed.HasPayload = true
	}

	if err := eng.Put(ed, payload); err != nil {
		return apierr.New(apierr.CodeStorageIO, "persist span", err)
	}
	s.metrics.Insert(ed)
	return nil
}

func firstSpanName(spans []ingestSpan) string {
	if len(spans) == 0 {
		return ""
	}
	return spans[0].SpanType
}
