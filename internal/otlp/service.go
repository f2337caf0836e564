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

// Package otlp implements the OTLP/trace gRPC Export service (§6.3):
// standard OTLP spans are normalized into native edges and persisted
// through the same project-routed storage path as the HTTP ingest API.
package otlp

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/weaveloop/weaved/internal/apierr"
	"github.com/weaveloop/weaved/pkg/edge"
	"github.com/weaveloop/weaved/pkg/sanitize"
	"github.com/weaveloop/weaved/pkg/storagemetrics"
)

// Store is the routed, per-project write path the service persists
// normalized edges through — implemented by pkg/project.Manager at
// the call site.
type Store interface {
	GetOrOpenAndPut(projectID uint16, ed edge.Edge, payload []byte) error
}

// Service implements coltracepb.TraceServiceServer.
type Service struct {
	coltracepb.UnimplementedTraceServiceServer

	store   Store
	metrics *storagemetrics.Index
	limits  sanitize.Limits
	log     *zap.Logger
	clock   *edge.Clock
}

func NewService(store Store, metrics *storagemetrics.Index, limits sanitize.Limits, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, metrics: metrics, limits: limits, log: log, clock: edge.NewClock()}
}

// Export implements the standard OTLP/trace Export RPC. It normalizes
// every span in every resource/scope into a native edge and persists
// it; on full acceptance it acknowledges with an empty partial_success,
// per spec.md §6.3.
func (s *Service) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	for _, rs := range req.GetResourceSpans() {
		tenantID, projectID := resolveRouting(rs.GetResource())

		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				ed, payload, err := s.normalizeSpan(tenantID, projectID, span)
				if err != nil {
					return nil, apierr.ToGRPCStatus(err)
				}
				if err := s.store.GetOrOpenAndPut(projectID, ed, payload); err != nil {
					return nil, apierr.ToGRPCStatus(apierr.New(apierr.CodeStorageIO, "persist otlp span", err))
				}
				s.metrics.Insert(ed)
			}
		}
	}

	return &coltracepb.ExportTraceServiceResponse{}, nil
}

func (s *Service) normalizeSpan(tenantID uint64, projectID uint16, span *tracepb.Span) (edge.Edge, []byte, error) {
	edgeID := deriveUUID(span.GetTraceId(), span.GetSpanId())

	var parent uuid.UUID
	if len(span.GetParentSpanId()) > 0 {
		parent = deriveUUID(span.GetTraceId(), span.GetParentSpanId())
	}

	startUs := int64(span.GetStartTimeUnixNano() / 1000)
	endUs := int64(span.GetEndTimeUnixNano() / 1000)
	durationUs := uint32(0)
	if endUs > startUs {
		durationUs = uint32(endUs - startUs)
	}

	ed := edge.Edge{
		EdgeID:       edgeID,
		TenantID:     tenantID,
		ProjectID:    projectID,
		CausalParent: parent,
		SpanType:     spanTypeFromName(span.GetName()),
		// OTLP carries no native session concept, so every span
		// exported through this RPC shares session 0's HLC sequence;
		// collisions there still get nudged forward deterministically.
		TimestampUs: s.clock.NextMicros(0, startUs),
		DurationUs:  durationUs,
	}

	payloadMap := map[string]interface{}{
		"name":       span.GetName(),
		"attributes": attributesToMap(span.GetAttributes()),
		"events":     eventsToMaps(span.GetEvents()),
	}
	if err := sanitize.CheckFieldCount(s.limits, payloadMap); err != nil {
		return edge.Edge{}, nil, apierr.New(apierr.CodeInvalidInput, "otlp span has too many attributes", err)
	}
	raw, err := json.Marshal(payloadMap)
	if err != nil {
		return edge.Edge{}, nil, apierr.New(apierr.CodeInvalidInput, "marshal otlp span payload", err)
	}
	ed.HasPayload = true
	return ed, sanitize.RedactJSON(raw, nil), nil
}

// deriveUUID maps an OTLP (trace_id, span_id) pair onto a stable UUID
// so the native edge model's 128-bit identity keeps working for
// OTLP-sourced spans, which only carry a 64-bit span id.
func deriveUUID(traceID, spanID []byte) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, append(append([]byte(nil), traceID...), spanID...))
}

// resolveRouting extracts tenant/project routing from resource
// attributes tenant.id/tenant_id and project.id/project_id (string or
// int), per spec.md §6.3.
func resolveRouting(resource *resourcepb.Resource) (uint64, uint16) {
	var tenantID uint64
	var projectID uint16
	for _, kv := range resource.GetAttributes() {
		switch kv.GetKey() {
		case "tenant.id", "tenant_id":
			tenantID = anyValueAsUint64(kv.GetValue())
		case "project.id", "project_id":
			projectID = uint16(anyValueAsUint64(kv.GetValue()))
		}
	}
	return tenantID, projectID
}

func anyValueAsUint64(v *commonpb.AnyValue) uint64 {
	if v == nil {
		return 0
	}
	if iv, ok := v.GetValue().(*commonpb.AnyValue_IntValue); ok {
		return uint64(iv.IntValue)
	}
	if sv, ok := v.GetValue().(*commonpb.AnyValue_StringValue); ok {
		if n, err := strconv.ParseUint(sv.StringValue, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func attributesToMap(attrs []*commonpb.KeyValue) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		out[kv.GetKey()] = anyValueToInterface(kv.GetValue())
	}
	return out
}

func eventsToMaps(events []*tracepb.Span_Event) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		out = append(out, map[string]interface{}{
			"name":       ev.GetName(),
			"attributes": attributesToMap(ev.GetAttributes()),
		})
	}
	return out
}

func anyValueToInterface(v *commonpb.AnyValue) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return val.DoubleValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

// spanTypeFromName maps a span's OTLP name to the closest native
// SpanType; unrecognized names default to SpanCustom rather than
// aborting ingestion.
func spanTypeFromName(name string) edge.SpanType {
	switch name {
	case "tool_call":
		return edge.SpanToolCall
	case "tool_response":
		return edge.SpanToolResponse
	case "retrieval":
		return edge.SpanRetrieval
	case "http_call", "http.client", "http.server":
		return edge.SpanHTTPCall
	case "database", "db.query":
		return edge.SpanDatabase
	case "planning":
		return edge.SpanPlanning
	case "reasoning":
		return edge.SpanReasoning
	case "synthesis":
		return edge.SpanSynthesis
	case "response":
		return edge.SpanResponse
	case "error":
		return edge.SpanError
	default:
		return edge.SpanCustom
	}
}
