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

// Package edge defines the canonical trace record ("edge") ingested by
// the backend: one agent step, fixed-width header plus an optional
// payload blob addressed by edge ID.
package edge

import (
	"strings"

	"github.com/google/uuid"
)

// SpanType enumerates the kind of agent step an Edge represents. The
// numeric encoding is stable across versions: new kinds are appended,
// never renumbered, since SSTables persist the raw byte.
type SpanType uint8

const (
	SpanRoot SpanType = iota
	SpanPlanning
	SpanReasoning
	SpanToolCall
	SpanToolResponse
	SpanSynthesis
	SpanResponse
	SpanError
	SpanRetrieval
	SpanHTTPCall
	SpanDatabase
	SpanCustom SpanType = 255
)

func (s SpanType) String() string {
	switch s {
	case SpanRoot:
		return "root"
	case SpanPlanning:
		return "planning"
	case SpanReasoning:
		return "reasoning"
	case SpanToolCall:
		return "tool_call"
	case SpanToolResponse:
		return "tool_response"
	case SpanSynthesis:
		return "synthesis"
	case SpanResponse:
		return "response"
	case SpanError:
		return "error"
	case SpanRetrieval:
		return "retrieval"
	case SpanHTTPCall:
		return "http_call"
	case SpanDatabase:
		return "database"
	default:
		return "custom"
	}
}

// IsToolLike reports whether the span type participates in trajectory
// efficiency analysis (C13).
func (s SpanType) IsToolLike() bool {
	switch s {
	case SpanToolCall, SpanToolResponse, SpanRetrieval, SpanHTTPCall, SpanDatabase:
		return true
	default:
		return false
	}
}

// Environment is the deployment environment an edge was recorded in.
type Environment uint8

const (
	EnvDev Environment = iota
	EnvStaging
	EnvProd
	EnvTest
)

// ParseEnvironment parses case-insensitively, defaulting to EnvDev for
// unrecognized input so malformed OTLP resource attributes never abort
// ingestion.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "staging":
		return EnvStaging
	case "prod", "production":
		return EnvProd
	case "test":
		return EnvTest
	default:
		return EnvDev
	}
}

func (e Environment) String() string {
	switch e {
	case EnvStaging:
		return "staging"
	case EnvProd:
		return "prod"
	case EnvTest:
		return "test"
	default:
		return "dev"
	}
}

// Edge is one agent step: the unit of ingestion, indexing, and query.
// It is immutable after creation; the only permitted in-place mutation
// is setting IsDeleted via soft delete.
type Edge struct {
	EdgeID        uuid.UUID
	TenantID      uint64
	ProjectID     uint16
	AgentID       uint64
	SessionID     uint64
	CausalParent  uuid.UUID // zero value means root
	SpanType      SpanType
	TimestampUs   int64
	DurationUs    uint32
	TokenCount    uint32
	Environment   Environment
	HasPayload    bool
	IsDeleted     bool
}

// IsRoot reports whether the edge has no causal parent.
func (e *Edge) IsRoot() bool {
	return e.CausalParent == uuid.Nil
}

// Payload is the opaque byte blob addressed by EdgeID. Callers typically
// store JSON with prompt/response text, tool arguments, attributes, and
// events. Sanitization (C18) is applied before it reaches storage.
type Payload struct {
	EdgeID uuid.UUID
	Data   []byte
}

// NewEdgeID generates a fresh 128-bit edge identifier.
func NewEdgeID() uuid.UUID {
	return uuid.New()
}
