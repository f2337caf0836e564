// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package query implements the read-path API: range listing,
// semantic and content search, trace assembly, all cursor-paginated
// rather than offset-paginated so results stay stable under
// concurrent writes.
package query

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Cursor encodes the last-seen (timestamp, edge_id) pair so the next
// page resumes exactly where the last one left off, immune to rows
// inserted or deleted in between pages.
type Cursor struct {
	TimestampUs int64
	EdgeID      uuid.UUID
}

func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d:%s", c.TimestampUs, c.EdgeID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("query: invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("query: malformed cursor")
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("query: malformed cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, fmt.Errorf("query: malformed cursor edge_id: %w", err)
	}
	return Cursor{TimestampUs: ts, EdgeID: id}, nil
}

// isPast reports whether (tsUs, id) is strictly before the cursor
// position, for filtering an already-sorted page.
func (c Cursor) isPast(tsUs int64, id uuid.UUID) bool {
	if tsUs != c.TimestampUs {
		return tsUs < c.TimestampUs
	}
	return id.String() < c.EdgeID.String()
}
