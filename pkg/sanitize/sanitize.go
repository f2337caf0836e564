// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sanitize enforces size/count caps on ingested payloads,
// escapes content that could be replayed into an HTML context, flags
// likely SQL-injection attempts for logging, and redacts sensitive
// JSON fields before they reach durable storage.
package sanitize

import (
	"fmt"
	"html"
	"regexp"
)

// Limits bounds what one ingested edge payload may contain.
type Limits struct {
	MaxPayloadBytes int
	MaxFieldCount   int
	MaxStringLength int
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 1 << 20, MaxFieldCount: 256, MaxStringLength: 65536}
}

var (
	ErrPayloadTooLarge = fmt.Errorf("sanitize: payload exceeds max size")
	ErrTooManyFields   = fmt.Errorf("sanitize: field count exceeds limit")
	ErrStringTooLong   = fmt.Errorf("sanitize: string field exceeds max length")
)

// CheckSize enforces the byte-size cap before any parsing is
// attempted, so an oversized payload is rejected cheaply.
func CheckSize(limits Limits, payload []byte) error {
	if len(payload) > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

// CheckFieldCount enforces the top-level field-count cap on an
// already-parsed map.
func CheckFieldCount(limits Limits, fields map[string]interface{}) error {
	if len(fields) > limits.MaxFieldCount {
		return ErrTooManyFields
	}
	return nil
}

// CheckStringLength enforces the per-string length cap.
func CheckStringLength(limits Limits, s string) error {
	if len(s) > limits.MaxStringLength {
		return ErrStringTooLong
	}
	return nil
}

// EscapeForDisplay HTML-escapes text so it is safe to render into an
// HTML context (the query UI) without allowing script injection.
func EscapeForDisplay(s string) string {
	return html.EscapeString(s)
}

// sqlInjectionPatterns are common tell-tale token sequences; this is
// a heuristic flag for logging/alerting, not an enforcement gate — a
// false positive must never block ingestion, only annotate it.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i);\s*drop\s+table\b`),
	regexp.MustCompile(`(?i)--\s*$`),
	regexp.MustCompile(`(?i)\bxp_cmdshell\b`),
}

// LooksLikeSQLInjection reports whether s contains a common
// SQL-injection token sequence. It is intentionally a heuristic: use
// it to flag and log, never to silently reject legitimate input.
func LooksLikeSQLInjection(s string) bool {
	for _, p := range sqlInjectionPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
