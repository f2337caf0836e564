// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llmjudge implements LLM-as-judge evaluators: G-Eval weighted
// criteria scoring and RAGAS's four concurrent retrieval-quality
// sub-metrics, each validating the judge model's JSON response against
// a schema before trusting it.
package llmjudge

import "context"

// Message is a minimal chat message, independent of any one provider
// SDK so a judge can be backed by any Chat-shaped client.
type Message struct {
	Role    string
	Content string
}

// Provider is the judge-facing LLM call surface: a single
// request/response round trip with no tool use.
type Provider interface {
	Model() string
	Chat(ctx context.Context, messages []Message) (string, error)
}
