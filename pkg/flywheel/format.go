// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package flywheel

import "fmt"

// Format selects the JSONL dialect Render produces.
type Format string

const (
	FormatNative            Format = "native"
	FormatChatML            Format = "chatml"
	FormatProviderMessages   Format = "provider_messages"
	FormatInstructionTuning  Format = "instruction_tuning"
)

// chatMessage is the shared shape behind ChatML and provider-messages
// rendering; both use the same "messages" envelope, and
// provider-messages adds a leading system message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Render converts one labeled sample into the record for format f.
// The caller marshals the returned value to JSON and writes one line
// per sample (JSONL).
func Render(f Format, s LabeledSample) (interface{}, error) {
	switch f {
	case FormatNative:
		return map[string]interface{}{
			"trace_id": s.TraceID,
			"input":    s.Input,
			"output":   s.Output,
			"score":    s.Score,
			"label":    labelString(s.Label),
			"metadata": s.Metadata,
		}, nil

	case FormatChatML:
		return map[string]interface{}{
			"messages": []chatMessage{
				{Role: "user", Content: s.Input},
				{Role: "assistant", Content: s.Output},
			},
		}, nil

	case FormatProviderMessages:
		return map[string]interface{}{
			"messages": []chatMessage{
				{Role: "system", Content: "You are a helpful assistant."},
				{Role: "user", Content: s.Input},
				{Role: "assistant", Content: s.Output},
			},
		}, nil

	case FormatInstructionTuning:
		return map[string]interface{}{
			"instruction": s.Input,
			"output":      s.Output,
		}, nil

	default:
		return nil, fmt.Errorf("flywheel: unknown format %q", f)
	}
}

func labelString(l Label) string {
	switch l {
	case LabelPositive:
		return "positive"
	case LabelNegative:
		return "negative"
	default:
		return "skip"
	}
}
