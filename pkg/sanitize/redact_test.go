// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sanitize

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestRedactJSONTopLevelKey(t *testing.T) {
	in := `{"api_key": "sk-abc123", "query": "hello"}`
	out := RedactJSON([]byte(in), nil)
	require.Equal(t, redactedPlaceholder, gjson.GetBytes(out, "api_key").String())
	require.Equal(t, "hello", gjson.GetBytes(out, "query").String())
}

func TestRedactJSONNestedKey(t *testing.T) {
	in := `{"args": {"password": "hunter2", "user": "alice"}}`
	out := RedactJSON([]byte(in), nil)
	require.Equal(t, redactedPlaceholder, gjson.GetBytes(out, "args.password").String())
	require.Equal(t, "alice", gjson.GetBytes(out, "args.user").String())
}

func TestRedactJSONLeavesMalformedInputUnchanged(t *testing.T) {
	in := []byte("not json at all")
	out := RedactJSON(in, nil)
	require.Equal(t, in, out)
}

func TestRedactJSONCustomPaths(t *testing.T) {
	in := `{"custom_secret": "xyz"}`
	out := RedactJSON([]byte(in), []string{"custom_secret"})
	require.Equal(t, redactedPlaceholder, gjson.GetBytes(out, "custom_secret").String())
}
