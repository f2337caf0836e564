// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sanitize

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// defaultRedactedPaths are gjson/sjson dot-paths commonly present in
// agent tool-call payloads that must never reach durable storage
// unredacted.
var defaultRedactedPaths = []string{
	"api_key", "apiKey", "authorization", "password", "secret", "token",
	"credentials", "access_token", "refresh_token", "private_key",
}

const redactedPlaceholder = "[REDACTED]"

// RedactJSON walks paths (defaulting to defaultRedactedPaths when nil)
// in payload's top level and any nested object under them, replacing
// matching values with a fixed placeholder. Malformed JSON is
// returned unchanged — redaction never raises structural parse
// errors, since the caller still needs the bytes stored.
func RedactJSON(payload []byte, paths []string) []byte {
	if paths == nil {
		paths = defaultRedactedPaths
	}
	if !gjson.ValidBytes(payload) {
		return payload
	}

	result := string(payload)
	for _, path := range paths {
		result = redactPath(result, path)
	}
	// Also walk one level of nested objects looking for the same key
	// names, since tool-call args are often wrapped in an envelope.
	parsed := gjson.Parse(result)
	parsed.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		for _, path := range paths {
			nested := key.String() + "." + path
			result = redactPath(result, nested)
		}
		return true
	})

	return []byte(result)
}

func redactPath(json, path string) string {
	if !gjson.Get(json, path).Exists() {
		return json
	}
	updated, err := sjson.Set(json, path, redactedPlaceholder)
	if err != nil {
		return json
	}
	return updated
}
