// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAPIKeysTenantAndProject(t *testing.T) {
	keys, err := ParseAPIKeys("abc:1,def:2:7")
	require.NoError(t, err)
	require.Equal(t, Principal{TenantID: 1}, keys["abc"])
	require.Equal(t, uint64(2), keys["def"].TenantID)
	require.NotNil(t, keys["def"].ProjectID)
	require.Equal(t, uint16(7), *keys["def"].ProjectID)
}

func TestParseAPIKeysEmpty(t *testing.T) {
	keys, err := ParseAPIKeys("")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestParseAPIKeysMalformedErrors(t *testing.T) {
	_, err := ParseAPIKeys("justakey")
	require.Error(t, err)
}

func TestAuthMiddlewareDisabledResolvesTenantZero(t *testing.T) {
	var captured Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = principalFromContext(r.Context())
	})
	handler := authMiddleware(AuthConfig{Enabled: false}, next)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, uint64(0), captured.TenantID)
}

func TestAuthMiddlewareMissingKeyRejected(t *testing.T) {
	handler := authMiddleware(AuthConfig{Enabled: true, APIKeys: map[string]Principal{}}, http.NotFoundHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareValidKeyResolvesPrincipal(t *testing.T) {
	var captured Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = principalFromContext(r.Context())
	})
	handler := authMiddleware(AuthConfig{Enabled: true, APIKeys: map[string]Principal{"k1": {TenantID: 9}}}, next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "k1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, uint64(9), captured.TenantID)
}
