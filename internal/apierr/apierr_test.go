// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWriteHTTPMapsRateLimitedWithRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, New(CodeRateLimited, "too many requests", nil).WithRetryAfter(2500))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "3", rec.Header().Get("Retry-After"))

	var body responseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, CodeRateLimited, body.Code)
	require.Equal(t, int64(2500), body.RetryAfterMs)
}

func TestWriteHTTPUnknownErrorBecomesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body responseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, CodeInternal, body.Code)
}

func TestWriteHTTPInvalidInputIs400(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, New(CodeInvalidInput, "bad payload", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToGRPCStatusMapsCodes(t *testing.T) {
	err := ToGRPCStatus(New(CodeInvalidInput, "bad span", nil))
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.InvalidArgument, st.Code())
}

func TestToGRPCStatusUnknownErrorIsInternal(t *testing.T) {
	err := ToGRPCStatus(errors.New("boom"))
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Internal, st.Code())
}
