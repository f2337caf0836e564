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

// Package apierr translates the domain error taxonomy (invalid input,
// rate-limited, auth, storage I/O, corruption, dependency, internal
// invariant) into stable HTTP status codes and response bodies, and the
// equivalent gRPC status codes for the OTLP ingest path.
package apierr

import (
	"encoding/json"
	"net/http"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is the stable, client-facing error code. These strings are part
// of the external contract and must not change once shipped.
type Code string

const (
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeStorageIO         Code = "STORAGE_IO"
	CodeDependency        Code = "DEPENDENCY_FAILURE"
	CodeInternal          Code = "INTERNAL"
)

// Error is a taxonomy-tagged error carrying everything needed to
// render a client response, wrapping an underlying cause for logging.
type Error struct {
	Code         Code
	Message      string
	RetryAfterMs int64 // only meaningful for CodeRateLimited / CodeServiceUnavailable
	cause        error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithRetryAfter attaches a retry-after hint, used for 429/503 bodies
// and the matching HTTP header.
func (e *Error) WithRetryAfter(ms int64) *Error {
	e.RetryAfterMs = ms
	return e
}

// httpStatus maps a taxonomy Code to the status line spec.md §7 requires.
func httpStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeStorageIO, CodeDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// responseBody is the wire shape for every error response: `{error,
// code, retry_after_ms?}`.
type responseBody struct {
	Error        string `json:"error"`
	Code         Code   `json:"code"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// WriteHTTP writes err as a JSON error response with the correct
// status code, and a Retry-After header when the code carries one.
func WriteHTTP(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = New(CodeInternal, "internal error", err)
	}

	status := httpStatus(apiErr.Code)
	if apiErr.RetryAfterMs > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(apiErr.RetryAfterMs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(responseBody{
		Error:        apiErr.Message,
		Code:         apiErr.Code,
		RetryAfterMs: apiErr.RetryAfterMs,
	})
}

func retryAfterSeconds(ms int64) string {
	return strconv.FormatInt(ms/1000+1, 10)
}

// grpcCode maps a taxonomy Code to the nearest gRPC status code, for
// the OTLP ingest service (§6.3).
func grpcCode(code Code) codes.Code {
	switch code {
	case CodeInvalidInput:
		return codes.InvalidArgument
	case CodeUnauthorized:
		return codes.Unauthenticated
	case CodeForbidden:
		return codes.PermissionDenied
	case CodeNotFound:
		return codes.NotFound
	case CodeRateLimited:
		return codes.ResourceExhausted
	case CodeServiceUnavailable:
		return codes.Unavailable
	case CodeStorageIO, CodeDependency:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// ToGRPCStatus converts err into a *status.Status error suitable for
// returning from a gRPC handler.
func ToGRPCStatus(err error) error {
	apiErr, ok := err.(*Error)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(grpcCode(apiErr.Code), apiErr.Message)
}
