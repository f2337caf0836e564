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

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/weaveloop/weaved/internal/apierr"
	"github.com/weaveloop/weaved/pkg/storagemetrics"
)

func nowMicros() int64 {
	return time.Now().UnixMicro()
}

type timeseriesBucket struct {
	BucketStartUs int64   `json:"bucket_start_us"`
	RequestCount  int64   `json:"request_count"`
	ErrorCount    int64   `json:"error_count"`
	AvgDurationUs float64 `json:"avg_duration_us"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

type timeseriesResponse struct {
	Data     []timeseriesBucket `json:"data"`
	Metadata timeseriesMeta     `json:"metadata"`
}

type timeseriesMeta struct {
	StartUs       int64  `json:"start"`
	EndUs         int64  `json:"end"`
	IntervalSeconds int  `json:"interval"`
	BucketCount   int    `json:"bucket_count"`
}

// handleTimeseries answers GET /api/v1/metrics/timeseries. group_by is
// accepted but not yet implemented beyond the flat series — grouped
// breakdowns require per-agent/per-model sub-indices not yet built on
// top of storagemetrics.Index.
func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startUs, err := strconv.ParseInt(q.Get("start_ts"), 10, 64)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "invalid start_ts", err))
		return
	}
	endUs, err := strconv.ParseInt(q.Get("end_ts"), 10, 64)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "invalid end_ts", err))
		return
	}
	principal, _ := principalFromContext(r.Context())
	projectID := projectIDOf(principal, q.Get("project_id"))

	buckets, gran := s.metrics.Range(projectID, startUs, endUs, 500)
	out := make([]timeseriesBucket, 0, len(buckets))
	for _, b := range buckets {
		avgDur := 0.0
		if b.RequestCount > 0 {
			avgDur = float64(b.TotalDurationUs) / float64(b.RequestCount)
		}
		out = append(out, timeseriesBucket{
			BucketStartUs: b.BucketStartUs,
			RequestCount:  b.RequestCount,
			ErrorCount:    b.ErrorCount,
			AvgDurationUs: avgDur,
			TotalTokens:   b.TotalTokens,
			TotalCostUSD:  float64(b.TotalCostMicros) / 1_000_000,
		})
	}

	writeJSON(w, http.StatusOK, timeseriesResponse{
		Data: out,
		Metadata: timeseriesMeta{
			StartUs: startUs, EndUs: endUs,
			IntervalSeconds: int(granularitySeconds(gran)),
			BucketCount:     len(out),
		},
	})
}

func granularitySeconds(g storagemetrics.Granularity) int64 {
	switch g {
	case storagemetrics.Hour:
		return 3600
	case storagemetrics.Day:
		return 86400
	default:
		return 60
	}
}

// handleProjectMetrics answers GET /api/v1/projects/{project_id}/metrics:
// 24h latency/token percentiles and cost, per spec.md §6.2.
func (s *Server) handleProjectMetrics(w http.ResponseWriter, r *http.Request) {
	projectID64, err := strconv.ParseUint(r.PathValue("project_id"), 10, 16)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "invalid project_id", err))
		return
	}
	projectID := uint16(projectID64)

	nowUs := nowMicros()
	dayAgoUs := nowUs - 24*3600*1_000_000
	buckets, _ := s.metrics.Range(projectID, dayAgoUs, nowUs, 1)

	durations := make([]float64, 0)
	tokens := make([]float64, 0)
	var totalCostMicros int64
	for _, b := range buckets {
		if b.RequestCount == 0 {
			continue
		}
		durations = append(durations, float64(b.TotalDurationUs)/float64(b.RequestCount))
		tokens = append(tokens, float64(b.TotalTokens)/float64(b.RequestCount))
		totalCostMicros += b.TotalCostMicros
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project_id":     projectID,
		"latency_p50_us": percentileOf(durations, 50),
		"latency_p80_us": percentileOf(durations, 80),
		"latency_p90_us": percentileOf(durations, 90),
		"latency_p95_us": percentileOf(durations, 95),
		"latency_p99_us": percentileOf(durations, 99),
		"tokens_p50":     percentileOf(tokens, 50),
		"tokens_p80":     percentileOf(tokens, 80),
		"tokens_p90":     percentileOf(tokens, 90),
		"total_cost_usd": float64(totalCostMicros) / 1_000_000,
	})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type queryInterpretation struct {
	ModelFilter string `json:"model_filter,omitempty"`
	ErrorFilter bool   `json:"error_filter"`
	MinTokens   int    `json:"min_tokens,omitempty"`
	TimeRange   string `json:"time_range,omitempty"`
}

// handleSearch answers POST /api/v1/search. It interprets a handful of
// reserved natural-language tokens (time windows, token thresholds,
// model aliases) per spec.md §6.2, then falls back to ContentSearch
// over the resolved time range.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "malformed search request", err))
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	principal, _ := principalFromContext(r.Context())
	projectID := projectIDOf(principal, "")
	svc, err := s.queryFor(projectID)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeStorageIO, "open project query service", err))
		return
	}

	interp := interpretQuery(req.Query)
	nowUs := nowMicros()
	startUs, endUs := resolveTimeRange(interp.TimeRange, nowUs)

	results, err := svc.ContentSearch(r.Context(), principal.TenantID, startUs, endUs, req.Query, req.Limit)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeStorageIO, "content search", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":              results,
		"count":                len(results),
		"query_interpretation": interp,
	})
}

// interpretQuery recognizes spec.md's reserved query tokens: relative
// time windows, "more than N"/">N" token thresholds, and a small set
// of model aliases.
func interpretQuery(query string) queryInterpretation {
	lower := strings.ToLower(query)
	out := queryInterpretation{}

	switch {
	case strings.Contains(lower, "last hour"):
		out.TimeRange = "last_hour"
	case strings.Contains(lower, "last 6 hours"):
		out.TimeRange = "last_6_hours"
	case strings.Contains(lower, "last day"):
		out.TimeRange = "last_day"
	case strings.Contains(lower, "last week"):
		out.TimeRange = "last_week"
	}

	for alias, canonical := range map[string]string{
		"gpt-4":   "gpt-4",
		"gpt-3.5": "gpt-3.5",
		"claude":  "claude",
		"gemini":  "gemini",
	} {
		if strings.Contains(lower, alias) {
			out.ModelFilter = canonical
			break
		}
	}

	if strings.Contains(lower, "error") {
		out.ErrorFilter = true
	}

	if n, ok := parseMinTokens(lower); ok {
		out.MinTokens = n
	}

	return out
}

func parseMinTokens(lower string) (int, bool) {
	for _, marker := range []string{"more than ", ">"} {
		idx := strings.Index(lower, marker)
		if idx == -1 {
			continue
		}
		rest := strings.TrimSpace(lower[idx+len(marker):])
		var digits strings.Builder
		for _, r := range rest {
			if r < '0' || r > '9' {
				break
			}
			digits.WriteRune(r)
		}
		if digits.Len() == 0 {
			continue
		}
		n, err := strconv.Atoi(digits.String())
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

func resolveTimeRange(label string, nowUs int64) (int64, int64) {
	const usPerHour = 3600 * 1_000_000
	switch label {
	case "last_hour":
		return nowUs - usPerHour, nowUs
	case "last_6_hours":
		return nowUs - 6*usPerHour, nowUs
	case "last_day":
		return nowUs - 24*usPerHour, nowUs
	case "last_week":
		return nowUs - 7*24*usPerHour, nowUs
	default:
		return nowUs - 24*usPerHour, nowUs
	}
}

func projectIDOf(p Principal, override string) uint16 {
	if override != "" {
		if v, err := strconv.ParseUint(override, 10, 16); err == nil {
			return uint16(v)
		}
	}
	if p.ProjectID != nil {
		return *p.ProjectID
	}
	return 0
}

func percentileOf(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
