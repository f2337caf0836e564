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

	"github.com/weaveloop/weaved/internal/apierr"
	"github.com/weaveloop/weaved/pkg/flywheel"
)

// handleFlywheelCandidates answers GET /api/v1/flywheel/candidates:
// two lists of candidate traces split by the positive/negative
// threshold, without writing an export file.
func (s *Server) handleFlywheelCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	thresholds := flywheel.DefaultThresholds()
	if v := q.Get("positive_threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			thresholds.PositiveMin = f
		}
	}
	if v := q.Get("negative_threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			thresholds.NegativeMax = f
		}
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	samples, err := s.exporter.Source()()
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeStorageIO, "loading flywheel candidates", err))
		return
	}

	labeled := flywheel.Filter(thresholds, samples)
	var positive, negative []flywheel.LabeledSample
	for _, l := range labeled {
		switch l.Label {
		case flywheel.LabelPositive:
			if len(positive) < limit {
				positive = append(positive, l)
			}
		case flywheel.LabelNegative:
			if len(negative) < limit {
				negative = append(negative, l)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positive": positive,
		"negative": negative,
	})
}

type flywheelExportRequest struct {
	PositiveThreshold float64 `json:"positive_threshold"`
	NegativeThreshold float64 `json:"negative_threshold"`
	MaxExamples       int     `json:"max_examples"`
	Format            string  `json:"format"`
	IncludeScores     bool    `json:"include_scores"`
}

// handleFlywheelExport answers POST /api/v1/flywheel/export by running
// one export tick immediately with request-scoped thresholds/format,
// outside the cron schedule.
func (s *Server) handleFlywheelExport(w http.ResponseWriter, r *http.Request) {
	var req flywheelExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInvalidInput, "malformed export request", err))
		return
	}

	format := flywheel.Format(req.Format)
	if err := s.exporter.RunOnceWith(flywheel.Thresholds{
		PositiveMin: req.PositiveThreshold,
		NegativeMax: req.NegativeThreshold,
	}, format, req.MaxExamples); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeInternal, "flywheel export failed", err))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
