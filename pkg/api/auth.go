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
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/weaveloop/weaved/internal/apierr"
)

// Principal is the resolved auth context: {tenant_id, project_id?,
// user_id?} injected by the auth middleware, per spec.md §6.2.
type Principal struct {
	TenantID  uint64
	ProjectID *uint16
	UserID    string
}

type principalKey struct{}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// AuthConfig controls how requests are authenticated. APIKeys maps a
// raw key to its resolved principal, parsed from API_KEYS
// (`key:tenant_id[:project_id]`, comma-separated) per spec.md §6.4.
type AuthConfig struct {
	Enabled bool
	APIKeys map[string]Principal
}

// ParseAPIKeys parses the comma-separated API_KEYS env value into a
// lookup table keyed by raw key.
func ParseAPIKeys(raw string) (map[string]Principal, error) {
	out := make(map[string]Principal)
	if raw == "" {
		return out, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 {
			return nil, apierr.New(apierr.CodeInvalidInput, "malformed API_KEYS entry: "+entry, nil)
		}
		tenantID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, apierr.New(apierr.CodeInvalidInput, "malformed tenant_id in API_KEYS entry: "+entry, err)
		}
		p := Principal{TenantID: tenantID}
		if len(parts) == 3 {
			pid, err := strconv.ParseUint(parts[2], 10, 16)
			if err != nil {
				return nil, apierr.New(apierr.CodeInvalidInput, "malformed project_id in API_KEYS entry: "+entry, err)
			}
			pid16 := uint16(pid)
			p.ProjectID = &pid16
		}
		out[parts[0]] = p
	}
	return out, nil
}

// authMiddleware resolves the calling principal from the X-API-Key
// header and injects it into the request context. When auth is
// disabled, every request resolves to tenant 0 (single-tenant local
// use), matching the teacher's permissive-dev-mode default.
func authMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Enabled {
			ctx := context.WithValue(r.Context(), principalKey{}, Principal{TenantID: 0})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			apierr.WriteHTTP(w, apierr.New(apierr.CodeUnauthorized, "missing X-API-Key header", nil))
			return
		}
		principal, ok := cfg.APIKeys[key]
		if !ok {
			apierr.WriteHTTP(w, apierr.New(apierr.CodeUnauthorized, "unrecognized API key", nil))
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
