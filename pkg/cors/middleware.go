// Copyright 2025, 2026 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cors

import (
	"fmt"
	"log/slog"
	"net/http"
)

// MiddlewareOption adjusts Middleware.
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	routed func(*http.Request) bool
}

// WithRouteCheck limits 204 preflight answers to requests routed reports
// true for. Other allowed preflights carry the CORS headers on to next.
func WithRouteCheck(routed func(*http.Request) bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.routed = routed
	}
}

// Middleware applies the policy ahead of routing. Allowed preflights are
// answered with 204 here; rejected requests never reach next.
func (p *Policy) Middleware(logger *slog.Logger, onReject func(), opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	var o middlewareOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get(HeaderOrigin)
			decision := p.Evaluate(r.Method, origin, r.Header.Get(HeaderRequestMethod))
			if !decision.Handled {
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				logger.Debug("cors rejected", "origin", origin, "method", r.Method, "path", r.URL.Path)
				if onReject != nil {
					onReject()
				}
				Reject(w)
				return
			}
			decision.Apply(w.Header())
			if decision.Preflight && (o.routed == nil || o.routed(r)) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Reject writes a 403 whose status line carries RejectionMessage. net/http
// always emits the canonical reason phrase, so HTTP/1 connections are
// hijacked to write the status line directly.
func Reject(w http.ResponseWriter) {
	if hj, ok := w.(http.Hijacker); ok {
		conn, buf, err := hj.Hijack()
		if err == nil {
			defer conn.Close()
			fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", http.StatusForbidden, RejectionMessage)
			fmt.Fprintf(buf, "Content-Length: 0\r\nConnection: close\r\n\r\n")
			_ = buf.Flush()
			return
		}
	}
	w.Header().Set("Connection", "close")
	http.Error(w, RejectionMessage, http.StatusForbidden)
}
