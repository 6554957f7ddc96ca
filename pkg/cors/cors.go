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

// Package cors evaluates cross-origin requests against the configured
// origin and method allow lists.
package cors

import (
	"net/http"
	"strings"

	"github.com/novatechflow/kafscale-bridge/pkg/config"
)

// RejectionMessage is sent as the HTTP status text of a rejected request.
const RejectionMessage = "CORS Rejected - Invalid origin"

const (
	HeaderOrigin        = "Origin"
	HeaderRequestMethod = "Access-Control-Request-Method"
	HeaderAllowOrigin   = "Access-Control-Allow-Origin"
	HeaderAllowMethods  = "Access-Control-Allow-Methods"
	HeaderAllowHeaders  = "Access-Control-Allow-Headers"
)

// AllowedHeaders is the fixed header list advertised on preflight.
var AllowedHeaders = []string{
	"access-control-allow-origin",
	"content-length",
	"x-forwarded-proto",
	"x-forwarded-host",
	"origin",
	"x-requested-with",
	"content-type",
	"access-control-allow-methods",
	"accept",
}

// Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	enabled      bool
	anyOrigin    bool
	origins      map[string]struct{}
	methods      []string
	allowMethods string
	allowHeaders string
}

// Decision is the outcome of evaluating a single request.
type Decision struct {
	// Handled is false when the policy is disabled or the request carries no Origin.
	Handled   bool
	Allowed   bool
	Preflight bool
	// AllowedMethods is the configured list, in configuration order.
	AllowedMethods []string
	// Headers holds the response headers to apply when Allowed.
	Headers http.Header
	// Message is RejectionMessage for rejected requests.
	Message string
}

// NewPolicy builds a policy from configuration. A disabled policy passes
// every request through untouched.
func NewPolicy(cfg config.CORSConfig) *Policy {
	p := &Policy{
		enabled:      cfg.Enabled,
		origins:      make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods:      append([]string(nil), cfg.AllowedMethods...),
		allowMethods: strings.Join(cfg.AllowedMethods, ","),
		allowHeaders: strings.Join(AllowedHeaders, ","),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[strings.TrimSuffix(origin, "/")] = struct{}{}
	}
	return p
}

// Enabled reports whether cross-origin checks are active.
func (p *Policy) Enabled() bool {
	return p != nil && p.enabled
}

// Evaluate decides how a request with the given method, Origin header and
// Access-Control-Request-Method header must be treated. Only the origin is
// checked; the method list is advertised and the browser enforces it.
func (p *Policy) Evaluate(method, origin, requestMethod string) Decision {
	if !p.Enabled() || origin == "" {
		return Decision{}
	}
	decision := Decision{
		Handled:   true,
		Preflight: method == http.MethodOptions && requestMethod != "",
	}
	if !p.originAllowed(origin) {
		decision.Message = RejectionMessage
		return decision
	}

	decision.Allowed = true
	decision.AllowedMethods = p.methods
	decision.Headers = http.Header{}
	decision.Headers.Set(HeaderAllowOrigin, origin)
	if decision.Preflight {
		decision.Headers.Set(HeaderAllowMethods, p.allowMethods)
		decision.Headers.Set(HeaderAllowHeaders, p.allowHeaders)
	}
	return decision
}

func (p *Policy) originAllowed(origin string) bool {
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[strings.TrimSuffix(origin, "/")]
	return ok
}

// Apply copies the decision headers onto h.
func (d Decision) Apply(h http.Header) {
	for k, vals := range d.Headers {
		for _, v := range vals {
			h.Set(k, v)
		}
	}
}
