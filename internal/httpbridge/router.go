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

// Package httpbridge serves the Kafka REST protocol over HTTP.
package httpbridge

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/novatechflow/kafscale-bridge/internal/metrics"
	"github.com/novatechflow/kafscale-bridge/pkg/bridge"
	"github.com/novatechflow/kafscale-bridge/pkg/config"
	"github.com/novatechflow/kafscale-bridge/pkg/cors"
)

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Config   config.BridgeConfig
	Registry *bridge.Registry
	Producer *bridge.ProducerGateway
	Admin    *bridge.AdminGateway
	Metrics  *metrics.Registry
	Logger   *slog.Logger
	Version  string
	// Ready reports whether the bridge accepts traffic. Nil means always ready.
	Ready func() bool
}

type handlers struct {
	cfg      config.BridgeConfig
	registry *bridge.Registry
	producer *bridge.ProducerGateway
	admin    *bridge.AdminGateway
	logger   *slog.Logger
	version  string
	ready    func() bool
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// NewRouter wires middleware and routes. Consumer and producer routes are
// only registered when enabled, so disabled endpoints answer 404, or 405
// where another method shares the path.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		cfg:      d.Config,
		registry: d.Registry,
		producer: d.Producer,
		admin:    d.Admin,
		logger:   logger,
		version:  d.Version,
		ready:    d.Ready,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe(logger, d.Metrics))
	r.Use(middleware.Recoverer)
	if d.Config.HTTP.RateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(d.Config.HTTP.RateLimit), d.Config.HTTP.RateBurst)
		r.Use(limit(limiter, d.Metrics.RateLimit))
	}
	r.Use(cors.NewPolicy(d.Config.HTTP.CORS).Middleware(logger, d.Metrics.CORSRejection, cors.WithRouteCheck(func(req *http.Request) bool {
		return routed(r, req.URL.Path)
	})))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", h.info)
	r.Get("/healthy", h.healthy)
	r.Get("/ready", h.readiness)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	if d.Config.HTTP.ConsumerEnabled {
		r.Post("/consumers/{group}", h.createConsumer)
		r.Delete("/consumers/{group}/instances/{name}", h.deleteConsumer)
		r.Post("/consumers/{group}/instances/{name}/subscription", h.subscribe)
		r.Get("/consumers/{group}/instances/{name}/subscription", h.listSubscription)
		r.Delete("/consumers/{group}/instances/{name}/subscription", h.unsubscribe)
		r.Post("/consumers/{group}/instances/{name}/assignments", h.assign)
		r.Get("/consumers/{group}/instances/{name}/records", h.poll)
		r.Post("/consumers/{group}/instances/{name}/offsets", h.commit)
		r.Post("/consumers/{group}/instances/{name}/positions", h.seek)
		r.Post("/consumers/{group}/instances/{name}/positions/beginning", h.seekToBeginning)
		r.Post("/consumers/{group}/instances/{name}/positions/end", h.seekToEnd)
	}
	if d.Config.HTTP.ProducerEnabled {
		r.Post("/topics/{topic}", h.produce)
		r.Post("/topics/{topic}/partitions/{partitionid}", h.produceToPartition)
	}
	r.Get("/topics", h.listTopics)
	r.Get("/topics/{topic}", h.describeTopic)
	r.Get("/topics/{topic}/partitions", h.listPartitions)
	r.Get("/topics/{topic}/partitions/{partitionid}", h.describePartition)
	r.Get("/topics/{topic}/partitions/{partitionid}/offsets", h.partitionOffsets)
	r.Post("/admin/topics", h.createTopic)
	return r
}

var routeMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

// routed reports whether any method is registered for path.
func routed(routes chi.Routes, path string) bool {
	for _, m := range routeMethods {
		if routes.Match(chi.NewRouteContext(), m, path) {
			return true
		}
	}
	return false
}

type infoResponse struct {
	BridgeVersion string `json:"bridge_version"`
	BridgeID      string `json:"bridge_id,omitempty"`
}

func (h *handlers) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ContentTypeJSON, infoResponse{BridgeVersion: h.version, BridgeID: h.cfg.BridgeID})
}

func (h *handlers) healthy(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) readiness(w http.ResponseWriter, _ *http.Request) {
	if h.ready != nil && !h.ready() {
		writeStatus(w, http.StatusServiceUnavailable, "bridge is not ready")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
