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

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kafka_bridge"

// Config selects the optional runtime collectors.
type Config struct {
	IncludeGoCollector      bool
	IncludeProcessCollector bool
	// QueueDepth reports jobs waiting on the worker pool.
	QueueDepth func() int
	// RateWindow is the window of the produce rate gauge.
	RateWindow time.Duration
}

// DefaultConfig enables the runtime collectors.
func DefaultConfig() Config {
	return Config{
		IncludeGoCollector:      true,
		IncludeProcessCollector: true,
		RateWindow:              60 * time.Second,
	}
}

// Registry holds the bridge collectors. A nil *Registry is valid and
// records nothing.
type Registry struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	ConsumersActive  prometheus.Gauge
	ConsumersCreated prometheus.Counter
	ConsumersRemoved *prometheus.CounterVec
	ProducedRecords  *prometheus.CounterVec
	CORSRejected     prometheus.Counter
	RateLimited      prometheus.Counter

	produceRate *throughputTracker
}

// NewRegistry builds and registers all collectors on a private registry.
func NewRegistry(cfg Config) *Registry {
	reg := prometheus.NewRegistry()
	if cfg.IncludeGoCollector {
		reg.MustRegister(collectors.NewGoCollector())
	}
	if cfg.IncludeProcessCollector {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	r := &Registry{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ConsumersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_instances",
			Help:      "Live consumer instances.",
		}),
		ConsumersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_instances_created_total",
			Help:      "Consumer instances created.",
		}),
		ConsumersRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_instances_removed_total",
			Help:      "Consumer instances removed, labeled by reason.",
		}, []string{"reason"}),
		ProducedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "produced_records_total",
			Help:      "Records produced, labeled by result.",
		}, []string{"result"}),
		CORSRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cors_rejected_total",
			Help:      "Requests rejected for an origin outside the allowed list.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter.",
		}),
		produceRate: newThroughputTracker(cfg.RateWindow),
	}
	reg.MustRegister(
		r.HTTPRequests,
		r.HTTPDuration,
		r.ConsumersActive,
		r.ConsumersCreated,
		r.ConsumersRemoved,
		r.ProducedRecords,
		r.CORSRejected,
		r.RateLimited,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "produced_records_per_second",
			Help:      "Successfully produced records per second over the rate window.",
		}, r.produceRate.rate),
	)
	if cfg.QueueDepth != nil {
		depth := cfg.QueueDepth
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Backend jobs waiting for a worker.",
		}, func() float64 { return float64(depth()) }))
	}
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served request.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ConsumerCreated implements bridge.Observer.
func (r *Registry) ConsumerCreated() {
	if r == nil {
		return
	}
	r.ConsumersCreated.Inc()
	r.ConsumersActive.Inc()
}

// ConsumerRemoved implements bridge.Observer.
func (r *Registry) ConsumerRemoved(reason string) {
	if r == nil {
		return
	}
	r.ConsumersRemoved.WithLabelValues(reason).Inc()
	r.ConsumersActive.Dec()
}

// RecordsProduced implements bridge.ProduceObserver.
func (r *Registry) RecordsProduced(succeeded, failed int) {
	if r == nil {
		return
	}
	if succeeded > 0 {
		r.ProducedRecords.WithLabelValues("success").Add(float64(succeeded))
		r.produceRate.add(int64(succeeded))
	}
	if failed > 0 {
		r.ProducedRecords.WithLabelValues("failure").Add(float64(failed))
	}
}

// CORSRejection counts a rejected origin.
func (r *Registry) CORSRejection() {
	if r == nil {
		return
	}
	r.CORSRejected.Inc()
}

// RateLimit counts a throttled request.
func (r *Registry) RateLimit() {
	if r == nil {
		return
	}
	r.RateLimited.Inc()
}
