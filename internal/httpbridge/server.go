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

package httpbridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/novatechflow/kafscale-bridge/internal/metrics"
	"github.com/novatechflow/kafscale-bridge/pkg/bridge"
	"github.com/novatechflow/kafscale-bridge/pkg/config"
	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

const defaultShutdownTimeout = 10 * time.Second

// Options tune a Server beyond the bridge configuration.
type Options struct {
	Logger *slog.Logger
	// Metrics defaults to a registry with the runtime collectors.
	Metrics         *metrics.Registry
	Version         string
	Breaker         bridge.BreakerSettings
	ShutdownTimeout time.Duration
	// Now overrides the clock used for idle tracking.
	Now func() time.Time
}

// Server owns the HTTP listener and every bridge component behind it.
type Server struct {
	cfg      config.BridgeConfig
	logger   *slog.Logger
	backend  kafka.Backend
	pool     *bridge.WorkerPool
	registry *bridge.Registry
	reaper   *bridge.Reaper
	metrics  *metrics.Registry
	handler  http.Handler
	http     *http.Server

	shutdownTimeout time.Duration
	ready           atomic.Bool
	addr            atomic.Value
	started         chan struct{}
	shutdownOnce    sync.Once
	shutdownErr     error
}

// NewServer assembles the bridge around backend. The server takes
// ownership of backend and closes it on shutdown.
func NewServer(cfg config.BridgeConfig, backend kafka.Backend, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool := bridge.NewWorkerPool(cfg.HTTP.Workers, cfg.HTTP.QueueSize, logger)
	m := opts.Metrics
	if m == nil {
		mcfg := metrics.DefaultConfig()
		mcfg.QueueDepth = pool.QueueDepth
		m = metrics.NewRegistry(mcfg)
	}
	registry := bridge.NewRegistry(bridge.RegistryOptions{
		Factory:  backend,
		Pool:     pool,
		Logger:   logger,
		Observer: m,
		Now:      opts.Now,
	})
	reaper := bridge.NewReaper(registry, cfg.HTTP.ReaperInterval, cfg.HTTP.ConsumerTimeout, logger)

	s := &Server{
		cfg:             cfg,
		logger:          logger,
		backend:         backend,
		pool:            pool,
		registry:        registry,
		reaper:          reaper,
		metrics:         m,
		shutdownTimeout: opts.ShutdownTimeout,
		started:         make(chan struct{}),
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}
	s.handler = NewRouter(Deps{
		Config:   cfg,
		Registry: registry,
		Producer: bridge.NewProducerGateway(backend, bridge.ProducerOptions{
			Pool:     pool,
			Breaker:  opts.Breaker,
			Logger:   logger,
			Observer: m,
		}),
		Admin: bridge.NewAdminGateway(backend, bridge.AdminOptions{
			Pool:    pool,
			Breaker: opts.Breaker,
			Logger:  logger,
		}),
		Metrics: m,
		Logger:  logger,
		Version: opts.Version,
		Ready:   s.ready.Load,
	})
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry exposes the consumer instance registry.
func (s *Server) Registry() *bridge.Registry {
	return s.registry
}

// Started is closed once the listener is bound.
func (s *Server) Started() <-chan struct{} {
	return s.started
}

// Addr returns the bound listener address, or "" before Run binds.
func (s *Server) Addr() string {
	if v, ok := s.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Run serves until ctx is cancelled or the listener fails, then shuts
// every component down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		s.shutdown(context.Background())
		return err
	}
	s.addr.Store(ln.Addr().String())
	s.reaper.Start()
	s.ready.Store(true)
	close(s.started)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.Serve(ln)
	}()
	s.logger.Info("kafka bridge listening",
		"addr", ln.Addr().String(),
		"bridge_id", s.cfg.BridgeID,
		"cors", s.cfg.HTTP.CORS.Enabled,
		"consumer_timeout", s.cfg.HTTP.ConsumerTimeout,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops accepting connections, stops the reaper, closes every
// consumer instance, drains the worker pool and closes the backend. The
// backend stays open when ctx expires before the pool drains.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	var httpErr error
	if err := s.http.Shutdown(ctx); err != nil {
		httpErr = err
	}
	s.shutdown(ctx)
	if httpErr != nil {
		return httpErr
	}
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		s.logger.Info("kafka bridge shutting down", "consumers", s.registry.Len())
		s.reaper.Stop()
		s.registry.CloseAll(ctx)
		if err := s.pool.Close(ctx); err != nil {
			// Jobs still running hold the backend; leave it open for them.
			s.logger.Warn("worker pool drain incomplete, backend left open", "error", err)
			s.shutdownErr = err
			return
		}
		s.backend.Close()
	})
}
