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
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/novatechflow/kafscale-bridge/internal/metrics"
	"github.com/novatechflow/kafscale-bridge/pkg/bridge"
	"github.com/novatechflow/kafscale-bridge/pkg/config"
	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

func TestServerRunLifecycle(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{config.KeyHTTPHost: "127.0.0.1"})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.HTTP.Port = 0

	s := NewServer(cfg, kafka.NewInMemoryCluster(), Options{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:         metrics.NewRegistry(metrics.Config{}),
		ShutdownTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Started():
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	resp, err := http.Get("http://" + s.Addr() + "/ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected ready 204, got %d", resp.StatusCode)
	}

	if _, err := s.Registry().Create(ctx, "g", "c", bridge.ConsumerConfig{Format: bridge.FormatBinary}); err != nil {
		t.Fatalf("create: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
	if s.Registry().Len() != 0 {
		t.Fatalf("expected consumers to be closed on shutdown")
	}
}

func TestServerRunListenError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()

	cfg, err := config.FromMap(map[string]string{config.KeyHTTPHost: "127.0.0.1"})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.HTTP.Port = taken.Addr().(*net.TCPAddr).Port
	s := NewServer(cfg, kafka.NewInMemoryCluster(), Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics.NewRegistry(metrics.Config{}),
	})
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected listen error on a bound port")
	}
}

type closeCountingCluster struct {
	*kafka.InMemoryCluster
	closes atomic.Int32
}

func (c *closeCountingCluster) Close() {
	c.closes.Add(1)
	c.InMemoryCluster.Close()
}

func TestShutdownKeepsBackendWhilePoolBusy(t *testing.T) {
	cfg, err := config.FromMap(nil)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	backend := &closeCountingCluster{InMemoryCluster: kafka.NewInMemoryCluster()}
	s := NewServer(cfg, backend, Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics.NewRegistry(metrics.Config{}),
	})

	release := make(chan struct{})
	running := make(chan struct{})
	done, err := s.pool.Submit(context.Background(), func(context.Context) error {
		close(running)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-running

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); err == nil {
		t.Fatalf("expected drain timeout")
	}
	if n := backend.closes.Load(); n != 0 {
		t.Fatalf("backend closed while a job was running")
	}
	close(release)
	<-done
	backend.InMemoryCluster.Close()
}
