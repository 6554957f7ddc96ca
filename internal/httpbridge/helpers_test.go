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
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/novatechflow/kafscale-bridge/internal/metrics"
	"github.com/novatechflow/kafscale-bridge/pkg/config"
	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

type testBridge struct {
	server  *Server
	http    *httptest.Server
	cluster *kafka.InMemoryCluster
	metrics *metrics.Registry
}

func newTestBridge(t *testing.T, raw map[string]string) *testBridge {
	t.Helper()
	cfg, err := config.FromMap(raw)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cluster := kafka.NewInMemoryCluster()
	m := metrics.NewRegistry(metrics.Config{})
	s := NewServer(cfg, cluster, Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: m,
		Version: "test",
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return &testBridge{server: s, http: ts, cluster: cluster, metrics: m}
}

func corsConfig(methods string) map[string]string {
	raw := map[string]string{
		config.KeyCORSEnabled:        "true",
		config.KeyCORSAllowedOrigins: "https://strimzi.io",
	}
	if methods != "" {
		raw[config.KeyCORSAllowedMethods] = methods
	}
	return raw
}

type request struct {
	method      string
	path        string
	contentType string
	body        string
	headers     map[string]string
}

func (b *testBridge) do(t *testing.T, req request) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r, err := http.NewRequest(req.method, b.http.URL+req.path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if req.contentType != "" {
		r.Header.Set("Content-Type", req.contentType)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	resp, err := b.http.Client().Do(r)
	if err != nil {
		t.Fatalf("%s %s: %v", req.method, req.path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func expectStatus(t *testing.T, resp *http.Response, body []byte, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}
