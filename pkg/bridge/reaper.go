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

package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reaper periodically evicts consumer instances idle past the timeout.
type Reaper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewReaper builds a reaper. A non-positive timeout disables eviction.
func NewReaper(registry *Registry, interval, timeout time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enabled reports whether idle eviction is configured.
func (r *Reaper) Enabled() bool {
	return r.timeout > 0
}

// Start launches the sweep loop. It is a no-op when eviction is disabled.
func (r *Reaper) Start() {
	r.startOnce.Do(func() {
		if !r.Enabled() {
			close(r.done)
			return
		}
		r.logger.Info("consumer reaper started", "interval", r.interval, "timeout", r.timeout)
		go r.cleanupLoop()
	})
}

func (r *Reaper) cleanupLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopCh:
			return
		}
	}
}

// Sweep runs a single eviction pass.
func (r *Reaper) Sweep() []InstanceKey {
	if !r.Enabled() {
		return nil
	}
	return r.registry.SweepIdle(context.Background(), r.now(), r.timeout)
}

// Stop terminates the loop and waits for an in-progress sweep to finish.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.startOnce.Do(func() { close(r.done) })
	<-r.done
}
