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
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

// GeneratedNamePrefix prefixes instance names chosen by the bridge.
const GeneratedNamePrefix = "kafka-bridge-consumer-"

// Observer receives lifecycle notifications. Implementations must be safe
// for concurrent use.
type Observer interface {
	ConsumerCreated()
	ConsumerRemoved(reason string)
}

// Removal reasons reported to the Observer.
const (
	RemovedDeleted  = "deleted"
	RemovedEvicted  = "evicted"
	RemovedShutdown = "shutdown"
)

type nopObserver struct{}

func (nopObserver) ConsumerCreated()       {}
func (nopObserver) ConsumerRemoved(string) {}

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	Factory   kafka.ConsumerFactory
	Pool      *WorkerPool
	QueueSize int
	Logger    *slog.Logger
	Observer  Observer
	Now       func() time.Time
}

// Registry maps instance keys to live consumer instances. The mutex only
// guards the map; backend work runs on the pool outside it.
type Registry struct {
	factory   kafka.ConsumerFactory
	pool      *WorkerPool
	queueSize int
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time

	mu sync.Mutex
	// a nil value reserves a key while its handle is being created
	instances map[InstanceKey]*ConsumerInstance
}

// NewRegistry builds an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	r := &Registry{
		factory:   opts.Factory,
		pool:      opts.Pool,
		queueSize: opts.QueueSize,
		logger:    opts.Logger,
		observer:  opts.Observer,
		now:       opts.Now,
		instances: make(map[InstanceKey]*ConsumerInstance),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.queueSize <= 0 {
		r.queueSize = 16
	}
	return r
}

// Create registers a new instance. An empty name is replaced by a generated one.
func (r *Registry) Create(ctx context.Context, group, name string, cfg ConsumerConfig) (*ConsumerInstance, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, fmt.Errorf("%w: consumer group required", ErrInvalidRequest)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = GeneratedNamePrefix + uuid.NewString()
	}
	key := InstanceKey{Group: group, Name: name}

	r.mu.Lock()
	if _, exists := r.instances[key]; exists {
		r.mu.Unlock()
		return nil, ErrInstanceConflict
	}
	r.instances[key] = nil
	r.mu.Unlock()

	if cfg.Options.ClientID == "" {
		cfg.Options.ClientID = name
	}
	var consumer kafka.Consumer
	err := r.pool.Do(ctx, func(context.Context) error {
		c, err := r.factory.NewConsumer(group, cfg.Options)
		consumer = c
		return err
	})
	if err != nil {
		r.mu.Lock()
		delete(r.instances, key)
		r.mu.Unlock()
		return nil, err
	}

	inst := newConsumerInstance(key, cfg, consumer, r.pool, r.queueSize, r.logger, r.now)
	r.mu.Lock()
	r.instances[key] = inst
	r.mu.Unlock()
	r.observer.ConsumerCreated()
	r.logger.Info("consumer instance created", "group", group, "instance", name)
	return inst, nil
}

// Get returns a live instance.
func (r *Registry) Get(group, name string) (*ConsumerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst := r.instances[InstanceKey{Group: group, Name: name}]
	if inst == nil {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

// Delete removes an instance and releases its handle after queued
// operations complete.
func (r *Registry) Delete(ctx context.Context, group, name string) error {
	key := InstanceKey{Group: group, Name: name}
	r.mu.Lock()
	inst := r.instances[key]
	if inst == nil {
		r.mu.Unlock()
		return ErrInstanceNotFound
	}
	delete(r.instances, key)
	r.mu.Unlock()

	r.observer.ConsumerRemoved(RemovedDeleted)
	r.logger.Info("consumer instance deleted", "group", group, "instance", name)
	return inst.Close(ctx)
}

// SweepIdle evicts instances whose last access is older than idle and
// returns their keys. Eviction waits for in-flight operations.
func (r *Registry) SweepIdle(ctx context.Context, now time.Time, idle time.Duration) []InstanceKey {
	var evicted []*ConsumerInstance
	r.mu.Lock()
	for key, inst := range r.instances {
		if inst == nil {
			continue
		}
		if now.Sub(inst.LastAccess()) > idle {
			delete(r.instances, key)
			evicted = append(evicted, inst)
		}
	}
	r.mu.Unlock()

	keys := r.closeAll(ctx, evicted, RemovedEvicted)
	for _, key := range keys {
		r.logger.Info("consumer instance evicted", "group", key.Group, "instance", key.Name, "idle_timeout", idle)
	}
	return keys
}

// CloseAll removes and closes every instance.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]*ConsumerInstance, 0, len(r.instances))
	for key, inst := range r.instances {
		if inst != nil {
			all = append(all, inst)
		}
		delete(r.instances, key)
	}
	r.mu.Unlock()
	r.closeAll(ctx, all, RemovedShutdown)
}

func (r *Registry) closeAll(ctx context.Context, instances []*ConsumerInstance, reason string) []InstanceKey {
	var wg sync.WaitGroup
	keys := make([]InstanceKey, len(instances))
	for idx, inst := range instances {
		keys[idx] = inst.Key()
		wg.Add(1)
		go func(inst *ConsumerInstance) {
			defer wg.Done()
			if err := inst.Close(ctx); err != nil {
				r.logger.Warn("close consumer instance failed", "instance", inst.Key().String(), "error", err)
			}
			r.observer.ConsumerRemoved(reason)
		}(inst)
	}
	wg.Wait()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inst := range r.instances {
		if inst != nil {
			n++
		}
	}
	return n
}

// Keys lists live instance keys in sorted order.
func (r *Registry) Keys() []InstanceKey {
	r.mu.Lock()
	keys := make([]InstanceKey, 0, len(r.instances))
	for key, inst := range r.instances {
		if inst != nil {
			keys = append(keys, key)
		}
	}
	r.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
