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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T, factory *stubFactory, clock *fakeClock, observer Observer) *Registry {
	t.Helper()
	opts := RegistryOptions{
		Factory:   factory,
		Pool:      newTestPool(t, 4, 16),
		QueueSize: 4,
		Logger:    testLogger(),
		Observer:  observer,
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	r := NewRegistry(opts)
	t.Cleanup(func() { r.CloseAll(context.Background()) })
	return r
}

func TestRegistryCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	observer := &countingObserver{}
	factory := &stubFactory{}
	r := newTestRegistry(t, factory, nil, observer)

	inst, err := r.Create(ctx, "group", "first", ConsumerConfig{Format: FormatBinary})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.Key() != (InstanceKey{Group: "group", Name: "first"}) {
		t.Fatalf("unexpected key %v", inst.Key())
	}
	if inst.Config().Options.ClientID != "first" {
		t.Fatalf("client id should default to the instance name, got %q", inst.Config().Options.ClientID)
	}
	if _, err := r.Create(ctx, "group", "first", ConsumerConfig{}); !errors.Is(err, ErrInstanceConflict) {
		t.Fatalf("expected ErrInstanceConflict, got %v", err)
	}
	if _, err := r.Create(ctx, "other-group", "first", ConsumerConfig{}); err != nil {
		t.Fatalf("same name in another group should be allowed: %v", err)
	}
	got, err := r.Get("group", "first")
	if err != nil || got != inst {
		t.Fatalf("get returned %v (%v)", got, err)
	}
	if err := r.Delete(ctx, "group", "first"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !factory.consumers[0].closed.Load() {
		t.Fatalf("delete should release the backend handle")
	}
	if _, err := r.Get("group", "first"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound after delete, got %v", err)
	}
	if err := r.Delete(ctx, "group", "first"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound for second delete, got %v", err)
	}
	if observer.created.Load() != 2 || observer.removedFor(RemovedDeleted) != 1 {
		t.Fatalf("unexpected observer counts created=%d deleted=%d", observer.created.Load(), observer.removedFor(RemovedDeleted))
	}
	if r.Len() != 1 {
		t.Fatalf("expected one live instance, got %d", r.Len())
	}
}

func TestRegistryGeneratesNames(t *testing.T) {
	r := newTestRegistry(t, &stubFactory{}, nil, nil)
	a, err := r.Create(context.Background(), "group", "", ConsumerConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := r.Create(context.Background(), "group", "  ", ConsumerConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(a.Key().Name, GeneratedNamePrefix) || a.Key().Name == b.Key().Name {
		t.Fatalf("unexpected generated names %q %q", a.Key().Name, b.Key().Name)
	}
	if _, err := r.Create(context.Background(), "", "x", ConsumerConfig{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty group, got %v", err)
	}
}

func TestRegistryConcurrentCreateSameName(t *testing.T) {
	r := newTestRegistry(t, &stubFactory{delay: time.Millisecond}, nil, nil)
	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Create(context.Background(), "group", "dup", ConsumerConfig{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	created := 0
	for err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrInstanceConflict):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one winner, got %d", created)
	}
}

func TestRegistrySweepIdle(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	observer := &countingObserver{}
	factory := &stubFactory{}
	r := newTestRegistry(t, factory, clock, observer)

	stale, _ := r.Create(ctx, "group", "stale", ConsumerConfig{})
	clock.Advance(20 * time.Second)
	fresh, _ := r.Create(ctx, "group", "fresh", ConsumerConfig{})
	clock.Advance(11 * time.Second)

	evicted := r.SweepIdle(ctx, clock.Now(), 30*time.Second)
	if len(evicted) != 1 || evicted[0] != stale.Key() {
		t.Fatalf("expected only the stale instance to be evicted, got %v", evicted)
	}
	if _, err := r.Get("group", "stale"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected evicted instance to be gone, got %v", err)
	}
	if _, err := r.Get("group", "fresh"); err != nil {
		t.Fatalf("fresh instance should survive: %v", err)
	}
	if err := stale.Commit(ctx, nil); !errors.Is(err, ErrInstanceClosed) {
		t.Fatalf("evicted instance should reject work, got %v", err)
	}
	if observer.removedFor(RemovedEvicted) != 1 {
		t.Fatalf("expected one eviction, got %d", observer.removedFor(RemovedEvicted))
	}

	clock.Advance(10 * time.Second)
	if err := fresh.Commit(ctx, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	clock.Advance(25 * time.Second)
	if evicted := r.SweepIdle(ctx, clock.Now(), 30*time.Second); len(evicted) != 0 {
		t.Fatalf("recently used instance should not be evicted: %v", evicted)
	}
}

func TestRegistrySweepWaitsForInFlight(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	factory := &stubFactory{}
	r := newTestRegistry(t, factory, clock, nil)
	inst, _ := r.Create(ctx, "group", "busy", ConsumerConfig{})
	consumer := factory.consumers[0]
	consumer.block = make(chan struct{})
	consumer.entered = make(chan struct{}, 1)
	if err := inst.Subscribe(ctx, Subscription{Topics: []string{"t"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pollErr := make(chan error, 1)
	go func() {
		_, err := inst.Poll(ctx, PollOptions{Timeout: time.Minute})
		pollErr <- err
	}()
	<-consumer.entered
	clock.Advance(time.Hour)

	swept := make(chan []InstanceKey, 1)
	go func() { swept <- r.SweepIdle(ctx, clock.Now(), time.Second) }()
	select {
	case <-swept:
		t.Fatalf("sweep finished while an operation was in flight")
	case <-time.After(30 * time.Millisecond):
	}
	if consumer.closed.Load() {
		t.Fatalf("handle released mid-operation")
	}
	close(consumer.block)
	if err := <-pollErr; err != nil {
		t.Fatalf("poll should complete normally: %v", err)
	}
	if keys := <-swept; len(keys) != 1 {
		t.Fatalf("expected busy instance to be evicted after completing, got %v", keys)
	}
	if consumer.maxSeen.Load() != 1 {
		t.Fatalf("close overlapped with poll")
	}
}
