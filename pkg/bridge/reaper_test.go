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
	"testing"
	"time"
)

func TestReaperEvictsIdleInstances(t *testing.T) {
	r := newTestRegistry(t, &stubFactory{}, nil, nil)
	if _, err := r.Create(context.Background(), "group", "idle", ConsumerConfig{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	reaper := NewReaper(r, 5*time.Millisecond, 20*time.Millisecond, testLogger())
	reaper.Start()
	defer reaper.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Get("group", "idle"); errors.Is(err, ErrInstanceNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("idle instance was not evicted")
}

func TestReaperDisabled(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(t, &stubFactory{}, clock, nil)
	if _, err := r.Create(context.Background(), "group", "kept", ConsumerConfig{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	reaper := NewReaper(r, time.Millisecond, -1, testLogger())
	reaper.now = clock.Now
	reaper.Start()
	clock.Advance(24 * time.Hour)
	if evicted := reaper.Sweep(); evicted != nil {
		t.Fatalf("disabled reaper should not evict, got %v", evicted)
	}
	reaper.Stop()
	if _, err := r.Get("group", "kept"); err != nil {
		t.Fatalf("instance should be kept: %v", err)
	}
}

func TestReaperStopWithoutStart(t *testing.T) {
	r := newTestRegistry(t, &stubFactory{}, nil, nil)
	reaper := NewReaper(r, time.Second, time.Second, testLogger())
	reaper.Stop()
	reaper.Stop()
	reaper.Start()
}
