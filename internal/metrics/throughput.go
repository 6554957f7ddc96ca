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
	"sync"
	"time"
)

type throughputTracker struct {
	mu         sync.Mutex
	buckets    map[int64]int64
	window     time.Duration
	resolution time.Duration
	now        func() time.Time
}

func newThroughputTracker(window time.Duration) *throughputTracker {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &throughputTracker{
		buckets:    make(map[int64]int64),
		window:     window,
		resolution: time.Second,
		now:        time.Now,
	}
}

func (t *throughputTracker) bucket() int64 {
	return t.now().UnixNano() / t.resolution.Nanoseconds()
}

func (t *throughputTracker) add(count int64) {
	if t == nil || count <= 0 {
		return
	}
	t.mu.Lock()
	b := t.bucket()
	t.buckets[b] += count
	t.pruneLocked(b)
	t.mu.Unlock()
}

// rate averages over the observed span, capped at the window.
func (t *throughputTracker) rate() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.bucket()
	t.pruneLocked(current)
	if len(t.buckets) == 0 {
		return 0
	}
	var total int64
	oldest := current
	for b, count := range t.buckets {
		total += count
		if b < oldest {
			oldest = b
		}
	}
	span := current - oldest + 1
	if limit := t.windowBuckets(); span > limit {
		span = limit
	}
	return float64(total) / (float64(span) * t.resolution.Seconds())
}

func (t *throughputTracker) windowBuckets() int64 {
	n := int64(t.window / t.resolution)
	if n < 1 {
		n = 1
	}
	return n
}

func (t *throughputTracker) pruneLocked(current int64) {
	oldest := current - t.windowBuckets()
	for b := range t.buckets {
		if b < oldest {
			delete(t.buckets, b)
		}
	}
}
