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
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

func newStubInstance(t *testing.T, consumer *stubConsumer, pool *WorkerPool, queue int) *ConsumerInstance {
	t.Helper()
	inst := newConsumerInstance(InstanceKey{Group: "g", Name: "i"}, ConsumerConfig{Format: FormatJSON}, consumer, pool, queue, testLogger(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = inst.Close(ctx)
	})
	return inst
}

func TestConsumerInstanceSerializesConcurrentCalls(t *testing.T) {
	pool := newTestPool(t, 8, 64)
	consumer := &stubConsumer{}
	inst := newStubInstance(t, consumer, pool, 4)
	ctx := context.Background()
	if err := inst.Subscribe(ctx, Subscription{Topics: []string{"orders"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for seed := int64(1); seed <= 5; seed++ {
		const workers = 16
		const opsPerWorker = 25
		var wg sync.WaitGroup
		errs := make(chan error, workers*opsPerWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			rng := rand.New(rand.NewSource(seed*100 + int64(w)))
			go func(rng *rand.Rand) {
				defer wg.Done()
				for op := 0; op < opsPerWorker; op++ {
					var err error
					switch rng.Intn(3) {
					case 0:
						_, err = inst.Poll(ctx, PollOptions{Timeout: 10 * time.Millisecond})
					case 1:
						err = inst.Commit(ctx, nil)
					default:
						err = inst.Commit(ctx, []kafka.TopicPartitionOffset{{Topic: "orders", Partition: int32(rng.Intn(3)), Offset: int64(op)}})
					}
					if err != nil {
						errs <- err
					}
					if rng.Intn(4) == 0 {
						time.Sleep(time.Duration(rng.Intn(200)) * time.Microsecond)
					}
				}
			}(rng)
		}
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(20 * time.Second):
			t.Fatalf("seed %d: calls did not complete", seed)
		}
		close(errs)
		for err := range errs {
			t.Fatalf("seed %d: unexpected error %v", seed, err)
		}
	}
	if got := consumer.maxSeen.Load(); got != 1 {
		t.Fatalf("expected at most one in-flight call, saw %d", got)
	}
	if got := consumer.calls.Load(); got != 1+5*16*25 {
		t.Fatalf("expected every call to reach the handle, got %d", got)
	}
}

func TestConsumerInstanceRequiresSubscription(t *testing.T) {
	pool := newTestPool(t, 2, 4)
	inst := newStubInstance(t, &stubConsumer{}, pool, 4)
	ctx := context.Background()
	if _, err := inst.Poll(ctx, PollOptions{}); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
	if err := inst.SeekToEnd(ctx, []kafka.TopicPartition{{Topic: "t"}}); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription for seek, got %v", err)
	}
	if err := inst.Seek(ctx, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty seek, got %v", err)
	}
}

func TestConsumerInstanceSubscriptionRules(t *testing.T) {
	pool := newTestPool(t, 2, 4)
	inst := newStubInstance(t, &stubConsumer{}, pool, 4)
	ctx := context.Background()

	if err := inst.Subscribe(ctx, Subscription{Topics: []string{"a"}, Pattern: "b.*"}); !errors.Is(err, ErrSubscriptionConflict) {
		t.Fatalf("expected conflict for topics+pattern, got %v", err)
	}
	if err := inst.Subscribe(ctx, Subscription{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for empty subscription, got %v", err)
	}
	if err := inst.Subscribe(ctx, Subscription{Topics: []string{"a"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := inst.Subscribe(ctx, Subscription{Topics: []string{"b", "c"}}); err != nil {
		t.Fatalf("resubscribe should replace: %v", err)
	}
	sub, err := inst.Subscription(ctx)
	if err != nil || len(sub.Topics) != 2 || sub.Topics[0] != "b" {
		t.Fatalf("unexpected subscription %+v (%v)", sub, err)
	}
	if err := inst.Assign(ctx, []kafka.TopicPartition{{Topic: "a", Partition: 0}}); !errors.Is(err, ErrSubscriptionConflict) {
		t.Fatalf("expected conflict assigning while subscribed, got %v", err)
	}
	if err := inst.Unsubscribe(ctx); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := inst.Assign(ctx, []kafka.TopicPartition{{Topic: "a", Partition: 0}}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := inst.Subscribe(ctx, Subscription{Topics: []string{"a"}}); !errors.Is(err, ErrSubscriptionConflict) {
		t.Fatalf("expected conflict subscribing while assigned, got %v", err)
	}
	records, err := inst.Poll(ctx, PollOptions{})
	if err != nil || len(records) != 1 {
		t.Fatalf("poll after assign: %v (%d records)", err, len(records))
	}
}

func TestConsumerInstancePollMaxBytes(t *testing.T) {
	pool := newTestPool(t, 2, 4)
	inst := newStubInstance(t, &stubConsumer{payload: []byte("hello")}, pool, 4)
	ctx := context.Background()
	if err := inst.Subscribe(ctx, Subscription{Pattern: "t.*"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if records, err := inst.Poll(ctx, PollOptions{MaxBytes: 5}); err != nil || len(records) != 1 {
		t.Fatalf("poll within budget: %v", err)
	}
	if _, err := inst.Poll(ctx, PollOptions{MaxBytes: 3}); !errors.Is(err, ErrRecordsTooLarge) {
		t.Fatalf("expected ErrRecordsTooLarge, got %v", err)
	}
	if _, err := inst.Poll(ctx, PollOptions{}); err != nil {
		t.Fatalf("zero budget means unlimited: %v", err)
	}
}

func TestConsumerInstanceCloseWaitsForInFlight(t *testing.T) {
	pool := newTestPool(t, 2, 4)
	consumer := &stubConsumer{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	inst := newStubInstance(t, consumer, pool, 4)
	ctx := context.Background()
	if err := inst.Subscribe(ctx, Subscription{Topics: []string{"t"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	pollErr := make(chan error, 1)
	go func() {
		_, err := inst.Poll(ctx, PollOptions{Timeout: time.Minute})
		pollErr <- err
	}()
	<-consumer.entered

	closed := make(chan error, 1)
	go func() { closed <- inst.Close(ctx) }()
	select {
	case <-closed:
		t.Fatalf("close returned while an operation was in flight")
	case <-time.After(30 * time.Millisecond):
	}
	if consumer.closed.Load() {
		t.Fatalf("handle released while in use")
	}
	close(consumer.block)
	if err := <-pollErr; err != nil {
		t.Fatalf("in-flight poll should complete: %v", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("close: %v", err)
	}
	if !consumer.closed.Load() {
		t.Fatalf("handle should be released after close")
	}
	if err := inst.Commit(ctx, nil); !errors.Is(err, ErrInstanceClosed) {
		t.Fatalf("expected ErrInstanceClosed, got %v", err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Fatalf("close should be idempotent: %v", err)
	}
}

func TestConsumerInstanceTouchesLastAccess(t *testing.T) {
	pool := newTestPool(t, 1, 1)
	clock := newFakeClock()
	inst := newConsumerInstance(InstanceKey{Group: "g", Name: "i"}, ConsumerConfig{}, &stubConsumer{}, pool, 1, testLogger(), clock.Now)
	defer inst.Close(context.Background())
	created := inst.LastAccess()
	clock.Advance(time.Minute)
	if err := inst.Commit(context.Background(), nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := inst.LastAccess().Sub(created); got != time.Minute {
		t.Fatalf("expected last access to advance by a minute, got %s", got)
	}
}
