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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

// ErrRecordsTooLarge is returned when polled records exceed the requested byte budget.
var ErrRecordsTooLarge = errors.New("response exceeds the maximum number of bytes the consumer can receive")

// InstanceKey identifies a consumer instance.
type InstanceKey struct {
	Group string
	Name  string
}

func (k InstanceKey) String() string {
	return k.Group + "/" + k.Name
}

// EmbeddedFormat selects how record keys and values are rendered over HTTP.
type EmbeddedFormat string

const (
	FormatBinary EmbeddedFormat = "binary"
	FormatJSON   EmbeddedFormat = "json"
	FormatText   EmbeddedFormat = "text"
)

// ConsumerConfig is fixed at instance creation.
type ConsumerConfig struct {
	Format  EmbeddedFormat
	Options kafka.ConsumerOptions
	// RequestTimeout bounds polls that do not pass their own timeout.
	RequestTimeout time.Duration
}

// Subscription is either a topic list, a pattern, or an explicit assignment.
type Subscription struct {
	Topics     []string
	Pattern    string
	Partitions []kafka.TopicPartition
}

// Empty reports whether nothing is subscribed or assigned.
func (s Subscription) Empty() bool {
	return len(s.Topics) == 0 && s.Pattern == "" && len(s.Partitions) == 0
}

func (s Subscription) isAssignment() bool {
	return len(s.Partitions) > 0
}

func (s Subscription) clone() Subscription {
	return Subscription{
		Topics:     append([]string(nil), s.Topics...),
		Pattern:    s.Pattern,
		Partitions: append([]kafka.TopicPartition(nil), s.Partitions...),
	}
}

// PollOptions tune a single poll.
type PollOptions struct {
	Timeout    time.Duration
	MaxBytes   int
	MaxRecords int
}

const defaultPollTimeout = time.Second

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// ConsumerInstance owns one backend consumer handle. Every operation goes
// through a FIFO task queue drained by a single dispatcher, so at most one
// operation touches the handle at a time.
type ConsumerInstance struct {
	key      InstanceKey
	cfg      ConsumerConfig
	consumer kafka.Consumer
	pool     *WorkerPool
	logger   *slog.Logger
	now      func() time.Time
	created  time.Time

	mu      sync.RWMutex
	closed  bool
	tasks   chan task
	stopped chan struct{}

	lastAccess atomic.Int64

	// sub is only read and written by tasks.
	sub Subscription
}

func newConsumerInstance(key InstanceKey, cfg ConsumerConfig, consumer kafka.Consumer, pool *WorkerPool, queueSize int, logger *slog.Logger, now func() time.Time) *ConsumerInstance {
	if queueSize <= 0 {
		queueSize = 1
	}
	if now == nil {
		now = time.Now
	}
	inst := &ConsumerInstance{
		key:      key,
		cfg:      cfg,
		consumer: consumer,
		pool:     pool,
		logger:   logger.With("group", key.Group, "instance", key.Name),
		now:      now,
		created:  now(),
		tasks:    make(chan task, queueSize),
		stopped:  make(chan struct{}),
	}
	inst.touch()
	go inst.dispatch()
	return inst
}

func (i *ConsumerInstance) dispatch() {
	defer close(i.stopped)
	for t := range i.tasks {
		if err := t.ctx.Err(); err != nil {
			t.done <- err
			continue
		}
		t.done <- i.pool.Do(t.ctx, t.fn)
	}
	if err := i.consumer.Close(); err != nil {
		i.logger.Warn("close consumer handle failed", "error", err)
	}
	i.logger.Debug("consumer instance stopped")
}

// do queues fn behind any earlier operation and waits for its result.
func (i *ConsumerInstance) do(ctx context.Context, fn func(context.Context) error) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	i.mu.RLock()
	if i.closed {
		i.mu.RUnlock()
		return ErrInstanceClosed
	}
	i.touch()
	select {
	case i.tasks <- t:
	case <-ctx.Done():
		i.mu.RUnlock()
		return ctx.Err()
	}
	i.mu.RUnlock()

	err := <-t.done
	if err == nil {
		i.touch()
	}
	return err
}

func (i *ConsumerInstance) touch() {
	i.lastAccess.Store(i.now().UnixNano())
}

// Key returns the instance key.
func (i *ConsumerInstance) Key() InstanceKey { return i.key }

// Config returns the creation settings.
func (i *ConsumerInstance) Config() ConsumerConfig { return i.cfg }

// Created returns the creation time.
func (i *ConsumerInstance) Created() time.Time { return i.created }

// LastAccess returns the time of the most recent operation.
func (i *ConsumerInstance) LastAccess() time.Time {
	return time.Unix(0, i.lastAccess.Load())
}

// Subscribe replaces a topic or pattern subscription. It conflicts with an
// explicit assignment and with requests naming both topics and a pattern.
func (i *ConsumerInstance) Subscribe(ctx context.Context, sub Subscription) error {
	if (len(sub.Topics) > 0 && sub.Pattern != "") || sub.isAssignment() {
		return ErrSubscriptionConflict
	}
	if len(sub.Topics) == 0 && sub.Pattern == "" {
		return fmt.Errorf("%w: topics or topic_pattern required", ErrInvalidRequest)
	}
	return i.do(ctx, func(ctx context.Context) error {
		if i.sub.isAssignment() {
			return ErrSubscriptionConflict
		}
		var err error
		if sub.Pattern != "" {
			err = i.consumer.SubscribePattern(ctx, sub.Pattern)
		} else {
			err = i.consumer.Subscribe(ctx, sub.Topics)
		}
		if err != nil {
			return err
		}
		i.sub = sub.clone()
		return nil
	})
}

// Assign consumes explicit partitions. It conflicts with a subscription.
func (i *ConsumerInstance) Assign(ctx context.Context, partitions []kafka.TopicPartition) error {
	if len(partitions) == 0 {
		return fmt.Errorf("%w: partitions required", ErrInvalidRequest)
	}
	return i.do(ctx, func(ctx context.Context) error {
		if len(i.sub.Topics) > 0 || i.sub.Pattern != "" {
			return ErrSubscriptionConflict
		}
		if err := i.consumer.Assign(ctx, partitions); err != nil {
			return err
		}
		i.sub = Subscription{Partitions: append([]kafka.TopicPartition(nil), partitions...)}
		return nil
	})
}

// Unsubscribe drops any subscription or assignment.
func (i *ConsumerInstance) Unsubscribe(ctx context.Context) error {
	return i.do(ctx, func(ctx context.Context) error {
		if err := i.consumer.Unsubscribe(ctx); err != nil {
			return err
		}
		i.sub = Subscription{}
		return nil
	})
}

// Subscription returns the current subscription.
func (i *ConsumerInstance) Subscription(ctx context.Context) (Subscription, error) {
	var out Subscription
	err := i.do(ctx, func(context.Context) error {
		out = i.sub.clone()
		return nil
	})
	return out, err
}

// Poll fetches records, waiting up to the poll timeout. A timeout with no
// records yields an empty slice.
func (i *ConsumerInstance) Poll(ctx context.Context, opts PollOptions) ([]kafka.Record, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = i.cfg.RequestTimeout
	}
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	var records []kafka.Record
	err := i.do(ctx, func(ctx context.Context) error {
		if i.sub.Empty() {
			return ErrNoSubscription
		}
		pollCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		polled, err := i.consumer.Poll(pollCtx, opts.MaxRecords)
		if err != nil {
			return err
		}
		if opts.MaxBytes > 0 && recordBytes(polled) > opts.MaxBytes {
			return ErrRecordsTooLarge
		}
		records = polled
		return nil
	})
	return records, err
}

func recordBytes(records []kafka.Record) int {
	n := 0
	for _, r := range records {
		n += len(r.Key) + len(r.Value)
	}
	return n
}

// Commit commits offsets, or everything polled so far when offsets is empty.
func (i *ConsumerInstance) Commit(ctx context.Context, offsets []kafka.TopicPartitionOffset) error {
	return i.do(ctx, func(ctx context.Context) error {
		return i.consumer.Commit(ctx, offsets)
	})
}

// Seek moves partition positions to explicit offsets.
func (i *ConsumerInstance) Seek(ctx context.Context, offsets []kafka.TopicPartitionOffset) error {
	if len(offsets) == 0 {
		return fmt.Errorf("%w: offsets required", ErrInvalidRequest)
	}
	return i.do(ctx, func(ctx context.Context) error {
		if i.sub.Empty() {
			return ErrNoSubscription
		}
		return i.consumer.Seek(ctx, offsets)
	})
}

// SeekToBeginning moves partitions to their first available offset.
func (i *ConsumerInstance) SeekToBeginning(ctx context.Context, partitions []kafka.TopicPartition) error {
	return i.seekEdge(ctx, partitions, i.consumer.SeekToBeginning)
}

// SeekToEnd moves partitions past their last offset.
func (i *ConsumerInstance) SeekToEnd(ctx context.Context, partitions []kafka.TopicPartition) error {
	return i.seekEdge(ctx, partitions, i.consumer.SeekToEnd)
}

func (i *ConsumerInstance) seekEdge(ctx context.Context, partitions []kafka.TopicPartition, seek func(context.Context, []kafka.TopicPartition) error) error {
	if len(partitions) == 0 {
		return fmt.Errorf("%w: partitions required", ErrInvalidRequest)
	}
	return i.do(ctx, func(ctx context.Context) error {
		if i.sub.Empty() {
			return ErrNoSubscription
		}
		return seek(ctx, partitions)
	})
}

// Close rejects new operations, lets queued ones finish, then releases the
// backend handle. It is idempotent.
func (i *ConsumerInstance) Close(ctx context.Context) error {
	i.mu.Lock()
	if !i.closed {
		i.closed = true
		close(i.tasks)
	}
	i.mu.Unlock()
	select {
	case <-i.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
