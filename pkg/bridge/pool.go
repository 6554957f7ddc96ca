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
	"sync"
)

// WorkerPool runs blocking backend calls off the request goroutines with a
// bounded number of workers and a bounded queue.
type WorkerPool struct {
	jobs   chan job
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// NewWorkerPool starts workers goroutines draining a queue of queueSize jobs.
func NewWorkerPool(workers, queueSize int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPool{
		jobs:   make(chan job, queueSize),
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		if err := j.ctx.Err(); err != nil {
			j.done <- err
			continue
		}
		j.done <- p.run(j)
	}
}

func (p *WorkerPool) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", "panic", r)
			err = errJobPanicked
		}
	}()
	return j.fn(j.ctx)
}

// Submit enqueues fn and returns a channel receiving its result. It blocks
// while the queue is full until ctx expires.
func (p *WorkerPool) Submit(ctx context.Context, fn func(context.Context) error) (<-chan error, error) {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		return j.done, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrPoolSaturated, ctx.Err())
	}
}

// TrySubmit enqueues fn without waiting for queue space. The job runs
// detached from the caller and its result is discarded.
func (p *WorkerPool) TrySubmit(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Do runs fn on a worker and waits for it to finish. fn always runs to
// completion once dequeued; it must honour ctx to return promptly.
func (p *WorkerPool) Do(ctx context.Context, fn func(context.Context) error) error {
	done, err := p.Submit(ctx, fn)
	if err != nil {
		return err
	}
	return <-done
}

// QueueDepth reports the number of queued jobs.
func (p *WorkerPool) QueueDepth() int {
	return len(p.jobs)
}

// Close stops accepting work and waits for queued jobs to drain.
func (p *WorkerPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
