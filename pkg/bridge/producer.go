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

	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

// ProduceObserver receives per-batch produce counts.
type ProduceObserver interface {
	RecordsProduced(succeeded, failed int)
}

// ProducerGateway turns record batches into backend produce calls. It is
// stateless apart from the shared backend handle.
type ProducerGateway struct {
	producer kafka.Producer
	guard    guard
	logger   *slog.Logger
	observer ProduceObserver
}

// ProducerOptions configure a ProducerGateway.
type ProducerOptions struct {
	Pool     *WorkerPool
	Breaker  BreakerSettings
	Logger   *slog.Logger
	Observer ProduceObserver
}

// NewProducerGateway wraps producer.
func NewProducerGateway(producer kafka.Producer, opts ProducerOptions) *ProducerGateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProducerGateway{
		producer: producer,
		guard:    newGuard("producer", opts.Pool, opts.Breaker, logger),
		logger:   logger,
		observer: opts.Observer,
	}
}

// Produce sends the batch and returns one outcome per record in submission
// order. A failing record never fails its siblings; the returned error is
// reserved for failures that prevented the batch from being attempted.
func (g *ProducerGateway) Produce(ctx context.Context, records []kafka.ProducerRecord) ([]kafka.ProduceOutcome, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: records required", ErrInvalidRequest)
	}
	var outcomes []kafka.ProduceOutcome
	err := g.guard.run(ctx, func(ctx context.Context) error {
		outcomes = g.producer.Produce(ctx, records)
		return unavailableBatch(outcomes)
	})
	if len(outcomes) != len(records) {
		if err == nil {
			err = fmt.Errorf("producer returned %d outcomes for %d records", len(outcomes), len(records))
		}
		return nil, err
	}
	g.observe(outcomes)
	return outcomes, nil
}

// ProduceAsync queues the batch and returns without waiting for delivery.
// Failures are logged.
func (g *ProducerGateway) ProduceAsync(ctx context.Context, records []kafka.ProducerRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: records required", ErrInvalidRequest)
	}
	if g.guard.open() {
		return ErrBackendUnavailable
	}
	return g.guard.pool.TrySubmit(context.WithoutCancel(ctx), func(ctx context.Context) error {
		outcomes := g.producer.Produce(ctx, records)
		g.observe(outcomes)
		for i, o := range outcomes {
			if o.Err != nil {
				g.logger.Warn("async produce failed", "topic", records[i].Topic, "error", o.Err)
			}
		}
		return nil
	})
}

func (g *ProducerGateway) observe(outcomes []kafka.ProduceOutcome) {
	if g.observer == nil {
		return
	}
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	g.observer.RecordsProduced(len(outcomes)-failed, failed)
}

// unavailableBatch reports the shared cause when every record failed
// because the cluster was unreachable, so the breaker can count it.
func unavailableBatch(outcomes []kafka.ProduceOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	for _, o := range outcomes {
		if o.Err == nil || !kafka.IsUnavailable(o.Err) {
			return nil
		}
	}
	return outcomes[0].Err
}
