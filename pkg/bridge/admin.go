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
	"strings"

	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

// AdminGateway exposes topic metadata and creation.
type AdminGateway struct {
	admin kafka.Admin
	guard guard
}

// AdminOptions configure an AdminGateway.
type AdminOptions struct {
	Pool    *WorkerPool
	Breaker BreakerSettings
	Logger  *slog.Logger
}

// NewAdminGateway wraps admin.
func NewAdminGateway(admin kafka.Admin, opts AdminOptions) *AdminGateway {
	return &AdminGateway{
		admin: admin,
		guard: newGuard("admin", opts.Pool, opts.Breaker, opts.Logger),
	}
}

// ListTopics returns topic names.
func (g *AdminGateway) ListTopics(ctx context.Context) ([]string, error) {
	var topics []string
	err := g.guard.run(ctx, func(ctx context.Context) error {
		var err error
		topics, err = g.admin.ListTopics(ctx)
		return err
	})
	return topics, err
}

// DescribeTopic returns topic metadata.
func (g *AdminGateway) DescribeTopic(ctx context.Context, topic string) (kafka.TopicMetadata, error) {
	var meta kafka.TopicMetadata
	err := g.guard.run(ctx, func(ctx context.Context) error {
		var err error
		meta, err = g.admin.DescribeTopic(ctx, topic)
		return err
	})
	return meta, err
}

// ListPartitions returns the partitions of a topic.
func (g *AdminGateway) ListPartitions(ctx context.Context, topic string) ([]kafka.PartitionMetadata, error) {
	meta, err := g.DescribeTopic(ctx, topic)
	if err != nil {
		return nil, err
	}
	return meta.Partitions, nil
}

// DescribePartition returns a single partition.
func (g *AdminGateway) DescribePartition(ctx context.Context, topic string, partition int32) (kafka.PartitionMetadata, error) {
	meta, err := g.DescribeTopic(ctx, topic)
	if err != nil {
		return kafka.PartitionMetadata{}, err
	}
	for _, p := range meta.Partitions {
		if p.Partition == partition {
			return p, nil
		}
	}
	return kafka.PartitionMetadata{}, fmt.Errorf("%w: %s/%d", kafka.ErrUnknownPartition, topic, partition)
}

// PartitionOffsets returns the beginning and end offsets of a partition.
func (g *AdminGateway) PartitionOffsets(ctx context.Context, topic string, partition int32) (kafka.PartitionOffsets, error) {
	var offsets kafka.PartitionOffsets
	err := g.guard.run(ctx, func(ctx context.Context) error {
		var err error
		offsets, err = g.admin.PartitionOffsets(ctx, topic, partition)
		return err
	})
	return offsets, err
}

// CreateTopic creates a topic.
func (g *AdminGateway) CreateTopic(ctx context.Context, spec kafka.TopicSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return fmt.Errorf("%w: topic name required", ErrInvalidRequest)
	}
	return g.guard.run(ctx, func(ctx context.Context) error {
		return g.admin.CreateTopic(ctx, spec)
	})
}
