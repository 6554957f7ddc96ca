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

// Package kafka defines the backend handles used by the bridge and ships
// two implementations: a franz-go client talking to real brokers and an
// in-memory cluster useful for development and tests.
package kafka

import (
	"context"
	"time"
)

// AnyPartition lets the partitioner pick the destination partition.
const AnyPartition int32 = -1

// Header is a single record header.
type Header struct {
	Key   string
	Value []byte
}

// Record is a consumed record.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []Header
	Timestamp time.Time
}

// ProducerRecord is a record submitted for production.
type ProducerRecord struct {
	Topic     string
	Partition int32
	Key       []byte
	Value     []byte
	Headers   []Header
}

// ProduceOutcome reports the location of a produced record or its failure.
type ProduceOutcome struct {
	Partition int32
	Offset    int64
	Err       error
}

// TopicPartition identifies a single partition.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// TopicPartitionOffset positions or commits a partition.
type TopicPartitionOffset struct {
	Topic     string
	Partition int32
	Offset    int64
	Metadata  string
}

// ReplicaMetadata describes a replica of a partition.
type ReplicaMetadata struct {
	Broker int32
	Leader bool
	InSync bool
}

// PartitionMetadata describes a single partition.
type PartitionMetadata struct {
	Partition int32
	Leader    int32
	Replicas  []ReplicaMetadata
}

// TopicMetadata describes a topic and its partitions.
type TopicMetadata struct {
	Name       string
	Configs    map[string]string
	Partitions []PartitionMetadata
}

// PartitionOffsets is the log range of a partition.
type PartitionOffsets struct {
	Beginning int64
	End       int64
}

// TopicSpec requests a new topic. Zero values use broker defaults.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]string
}

// Offset reset policies.
const (
	OffsetResetEarliest = "earliest"
	OffsetResetLatest   = "latest"
	OffsetResetNone     = "none"
)

// Isolation levels.
const (
	IsolationReadUncommitted = "read_uncommitted"
	IsolationReadCommitted   = "read_committed"
)

// ConsumerOptions configure a consumer handle.
type ConsumerOptions struct {
	ClientID         string
	AutoOffsetReset  string
	EnableAutoCommit bool
	FetchMinBytes    int32
	IsolationLevel   string
}

// Consumer is a backend consumer handle. Implementations are not safe for
// concurrent use; callers serialize access.
type Consumer interface {
	Subscribe(ctx context.Context, topics []string) error
	SubscribePattern(ctx context.Context, pattern string) error
	Assign(ctx context.Context, partitions []TopicPartition) error
	Unsubscribe(ctx context.Context) error
	// Poll waits until records arrive or ctx expires. An expired ctx yields
	// an empty result, not an error.
	Poll(ctx context.Context, maxRecords int) ([]Record, error)
	// Commit commits the given offsets, or everything polled so far when offsets is empty.
	Commit(ctx context.Context, offsets []TopicPartitionOffset) error
	Seek(ctx context.Context, offsets []TopicPartitionOffset) error
	SeekToBeginning(ctx context.Context, partitions []TopicPartition) error
	SeekToEnd(ctx context.Context, partitions []TopicPartition) error
	Close() error
}

// ConsumerFactory creates consumer handles bound to a group.
type ConsumerFactory interface {
	NewConsumer(group string, opts ConsumerOptions) (Consumer, error)
}

// Producer produces batches of records. Outcomes keep submission order.
type Producer interface {
	Produce(ctx context.Context, records []ProducerRecord) []ProduceOutcome
}

// Admin exposes topic metadata and management.
type Admin interface {
	ListTopics(ctx context.Context) ([]string, error)
	DescribeTopic(ctx context.Context, topic string) (TopicMetadata, error)
	PartitionOffsets(ctx context.Context, topic string, partition int32) (PartitionOffsets, error)
	CreateTopic(ctx context.Context, spec TopicSpec) error
}

// Backend bundles every capability of a cluster connection.
type Backend interface {
	ConsumerFactory
	Producer
	Admin
	Close()
}
