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

	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

func newTestAdmin(t *testing.T) (*AdminGateway, *kafka.InMemoryCluster) {
	t.Helper()
	cluster := kafka.NewInMemoryCluster()
	t.Cleanup(cluster.Close)
	return NewAdminGateway(cluster, AdminOptions{Pool: newTestPool(t, 2, 8), Logger: testLogger()}), cluster
}

func TestAdminTopics(t *testing.T) {
	ctx := context.Background()
	gw, _ := newTestAdmin(t)
	spec := kafka.TopicSpec{Name: "payments", Partitions: 3, Configs: map[string]string{"cleanup.policy": "compact"}}
	if err := gw.CreateTopic(ctx, spec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gw.CreateTopic(ctx, spec); !errors.Is(err, kafka.ErrTopicExists) {
		t.Fatalf("expected ErrTopicExists, got %v", err)
	}
	if err := gw.CreateTopic(ctx, kafka.TopicSpec{Name: " "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	topics, err := gw.ListTopics(ctx)
	if err != nil || len(topics) != 1 || topics[0] != "payments" {
		t.Fatalf("unexpected topics %v (%v)", topics, err)
	}
	meta, err := gw.DescribeTopic(ctx, "payments")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(meta.Partitions) != 3 || meta.Configs["cleanup.policy"] != "compact" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if _, err := gw.DescribeTopic(ctx, "nope"); !errors.Is(err, kafka.ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestAdminPartitions(t *testing.T) {
	ctx := context.Background()
	gw, cluster := newTestAdmin(t)
	if err := gw.CreateTopic(ctx, kafka.TopicSpec{Name: "logs", Partitions: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	cluster.Produce(ctx, []kafka.ProducerRecord{
		{Topic: "logs", Partition: 1, Value: []byte("a")},
		{Topic: "logs", Partition: 1, Value: []byte("b")},
	})
	parts, err := gw.ListPartitions(ctx, "logs")
	if err != nil || len(parts) != 2 {
		t.Fatalf("unexpected partitions %v (%v)", parts, err)
	}
	p, err := gw.DescribePartition(ctx, "logs", 1)
	if err != nil || p.Partition != 1 {
		t.Fatalf("unexpected partition %+v (%v)", p, err)
	}
	if _, err := gw.DescribePartition(ctx, "logs", 7); !errors.Is(err, kafka.ErrUnknownPartition) {
		t.Fatalf("expected ErrUnknownPartition, got %v", err)
	}
	offsets, err := gw.PartitionOffsets(ctx, "logs", 1)
	if err != nil {
		t.Fatalf("offsets: %v", err)
	}
	if offsets.Beginning != 0 || offsets.End != 2 {
		t.Fatalf("unexpected offsets %+v", offsets)
	}
}
