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

package kafka

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryCluster is a Backend that keeps topics in process memory. It is
// useful for early development and tests. Consumer groups are not balanced:
// every subscribed member reads all partitions, sharing committed offsets.
type InMemoryCluster struct {
	mu        sync.RWMutex
	topics    map[string]*memTopic
	committed map[string]map[TopicPartition]int64
	notify    chan struct{}
	part      partitioner
	closed    bool
	now       func() time.Time
}

type memTopic struct {
	configs    map[string]string
	partitions [][]Record
}

// NewInMemoryCluster returns an empty cluster.
func NewInMemoryCluster() *InMemoryCluster {
	return &InMemoryCluster{
		topics:    make(map[string]*memTopic),
		committed: make(map[string]map[TopicPartition]int64),
		notify:    make(chan struct{}),
		now:       time.Now,
	}
}

// CreateTopic implements Admin.
func (c *InMemoryCluster) CreateTopic(ctx context.Context, spec TopicSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return fmt.Errorf("%w: topic name required", ErrInvalidTopic)
	}
	partitions := spec.Partitions
	if partitions == 0 {
		partitions = 1
	}
	if partitions < 0 {
		return fmt.Errorf("%w: partitions must be positive", ErrInvalidTopic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.topics[name]; ok {
		return fmt.Errorf("%w: %s", ErrTopicExists, name)
	}
	configs := make(map[string]string, len(spec.Configs))
	for k, v := range spec.Configs {
		configs[k] = v
	}
	c.topics[name] = &memTopic{configs: configs, partitions: make([][]Record, partitions)}
	return nil
}

// ListTopics implements Admin.
func (c *InMemoryCluster) ListTopics(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.topics))
	for name := range c.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DescribeTopic implements Admin.
func (c *InMemoryCluster) DescribeTopic(ctx context.Context, topic string) (TopicMetadata, error) {
	if err := ctx.Err(); err != nil {
		return TopicMetadata{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.topics[topic]
	if !ok {
		return TopicMetadata{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	meta := TopicMetadata{Name: topic, Configs: make(map[string]string, len(t.configs))}
	for k, v := range t.configs {
		meta.Configs[k] = v
	}
	for i := range t.partitions {
		meta.Partitions = append(meta.Partitions, PartitionMetadata{
			Partition: int32(i),
			Leader:    0,
			Replicas:  []ReplicaMetadata{{Broker: 0, Leader: true, InSync: true}},
		})
	}
	return meta, nil
}

// PartitionOffsets implements Admin.
func (c *InMemoryCluster) PartitionOffsets(ctx context.Context, topic string, partition int32) (PartitionOffsets, error) {
	if err := ctx.Err(); err != nil {
		return PartitionOffsets{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	log, err := c.partitionLocked(topic, partition)
	if err != nil {
		return PartitionOffsets{}, err
	}
	return PartitionOffsets{Beginning: 0, End: int64(len(log))}, nil
}

func (c *InMemoryCluster) partitionLocked(topic string, partition int32) ([]Record, error) {
	t, ok := c.topics[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	if partition < 0 || int(partition) >= len(t.partitions) {
		return nil, fmt.Errorf("%w: %s/%d", ErrUnknownPartition, topic, partition)
	}
	return t.partitions[partition], nil
}

// Produce implements Producer. Each record succeeds or fails on its own.
func (c *InMemoryCluster) Produce(ctx context.Context, records []ProducerRecord) []ProduceOutcome {
	outcomes := make([]ProduceOutcome, len(records))
	if err := ctx.Err(); err != nil {
		for i := range outcomes {
			outcomes[i] = ProduceOutcome{Partition: AnyPartition, Offset: -1, Err: err}
		}
		return outcomes
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	appended := false
	for i, rec := range records {
		outcomes[i] = ProduceOutcome{Partition: AnyPartition, Offset: -1}
		if c.closed {
			outcomes[i].Err = ErrClosed
			continue
		}
		t, ok := c.topics[rec.Topic]
		if !ok {
			outcomes[i].Err = fmt.Errorf("%w: %s", ErrUnknownTopic, rec.Topic)
			continue
		}
		partition, err := c.part.pick(rec, int32(len(t.partitions)))
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		offset := int64(len(t.partitions[partition]))
		t.partitions[partition] = append(t.partitions[partition], Record{
			Topic:     rec.Topic,
			Partition: partition,
			Offset:    offset,
			Key:       cloneBytes(rec.Key),
			Value:     cloneBytes(rec.Value),
			Headers:   cloneHeaders(rec.Headers),
			Timestamp: c.now(),
		})
		outcomes[i] = ProduceOutcome{Partition: partition, Offset: offset}
		appended = true
	}
	if appended {
		close(c.notify)
		c.notify = make(chan struct{})
	}
	return outcomes
}

// NewConsumer implements ConsumerFactory.
func (c *InMemoryCluster) NewConsumer(group string, opts ConsumerOptions) (Consumer, error) {
	if group == "" {
		return nil, fmt.Errorf("consumer group required")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return &memConsumer{
		cluster:   c,
		group:     group,
		opts:      opts,
		positions: make(map[TopicPartition]int64),
	}, nil
}

// Close implements Backend.
func (c *InMemoryCluster) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.notify)
	c.notify = make(chan struct{})
}

func (c *InMemoryCluster) commit(group string, offsets map[TopicPartition]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.committed[group]
	if !ok {
		g = make(map[TopicPartition]int64)
		c.committed[group] = g
	}
	for tp, off := range offsets {
		g[tp] = off
	}
}

// Committed returns the committed offset of a group partition, or -1.
func (c *InMemoryCluster) Committed(group string, tp TopicPartition) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if off, ok := c.committed[group][tp]; ok {
		return off
	}
	return -1
}

type memConsumer struct {
	cluster *InMemoryCluster
	group   string
	opts    ConsumerOptions

	topics    []string
	pattern   *regexp.Regexp
	assigned  []TopicPartition
	positions map[TopicPartition]int64
	consumed  map[TopicPartition]int64
	closed    bool
}

func (m *memConsumer) Subscribe(ctx context.Context, topics []string) error {
	if m.closed {
		return ErrClosed
	}
	m.reset()
	m.topics = append([]string(nil), topics...)
	return nil
}

func (m *memConsumer) SubscribePattern(ctx context.Context, pattern string) error {
	if m.closed {
		return ErrClosed
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w: pattern %q: %v", ErrInvalidTopic, pattern, err)
	}
	m.reset()
	m.pattern = re
	return nil
}

func (m *memConsumer) Assign(ctx context.Context, partitions []TopicPartition) error {
	if m.closed {
		return ErrClosed
	}
	m.reset()
	m.assigned = append([]TopicPartition(nil), partitions...)
	return nil
}

func (m *memConsumer) Unsubscribe(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	m.reset()
	return nil
}

func (m *memConsumer) reset() {
	m.topics = nil
	m.pattern = nil
	m.assigned = nil
	m.positions = make(map[TopicPartition]int64)
	m.consumed = nil
}

// partitions resolves the current subscription against live topics.
// Caller holds the cluster read lock.
func (m *memConsumer) partitionsLocked() []TopicPartition {
	if len(m.assigned) > 0 {
		return m.assigned
	}
	var out []TopicPartition
	names := make([]string, 0, len(m.cluster.topics))
	for name := range m.cluster.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	want := make(map[string]struct{}, len(m.topics))
	for _, t := range m.topics {
		want[t] = struct{}{}
	}
	for _, name := range names {
		_, listed := want[name]
		if !listed && (m.pattern == nil || !m.pattern.MatchString(name)) {
			continue
		}
		for p := range m.cluster.topics[name].partitions {
			out = append(out, TopicPartition{Topic: name, Partition: int32(p)})
		}
	}
	return out
}

func (m *memConsumer) subscribed() bool {
	return len(m.topics) > 0 || m.pattern != nil || len(m.assigned) > 0
}

func (m *memConsumer) Poll(ctx context.Context, maxRecords int) ([]Record, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if !m.subscribed() {
		return nil, ErrNotSubscribed
	}
	for {
		m.cluster.mu.RLock()
		if m.cluster.closed {
			m.cluster.mu.RUnlock()
			return nil, ErrClosed
		}
		records, err := m.collectLocked(maxRecords)
		wait := m.cluster.notify
		m.cluster.mu.RUnlock()
		if err != nil || len(records) > 0 {
			return records, err
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-wait:
		}
	}
}

func (m *memConsumer) collectLocked(maxRecords int) ([]Record, error) {
	var out []Record
	for _, tp := range m.partitionsLocked() {
		log, err := m.cluster.partitionLocked(tp.Topic, tp.Partition)
		if err != nil {
			if len(m.assigned) > 0 {
				continue
			}
			return nil, err
		}
		pos, ok := m.positions[tp]
		if !ok {
			pos, err = m.initialPositionLocked(tp, int64(len(log)))
			if err != nil {
				return nil, err
			}
			m.positions[tp] = pos
		}
		for pos < int64(len(log)) {
			if maxRecords > 0 && len(out) >= maxRecords {
				return out, nil
			}
			rec := log[pos]
			out = append(out, rec)
			pos++
			m.positions[tp] = pos
			if m.consumed == nil {
				m.consumed = make(map[TopicPartition]int64)
			}
			m.consumed[tp] = pos
		}
	}
	return out, nil
}

func (m *memConsumer) initialPositionLocked(tp TopicPartition, end int64) (int64, error) {
	if off, ok := m.cluster.committed[m.group][tp]; ok {
		return off, nil
	}
	switch m.opts.AutoOffsetReset {
	case OffsetResetEarliest:
		return 0, nil
	case OffsetResetNone:
		return 0, fmt.Errorf("no committed offset for %s/%d and auto.offset.reset is none", tp.Topic, tp.Partition)
	default:
		return end, nil
	}
}

func (m *memConsumer) Commit(ctx context.Context, offsets []TopicPartitionOffset) error {
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	toCommit := make(map[TopicPartition]int64)
	if len(offsets) == 0 {
		for tp, off := range m.consumed {
			toCommit[tp] = off
		}
	}
	for _, o := range offsets {
		toCommit[TopicPartition{Topic: o.Topic, Partition: o.Partition}] = o.Offset
	}
	if len(toCommit) > 0 {
		m.cluster.commit(m.group, toCommit)
	}
	return nil
}

func (m *memConsumer) Seek(ctx context.Context, offsets []TopicPartitionOffset) error {
	if m.closed {
		return ErrClosed
	}
	if !m.subscribed() {
		return ErrNotSubscribed
	}
	m.cluster.mu.RLock()
	defer m.cluster.mu.RUnlock()
	for _, o := range offsets {
		log, err := m.cluster.partitionLocked(o.Topic, o.Partition)
		if err != nil {
			return err
		}
		off := o.Offset
		if off < 0 {
			off = 0
		}
		if off > int64(len(log)) {
			off = int64(len(log))
		}
		m.positions[TopicPartition{Topic: o.Topic, Partition: o.Partition}] = off
	}
	return nil
}

func (m *memConsumer) SeekToBeginning(ctx context.Context, partitions []TopicPartition) error {
	offsets := make([]TopicPartitionOffset, 0, len(partitions))
	for _, tp := range partitions {
		offsets = append(offsets, TopicPartitionOffset{Topic: tp.Topic, Partition: tp.Partition, Offset: 0})
	}
	return m.Seek(ctx, offsets)
}

func (m *memConsumer) SeekToEnd(ctx context.Context, partitions []TopicPartition) error {
	offsets := make([]TopicPartitionOffset, 0, len(partitions))
	m.cluster.mu.RLock()
	for _, tp := range partitions {
		log, err := m.cluster.partitionLocked(tp.Topic, tp.Partition)
		if err != nil {
			m.cluster.mu.RUnlock()
			return err
		}
		offsets = append(offsets, TopicPartitionOffset{Topic: tp.Topic, Partition: tp.Partition, Offset: int64(len(log))})
	}
	m.cluster.mu.RUnlock()
	return m.Seek(ctx, offsets)
}

func (m *memConsumer) Close() error {
	if m.closed {
		return nil
	}
	if m.opts.EnableAutoCommit && len(m.consumed) > 0 {
		m.cluster.commit(m.group, m.consumed)
	}
	m.closed = true
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneHeaders(h []Header) []Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]Header, len(h))
	for i, hdr := range h {
		out[i] = Header{Key: hdr.Key, Value: cloneBytes(hdr.Value)}
	}
	return out
}
