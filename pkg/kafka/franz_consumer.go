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
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// franzConsumer rebuilds its kgo client whenever the subscription changes.
// Subscriptions join the consumer group; assignments consume partitions
// directly and commit through the admin client on behalf of the group.
type franzConsumer struct {
	parent   *Client
	group    string
	opts     ConsumerOptions
	client   *kgo.Client
	assigned bool
	// consumed tracks the next offset per partition for assignment commits.
	consumed map[string]map[int32]kgo.EpochOffset
	closed   bool
}

func (f *franzConsumer) consumerOpts() []kgo.Opt {
	opts := append([]kgo.Opt{}, f.parent.baseOpts...)
	if f.opts.ClientID != "" {
		opts = append(opts, kgo.ClientID(f.opts.ClientID))
	}
	opts = append(opts, kgo.ConsumeResetOffset(resetOffset(f.opts.AutoOffsetReset)))
	if f.opts.FetchMinBytes > 0 {
		opts = append(opts, kgo.FetchMinBytes(f.opts.FetchMinBytes))
	}
	if f.opts.IsolationLevel == IsolationReadCommitted {
		opts = append(opts, kgo.FetchIsolationLevel(kgo.ReadCommitted()))
	}
	return opts
}

func resetOffset(policy string) kgo.Offset {
	switch policy {
	case OffsetResetEarliest:
		return kgo.NewOffset().AtStart()
	case OffsetResetNone:
		return kgo.NoResetOffset()
	default:
		return kgo.NewOffset().AtEnd()
	}
}

func (f *franzConsumer) groupOpts() []kgo.Opt {
	opts := []kgo.Opt{kgo.ConsumerGroup(f.group)}
	if !f.opts.EnableAutoCommit {
		opts = append(opts, kgo.DisableAutoCommit())
	}
	return opts
}

func (f *franzConsumer) replace(opts ...kgo.Opt) error {
	if f.closed {
		return ErrClosed
	}
	f.release()
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("create consumer client: %w", err)
	}
	f.client = cl
	return nil
}

func (f *franzConsumer) release() {
	if f.client != nil {
		f.client.Close()
		f.client = nil
	}
	f.assigned = false
	f.consumed = nil
}

func (f *franzConsumer) Subscribe(ctx context.Context, topics []string) error {
	opts := append(f.consumerOpts(), f.groupOpts()...)
	opts = append(opts, kgo.ConsumeTopics(topics...))
	return f.replace(opts...)
}

func (f *franzConsumer) SubscribePattern(ctx context.Context, pattern string) error {
	opts := append(f.consumerOpts(), f.groupOpts()...)
	opts = append(opts, kgo.ConsumeRegex(), kgo.ConsumeTopics(pattern))
	return f.replace(opts...)
}

func (f *franzConsumer) Assign(ctx context.Context, partitions []TopicPartition) error {
	if f.closed {
		return ErrClosed
	}
	committed, err := f.parent.admin.FetchOffsets(ctx, f.group)
	if err != nil && !errors.Is(err, kerr.GroupIDNotFound) {
		return Classify(err)
	}
	reset := resetOffset(f.opts.AutoOffsetReset)
	start := make(map[string]map[int32]kgo.Offset)
	for _, tp := range partitions {
		offset := reset
		if resp, ok := committed.Lookup(tp.Topic, tp.Partition); ok && resp.Err == nil && resp.At >= 0 {
			offset = kgo.NewOffset().At(resp.At).WithEpoch(resp.LeaderEpoch)
		}
		if start[tp.Topic] == nil {
			start[tp.Topic] = make(map[int32]kgo.Offset)
		}
		start[tp.Topic][tp.Partition] = offset
	}
	opts := append(f.consumerOpts(), kgo.ConsumePartitions(start))
	if err := f.replace(opts...); err != nil {
		return err
	}
	f.assigned = true
	return nil
}

func (f *franzConsumer) Unsubscribe(ctx context.Context) error {
	if f.closed {
		return ErrClosed
	}
	f.release()
	return nil
}

func (f *franzConsumer) Poll(ctx context.Context, maxRecords int) ([]Record, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if f.client == nil {
		return nil, ErrNotSubscribed
	}
	fetches := f.client.PollRecords(ctx, maxRecords)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}
	var firstErr error
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		if firstErr == nil {
			firstErr = Classify(fmt.Errorf("fetch %s/%d: %w", topic, partition, err))
		}
	})

	var out []Record
	fetches.EachRecord(func(r *kgo.Record) {
		rec := Record{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Key:       r.Key,
			Value:     r.Value,
			Timestamp: r.Timestamp,
		}
		for _, h := range r.Headers {
			rec.Headers = append(rec.Headers, Header{Key: h.Key, Value: h.Value})
		}
		out = append(out, rec)
		if f.assigned {
			if f.consumed == nil {
				f.consumed = make(map[string]map[int32]kgo.EpochOffset)
			}
			if f.consumed[r.Topic] == nil {
				f.consumed[r.Topic] = make(map[int32]kgo.EpochOffset)
			}
			f.consumed[r.Topic][r.Partition] = kgo.EpochOffset{Epoch: r.LeaderEpoch, Offset: r.Offset + 1}
		}
	})
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (f *franzConsumer) Commit(ctx context.Context, offsets []TopicPartitionOffset) error {
	if f.closed {
		return ErrClosed
	}
	if len(offsets) == 0 {
		if f.client == nil {
			return nil
		}
		if !f.assigned {
			return Classify(f.client.CommitUncommittedOffsets(ctx))
		}
		return f.commitViaAdmin(ctx, f.consumedOffsets())
	}
	if f.client != nil && !f.assigned {
		return f.commitViaGroup(ctx, offsets)
	}
	return f.commitViaAdmin(ctx, offsets)
}

func (f *franzConsumer) consumedOffsets() []TopicPartitionOffset {
	var out []TopicPartitionOffset
	for topic, parts := range f.consumed {
		for p, eo := range parts {
			out = append(out, TopicPartitionOffset{Topic: topic, Partition: p, Offset: eo.Offset})
		}
	}
	return out
}

func (f *franzConsumer) commitViaGroup(ctx context.Context, offsets []TopicPartitionOffset) error {
	uncommitted := make(map[string]map[int32]kgo.EpochOffset)
	for _, o := range offsets {
		if uncommitted[o.Topic] == nil {
			uncommitted[o.Topic] = make(map[int32]kgo.EpochOffset)
		}
		uncommitted[o.Topic][o.Partition] = kgo.EpochOffset{Epoch: -1, Offset: o.Offset}
	}
	var commitErr error
	f.client.CommitOffsetsSync(ctx, uncommitted, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			commitErr = err
			return
		}
		for _, t := range resp.Topics {
			for _, p := range t.Partitions {
				if err := kerr.ErrorForCode(p.ErrorCode); err != nil && commitErr == nil {
					commitErr = fmt.Errorf("commit %s/%d: %w", t.Topic, p.Partition, err)
				}
			}
		}
	})
	return Classify(commitErr)
}

func (f *franzConsumer) commitViaAdmin(ctx context.Context, offsets []TopicPartitionOffset) error {
	if len(offsets) == 0 {
		return nil
	}
	toCommit := make(kadm.Offsets)
	for _, o := range offsets {
		toCommit.Add(kadm.Offset{
			Topic:       o.Topic,
			Partition:   o.Partition,
			At:          o.Offset,
			LeaderEpoch: -1,
			Metadata:    o.Metadata,
		})
	}
	resps, err := f.parent.admin.CommitOffsets(ctx, f.group, toCommit)
	if err != nil {
		return Classify(err)
	}
	return Classify(resps.Error())
}

func (f *franzConsumer) Seek(ctx context.Context, offsets []TopicPartitionOffset) error {
	if f.closed {
		return ErrClosed
	}
	if f.client == nil {
		return ErrNotSubscribed
	}
	set := make(map[string]map[int32]kgo.EpochOffset)
	for _, o := range offsets {
		if set[o.Topic] == nil {
			set[o.Topic] = make(map[int32]kgo.EpochOffset)
		}
		set[o.Topic][o.Partition] = kgo.EpochOffset{Epoch: -1, Offset: o.Offset}
	}
	f.client.SetOffsets(set)
	return nil
}

func (f *franzConsumer) SeekToBeginning(ctx context.Context, partitions []TopicPartition) error {
	return f.seekListed(ctx, partitions, f.parent.admin.ListStartOffsets)
}

func (f *franzConsumer) SeekToEnd(ctx context.Context, partitions []TopicPartition) error {
	return f.seekListed(ctx, partitions, f.parent.admin.ListEndOffsets)
}

func (f *franzConsumer) seekListed(ctx context.Context, partitions []TopicPartition, list func(context.Context, ...string) (kadm.ListedOffsets, error)) error {
	if f.closed {
		return ErrClosed
	}
	if f.client == nil {
		return ErrNotSubscribed
	}
	topics := make([]string, 0, len(partitions))
	seen := make(map[string]struct{})
	for _, tp := range partitions {
		if _, ok := seen[tp.Topic]; !ok {
			seen[tp.Topic] = struct{}{}
			topics = append(topics, tp.Topic)
		}
	}
	listed, err := list(ctx, topics...)
	if err != nil {
		return Classify(err)
	}
	offsets := make([]TopicPartitionOffset, 0, len(partitions))
	var missing []string
	for _, tp := range partitions {
		lo, ok := listed.Lookup(tp.Topic, tp.Partition)
		if !ok {
			missing = append(missing, fmt.Sprintf("%s/%d", tp.Topic, tp.Partition))
			continue
		}
		if lo.Err != nil {
			return Classify(lo.Err)
		}
		offsets = append(offsets, TopicPartitionOffset{Topic: tp.Topic, Partition: tp.Partition, Offset: lo.Offset})
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPartition, strings.Join(missing, ","))
	}
	return f.Seek(ctx, offsets)
}

func (f *franzConsumer) Close() error {
	if f.closed {
		return nil
	}
	f.release()
	f.closed = true
	return nil
}
