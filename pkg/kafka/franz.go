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
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

const metadataCacheAge = 5 * time.Second

// ClientConfig configures the franz-go backend.
type ClientConfig struct {
	// Properties are Kafka client properties without the "kafka." prefix.
	Properties map[string]string
	Logger     *slog.Logger
}

// Client is a Backend backed by franz-go. Producer and admin calls share a
// single connection pool; every consumer owns its own kgo client.
type Client struct {
	logger   *slog.Logger
	baseOpts []kgo.Opt
	kcl      *kgo.Client
	admin    *kadm.Client
	part     partitioner

	closeOnce sync.Once
}

// NewClient creates the shared producer/admin handle. It does not block on
// broker connectivity.
func NewClient(cfg ClientConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseOpts, producerOpts, err := clientOptions(cfg.Properties, logger)
	if err != nil {
		return nil, err
	}
	opts := append(append([]kgo.Opt{}, baseOpts...), producerOpts...)
	opts = append(opts, kgo.RecordPartitioner(kgo.ManualPartitioner()))
	kcl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Client{
		logger:   logger,
		baseOpts: baseOpts,
		kcl:      kcl,
		admin:    kadm.NewClient(kcl),
	}, nil
}

// clientOptions translates Kafka property names into kgo options. Unknown
// properties are logged and ignored.
func clientOptions(props map[string]string, logger *slog.Logger) ([]kgo.Opt, []kgo.Opt, error) {
	seeds := splitList(props["bootstrap.servers"])
	if len(seeds) == 0 {
		return nil, nil, fmt.Errorf("kafka.bootstrap.servers is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(seeds...),
		kgo.WithLogger(NewLogger(logger)),
	}
	var producer []kgo.Opt

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := strings.TrimSpace(props[key])
		switch key {
		case "bootstrap.servers":
		case "client.id":
			base = append(base, kgo.ClientID(val))
		case "request.timeout.ms":
			d, err := millis(key, val)
			if err != nil {
				return nil, nil, err
			}
			base = append(base, kgo.RequestTimeoutOverhead(d))
		case "metadata.max.age.ms":
			d, err := millis(key, val)
			if err != nil {
				return nil, nil, err
			}
			base = append(base, kgo.MetadataMaxAge(d))
		case "security.protocol":
			switch strings.ToUpper(val) {
			case "SSL":
				base = append(base, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
			case "PLAINTEXT", "":
			default:
				return nil, nil, fmt.Errorf("unsupported security.protocol %q", val)
			}
		case "acks":
			acks, idempotent, err := parseAcks(val)
			if err != nil {
				return nil, nil, err
			}
			producer = append(producer, kgo.RequiredAcks(acks))
			if !idempotent {
				producer = append(producer, kgo.DisableIdempotentWrite())
			}
		case "enable.idempotence":
			if b, err := strconv.ParseBool(val); err == nil && !b {
				producer = append(producer, kgo.DisableIdempotentWrite())
			}
		case "linger.ms":
			d, err := millis(key, val)
			if err != nil {
				return nil, nil, err
			}
			producer = append(producer, kgo.ProducerLinger(d))
		case "max.request.size", "batch.size":
			n, err := strconv.ParseInt(val, 10, 32)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", key, err)
			}
			producer = append(producer, kgo.ProducerBatchMaxBytes(int32(n)))
		case "delivery.timeout.ms":
			d, err := millis(key, val)
			if err != nil {
				return nil, nil, err
			}
			producer = append(producer, kgo.RecordDeliveryTimeout(d))
		case "compression.type":
			codec, err := parseCompression(val)
			if err != nil {
				return nil, nil, err
			}
			producer = append(producer, kgo.ProducerBatchCompression(codec))
		default:
			logger.Debug("ignoring unsupported kafka property", "property", key)
		}
	}
	return base, producer, nil
}

func parseAcks(val string) (kgo.Acks, bool, error) {
	switch strings.ToLower(val) {
	case "all", "-1":
		return kgo.AllISRAcks(), true, nil
	case "1":
		return kgo.LeaderAck(), false, nil
	case "0":
		return kgo.NoAck(), false, nil
	default:
		return kgo.Acks{}, false, fmt.Errorf("unsupported acks %q", val)
	}
}

func parseCompression(val string) (kgo.CompressionCodec, error) {
	switch strings.ToLower(val) {
	case "none", "":
		return kgo.NoCompression(), nil
	case "gzip":
		return kgo.GzipCompression(), nil
	case "snappy":
		return kgo.SnappyCompression(), nil
	case "lz4":
		return kgo.Lz4Compression(), nil
	case "zstd":
		return kgo.ZstdCompression(), nil
	default:
		return kgo.CompressionCodec{}, fmt.Errorf("unsupported compression.type %q", val)
	}
}

func millis(key, val string) (time.Duration, error) {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Close releases the shared handle.
func (c *Client) Close() {
	c.closeOnce.Do(c.kcl.Close)
}

// Produce implements Producer. Records are partitioned client-side so an
// unknown topic or partition fails only the affected records.
func (c *Client) Produce(ctx context.Context, records []ProducerRecord) []ProduceOutcome {
	outcomes := make([]ProduceOutcome, len(records))
	for i := range outcomes {
		outcomes[i] = ProduceOutcome{Partition: AnyPartition, Offset: -1}
	}
	counts, errs := c.partitionCounts(ctx, records)

	var wg sync.WaitGroup
	for i, rec := range records {
		if err := errs[rec.Topic]; err != nil {
			outcomes[i].Err = err
			continue
		}
		partition, err := c.part.pick(rec, counts[rec.Topic])
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		kr := &kgo.Record{
			Topic:     rec.Topic,
			Partition: partition,
			Key:       rec.Key,
			Value:     rec.Value,
		}
		for _, h := range rec.Headers {
			kr.Headers = append(kr.Headers, kgo.RecordHeader{Key: h.Key, Value: h.Value})
		}
		wg.Add(1)
		idx := i
		c.kcl.Produce(ctx, kr, func(r *kgo.Record, err error) {
			defer wg.Done()
			if err != nil {
				outcomes[idx].Err = Classify(err)
				return
			}
			outcomes[idx] = ProduceOutcome{Partition: r.Partition, Offset: r.Offset}
		})
	}
	wg.Wait()
	return outcomes
}

// partitionCounts resolves partition counts for every topic in the batch
// with a single metadata round trip.
func (c *Client) partitionCounts(ctx context.Context, records []ProducerRecord) (map[string]int32, map[string]error) {
	counts := make(map[string]int32)
	errs := make(map[string]error)
	req := kmsg.NewPtrMetadataRequest()
	req.AllowAutoTopicCreation = false
	seen := make(map[string]struct{})
	for _, rec := range records {
		if _, ok := seen[rec.Topic]; ok {
			continue
		}
		seen[rec.Topic] = struct{}{}
		if rec.Topic == "" {
			errs[rec.Topic] = fmt.Errorf("%w: empty topic name", ErrInvalidTopic)
			continue
		}
		rt := kmsg.NewMetadataRequestTopic()
		rt.Topic = kmsg.StringPtr(rec.Topic)
		req.Topics = append(req.Topics, rt)
	}
	if len(req.Topics) == 0 {
		return counts, errs
	}
	resp, err := c.kcl.RequestCachedMetadata(ctx, req, metadataCacheAge)
	if err != nil {
		for topic := range seen {
			errs[topic] = Classify(err)
		}
		return counts, errs
	}
	for _, t := range resp.Topics {
		if t.Topic == nil {
			continue
		}
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil {
			errs[*t.Topic] = Classify(err)
			continue
		}
		counts[*t.Topic] = int32(len(t.Partitions))
	}
	for topic := range seen {
		if _, ok := counts[topic]; !ok && errs[topic] == nil {
			errs[topic] = fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
		}
	}
	return counts, errs
}

// ListTopics implements Admin. Internal topics are excluded.
func (c *Client) ListTopics(ctx context.Context) ([]string, error) {
	details, err := c.admin.ListTopics(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	names := details.Names()
	sort.Strings(names)
	return names, nil
}

// DescribeTopic implements Admin.
func (c *Client) DescribeTopic(ctx context.Context, topic string) (TopicMetadata, error) {
	req := kmsg.NewPtrMetadataRequest()
	req.AllowAutoTopicCreation = false
	rt := kmsg.NewMetadataRequestTopic()
	rt.Topic = kmsg.StringPtr(topic)
	req.Topics = append(req.Topics, rt)
	resp, err := req.RequestWith(ctx, c.kcl)
	if err != nil {
		return TopicMetadata{}, Classify(err)
	}
	if len(resp.Topics) == 0 {
		return TopicMetadata{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	t := resp.Topics[0]
	if err := kerr.ErrorForCode(t.ErrorCode); err != nil {
		return TopicMetadata{}, Classify(err)
	}
	meta := TopicMetadata{Name: topic, Configs: make(map[string]string)}
	for _, p := range t.Partitions {
		isr := make(map[int32]struct{}, len(p.ISR))
		for _, id := range p.ISR {
			isr[id] = struct{}{}
		}
		pm := PartitionMetadata{Partition: p.Partition, Leader: p.Leader}
		for _, id := range p.Replicas {
			_, inSync := isr[id]
			pm.Replicas = append(pm.Replicas, ReplicaMetadata{Broker: id, Leader: id == p.Leader, InSync: inSync})
		}
		meta.Partitions = append(meta.Partitions, pm)
	}
	sort.Slice(meta.Partitions, func(i, j int) bool {
		return meta.Partitions[i].Partition < meta.Partitions[j].Partition
	})

	configs, err := c.admin.DescribeTopicConfigs(ctx, topic)
	if err != nil {
		c.logger.Warn("describe topic configs failed", "topic", topic, "error", err)
		return meta, nil
	}
	for _, rc := range configs {
		if rc.Err != nil {
			continue
		}
		for _, cfg := range rc.Configs {
			if cfg.Value != nil && !cfg.Sensitive {
				meta.Configs[cfg.Key] = *cfg.Value
			}
		}
	}
	return meta, nil
}

// PartitionOffsets implements Admin.
func (c *Client) PartitionOffsets(ctx context.Context, topic string, partition int32) (PartitionOffsets, error) {
	start, err := c.admin.ListStartOffsets(ctx, topic)
	if err != nil {
		return PartitionOffsets{}, Classify(err)
	}
	end, err := c.admin.ListEndOffsets(ctx, topic)
	if err != nil {
		return PartitionOffsets{}, Classify(err)
	}
	s, ok := start.Lookup(topic, partition)
	if !ok {
		if _, known := start[topic]; !known {
			return PartitionOffsets{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
		}
		return PartitionOffsets{}, fmt.Errorf("%w: %s/%d", ErrUnknownPartition, topic, partition)
	}
	if s.Err != nil {
		return PartitionOffsets{}, Classify(s.Err)
	}
	e, ok := end.Lookup(topic, partition)
	if !ok {
		return PartitionOffsets{}, fmt.Errorf("%w: %s/%d", ErrUnknownPartition, topic, partition)
	}
	if e.Err != nil {
		return PartitionOffsets{}, Classify(e.Err)
	}
	return PartitionOffsets{Beginning: s.Offset, End: e.Offset}, nil
}

// CreateTopic implements Admin.
func (c *Client) CreateTopic(ctx context.Context, spec TopicSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return fmt.Errorf("%w: topic name required", ErrInvalidTopic)
	}
	partitions := spec.Partitions
	if partitions == 0 {
		partitions = -1
	}
	replication := spec.ReplicationFactor
	if replication == 0 {
		replication = -1
	}
	var configs map[string]*string
	if len(spec.Configs) > 0 {
		configs = make(map[string]*string, len(spec.Configs))
		for k, v := range spec.Configs {
			configs[k] = kmsg.StringPtr(v)
		}
	}
	resp, err := c.admin.CreateTopic(ctx, partitions, replication, configs, spec.Name)
	if err != nil {
		return Classify(err)
	}
	if resp.Err != nil {
		return Classify(resp.Err)
	}
	return nil
}

// NewConsumer implements ConsumerFactory. The kgo client is created lazily
// on the first subscription or assignment.
func (c *Client) NewConsumer(group string, opts ConsumerOptions) (Consumer, error) {
	if group == "" {
		return nil, errors.New("consumer group required")
	}
	return &franzConsumer{parent: c, group: group, opts: opts}, nil
}
