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
	"fmt"
	"sync/atomic"
)

// partitioner chooses partitions the way the Java client does: explicit
// partition first, murmur2 of the key second, round robin otherwise.
type partitioner struct {
	next atomic.Uint32
}

func (p *partitioner) pick(rec ProducerRecord, count int32) (int32, error) {
	if count <= 0 {
		return 0, fmt.Errorf("%w: %s has no partitions", ErrUnknownTopic, rec.Topic)
	}
	if rec.Partition >= 0 {
		if rec.Partition >= count {
			return 0, fmt.Errorf("%w: %s/%d", ErrUnknownPartition, rec.Topic, rec.Partition)
		}
		return rec.Partition, nil
	}
	if len(rec.Key) > 0 {
		return int32(toPositive(murmur2(rec.Key)) % uint32(count)), nil
	}
	return int32((p.next.Add(1) - 1) % uint32(count)), nil
}

func toPositive(v int32) uint32 {
	return uint32(v) & 0x7fffffff
}

// murmur2 matches org.apache.kafka.common.utils.Utils.murmur2 so keyed
// records land on the same partitions as records from JVM producers.
func murmur2(data []byte) int32 {
	const (
		seed uint32 = 0x9747b28c
		m    uint32 = 0x5bd1e995
		r           = 24
	)
	length := len(data)
	h := seed ^ uint32(length)
	length4 := length / 4
	for i := 0; i < length4; i++ {
		i4 := i * 4
		k := uint32(data[i4]) | uint32(data[i4+1])<<8 | uint32(data[i4+2])<<16 | uint32(data[i4+3])<<24
		k *= m
		k ^= k >> r
		k *= m
		h *= m
		h ^= k
	}
	tail := length4 * 4
	switch length % 4 {
	case 3:
		h ^= uint32(data[tail+2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[tail+1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[tail])
		h *= m
	}
	h ^= h >> 13
	h *= m
	h ^= h >> 15
	return int32(h)
}
