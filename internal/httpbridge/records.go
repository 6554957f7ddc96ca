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

package httpbridge

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/novatechflow/kafscale-bridge/pkg/bridge"
	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

type recordHeader struct {
	Key   string `json:"key" validate:"required"`
	Value []byte `json:"value"`
}

type produceRecord struct {
	Key       json.RawMessage `json:"key,omitempty"`
	Value     json.RawMessage `json:"value"`
	Partition *int32          `json:"partition,omitempty" validate:"omitempty,gte=0"`
	Headers   []recordHeader  `json:"headers,omitempty" validate:"dive"`
}

type produceRequest struct {
	Records []produceRecord `json:"records" validate:"required,min=1,dive"`
}

type produceOffset struct {
	Partition *int32 `json:"partition,omitempty"`
	Offset    *int64 `json:"offset,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type produceResponse struct {
	Offsets []produceOffset `json:"offsets"`
}

type consumedRecord struct {
	Topic     string          `json:"topic"`
	Key       json.RawMessage `json:"key"`
	Value     json.RawMessage `json:"value"`
	Partition int32           `json:"partition"`
	Offset    int64           `json:"offset"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Headers   []recordHeader  `json:"headers,omitempty"`
}

var jsonNull = []byte("null")

// decodeEmbedded turns a key or value from a produce body into raw bytes.
func decodeEmbedded(f bridge.EmbeddedFormat, raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return nil, nil
	}
	switch f {
	case bridge.FormatJSON:
		return append([]byte(nil), raw...), nil
	case bridge.FormatText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: text data must be a JSON string", errUnprocessable)
		}
		return []byte(s), nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: binary data must be a base64 string", errUnprocessable)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 data: %v", errUnprocessable, err)
		}
		return b, nil
	}
}

// encodeEmbedded renders raw bytes for a poll response.
func encodeEmbedded(f bridge.EmbeddedFormat, b []byte) (json.RawMessage, error) {
	if b == nil {
		return nil, nil
	}
	switch f {
	case bridge.FormatJSON:
		if !json.Valid(b) {
			return nil, fmt.Errorf("%w: record data is not valid JSON", errUnprocessable)
		}
		return b, nil
	case bridge.FormatText:
		return json.Marshal(string(b))
	default:
		return json.Marshal(base64.StdEncoding.EncodeToString(b))
	}
}

func toProducerRecords(topic string, partition *int32, f bridge.EmbeddedFormat, in []produceRecord) ([]kafka.ProducerRecord, error) {
	out := make([]kafka.ProducerRecord, 0, len(in))
	for i, rec := range in {
		key, err := decodeEmbedded(f, rec.Key)
		if err != nil {
			return nil, fmt.Errorf("record %d key: %w", i, err)
		}
		value, err := decodeEmbedded(f, rec.Value)
		if err != nil {
			return nil, fmt.Errorf("record %d value: %w", i, err)
		}
		pr := kafka.ProducerRecord{Topic: topic, Partition: kafka.AnyPartition, Key: key, Value: value}
		switch {
		case partition != nil:
			pr.Partition = *partition
		case rec.Partition != nil:
			pr.Partition = *rec.Partition
		}
		for _, h := range rec.Headers {
			pr.Headers = append(pr.Headers, kafka.Header{Key: h.Key, Value: h.Value})
		}
		out = append(out, pr)
	}
	return out, nil
}

func toProduceResponse(outcomes []kafka.ProduceOutcome) produceResponse {
	resp := produceResponse{Offsets: make([]produceOffset, 0, len(outcomes))}
	for _, o := range outcomes {
		if o.Err != nil {
			status := statusFor(o.Err)
			resp.Offsets = append(resp.Offsets, produceOffset{ErrorCode: status, Message: messageFor(status, o.Err)})
			continue
		}
		partition, offset := o.Partition, o.Offset
		resp.Offsets = append(resp.Offsets, produceOffset{Partition: &partition, Offset: &offset})
	}
	return resp
}

func toConsumedRecords(f bridge.EmbeddedFormat, records []kafka.Record) ([]consumedRecord, error) {
	out := make([]consumedRecord, 0, len(records))
	for _, r := range records {
		key, err := encodeEmbedded(f, r.Key)
		if err != nil {
			return nil, err
		}
		value, err := encodeEmbedded(f, r.Value)
		if err != nil {
			return nil, err
		}
		cr := consumedRecord{
			Topic:     r.Topic,
			Key:       key,
			Value:     value,
			Partition: r.Partition,
			Offset:    r.Offset,
		}
		if !r.Timestamp.IsZero() {
			cr.Timestamp = r.Timestamp.UnixMilli()
		}
		for _, h := range r.Headers {
			cr.Headers = append(cr.Headers, recordHeader{Key: h.Key, Value: h.Value})
		}
		out = append(out, cr)
	}
	return out, nil
}
