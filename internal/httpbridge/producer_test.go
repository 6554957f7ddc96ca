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
	"net/http"
	"testing"
	"time"

	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

func TestProduceReportsPerRecordFailures(t *testing.T) {
	b := newTestBridge(t, nil)
	b.createTopic(t, "orders", 2)

	resp, body := b.do(t, request{
		method:      http.MethodPost,
		path:        "/topics/orders",
		contentType: ContentTypeRecText,
		body:        `{"records":[{"value":"a","partition":0},{"value":"b","partition":5},{"value":"c","partition":1}]}`,
	})
	expectStatus(t, resp, body, http.StatusOK)
	got := decode[produceResponse](t, body)
	if len(got.Offsets) != 3 {
		t.Fatalf("expected 3 results, got %s", body)
	}
	if got.Offsets[0].Partition == nil || *got.Offsets[0].Partition != 0 {
		t.Fatalf("record 0 should land on partition 0: %s", body)
	}
	if got.Offsets[1].ErrorCode != http.StatusNotFound || got.Offsets[1].Partition != nil {
		t.Fatalf("record 1 should fail with 404: %s", body)
	}
	if got.Offsets[2].Partition == nil || *got.Offsets[2].Partition != 1 {
		t.Fatalf("record 2 should land on partition 1: %s", body)
	}
}

func TestProduceToPartitionRoute(t *testing.T) {
	b := newTestBridge(t, nil)
	b.createTopic(t, "orders", 3)

	resp, body := b.do(t, request{
		method:      http.MethodPost,
		path:        "/topics/orders/partitions/2",
		contentType: ContentTypeRecBinary,
		body:        `{"records":[{"key":"a2V5","value":"dmFsdWU=","partition":0}]}`,
	})
	expectStatus(t, resp, body, http.StatusOK)
	got := decode[produceResponse](t, body)
	if len(got.Offsets) != 1 || got.Offsets[0].Partition == nil || *got.Offsets[0].Partition != 2 {
		t.Fatalf("route partition should win: %s", body)
	}
	offsets, err := b.cluster.PartitionOffsets(t.Context(), "orders", 2)
	if err != nil || offsets.End != 1 {
		t.Fatalf("expected one record on partition 2, got %+v (%v)", offsets, err)
	}

	resp, body = b.do(t, request{
		method:      http.MethodPost,
		path:        "/topics/orders/partitions/x",
		contentType: ContentTypeRecBinary,
		body:        `{"records":[{"value":"dmFsdWU="}]}`,
	})
	expectStatus(t, resp, body, http.StatusBadRequest)
}

func TestProduceValidation(t *testing.T) {
	b := newTestBridge(t, nil)
	b.createTopic(t, "orders", 1)

	cases := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"empty body", ContentTypeRecJSON, "", http.StatusBadRequest},
		{"generic content type", ContentTypeBridge, `{"records":[{"value":1}]}`, http.StatusUnsupportedMediaType},
		{"no records", ContentTypeRecJSON, `{"records":[]}`, http.StatusBadRequest},
		{"malformed", ContentTypeRecJSON, `{"records":[`, http.StatusBadRequest},
		{"bad base64", ContentTypeRecBinary, `{"records":[{"value":"***"}]}`, http.StatusUnprocessableEntity},
		{"text needs string", ContentTypeRecText, `{"records":[{"value":{"a":1}}]}`, http.StatusUnprocessableEntity},
		{"header without key", ContentTypeRecJSON, `{"records":[{"value":1,"headers":[{"value":"dg=="}]}]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := b.do(t, request{method: http.MethodPost, path: "/topics/orders", contentType: tc.contentType, body: tc.body})
			expectStatus(t, resp, body, tc.want)
		})
	}
}

func TestProduceAsync(t *testing.T) {
	b := newTestBridge(t, nil)
	b.createTopic(t, "events", 1)

	resp, body := b.do(t, request{
		method:      http.MethodPost,
		path:        "/topics/events?async=true",
		contentType: ContentTypeRecJSON,
		body:        `{"records":[{"value":{"id":1}}]}`,
	})
	expectStatus(t, resp, body, http.StatusNoContent)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		offsets, err := b.cluster.PartitionOffsets(t.Context(), "events", 0)
		if err != nil {
			t.Fatalf("offsets: %v", err)
		}
		if offsets.End == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("async record never arrived")
}

func TestProduceHeadersRoundTrip(t *testing.T) {
	b := newTestBridge(t, nil)
	b.createTopic(t, "h", 1)
	resp, body := b.do(t, request{
		method:      http.MethodPost,
		path:        "/topics/h",
		contentType: ContentTypeRecJSON,
		body:        `{"records":[{"value":true,"headers":[{"key":"trace","value":"YWJj"}]}]}`,
	})
	expectStatus(t, resp, body, http.StatusOK)

	c, err := b.cluster.NewConsumer("check", kafka.ConsumerOptions{AutoOffsetReset: kafka.OffsetResetEarliest})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(t.Context(), []string{"h"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	records, err := c.Poll(t.Context(), 0)
	if err != nil || len(records) != 1 {
		t.Fatalf("poll: %v (%d records)", err, len(records))
	}
	rec := records[0]
	if string(rec.Value) != "true" || len(rec.Headers) != 1 || string(rec.Headers[0].Value) != "abc" {
		t.Fatalf("unexpected stored record %+v", rec)
	}
}
