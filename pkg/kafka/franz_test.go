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
	"io"
	"log/slog"
	"testing"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientOptionsRequiresBootstrap(t *testing.T) {
	if _, _, err := clientOptions(map[string]string{}, discardLogger()); err == nil {
		t.Fatalf("expected error without bootstrap.servers")
	}
	if _, err := NewClient(ClientConfig{Properties: map[string]string{"client.id": "x"}}); err == nil {
		t.Fatalf("expected NewClient to fail without bootstrap.servers")
	}
}

func TestClientOptionsTranslatesProperties(t *testing.T) {
	base, producer, err := clientOptions(map[string]string{
		"bootstrap.servers": "a:9092,b:9092",
		"client.id":         "bridge",
		"acks":              "1",
		"linger.ms":         "5",
		"compression.type":  "zstd",
		"unknown.setting":   "ignored",
	}, discardLogger())
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	// seeds, logger, client id
	if len(base) != 3 {
		t.Fatalf("expected 3 base options, got %d", len(base))
	}
	// acks, disable idempotence, linger, compression
	if len(producer) != 4 {
		t.Fatalf("expected 4 producer options, got %d", len(producer))
	}
}

func TestClientOptionsRejectsBadValues(t *testing.T) {
	cases := []map[string]string{
		{"bootstrap.servers": "a:9092", "acks": "2"},
		{"bootstrap.servers": "a:9092", "linger.ms": "soon"},
		{"bootstrap.servers": "a:9092", "compression.type": "brotli"},
		{"bootstrap.servers": "a:9092", "security.protocol": "SASL_SSL"},
	}
	for _, props := range cases {
		if _, _, err := clientOptions(props, discardLogger()); err == nil {
			t.Fatalf("expected error for %v", props)
		}
	}
}

func TestParseAcks(t *testing.T) {
	if _, idempotent, err := parseAcks("all"); err != nil || !idempotent {
		t.Fatalf("acks=all should keep idempotence: %v", err)
	}
	if _, idempotent, err := parseAcks("0"); err != nil || idempotent {
		t.Fatalf("acks=0 should disable idempotence: %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{kerr.UnknownTopicOrPartition, ErrUnknownTopic},
		{fmt.Errorf("produce: %w", kerr.TopicAlreadyExists), ErrTopicExists},
		{kerr.InvalidReplicationFactor, ErrInvalidTopic},
		{kerr.LeaderNotAvailable, ErrBrokerUnavailable},
		{kgo.ErrClientClosed, ErrClosed},
	}
	for _, tc := range cases {
		if got := Classify(tc.in); !errors.Is(got, tc.want) {
			t.Fatalf("Classify(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) should be nil")
	}
	if got := Classify(context.DeadlineExceeded); !errors.Is(got, context.DeadlineExceeded) || IsUnavailable(got) {
		t.Fatalf("deadline errors should pass through, got %v", got)
	}
	if !IsUnavailable(kerr.BrokerNotAvailable) {
		t.Fatalf("broker not available should be unavailable")
	}
}

func TestLoggerLevelFollowsHandler(t *testing.T) {
	l := NewLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if l.Level() != kgo.LogLevelWarn {
		t.Fatalf("expected warn level, got %v", l.Level())
	}
	l.Log(kgo.LogLevelError, "broker gone", "broker", 1)
}

func TestResetOffsetPolicies(t *testing.T) {
	if resetOffset(OffsetResetEarliest).String() == resetOffset(OffsetResetLatest).String() {
		t.Fatalf("earliest and latest should differ")
	}
}
