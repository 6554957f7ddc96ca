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
	"net"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

var (
	// ErrUnknownTopic indicates the topic does not exist.
	ErrUnknownTopic = errors.New("topic not found")
	// ErrUnknownPartition indicates the partition does not exist on the topic.
	ErrUnknownPartition = errors.New("partition not found")
	// ErrTopicExists is returned when creating a topic that already exists.
	ErrTopicExists = errors.New("topic already exists")
	// ErrInvalidTopic rejects malformed topic requests.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrBrokerUnavailable indicates the cluster could not be reached.
	ErrBrokerUnavailable = errors.New("kafka broker unavailable")
	// ErrNotSubscribed is returned when polling or seeking a handle with no subscription.
	ErrNotSubscribed = errors.New("consumer has no subscription or assignment")
	// ErrClosed is returned by handles after Close.
	ErrClosed = errors.New("kafka client closed")
)

// Classify maps client and protocol errors onto the package sentinels,
// keeping the original error in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrUnknownTopic), errors.Is(err, ErrUnknownPartition),
		errors.Is(err, ErrTopicExists), errors.Is(err, ErrInvalidTopic),
		errors.Is(err, ErrBrokerUnavailable), errors.Is(err, ErrNotSubscribed),
		errors.Is(err, ErrClosed):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, kerr.UnknownTopicOrPartition):
		return fmt.Errorf("%w: %w", ErrUnknownTopic, err)
	case errors.Is(err, kerr.TopicAlreadyExists):
		return fmt.Errorf("%w: %w", ErrTopicExists, err)
	case errors.Is(err, kerr.InvalidTopicException), errors.Is(err, kerr.InvalidPartitions),
		errors.Is(err, kerr.InvalidReplicationFactor):
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	case errors.Is(err, kgo.ErrClientClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, kerr.BrokerNotAvailable), errors.Is(err, kerr.LeaderNotAvailable),
		errors.Is(err, kerr.NotLeaderForPartition), errors.Is(err, kerr.RequestTimedOut),
		errors.Is(err, kerr.NetworkException), errors.Is(err, kerr.CoordinatorNotAvailable):
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
	return err
}

// IsUnavailable reports whether err signals an unreachable cluster.
func IsUnavailable(err error) bool {
	return errors.Is(Classify(err), ErrBrokerUnavailable)
}
