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

import "errors"

var (
	// ErrInstanceNotFound is returned for an unknown (group, name) pair.
	ErrInstanceNotFound = errors.New("consumer instance not found")
	// ErrInstanceConflict is returned when the instance name is already taken.
	ErrInstanceConflict = errors.New("consumer instance with the specified name already exists")
	// ErrInstanceClosed is returned for operations submitted after Close.
	ErrInstanceClosed = errors.New("consumer instance closed")
	// ErrNoSubscription is returned when polling or seeking an idle instance.
	ErrNoSubscription = errors.New("consumer instance is not subscribed to any topics or assigned any partitions")
	// ErrSubscriptionConflict is returned when mixing topics, patterns and assignments.
	ErrSubscriptionConflict = errors.New("subscriptions to topics, partitions, and patterns are mutually exclusive")
	// ErrInvalidRequest wraps validation failures of gateway arguments.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBackendUnavailable is returned while the circuit breaker is open.
	ErrBackendUnavailable = errors.New("kafka backend unavailable")
	// ErrPoolClosed is returned for work submitted after shutdown began.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrPoolSaturated is returned when the work queue stays full past the caller deadline.
	ErrPoolSaturated = errors.New("worker pool queue full")

	errJobPanicked = errors.New("backend call panicked")
)
