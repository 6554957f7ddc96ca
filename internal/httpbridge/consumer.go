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
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/novatechflow/kafscale-bridge/pkg/bridge"
	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

type createConsumerRequest struct {
	Name             string `json:"name,omitempty"`
	Format           string `json:"format,omitempty" validate:"omitempty,oneof=binary json text"`
	AutoOffsetReset  string `json:"auto.offset.reset,omitempty" validate:"omitempty,oneof=earliest latest none"`
	EnableAutoCommit *bool  `json:"enable.auto.commit,omitempty"`
	FetchMinBytes    *int32 `json:"fetch.min.bytes,omitempty" validate:"omitempty,gte=0"`
	RequestTimeoutMS *int   `json:"consumer.request.timeout.ms,omitempty" validate:"omitempty,gte=0"`
	IsolationLevel   string `json:"isolation.level,omitempty" validate:"omitempty,oneof=read_committed read_uncommitted"`
}

type createConsumerResponse struct {
	InstanceID string `json:"instance_id"`
	BaseURI    string `json:"base_uri"`
}

type subscribeRequest struct {
	Topics       []string `json:"topics,omitempty" validate:"dive,required"`
	TopicPattern string   `json:"topic_pattern,omitempty"`
}

type subscriptionResponse struct {
	Topics       []string             `json:"topics"`
	TopicPattern string               `json:"topic_pattern,omitempty"`
	Partitions   []map[string][]int32 `json:"partitions"`
}

type partitionRef struct {
	Topic     string `json:"topic" validate:"required"`
	Partition *int32 `json:"partition" validate:"required,gte=0"`
}

type partitionsRequest struct {
	Partitions []partitionRef `json:"partitions" validate:"required,min=1,dive"`
}

type offsetRef struct {
	Topic     string `json:"topic" validate:"required"`
	Partition *int32 `json:"partition" validate:"required,gte=0"`
	Offset    *int64 `json:"offset" validate:"required,gte=0"`
	Metadata  string `json:"metadata,omitempty"`
}

type offsetsRequest struct {
	Offsets []offsetRef `json:"offsets" validate:"required,min=1,dive"`
}

func (h *handlers) instance(r *http.Request) (*bridge.ConsumerInstance, error) {
	return h.registry.Get(chi.URLParam(r, "group"), chi.URLParam(r, "name"))
}

func (h *handlers) createConsumer(w http.ResponseWriter, r *http.Request) {
	var req createConsumerRequest
	if _, err := decodeBody(w, r, bridgeContentTypes, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	group := chi.URLParam(r, "group")
	cfg := bridge.ConsumerConfig{
		Format: bridge.FormatBinary,
		Options: kafka.ConsumerOptions{
			AutoOffsetReset:  kafka.OffsetResetLatest,
			EnableAutoCommit: true,
			IsolationLevel:   kafka.IsolationReadUncommitted,
		},
	}
	if req.Format != "" {
		cfg.Format = bridge.EmbeddedFormat(req.Format)
	}
	if req.AutoOffsetReset != "" {
		cfg.Options.AutoOffsetReset = req.AutoOffsetReset
	}
	if req.EnableAutoCommit != nil {
		cfg.Options.EnableAutoCommit = *req.EnableAutoCommit
	}
	if req.FetchMinBytes != nil {
		cfg.Options.FetchMinBytes = *req.FetchMinBytes
	}
	if req.RequestTimeoutMS != nil {
		cfg.RequestTimeout = time.Duration(*req.RequestTimeoutMS) * time.Millisecond
	}
	if req.IsolationLevel != "" {
		cfg.Options.IsolationLevel = req.IsolationLevel
	}

	inst, err := h.registry.Create(r.Context(), group, req.Name, cfg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name := inst.Key().Name
	writeJSON(w, http.StatusOK, ContentTypeBridge, createConsumerResponse{
		InstanceID: name,
		BaseURI:    baseURI(r, group, name),
	})
}

func (h *handlers) deleteConsumer(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "group"), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if _, err := decodeBody(w, r, bridgeContentTypes, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	inst, err := h.instance(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sub := bridge.Subscription{Topics: req.Topics, Pattern: req.TopicPattern}
	if err := inst.Subscribe(r.Context(), sub); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listSubscription(w http.ResponseWriter, r *http.Request) {
	inst, err := h.instance(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := inst.Subscription(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := subscriptionResponse{
		Topics:       append([]string{}, sub.Topics...),
		TopicPattern: sub.Pattern,
		Partitions:   []map[string][]int32{},
	}
	byTopic := make(map[string][]int32)
	var order []string
	for _, tp := range sub.Partitions {
		if _, seen := byTopic[tp.Topic]; !seen {
			order = append(order, tp.Topic)
		}
		byTopic[tp.Topic] = append(byTopic[tp.Topic], tp.Partition)
	}
	for _, topic := range order {
		resp.Partitions = append(resp.Partitions, map[string][]int32{topic: byTopic[topic]})
	}
	writeJSON(w, http.StatusOK, ContentTypeBridge, resp)
}

func (h *handlers) unsubscribe(w http.ResponseWriter, r *http.Request) {
	inst, err := h.instance(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := inst.Unsubscribe(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) assign(w http.ResponseWriter, r *http.Request) {
	var req partitionsRequest
	if _, err := decodeBody(w, r, bridgeContentTypes, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	inst, err := h.instance(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := inst.Assign(r.Context(), req.topicPartitions()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) poll(w http.ResponseWriter, r *http.Request) {
	opts, err := pollOptions(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inst, err := h.instance(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	format := inst.Config().Format
	want := contentTypeFor(format)
	if !acceptable(r.Header.Get("Accept"), want) {
		h.fail(w, r, errorf(http.StatusNotAcceptable, "consumer format %s requires Accept: %s", format, want))
		return
	}
	records, err := inst.Poll(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := toConsumedRecords(format, records)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, want, out)
}

func pollOptions(q url.Values) (bridge.PollOptions, error) {
	var opts bridge.PollOptions
	if raw := q.Get("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			return opts, errorf(http.StatusBadRequest, "invalid timeout %q", raw)
		}
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}
	if raw := q.Get("max_bytes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, errorf(http.StatusBadRequest, "invalid max_bytes %q", raw)
		}
		opts.MaxBytes = n
	}
	return opts, nil
}

func (h *handlers) commit(w http.ResponseWriter, r *http.Request) {
	var req offsetsRequest
	present, err := decodeBody(w, r, bridgeContentTypes, &req, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inst, err := h.instance(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var offsets []kafka.TopicPartitionOffset
	if present {
		offsets = req.topicPartitionOffsets()
	}
	if err := inst.Commit(r.Context(), offsets); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) seek(w http.ResponseWriter, r *http.Request) {
	var req offsetsRequest
	if _, err := decodeBody(w, r, bridgeContentTypes, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	inst, err := h.instance(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := inst.Seek(r.Context(), req.topicPartitionOffsets()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) seekToBeginning(w http.ResponseWriter, r *http.Request) {
	h.seekEdge(w, r, (*bridge.ConsumerInstance).SeekToBeginning)
}

func (h *handlers) seekToEnd(w http.ResponseWriter, r *http.Request) {
	h.seekEdge(w, r, (*bridge.ConsumerInstance).SeekToEnd)
}

func (h *handlers) seekEdge(w http.ResponseWriter, r *http.Request, seek func(*bridge.ConsumerInstance, context.Context, []kafka.TopicPartition) error) {
	var req partitionsRequest
	if _, err := decodeBody(w, r, bridgeContentTypes, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	inst, err := h.instance(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := seek(inst, r.Context(), req.topicPartitions()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p partitionsRequest) topicPartitions() []kafka.TopicPartition {
	out := make([]kafka.TopicPartition, 0, len(p.Partitions))
	for _, ref := range p.Partitions {
		out = append(out, kafka.TopicPartition{Topic: ref.Topic, Partition: *ref.Partition})
	}
	return out
}

func (o offsetsRequest) topicPartitionOffsets() []kafka.TopicPartitionOffset {
	out := make([]kafka.TopicPartitionOffset, 0, len(o.Offsets))
	for _, ref := range o.Offsets {
		out = append(out, kafka.TopicPartitionOffset{
			Topic:     ref.Topic,
			Partition: *ref.Partition,
			Offset:    *ref.Offset,
			Metadata:  ref.Metadata,
		})
	}
	return out
}

// baseURI builds the instance URI, honoring proxy headers.
func baseURI(r *http.Request, group, name string) string {
	scheme, host := "http", r.Host
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("Forwarded"); fwd != "" {
		first := strings.SplitN(fwd, ",", 2)[0]
		for _, pair := range strings.Split(first, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				continue
			}
			v = strings.Trim(v, `"`)
			switch strings.ToLower(k) {
			case "proto":
				scheme = v
			case "host":
				host = v
			}
		}
	} else {
		if xfh := r.Header.Get("X-Forwarded-Host"); xfh != "" {
			host = strings.TrimSpace(strings.SplitN(xfh, ",", 2)[0])
		}
		if xfp := r.Header.Get("X-Forwarded-Proto"); xfp != "" {
			scheme = strings.TrimSpace(strings.SplitN(xfp, ",", 2)[0])
		}
	}
	return scheme + "://" + host + "/consumers/" + url.PathEscape(group) + "/instances/" + url.PathEscape(name)
}
