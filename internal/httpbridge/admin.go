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

	"github.com/go-chi/chi/v5"

	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

type replicaResponse struct {
	Broker int32 `json:"broker"`
	Leader bool  `json:"leader"`
	InSync bool  `json:"in_sync"`
}

type partitionResponse struct {
	Partition int32             `json:"partition"`
	Leader    int32             `json:"leader"`
	Replicas  []replicaResponse `json:"replicas"`
}

type topicResponse struct {
	Name       string              `json:"name"`
	Configs    map[string]string   `json:"configs"`
	Partitions []partitionResponse `json:"partitions"`
}

type offsetsResponse struct {
	BeginningOffset int64 `json:"beginning_offset"`
	EndOffset       int64 `json:"end_offset"`
}

type createTopicRequest struct {
	TopicName         string            `json:"topic_name" validate:"required"`
	PartitionsCount   *int32            `json:"partitions_count,omitempty" validate:"omitempty,gt=0"`
	ReplicationFactor *int16            `json:"replication_factor,omitempty" validate:"omitempty,gt=0"`
	Configs           map[string]string `json:"configs,omitempty"`
}

func toPartitionResponse(p kafka.PartitionMetadata) partitionResponse {
	out := partitionResponse{Partition: p.Partition, Leader: p.Leader, Replicas: make([]replicaResponse, 0, len(p.Replicas))}
	for _, r := range p.Replicas {
		out.Replicas = append(out.Replicas, replicaResponse{Broker: r.Broker, Leader: r.Leader, InSync: r.InSync})
	}
	return out
}

func (h *handlers) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.admin.ListTopics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, ContentTypeBridge, topics)
}

func (h *handlers) describeTopic(w http.ResponseWriter, r *http.Request) {
	meta, err := h.admin.DescribeTopic(r.Context(), chi.URLParam(r, "topic"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := topicResponse{Name: meta.Name, Configs: meta.Configs, Partitions: make([]partitionResponse, 0, len(meta.Partitions))}
	if resp.Configs == nil {
		resp.Configs = map[string]string{}
	}
	for _, p := range meta.Partitions {
		resp.Partitions = append(resp.Partitions, toPartitionResponse(p))
	}
	writeJSON(w, http.StatusOK, ContentTypeBridge, resp)
}

func (h *handlers) listPartitions(w http.ResponseWriter, r *http.Request) {
	parts, err := h.admin.ListPartitions(r.Context(), chi.URLParam(r, "topic"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]partitionResponse, 0, len(parts))
	for _, p := range parts {
		out = append(out, toPartitionResponse(p))
	}
	writeJSON(w, http.StatusOK, ContentTypeBridge, out)
}

func (h *handlers) describePartition(w http.ResponseWriter, r *http.Request) {
	partition, err := partitionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.admin.DescribePartition(r.Context(), chi.URLParam(r, "topic"), partition)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContentTypeBridge, toPartitionResponse(p))
}

func (h *handlers) partitionOffsets(w http.ResponseWriter, r *http.Request) {
	partition, err := partitionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offsets, err := h.admin.PartitionOffsets(r.Context(), chi.URLParam(r, "topic"), partition)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContentTypeBridge, offsetsResponse{BeginningOffset: offsets.Beginning, EndOffset: offsets.End})
}

func (h *handlers) createTopic(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if _, err := decodeBody(w, r, bridgeContentTypes, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	spec := kafka.TopicSpec{Name: req.TopicName, Configs: req.Configs}
	if req.PartitionsCount != nil {
		spec.Partitions = *req.PartitionsCount
	}
	if req.ReplicationFactor != nil {
		spec.ReplicationFactor = *req.ReplicationFactor
	}
	if err := h.admin.CreateTopic(r.Context(), spec); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
