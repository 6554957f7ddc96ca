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
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (h *handlers) produce(w http.ResponseWriter, r *http.Request) {
	h.produceTo(w, r, nil)
}

func (h *handlers) produceToPartition(w http.ResponseWriter, r *http.Request) {
	partition, err := partitionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.produceTo(w, r, &partition)
}

func (h *handlers) produceTo(w http.ResponseWriter, r *http.Request, partition *int32) {
	var req produceRequest
	if _, err := decodeBody(w, r, recordContentTypes, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	format, _ := formatFor(mediaType(r))
	records, err := toProducerRecords(chi.URLParam(r, "topic"), partition, format, req.Records)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := h.producer.ProduceAsync(r.Context(), records); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	outcomes, err := h.producer.Produce(r.Context(), records)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContentTypeBridge, toProduceResponse(outcomes))
}

func partitionParam(r *http.Request) (int32, error) {
	raw := chi.URLParam(r, "partitionid")
	p, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || p < 0 {
		return 0, errorf(http.StatusBadRequest, "invalid partition id %q", raw)
	}
	return int32(p), nil
}
