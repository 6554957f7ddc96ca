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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/novatechflow/kafscale-bridge/pkg/bridge"
	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// httpError carries a status decided by the handler itself.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func errorf(status int, format string, args ...any) error {
	return &httpError{status: status, message: fmt.Sprintf(format, args...)}
}

// errUnprocessable marks record content that cannot be converted between
// the embedded format and raw bytes.
var errUnprocessable = errors.New("unprocessable record content")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, bridge.ErrInstanceNotFound), errors.Is(err, bridge.ErrInstanceClosed):
		return http.StatusNotFound
	case errors.Is(err, kafka.ErrUnknownTopic), errors.Is(err, kafka.ErrUnknownPartition):
		return http.StatusNotFound
	case errors.Is(err, bridge.ErrInstanceConflict), errors.Is(err, bridge.ErrNoSubscription),
		errors.Is(err, bridge.ErrSubscriptionConflict), errors.Is(err, kafka.ErrNotSubscribed),
		errors.Is(err, kafka.ErrTopicExists):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrInvalidRequest), errors.Is(err, kafka.ErrInvalidTopic):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrRecordsTooLarge), errors.Is(err, errUnprocessable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bridge.ErrBackendUnavailable), errors.Is(err, kafka.ErrBrokerUnavailable),
		errors.Is(err, bridge.ErrPoolClosed), errors.Is(err, bridge.ErrPoolSaturated),
		errors.Is(err, kafka.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageFor hides internal failures from clients.
func messageFor(status int, err error) string {
	if status == http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("encode response failed", "error", err)
	}
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ContentTypeJSON, errorResponse{ErrorCode: status, Message: message})
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeStatus(w, status, messageFor(status, err))
}
