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
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/novatechflow/kafscale-bridge/pkg/bridge"
)

// Media types spoken by the bridge.
const (
	ContentTypeBridge    = "application/vnd.kafka.v2+json"
	ContentTypeJSON      = "application/json"
	ContentTypeRecJSON   = "application/vnd.kafka.json.v2+json"
	ContentTypeRecBinary = "application/vnd.kafka.binary.v2+json"
	ContentTypeRecText   = "application/vnd.kafka.text.v2+json"
)

const maxBodyBytes = 10 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

var bridgeContentTypes = []string{ContentTypeBridge, ContentTypeJSON}

var recordContentTypes = []string{ContentTypeRecJSON, ContentTypeRecBinary, ContentTypeRecText}

func contentTypeFor(f bridge.EmbeddedFormat) string {
	switch f {
	case bridge.FormatJSON:
		return ContentTypeRecJSON
	case bridge.FormatText:
		return ContentTypeRecText
	default:
		return ContentTypeRecBinary
	}
}

func formatFor(mediaType string) (bridge.EmbeddedFormat, bool) {
	switch mediaType {
	case ContentTypeRecJSON:
		return bridge.FormatJSON, true
	case ContentTypeRecBinary:
		return bridge.FormatBinary, true
	case ContentTypeRecText:
		return bridge.FormatText, true
	}
	return "", false
}

// mediaType returns the request content type without parameters.
func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// decodeBody reads and validates a JSON body. Checks run in order: empty
// body, content type, JSON syntax, then field validation. When optional is
// true an empty body leaves dst untouched and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, allowed []string, dst any, optional bool) (bool, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return false, errorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return false, errorf(http.StatusBadRequest, "read request body: %v", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if optional {
			return false, nil
		}
		return false, errorf(http.StatusBadRequest, "request body required")
	}
	mt := mediaType(r)
	if !contains(allowed, mt) {
		return false, errorf(http.StatusUnsupportedMediaType, "unsupported content type %q", r.Header.Get("Content-Type"))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return false, errorf(http.StatusBadRequest, "invalid JSON body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return false, errorf(http.StatusBadRequest, "invalid request: %v", err)
	}
	return true, nil
}

// acceptable reports whether the Accept header admits want.
func acceptable(accept, want string) bool {
	if strings.TrimSpace(accept) == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch strings.ToLower(mt) {
		case "*/*", "application/*", want:
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
