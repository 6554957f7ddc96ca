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

package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Flat configuration keys understood by the bridge. Keys are matched
// case-insensitively because file loaders lowercase them.
const (
	KeyBridgeID           = "bridge.id"
	KeyHTTPHost           = "http.host"
	KeyHTTPPort           = "http.port"
	KeyCORSEnabled        = "http.cors.enabled"
	KeyCORSAllowedOrigins = "http.cors.allowedOrigins"
	KeyCORSAllowedMethods = "http.cors.allowedMethods"
	KeyConsumerTimeout    = "http.consumer.timeout"
	KeyConsumerEnabled    = "http.consumer.enabled"
	KeyProducerEnabled    = "http.producer.enabled"
	KeyWorkers            = "http.workers"
	KeyQueueSize          = "http.queue.size"
	KeyReaperIntervalMS   = "http.reaper.interval.ms"
	KeyRateLimit          = "http.rate.limit"
	KeyRateBurst          = "http.rate.burst"

	// KafkaPrefix marks keys passed through to the Kafka client with the prefix stripped.
	KafkaPrefix = "kafka."
)

const (
	defaultHTTPHost       = "0.0.0.0"
	defaultHTTPPort       = 8080
	defaultAllowedMethods = "GET,POST,PUT,DELETE,OPTIONS,PATCH"
	defaultWorkers        = 32
	defaultQueueSize      = 1024
	defaultReaperInterval = time.Second
)

// ErrInvalidConfig wraps every validation failure returned by FromMap.
var ErrInvalidConfig = errors.New("invalid bridge configuration")

// BridgeConfig is resolved once at startup and shared read-only afterwards.
type BridgeConfig struct {
	BridgeID string
	HTTP     HTTPConfig
	Kafka    KafkaConfig
}

// HTTPConfig holds the HTTP endpoint settings.
type HTTPConfig struct {
	Host string `validate:"required"`
	Port int    `validate:"min=1,max=65535"`
	CORS CORSConfig

	ConsumerEnabled bool
	ProducerEnabled bool
	// ConsumerTimeout is the idle eviction threshold. Zero or negative disables eviction.
	ConsumerTimeout time.Duration

	Workers        int           `validate:"min=1"`
	QueueSize      int           `validate:"min=1"`
	ReaperInterval time.Duration `validate:"gt=0"`
	RateLimit      float64       `validate:"gte=0"`
	RateBurst      int           `validate:"gte=0"`
}

// CORSConfig controls cross-origin handling.
type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string `validate:"dive,required"`
	// AllowedMethods keeps the configured order; it is echoed verbatim in preflight responses.
	AllowedMethods []string `validate:"dive,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
}

// KafkaConfig carries the backend client properties.
type KafkaConfig struct {
	Properties map[string]string
}

// Get returns a Kafka client property.
func (k KafkaConfig) Get(key string) (string, bool) {
	val, ok := k.Properties[strings.ToLower(key)]
	return val, ok
}

// BootstrapServers returns the seed broker list.
func (k KafkaConfig) BootstrapServers() []string {
	val, _ := k.Get("bootstrap.servers")
	return SplitCSV(val)
}

// Address returns host:port of the HTTP listener.
func (c BridgeConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// FromMap builds a validated BridgeConfig from a flat key/value mapping.
func FromMap(raw map[string]string) (BridgeConfig, error) {
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	p := parser{values: values}

	cfg := BridgeConfig{
		BridgeID: p.str(KeyBridgeID, ""),
		HTTP: HTTPConfig{
			Host: p.str(KeyHTTPHost, defaultHTTPHost),
			Port: p.integer(KeyHTTPPort, defaultHTTPPort),
			CORS: CORSConfig{
				Enabled:        p.boolean(KeyCORSEnabled, false),
				AllowedOrigins: SplitCSV(p.str(KeyCORSAllowedOrigins, "")),
				AllowedMethods: normalizeMethods(SplitCSV(p.str(KeyCORSAllowedMethods, defaultAllowedMethods))),
			},
			ConsumerEnabled: p.boolean(KeyConsumerEnabled, true),
			ProducerEnabled: p.boolean(KeyProducerEnabled, true),
			ConsumerTimeout: p.seconds(KeyConsumerTimeout, -1),
			Workers:         p.integer(KeyWorkers, defaultWorkers),
			QueueSize:       p.integer(KeyQueueSize, defaultQueueSize),
			ReaperInterval:  p.millis(KeyReaperIntervalMS, defaultReaperInterval),
			RateLimit:       p.float(KeyRateLimit, 0),
			RateBurst:       p.integer(KeyRateBurst, 0),
		},
		Kafka: KafkaConfig{Properties: kafkaProperties(values)},
	}
	if len(p.errs) > 0 {
		return BridgeConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(p.errs...))
	}
	if err := cfg.validate(); err != nil {
		return BridgeConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c BridgeConfig) validate() error {
	if err := validate.Struct(c.HTTP); err != nil {
		return err
	}
	if c.HTTP.CORS.Enabled {
		if len(c.HTTP.CORS.AllowedOrigins) == 0 {
			return fmt.Errorf("%s is enabled but %s is empty", KeyCORSEnabled, KeyCORSAllowedOrigins)
		}
		if len(c.HTTP.CORS.AllowedMethods) == 0 {
			return fmt.Errorf("%s is enabled but %s is empty", KeyCORSEnabled, KeyCORSAllowedMethods)
		}
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst == 0 {
		return fmt.Errorf("%s requires a positive %s", KeyRateLimit, KeyRateBurst)
	}
	return nil
}

func kafkaProperties(values map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range values {
		if strings.HasPrefix(k, KafkaPrefix) && len(k) > len(KafkaPrefix) {
			out[strings.TrimPrefix(k, KafkaPrefix)] = v
		}
	}
	return out
}

// KafkaKeys returns the Kafka property names in sorted order.
func (k KafkaConfig) KafkaKeys() []string {
	keys := make([]string, 0, len(k.Properties))
	for key := range k.Properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizeMethods(methods []string) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, strings.ToUpper(m))
	}
	return out
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val != "" {
			out = append(out, val)
		}
	}
	return out
}

type parser struct {
	values map[string]string
	errs   []error
}

func (p *parser) lookup(key string) (string, bool) {
	val, ok := p.values[strings.ToLower(key)]
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (p *parser) str(key, fallback string) string {
	if val, ok := p.lookup(key); ok {
		return val
	}
	return fallback
}

func (p *parser) boolean(key string, fallback bool) bool {
	val, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func (p *parser) integer(key string, fallback int) int {
	val, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func (p *parser) float(key string, fallback float64) float64 {
	val, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func (p *parser) seconds(key string, fallback int64) time.Duration {
	val, ok := p.lookup(key)
	if !ok {
		return time.Duration(fallback) * time.Second
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(parsed) * time.Second
}

func (p *parser) millis(key string, fallback time.Duration) time.Duration {
	val, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
