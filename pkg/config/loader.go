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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. KAFKA_BRIDGE_HTTP_PORT.
const EnvPrefix = "KAFKA_BRIDGE"

var knownKeys = []string{
	KeyBridgeID,
	KeyHTTPHost,
	KeyHTTPPort,
	KeyCORSEnabled,
	KeyCORSAllowedOrigins,
	KeyCORSAllowedMethods,
	KeyConsumerTimeout,
	KeyConsumerEnabled,
	KeyProducerEnabled,
	KeyWorkers,
	KeyQueueSize,
	KeyReaperIntervalMS,
	KeyRateLimit,
	KeyRateBurst,
}

// LoadMap reads an optional properties/YAML file and applies environment
// overrides, returning the flat mapping consumed by FromMap.
func LoadMap(path string, environ []string) (map[string]string, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range knownKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".properties") || strings.HasSuffix(path, ".conf") {
			v.SetConfigType("properties")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	out := make(map[string]string)
	for _, key := range v.AllKeys() {
		out[key] = v.GetString(key)
	}
	for _, key := range knownKeys {
		if val := v.GetString(key); val != "" {
			out[strings.ToLower(key)] = val
		}
	}
	for k, val := range kafkaEnv(environ) {
		out[k] = val
	}
	return out, nil
}

// kafkaEnv maps KAFKA_BRIDGE_KAFKA_BOOTSTRAP_SERVERS to kafka.bootstrap.servers.
func kafkaEnv(environ []string) map[string]string {
	if environ == nil {
		environ = os.Environ()
	}
	prefix := EnvPrefix + "_KAFKA_"
	out := make(map[string]string)
	for _, kv := range environ {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		prop := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, prefix), "_", "."))
		if prop == "" {
			continue
		}
		out[KafkaPrefix+prop] = val
	}
	return out
}
