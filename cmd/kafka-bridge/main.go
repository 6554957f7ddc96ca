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

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/novatechflow/kafscale-bridge/internal/httpbridge"
	"github.com/novatechflow/kafscale-bridge/pkg/config"
	"github.com/novatechflow/kafscale-bridge/pkg/kafka"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	backendKafka  = "kafka"
	backendMemory = "memory"
)

type options struct {
	configFile string
	logLevel   string
	backend    string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "kafka-bridge:", err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "kafka-bridge",
		Short: "HTTP bridge to Apache Kafka",
		Long: `kafka-bridge exposes Kafka producers, consumers and topic metadata over HTTP/JSON.

Configuration comes from an optional properties or YAML file and from
KAFKA_BRIDGE_* environment variables. Kafka client settings use the
kafka. prefix in the file or KAFKA_BRIDGE_KAFKA_* variables in the
environment, e.g. KAFKA_BRIDGE_KAFKA_BOOTSTRAP_SERVERS.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, out)
		},
	}
	root.Flags().StringVar(&opts.configFile, "config-file", "", "path to a properties or YAML configuration file")
	root.Flags().StringVar(&opts.logLevel, "log-level", envOr("KAFKA_BRIDGE_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	root.Flags().StringVar(&opts.backend, "backend", backendKafka, "cluster backend: kafka or memory")
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the bridge version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	root.SetOut(out)
	return root
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	logger := newLogger(opts.logLevel, out)

	raw, err := config.LoadMap(opts.configFile, os.Environ())
	if err != nil {
		return err
	}
	cfg, err := config.FromMap(raw)
	if err != nil {
		return err
	}
	backend, err := newBackend(opts.backend, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("starting kafka bridge", "version", version, "backend", opts.backend, "bridge_id", cfg.BridgeID)

	srv := httpbridge.NewServer(cfg, backend, httpbridge.Options{
		Logger:  logger,
		Version: version,
	})
	return srv.Run(ctx)
}

func newBackend(kind string, cfg config.BridgeConfig, logger *slog.Logger) (kafka.Backend, error) {
	switch strings.ToLower(kind) {
	case backendKafka, "":
		client, err := kafka.NewClient(kafka.ClientConfig{Properties: cfg.Kafka.Properties, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("kafka client: %w", err)
		}
		return client, nil
	case backendMemory:
		logger.Warn("using in-memory cluster; records are lost on exit")
		return kafka.NewInMemoryCluster(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})).With("component", "bridge")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
