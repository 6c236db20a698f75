// Copyright 2025 Google LLC
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

// Package monitor exports the buffer cache's hit_rate/device_writes/
// accesses counters over Prometheus, via an OpenTelemetry meter bridged
// through the Prometheus exporter. The cache package itself stays free of
// any OTel import; monitor only ever reads the three accessors
// internal/cache.Cache already exposes for observability, so wiring
// metrics in never touches the cache's access path.
package monitor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/blockfs/blockfs/internal/config"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheStats is the subset of *internal/cache.Cache's observability surface
// monitor polls. Taking an interface instead of the concrete type keeps
// monitor independently testable with a fake.
type CacheStats interface {
	HitRate() int
	DeviceWrites() uint64
	Accesses() uint64
}

// Monitor owns the OTel meter provider and the HTTP listener serving
// /metrics. A nil *Monitor is a valid, inert handle (returned when metrics
// are disabled), so callers can unconditionally defer Stop.
type Monitor struct {
	provider *sdkmetric.MeterProvider
	server   *http.Server
}

// Start wires stats' counters into an OTel meter exported through
// Prometheus and, if cfg.Enabled, serves them over HTTP at cfg.ListenAddr.
// It returns a nil *Monitor (and nil error) when metrics are disabled.
func Start(cfg config.MetricsConfig, stats CacheStats) (*Monitor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("monitor: create exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("blockfs")

	if _, err := meter.Int64ObservableGauge(
		"blockfs_cache_hit_rate",
		metric.WithDescription("buffer cache hit rate, as an integer percentage"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.HitRate()))
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("monitor: register hit_rate gauge: %w", err)
	}

	if _, err := meter.Int64ObservableCounter(
		"blockfs_cache_device_writes_total",
		metric.WithDescription("physical sector writes issued to the device"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.DeviceWrites()))
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("monitor: register device_writes counter: %w", err)
	}

	if _, err := meter.Int64ObservableCounter(
		"blockfs_cache_accesses_total",
		metric.WithDescription("buffer cache lookups plus physical device I/O"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.Accesses()))
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("monitor: register accesses counter: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	m := &Monitor{provider: provider, server: srv}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The listener died out from under us; nothing else can be
			// done here short of propagating through a channel the caller
			// never asked for. Subsequent scrapes simply fail.
			_ = err
		}
	}()

	return m, nil
}

// Stop shuts down the HTTP listener and the meter provider. It is a no-op
// on a nil *Monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	if err := m.server.Shutdown(ctx); err != nil {
		return err
	}
	return m.provider.Shutdown(ctx)
}
