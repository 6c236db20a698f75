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

// Package config holds the façade's settings: cache sizing, the device
// backing file, logging, and metrics. It is loaded from a YAML file,
// validated up front, and consumed by internal/logger and internal/monitor
// rather than by the cache/inode/directory packages themselves, which take
// their parameters as plain function arguments.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blockfs/blockfs/device"
	"github.com/blockfs/blockfs/freemap"
)

// Severity is one of the five logging levels, plus OFF.
type Severity string

const (
	TRACE   Severity = "TRACE"
	DEBUG   Severity = "DEBUG"
	INFO    Severity = "INFO"
	WARNING Severity = "WARNING"
	ERROR   Severity = "ERROR"
	OFF     Severity = "OFF"
)

func (s Severity) valid() bool {
	switch s {
	case TRACE, DEBUG, INFO, WARNING, ERROR, OFF:
		return true
	default:
		return false
	}
}

// LogRotateConfig carries the log-rotation knobs, passed straight through
// to lumberjack.Logger.
type LogRotateConfig struct {
	MaxFileSizeMB   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// DefaultLogRotateConfig returns the rotation settings used when the
// config file leaves them unset.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	Severity  Severity        `yaml:"severity"`
	Format    string          `yaml:"format"` // "text" or "json"
	FilePath  string          `yaml:"file-path"`
	LogRotate LogRotateConfig `yaml:"log-rotate"`
}

// CacheConfig sizes the buffer cache.
type CacheConfig struct {
	Slots int `yaml:"slots"`
}

// DeviceConfig names the backing store for the façade's block device.
type DeviceConfig struct {
	Path    string `yaml:"path"`
	Sectors uint32 `yaml:"sectors"`
}

// MetricsConfig controls internal/monitor's Prometheus exporter.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen-addr"`
}

// Config is the façade's full settings surface.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Device  DeviceConfig  `yaml:"device"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when no file is supplied: a
// 64-slot cache, a 65536-sector (32 MiB) image at
// ./blockfs.img, INFO-level text logging to stderr, and metrics disabled.
func Default() Config {
	return Config{
		Cache:  CacheConfig{Slots: 64},
		Device: DeviceConfig{Path: "blockfs.img", Sectors: 65536},
		Logging: LoggingConfig{
			Severity:  INFO,
			Format:    "text",
			LogRotate: DefaultLogRotateConfig(),
		},
		Metrics: MetricsConfig{Enabled: false, ListenAddr: ":9090"},
	}
}

// Load reads a YAML file at path, applying it on top of Default so that an
// omitted section keeps its default, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the façade cannot act on: a non-positive slot
// count, a device too small to hold the free-map region and root directory
// (or too large for the free map to describe), and an unrecognized
// severity.
func Validate(cfg Config) error {
	if cfg.Cache.Slots <= 0 {
		return fmt.Errorf("config: cache.slots must be positive, got %d", cfg.Cache.Slots)
	}
	if cfg.Device.Sectors <= device.RootDirSector {
		return fmt.Errorf("config: device.sectors must reach past the free-map region and root directory, got %d", cfg.Device.Sectors)
	}
	if cfg.Device.Sectors > freemap.MaxSectors {
		return fmt.Errorf("config: device.sectors must be at most %d, got %d", freemap.MaxSectors, cfg.Device.Sectors)
	}
	if !cfg.Logging.Severity.valid() {
		return fmt.Errorf("config: unknown logging.severity %q", cfg.Logging.Severity)
	}
	if cfg.Logging.Format != "" && cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("config: unknown logging.format %q", cfg.Logging.Format)
	}
	return nil
}
