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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blockfs/blockfs/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Validate(config.Default()))
}

func TestLoadWithNoPathReturnsDefault(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverlaysOnDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blockfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  slots: 128\nlogging:\n  severity: DEBUG\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Cache.Slots)
	assert.Equal(t, config.DEBUG, cfg.Logging.Severity)
	// Untouched sections keep their defaults.
	assert.Equal(t, config.Default().Device, cfg.Device)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveSlots(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Slots = 0
	assert.Error(t, config.Validate(cfg))
}

func TestValidateRejectsTinyDevice(t *testing.T) {
	cfg := config.Default()
	cfg.Device.Sectors = 1
	assert.Error(t, config.Validate(cfg))
}

func TestValidateRejectsUnknownSeverity(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Severity = "VERBOSE"
	assert.Error(t, config.Validate(cfg))
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "xml"
	assert.Error(t, config.Validate(cfg))
}
