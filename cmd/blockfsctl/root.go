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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blockfs/blockfs/blockfs"
	"github.com/blockfs/blockfs/internal/config"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	ctlConfig     config.Config

	// startDir, when set, is Chdir'd into before the subcommand's own
	// paths are resolved, so relative paths work the same way they would
	// for a task that had already changed directory.
	startDir string
)

var rootCmd = &cobra.Command{
	Use:   "blockfsctl [command]",
	Short: "Manipulate a blockfs disk image",
	Long: `blockfsctl operates on a blockfs disk image: format it, create and
remove files and directories, read and write file contents, and print
buffer-cache statistics.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		return config.Validate(ctlConfig)
	},
}

// Execute runs the root command, exiting non-zero on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindFlags registers the persistent flags shared by every subcommand and
// binds them into viper, so a config file and the command line describe the
// same settings surface.
func bindFlags(flags *pflag.FlagSet) error {
	flags.String("image", "blockfs.img", "Path to the disk image")
	flags.Uint32("sectors", 65536, "Image size in 512-byte sectors; every command opens the image at this size")
	flags.Int("cache-slots", 64, "Number of buffer cache slots")
	flags.String("log-severity", "INFO", "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("log-file", "", "Log to this file instead of stderr")
	flags.Bool("metrics", false, "Serve Prometheus metrics while the command runs")
	flags.String("metrics-addr", ":9090", "Listen address for --metrics")

	for flagName, key := range map[string]string{
		"image":        "device.path",
		"sectors":      "device.sectors",
		"cache-slots":  "cache.slots",
		"log-severity": "logging.severity",
		"log-format":   "logging.format",
		"log-file":     "logging.file-path",
		"metrics":      "metrics.enabled",
		"metrics-addr": "metrics.listen-addr",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the config-file")
	rootCmd.PersistentFlags().StringVar(&startDir, "chdir", "", "Change to this directory before resolving paths")
	bindErr = bindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newFormatCmd(),
		newMkdirCmd(),
		newTouchCmd(),
		newWriteCmd(),
		newReadCmd(),
		newLsCmd(),
		newRmCmd(),
		newStatCmd(),
	)
}

func initConfig() {
	ctlConfig = config.Default()

	if cfgFile != "" {
		resolved, err := filepath.Abs(cfgFile)
		if err != nil {
			configFileErr = fmt.Errorf("error while resolving config file path: %w", err)
			return
		}
		viper.SetConfigFile(resolved)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("error while reading config file: %w", err)
			return
		}
	}

	// Rebuild the config from viper's merged view, so flags (already
	// bound) win over file values and file values over defaults.
	ctlConfig = config.Config{
		Cache: config.CacheConfig{Slots: viper.GetInt("cache.slots")},
		Device: config.DeviceConfig{
			Path:    viper.GetString("device.path"),
			Sectors: uint32(viper.GetUint("device.sectors")),
		},
		Logging: config.LoggingConfig{
			Severity:  config.Severity(viper.GetString("logging.severity")),
			Format:    viper.GetString("logging.format"),
			FilePath:  viper.GetString("logging.file-path"),
			LogRotate: config.DefaultLogRotateConfig(),
		},
		Metrics: config.MetricsConfig{
			Enabled:    viper.GetBool("metrics.enabled"),
			ListenAddr: viper.GetString("metrics.listen-addr"),
		},
	}
}

// withFS opens the filesystem, establishes the --chdir working directory,
// runs fn, and shuts everything back down, flushing the cache.
func withFS(fn func(fs *blockfs.FS, t *blockfs.Task) error) error {
	fs, err := blockfs.New(ctlConfig)
	if err != nil {
		return err
	}

	t := fs.NewTask()
	if startDir != "" {
		if err := t.Chdir(startDir); err != nil {
			t.Close()
			fs.Shutdown()
			return fmt.Errorf("chdir %s: %w", startDir, err)
		}
	}

	opErr := fn(fs, t)
	t.Close()
	if err := fs.Shutdown(); err != nil && opErr == nil {
		opErr = err
	}
	return opErr
}
