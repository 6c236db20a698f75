// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package blockfs is the filesystem façade: it composes the buffer cache,
// the inode layer, and the directory layer behind the small surface a
// caller actually touches (create/open/remove/mkdir/chdir/readdir/format/
// shutdown, plus the cache's observability counters), and wires in the
// ambient stack: configuration, logging, metrics, and a background
// worker pool for periodic flushing.
package blockfs

import (
	"context"
	"fmt"
	"time"

	"github.com/blockfs/blockfs/clock"
	"github.com/blockfs/blockfs/device"
	"github.com/blockfs/blockfs/freemap"
	"github.com/blockfs/blockfs/internal/cache"
	"github.com/blockfs/blockfs/internal/config"
	"github.com/blockfs/blockfs/internal/directory"
	"github.com/blockfs/blockfs/internal/inode"
	"github.com/blockfs/blockfs/internal/logger"
	"github.com/blockfs/blockfs/internal/monitor"
	"github.com/blockfs/blockfs/internal/workerpool"
)

// flushInterval is how often the background worker pool flushes the cache
// while the filesystem is open, independent of any caller-driven Shutdown.
const flushInterval = 30 * time.Second

// FS is a live, mounted filesystem: a device, the free map and buffer cache
// layered on top of it, the open-inode registry, and the ambient workers
// that keep it flushed and observable. The zero value is not usable; build
// one with New or Format.
type FS struct {
	dev      device.Device
	closeDev func() error
	freeMap  *freemap.FreeMap
	cache    *cache.Cache
	reg      *inode.Registry

	pool   *workerpool.StaticWorkerPool
	mon    *monitor.Monitor
	clk    clock.Clock
	stopBg chan struct{}
}

// New opens an already-formatted filesystem from cfg: the backing device
// file at cfg.Device.Path, the free map persisted on it, a buffer cache
// sized at cfg.Cache.Slots, and the open-inode registry. Logging and
// metrics are initialized from cfg as a side effect.
func New(cfg config.Config) (*FS, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("blockfs: init logger: %w", err)
	}

	dev, err := device.OpenFile(cfg.Device.Path, cfg.Device.Sectors)
	if err != nil {
		return nil, fmt.Errorf("blockfs: open device: %w", err)
	}

	fm, err := freemap.Open(dev)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("blockfs: open free map: %w", err)
	}

	fs, err := newFS(dev, dev.Close, fm, cfg)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return fs, nil
}

// Format reinitializes the device at cfg.Device.Path with a fresh free map
// and a root directory, discarding any prior contents, then opens it the
// same way New does.
func Format(cfg config.Config) (*FS, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("blockfs: init logger: %w", err)
	}

	dev, err := device.OpenFile(cfg.Device.Path, cfg.Device.Sectors)
	if err != nil {
		return nil, fmt.Errorf("blockfs: open device: %w", err)
	}

	fm, err := freemap.Create(dev, cfg.Device.Sectors)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("blockfs: create free map: %w", err)
	}

	c := cache.New(dev, cfg.Cache.Slots)
	reg := inode.NewRegistry(c, fm)
	if !directory.DirCreate(c, fm, reg, device.RootDirSector, device.RootDirSector) {
		dev.Close()
		return nil, fmt.Errorf("blockfs: create root directory")
	}
	c.Flush()

	logger.Infof("formatted %s: %d sectors, volume %s", cfg.Device.Path, cfg.Device.Sectors, fm.VolumeID())

	return assembleFS(dev, dev.Close, fm, c, reg, cfg, clock.RealClock{})
}

// newFS opens the cache and registry on top of an already-persisted free
// map, for New's path.
func newFS(dev device.Device, closeDev func() error, fm *freemap.FreeMap, cfg config.Config) (*FS, error) {
	c := cache.New(dev, cfg.Cache.Slots)
	reg := inode.NewRegistry(c, fm)
	return assembleFS(dev, closeDev, fm, c, reg, cfg, clock.RealClock{})
}

// assembleFS wires the background worker pool and metrics monitor around an
// already-constructed cache/registry pair; both New and Format end here.
func assembleFS(dev device.Device, closeDev func() error, fm *freemap.FreeMap, c *cache.Cache, reg *inode.Registry, cfg config.Config, clk clock.Clock) (*FS, error) {
	pool, err := workerpool.NewStaticWorkerPool(1, 1)
	if err != nil {
		return nil, fmt.Errorf("blockfs: start worker pool: %w", err)
	}

	mon, err := monitor.Start(cfg.Metrics, c)
	if err != nil {
		pool.Stop()
		return nil, fmt.Errorf("blockfs: start monitor: %w", err)
	}

	fs := &FS{
		dev:      dev,
		closeDev: closeDev,
		freeMap:  fm,
		cache:    c,
		reg:      reg,
		pool:     pool,
		mon:      mon,
		clk:      clk,
		stopBg:   make(chan struct{}),
	}

	// The first tick is armed here, before the loop's goroutine runs, so the
	// interval counts from construction rather than from whenever a pool
	// worker first picks the loop up.
	firstTick := clk.After(flushInterval)
	fs.pool.Schedule(func() { fs.backgroundFlushLoop(firstTick) })

	return fs, nil
}

// backgroundFlushLoop periodically flushes the cache on the normal-priority
// queue until Shutdown closes stopBg. It only ever calls Cache.Flush, the
// same public entry point a caller could, so it never appears inside the
// cache/registry/free-map lock order itself.
func (fs *FS) backgroundFlushLoop(tick <-chan time.Time) {
	for {
		select {
		case <-fs.stopBg:
			return
		case <-tick:
			fs.cache.Flush()
			logger.Tracef("background flush complete")
			tick = fs.clk.After(flushInterval)
		}
	}
}

// Shutdown stops the background flush loop, schedules one final flush on
// the priority queue so it is not starved behind routine work, stops the
// worker pool and metrics monitor, and closes the backing device.
func (fs *FS) Shutdown() error {
	close(fs.stopBg)

	done := make(chan struct{})
	fs.pool.SchedulePriority(func() {
		fs.cache.Flush()
		close(done)
	})
	<-done
	fs.pool.Stop()

	if fs.mon != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fs.mon.Stop(ctx); err != nil {
			logger.Warnf("monitor shutdown: %v", err)
		}
	}

	if err := fs.freeMap.Close(); err != nil {
		return fmt.Errorf("blockfs: close free map: %w", err)
	}
	if fs.closeDev != nil {
		if err := fs.closeDev(); err != nil {
			return fmt.Errorf("blockfs: close device: %w", err)
		}
	}
	return logger.Close()
}

// Flush writes every dirty cache slot back to the device without
// invalidating the cache. Each sector it writes counts toward DeviceWrites
// (and accesses), like any other write-back.
func (fs *FS) Flush() { fs.cache.Flush() }

// HitRate returns the buffer cache's hit rate as an integer percentage.
func (fs *FS) HitRate() int { return fs.cache.HitRate() }

// DeviceWrites returns the number of physical sector writes issued by the
// buffer cache since init or the last ResetStats. Free-map writes go
// straight to the device and are not counted.
func (fs *FS) DeviceWrites() uint64 { return fs.cache.DeviceWrites() }

// ResetStats flushes the cache and zeros its hit/access/write counters.
func (fs *FS) ResetStats() { fs.cache.ResetStats() }
