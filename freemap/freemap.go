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

// Package freemap implements the free-sector allocator that sits below the
// inode layer. It is an external collaborator consulted
// only at the granularity of whole allocate/release calls; the inode layer
// never reaches into its bitmap directly.
package freemap

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	"github.com/blockfs/blockfs/device"
)

// bitmapHeaderBytes is reserved at the front of the free-map root sector for
// a volume identifier, purely for observability; it is never consulted by
// allocation logic.
const bitmapHeaderBytes = 16

// MaxSectors is the largest device the reserved free-map region can
// describe: one bit per sector across device.FreeMapSectors sectors, less
// the header.
const MaxSectors = (device.FreeMapSectors*device.SectorSize - bitmapHeaderBytes) * 8

// FreeMap is a persistent bitmap of free/used sectors, one bit per sector,
// stored across sector device.FreeMapSector and as many following sectors
// as are needed to cover the device.
type FreeMap struct {
	mu syncutil.InvariantMutex

	dev           device.Device
	numSectors    uint32
	bitmap        []byte // one bit per sector; bit set == in use
	bitmapSectors uint32 // number of sectors consumed by the bitmap itself
	volumeID      uuid.UUID
}

func (f *FreeMap) checkInvariants() {
	if f.numSectors == 0 {
		return
	}
	wantLen := int((f.numSectors + 7) / 8)
	if len(f.bitmap) != wantLen {
		panic(fmt.Sprintf("freemap: bitmap length %d, want %d", len(f.bitmap), wantLen))
	}
}

// Create initializes a fresh free map on dev covering numSectors sectors,
// marking the sectors the free map and the root directory occupy as
// already in use, and persists it.
func Create(dev device.Device, numSectors uint32) (*FreeMap, error) {
	if err := checkDeviceSize(numSectors); err != nil {
		return nil, err
	}

	f := &FreeMap{
		dev:        dev,
		numSectors: numSectors,
		bitmap:     make([]byte, (numSectors+7)/8),
		volumeID:   uuid.New(),
	}
	f.bitmapSectors = sectorsNeededForBitmap(f.bitmap, bitmapHeaderBytes)
	f.mu = syncutil.NewInvariantMutex(f.checkInvariants)

	for s := uint32(0); s < f.bitmapSectors; s++ {
		f.markUsedLocked(s)
	}
	f.markUsedLocked(device.RootDirSector)

	if err := f.flushLocked(); err != nil {
		return nil, err
	}

	return f, nil
}

// Open reads an existing free map back from dev.
func Open(dev device.Device) (*FreeMap, error) {
	numSectors := dev.NumSectors()
	if err := checkDeviceSize(numSectors); err != nil {
		return nil, err
	}

	f := &FreeMap{
		dev:        dev,
		numSectors: numSectors,
		bitmap:     make([]byte, (numSectors+7)/8),
	}
	f.bitmapSectors = sectorsNeededForBitmap(f.bitmap, bitmapHeaderBytes)
	f.mu = syncutil.NewInvariantMutex(f.checkInvariants)

	buf := make([]byte, device.SectorSize)
	dev.ReadSector(device.FreeMapSector, buf)
	copy(f.volumeID[:], buf[:16])

	off := 0
	for s := uint32(0); s < f.bitmapSectors && off < len(f.bitmap); s++ {
		dev.ReadSector(s, buf)
		start := 0
		if s == 0 {
			start = bitmapHeaderBytes
		}
		n := copy(f.bitmap[off:], buf[start:])
		off += n
	}

	return f, nil
}

// checkDeviceSize rejects devices the fixed on-disk layout cannot host: too
// small to fit the free-map region and the root directory, or too large for
// the region's bitmap to describe.
func checkDeviceSize(numSectors uint32) error {
	if numSectors <= device.RootDirSector {
		return fmt.Errorf("freemap: device of %d sectors has no room past the free-map region and root directory", numSectors)
	}
	if numSectors > MaxSectors {
		return fmt.Errorf("freemap: device of %d sectors exceeds the %d the free-map region can describe", numSectors, MaxSectors)
	}
	return nil
}

// sectorsNeededForBitmap returns how many sectors are needed to hold the
// bitmap plus a header on the first sector.
func sectorsNeededForBitmap(bitmap []byte, header int) uint32 {
	total := header + len(bitmap)
	sectors := (total + device.SectorSize - 1) / device.SectorSize
	if sectors == 0 {
		sectors = 1
	}
	return uint32(sectors)
}

// Allocate reserves a contiguous run of n sectors and returns the first
// sector number. The core only ever calls this with n==1.
func (f *FreeMap) Allocate(n uint32) (start uint32, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n == 0 {
		return 0, false
	}

	run := uint32(0)
	runStart := uint32(0)
	for s := uint32(0); s < f.numSectors; s++ {
		if f.isUsedLocked(s) {
			run = 0
			continue
		}
		if run == 0 {
			runStart = s
		}
		run++
		if run == n {
			for i := uint32(0); i < n; i++ {
				f.markUsedLocked(runStart + i)
			}
			if err := f.flushLocked(); err != nil {
				for i := uint32(0); i < n; i++ {
					f.markFreeLocked(runStart + i)
				}
				return 0, false
			}
			return runStart, true
		}
	}

	return 0, false
}

// Release returns a contiguous run of n sectors starting at start to the
// free pool.
func (f *FreeMap) Release(start, n uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := uint32(0); i < n; i++ {
		f.markFreeLocked(start + i)
	}
	// Best effort; a failure to persist here only risks re-surfacing the
	// sector as free after an unclean restart, which flush-on-shutdown
	// already does not protect against.
	_ = f.flushLocked()
}

// Close flushes the bitmap to the device.
func (f *FreeMap) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushLocked()
}

func (f *FreeMap) isUsedLocked(sector uint32) bool {
	return f.bitmap[sector/8]&(1<<(sector%8)) != 0
}

func (f *FreeMap) markUsedLocked(sector uint32) {
	f.bitmap[sector/8] |= 1 << (sector % 8)
}

func (f *FreeMap) markFreeLocked(sector uint32) {
	f.bitmap[sector/8] &^= 1 << (sector % 8)
}

func (f *FreeMap) flushLocked() error {
	buf := make([]byte, device.SectorSize)
	off := 0
	for s := uint32(0); s < f.bitmapSectors; s++ {
		for i := range buf {
			buf[i] = 0
		}
		start := 0
		if s == 0 {
			copy(buf[:16], f.volumeID[:])
			start = bitmapHeaderBytes
		}
		n := copy(buf[start:], f.bitmap[off:])
		off += n
		f.dev.WriteSector(s, buf)
	}
	return nil
}

// VolumeID returns the identifier stamped into the free map at Create time,
// purely for observability.
func (f *FreeMap) VolumeID() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumeID
}
