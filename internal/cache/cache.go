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

// Package cache implements a fixed-capacity, fully associative write-back
// buffer cache over a device.Device, with strict LRU replacement and
// per-slot readiness synchronization. It is the hardest piece of this
// repository: the only safe way to release the cache lock for device I/O
// and reacquire it is to re-validate every assumption afterward, which is
// why every exported operation is structured as find-or-evict-then-retry
// rather than find-then-assume.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/jacobsa/syncutil"
	"github.com/blockfs/blockfs/device"
)

// DefaultSlots is the number of fully associative slots a Cache holds
// unless told otherwise.
const DefaultSlots = 64

// slot is one cache line: a sector's worth of data plus the bookkeeping the
// access algorithm needs to decide whether it may be read, evicted, or must
// be waited on.
type slot struct {
	sector uint32
	valid  bool // has this slot ever been bound to a sector?
	ready  bool // false while a single thread owns it for I/O
	dirty  bool // true if newer than the on-disk sector

	data [device.SectorSize]byte

	cond *sync.Cond    // broadcast when ready flips true for this slot
	elem *list.Element // this slot's node in Cache.lru
}

// Cache is a buffer cache of device.SectorSize-byte sectors.
type Cache struct {
	mu syncutil.InvariantMutex

	dev   device.Device
	slots []*slot
	lru   *list.List // front = most recently used

	// readyCond is broadcast whenever any slot transitions to ready, so a
	// thread stuck looking for an evictable victim can retry.
	readyCond *sync.Cond

	hits, accesses, deviceWrites uint64
}

// New creates a Cache with numSlots fully associative slots backed by dev.
// Construction is the only initialization step; there is no separate Init
// call to make idempotent because a Cache is never reused across a second
// "init"; callers that want a fresh cache just call New again.
func New(dev device.Device, numSlots int) *Cache {
	if numSlots <= 0 {
		numSlots = DefaultSlots
	}

	c := &Cache{
		dev:   dev,
		slots: make([]*slot, numSlots),
		lru:   list.New(),
	}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	c.readyCond = sync.NewCond(&c.mu)

	for i := range c.slots {
		s := &slot{ready: true}
		s.cond = sync.NewCond(&c.mu)
		s.elem = c.lru.PushFront(s)
		c.slots[i] = s
	}

	return c
}

func (c *Cache) checkInvariants() {
	if c.lru.Len() != len(c.slots) {
		panic(fmt.Sprintf("cache: lru has %d entries, want %d", c.lru.Len(), len(c.slots)))
	}

	seen := make(map[uint32]int)
	for _, s := range c.slots {
		if !s.valid {
			continue
		}
		seen[s.sector]++
		if seen[s.sector] > 1 {
			panic(fmt.Sprintf("cache: sector %d bound to more than one slot", s.sector))
		}
	}
}

// Read copies length bytes starting at offset within sector into dst.
//
// REQUIRES: offset + length <= device.SectorSize
func (c *Cache) Read(sector uint32, dst []byte, offset, length int) {
	c.checkRange(offset, length)

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.lookupAndBindLocked(sector, false /* blind */)
	copy(dst, s.data[offset:offset+length])
}

// Write copies length bytes from src into sector starting at offset, and
// marks the slot dirty. A full-sector write (offset==0, length==
// device.SectorSize) is blind: the cache may bind an evicted slot to sector
// without reading the old contents from disk first.
//
// REQUIRES: offset + length <= device.SectorSize
func (c *Cache) Write(sector uint32, src []byte, offset, length int) {
	c.checkRange(offset, length)

	blind := offset == 0 && length == device.SectorSize

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.lookupAndBindLocked(sector, blind)
	copy(s.data[offset:offset+length], src)
	s.dirty = true
}

func (c *Cache) checkRange(offset, length int) {
	if offset < 0 || length < 0 || offset+length > device.SectorSize {
		panic("cache: offset+length exceeds SectorSize")
	}
}

// lookupAndBindLocked implements the access algorithm common to Read and
// Write. It returns a ready slot bound to sector, retrying from scratch
// after every lock release so that no assumption about slot identity
// survives an I/O window unchecked.
//
// LOCKS_REQUIRED(c.mu)
func (c *Cache) lookupAndBindLocked(sector uint32, blind bool) *slot {
	for {
		c.accesses++

		if s := c.findLocked(sector); s != nil {
			if !s.ready {
				s.cond.Wait()
				continue
			}
			c.hits++
			c.touchLocked(s)
			return s
		}

		victim := c.findReadyVictimLocked()
		if victim == nil {
			c.readyCond.Wait()
			continue
		}

		if victim.dirty {
			c.cleanLocked(victim)
			continue
		}

		if blind {
			c.rebindLocked(victim, sector)
			continue
		}

		c.replaceLocked(victim, sector)
		continue
	}
}

// findLocked returns the slot currently bound to sector, or nil.
//
// LOCKS_REQUIRED(c.mu)
func (c *Cache) findLocked(sector uint32) *slot {
	for _, s := range c.slots {
		if s.valid && s.sector == sector {
			return s
		}
	}
	return nil
}

// findReadyVictimLocked walks the LRU list from the least-recently-used end
// and returns the first ready slot, or nil if every slot is mid-I/O.
//
// LOCKS_REQUIRED(c.mu)
func (c *Cache) findReadyVictimLocked() *slot {
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		s := e.Value.(*slot)
		if s.ready {
			return s
		}
	}
	return nil
}

// touchLocked moves s to the most-recently-used end of the LRU list.
//
// LOCKS_REQUIRED(c.mu)
func (c *Cache) touchLocked(s *slot) {
	c.lru.MoveToFront(s.elem)
}

// cleanLocked writes a dirty, ready slot back to disk, dropping and
// reacquiring c.mu around the device write.
//
// REQUIRES: s.ready && s.dirty
// LOCKS_REQUIRED(c.mu)
func (c *Cache) cleanLocked(s *slot) {
	if !s.ready || !s.dirty {
		panic("cache: cleanLocked requires a ready, dirty slot")
	}

	s.ready = false
	sector := s.sector
	var buf [device.SectorSize]byte
	buf = s.data

	c.mu.Unlock()
	c.dev.WriteSector(sector, buf[:])
	c.mu.Lock()

	c.accesses++
	c.deviceWrites++
	s.ready = true
	s.dirty = false
	s.cond.Broadcast()
	c.readyCond.Broadcast()
}

// rebindLocked rebinds a clean, ready victim slot to sector without
// touching the device, for the blind full-sector write path.
//
// LOCKS_REQUIRED(c.mu)
func (c *Cache) rebindLocked(s *slot, sector uint32) {
	s.sector = sector
	s.valid = true
	s.dirty = false
}

// replaceLocked binds a clean, ready victim slot to sector by loading its
// contents from disk, dropping and reacquiring c.mu around the device read.
//
// LOCKS_REQUIRED(c.mu)
func (c *Cache) replaceLocked(s *slot, sector uint32) {
	s.ready = false
	s.sector = sector
	s.valid = true

	c.mu.Unlock()
	c.dev.ReadSector(sector, s.data[:])
	c.mu.Lock()

	c.accesses++
	s.ready = true
	s.cond.Broadcast()
	c.readyCond.Broadcast()
}

// Flush writes every dirty slot back to disk. It does not invalidate any
// slot.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Cache) flushLocked() {
	for _, s := range c.slots {
		for !s.ready {
			s.cond.Wait()
		}
		if s.valid && s.dirty {
			c.cleanLocked(s)
		}
	}
}

// ResetStats flushes the cache and then zeros hits, accesses, and
// device_writes.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
	c.hits = 0
	c.accesses = 0
	c.deviceWrites = 0
}

// HitRate returns hits*100/accesses as an integer percentage, or 0 if
// there have been no accesses yet.
func (c *Cache) HitRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accesses == 0 {
		return 0
	}
	return int(c.hits * 100 / c.accesses)
}

// DeviceWrites returns the number of physical sector writes issued to the
// device since init or the last ResetStats.
func (c *Cache) DeviceWrites() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceWrites
}

// Accesses returns the number of accesses recorded since init or the last
// ResetStats, for observability only.
func (c *Cache) Accesses() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accesses
}

// Hits returns the number of hits recorded since init or the last
// ResetStats, for observability only.
func (c *Cache) Hits() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// NumSlots returns the fixed slot count the cache was constructed with.
func (c *Cache) NumSlots() int {
	return len(c.slots)
}
