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

package inode

import (
	"github.com/blockfs/blockfs/device"
	"github.com/blockfs/blockfs/freemap"
	"github.com/blockfs/blockfs/internal/cache"
)

func readPointer(c *cache.Cache, sector uint32, byteOffset int) uint32 {
	buf := make([]byte, 4)
	c.Read(sector, buf, byteOffset, 4)
	return decodeUint32(buf)
}

func writePointer(c *cache.Cache, sector uint32, byteOffset int, value uint32) {
	c.Write(sector, encodeUint32(value), byteOffset, 4)
}

func zeroFillSector(c *cache.Cache, sector uint32) {
	var zero [device.SectorSize]byte
	// Full-sector, offset-0 write: the cache's blind path, so this never
	// reads the sector's old contents off the device.
	c.Write(sector, zero[:], 0, device.SectorSize)
}

// ensureSector returns the sector pointed to by the 4-byte pointer field at
// parentOffset within parentSector, allocating, zero-filling, and writing
// back a fresh sector if the pointer is currently a hole (zero).
//
// All newly allocated sectors are zero-filled through the cache before the
// pointer is published, so a concurrent reader that observes a non-zero
// pointer never sees uninitialized contents.
func ensureSector(c *cache.Cache, fm *freemap.FreeMap, parentSector uint32, parentOffset int) (uint32, bool) {
	if ptr := readPointer(c, parentSector, parentOffset); ptr != 0 {
		return ptr, true
	}

	newSector, ok := fm.Allocate(1)
	if !ok {
		return 0, false
	}

	zeroFillSector(c, newSector)
	writePointer(c, parentSector, parentOffset, newSector)
	return newSector, true
}

// lookupSector returns the sector pointed to by the 4-byte pointer field at
// parentOffset, without allocating. ok is false if the pointer is a hole.
func lookupSector(c *cache.Cache, parentSector uint32, parentOffset int) (uint32, bool) {
	ptr := readPointer(c, parentSector, parentOffset)
	return ptr, ptr != 0
}

// extend resolves the data sector holding byte offset within the inode at
// inodeSector, allocating (and zero-filling) any intermediate indirect
// sectors and the data sector itself as needed. It returns (0, false) if
// the free map is exhausted, or if offset lies beyond MaxFileSize.
func extend(c *cache.Cache, fm *freemap.FreeMap, inodeSector uint32, offset int64) (uint32, bool) {
	idx := offset / device.SectorSize

	switch {
	case idx < directBlocks:
		return ensureSector(c, fm, inodeSector, offDirect)

	case idx < directBlocks+indirectBlocks:
		indirect, ok := ensureSector(c, fm, inodeSector, offIndirect)
		if !ok {
			return 0, false
		}
		slot := int(idx-directBlocks) * 4
		return ensureSector(c, fm, indirect, slot)

	case idx < directBlocks+indirectBlocks+doubleBlocks:
		doubleIndirect, ok := ensureSector(c, fm, inodeSector, offDoubleIndirect)
		if !ok {
			return 0, false
		}

		rel := idx - (directBlocks + indirectBlocks)
		indirectSlot := int(rel/pointersPerSector) * 4
		dataSlot := int(rel%pointersPerSector) * 4

		indirect, ok := ensureSector(c, fm, doubleIndirect, indirectSlot)
		if !ok {
			return 0, false
		}
		return ensureSector(c, fm, indirect, dataSlot)

	default:
		return 0, false
	}
}

// lookup is the read-only counterpart of extend: it never allocates, and
// reports ok=false for any hole encountered along the chain (a sparse
// region that reads back as zeros).
func lookup(c *cache.Cache, inodeSector uint32, offset int64) (uint32, bool) {
	idx := offset / device.SectorSize

	switch {
	case idx < directBlocks:
		return lookupSector(c, inodeSector, offDirect)

	case idx < directBlocks+indirectBlocks:
		indirect, ok := lookupSector(c, inodeSector, offIndirect)
		if !ok {
			return 0, false
		}
		return lookupSector(c, indirect, int(idx-directBlocks)*4)

	case idx < directBlocks+indirectBlocks+doubleBlocks:
		doubleIndirect, ok := lookupSector(c, inodeSector, offDoubleIndirect)
		if !ok {
			return 0, false
		}

		rel := idx - (directBlocks + indirectBlocks)
		indirect, ok := lookupSector(c, doubleIndirect, int(rel/pointersPerSector)*4)
		if !ok {
			return 0, false
		}
		return lookupSector(c, indirect, int(rel%pointersPerSector)*4)

	default:
		return 0, false
	}
}
