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

// Package device defines the synchronous sector-level interface that the
// buffer cache issues reads and writes against. It intentionally knows
// nothing about sectors being grouped into inodes or directories; it is the
// narrowest possible adapter to a block store.
package device

// SectorSize is the fixed size, in bytes, of every sector on the device.
const SectorSize = 512

// FreeMapSector is the first sector of the free-map region. The bitmap
// may spill past it into the sectors that follow, up to FreeMapSectors in
// total, so RootDirSector is placed past the largest possible bitmap.
// Sectors of the region that a given device's bitmap does not use are
// handed out by the free map like any other free sector.
const FreeMapSector uint32 = 0

// FreeMapSectors is the size, in sectors, of the region reserved at the
// front of the device for the free map's header and bitmap.
const FreeMapSectors uint32 = 64

// RootDirSector is the well-known sector holding the root directory inode,
// placed immediately after the free-map region.
const RootDirSector uint32 = FreeMapSectors

// Device is a synchronous, blocking sector store. Implementations always
// succeed or panic; there is no error return, matching the "always succeed"
// contract of the external block device collaborator.
type Device interface {
	// ReadSector copies SectorSize bytes from sector into dst.
	//
	// REQUIRES: len(dst) == SectorSize
	// REQUIRES: sector < NumSectors()
	ReadSector(sector uint32, dst []byte)

	// WriteSector copies SectorSize bytes from src into sector.
	//
	// REQUIRES: len(src) == SectorSize
	// REQUIRES: sector < NumSectors()
	WriteSector(sector uint32, src []byte)

	// NumSectors returns the fixed capacity of the device, in sectors.
	NumSectors() uint32
}
