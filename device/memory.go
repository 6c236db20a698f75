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

package device

import "sync"

// Memory is an in-memory Device, useful for tests and for short-lived
// filesystems that don't need to outlive the process. It is safe for
// concurrent use; the buffer cache is the only thing that should be issuing
// requests against it, but tests poke at it directly too.
type Memory struct {
	mu      sync.Mutex
	sectors [][SectorSize]byte
}

var _ Device = (*Memory)(nil)

// NewMemory returns a Memory device with the given number of zero-filled
// sectors.
func NewMemory(numSectors uint32) *Memory {
	return &Memory{
		sectors: make([][SectorSize]byte, numSectors),
	}
}

func (d *Memory) ReadSector(sector uint32, dst []byte) {
	if len(dst) != SectorSize {
		panic("device.Memory.ReadSector: dst must be exactly SectorSize bytes")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if sector >= uint32(len(d.sectors)) {
		panic("device.Memory.ReadSector: sector out of range")
	}

	copy(dst, d.sectors[sector][:])
}

func (d *Memory) WriteSector(sector uint32, src []byte) {
	if len(src) != SectorSize {
		panic("device.Memory.WriteSector: src must be exactly SectorSize bytes")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if sector >= uint32(len(d.sectors)) {
		panic("device.Memory.WriteSector: sector out of range")
	}

	copy(d.sectors[sector][:], src)
}

func (d *Memory) NumSectors() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.sectors))
}
