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

import (
	"fmt"
	"os"
	"sync"
)

// File is a Device backed by a single regular file, pre-sized to
// numSectors * SectorSize bytes. It is the adapter real callers (the CLI,
// in particular) use; tests generally prefer Memory.
type File struct {
	mu         sync.Mutex
	f          *os.File
	numSectors uint32
}

var _ Device = (*File)(nil)

// OpenFile opens (creating if necessary) the file at path and truncates or
// extends it to hold exactly numSectors sectors.
func OpenFile(path string, numSectors uint32) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("device.OpenFile: %w", err)
	}

	size := int64(numSectors) * SectorSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("device.OpenFile: truncate: %w", err)
	}

	return &File{f: f, numSectors: numSectors}, nil
}

func (d *File) ReadSector(sector uint32, dst []byte) {
	if len(dst) != SectorSize {
		panic("device.File.ReadSector: dst must be exactly SectorSize bytes")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if sector >= d.numSectors {
		panic("device.File.ReadSector: sector out of range")
	}

	if _, err := d.f.ReadAt(dst, int64(sector)*SectorSize); err != nil {
		panic(fmt.Sprintf("device.File.ReadSector: %v", err))
	}
}

func (d *File) WriteSector(sector uint32, src []byte) {
	if len(src) != SectorSize {
		panic("device.File.WriteSector: src must be exactly SectorSize bytes")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if sector >= d.numSectors {
		panic("device.File.WriteSector: sector out of range")
	}

	if _, err := d.f.WriteAt(src, int64(sector)*SectorSize); err != nil {
		panic(fmt.Sprintf("device.File.WriteSector: %v", err))
	}
}

func (d *File) NumSectors() uint32 {
	return d.numSectors
}

// Close flushes and closes the underlying file. It does not flush any
// buffer cache layered on top; callers must call the cache's Flush first.
func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
