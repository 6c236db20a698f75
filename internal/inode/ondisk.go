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

// Package inode implements the open-inode registry, the on-disk inode
// layout, byte-range read/write, and lazy multi-level block allocation.
package inode

import (
	"encoding/binary"

	"github.com/blockfs/blockfs/device"
)

// Magic identifies a sector as holding a valid on-disk inode.
const Magic = 0x494E4F44

// Byte offsets of the fixed fields within an inode sector. Everything past
// offDoubleIndirect+4 is reserved padding, zeroed at creation and never
// interpreted.
const (
	offLength         = 0
	offMagic          = 4
	offIsDir          = 8
	offDirect         = 12
	offIndirect       = 16
	offDoubleIndirect = 20
)

// pointersPerSector is how many 32-bit sector pointers fit in one indirect
// sector.
const pointersPerSector = device.SectorSize / 4 // 128

const (
	directBlocks   = 1
	indirectBlocks = pointersPerSector
	doubleBlocks   = pointersPerSector * pointersPerSector
)

// MaxFileSize is the largest byte offset one past the end of a file can
// reach: (1 + 128 + 128*128) sectors.
const MaxFileSize = int64(directBlocks+indirectBlocks+doubleBlocks) * device.SectorSize

func encodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func decodeUint32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}
