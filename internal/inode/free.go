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
	"github.com/blockfs/blockfs/freemap"
	"github.com/blockfs/blockfs/internal/cache"
)

// freeDataBlocks releases every data sector, indirect sector, and the
// doubly-indirect sector reachable from the inode at inodeSector, zeroing
// each pointer field as it is released. It does not release inodeSector
// itself; that is the caller's responsibility once the inode entry is torn
// down.
//
// The double-indirect release nests two nearly-identical loops: the outer
// one walks the 128 single-indirect sectors a doubly-indirect sector may
// point to (index i), and for each one found, freeIndirectBlock walks its
// 128 data pointers (index j). Both bounds are 128; collapsing them into
// the wrong variable is the classic way to under- or over-free a double-
// indirect tree.
func freeDataBlocks(c *cache.Cache, fm *freemap.FreeMap, inodeSector uint32) {
	if direct := readPointer(c, inodeSector, offDirect); direct != 0 {
		fm.Release(direct, 1)
		writePointer(c, inodeSector, offDirect, 0)
	}

	if indirect := readPointer(c, inodeSector, offIndirect); indirect != 0 {
		freeIndirectBlock(c, fm, indirect)
		fm.Release(indirect, 1)
		writePointer(c, inodeSector, offIndirect, 0)
	}

	if doubleIndirect := readPointer(c, inodeSector, offDoubleIndirect); doubleIndirect != 0 {
		for i := 0; i < pointersPerSector; i++ {
			inner := readPointer(c, doubleIndirect, i*4)
			if inner == 0 {
				continue
			}
			freeIndirectBlock(c, fm, inner)
			fm.Release(inner, 1)
			writePointer(c, doubleIndirect, i*4, 0)
		}
		fm.Release(doubleIndirect, 1)
		writePointer(c, inodeSector, offDoubleIndirect, 0)
	}
}

// freeIndirectBlock releases every non-hole data pointer in the 128-entry
// indirect sector at indirectSector, zeroing each as it goes.
func freeIndirectBlock(c *cache.Cache, fm *freemap.FreeMap, indirectSector uint32) {
	for j := 0; j < pointersPerSector; j++ {
		ptr := readPointer(c, indirectSector, j*4)
		if ptr == 0 {
			continue
		}
		fm.Release(ptr, 1)
		writePointer(c, indirectSector, j*4, 0)
	}
}
