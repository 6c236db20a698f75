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

// CreateOnDisk lays out a fresh, zero-length inode at inodeSector: it
// allocates the initial direct block via extend, then stamps length,
// magic, and is_dir. The caller is responsible for having already
// allocated inodeSector itself (from the free map or a well-known
// constant, for the root directory).
//
// If the initial block allocation fails, any partial allocation is
// released and CreateOnDisk reports false.
func CreateOnDisk(c *cache.Cache, fm *freemap.FreeMap, inodeSector uint32, isDir bool) bool {
	zeroFillSector(c, inodeSector)

	if _, ok := extend(c, fm, inodeSector, 0); !ok {
		freeDataBlocks(c, fm, inodeSector)
		return false
	}

	c.Write(inodeSector, encodeUint32(0), offLength, 4)
	c.Write(inodeSector, encodeUint32(Magic), offMagic, 4)

	isDirByte := byte(0)
	if isDir {
		isDirByte = 1
	}
	c.Write(inodeSector, []byte{isDirByte}, offIsDir, 1)

	return true
}
