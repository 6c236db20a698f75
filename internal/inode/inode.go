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
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/blockfs/blockfs/device"
	"github.com/blockfs/blockfs/freemap"
	"github.com/blockfs/blockfs/fserrors"
	"github.com/blockfs/blockfs/internal/cache"
)

// Inode is the open-inode-registry entry for one on-disk inode. Its
// canonical length always comes from the on-disk field via the cache, so
// extensions made by a concurrent opener are visible to every other
// opener.
type Inode struct {
	mu syncutil.InvariantMutex // GUARDS the fields below

	sector       uint32
	openCnt      int
	removed      bool
	denyWriteCnt int

	cache   *cache.Cache
	freeMap *freemap.FreeMap
}

func newInode(sector uint32, c *cache.Cache, fm *freemap.FreeMap) *Inode {
	in := &Inode{sector: sector, openCnt: 1, cache: c, freeMap: fm}
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)
	return in
}

func (in *Inode) checkInvariants() {
	if in.denyWriteCnt < 0 || in.denyWriteCnt > in.openCnt {
		panic(fmt.Sprintf("inode %d: deny_write_cnt=%d out of [0, open_cnt=%d]", in.sector, in.denyWriteCnt, in.openCnt))
	}
}

// Sector returns the sector number this inode occupies on disk.
func (in *Inode) Sector() uint32 { return in.sector }

// IsDir reports whether this inode is a directory. The flag is fixed at
// creation, so no lock is required to read it.
func (in *Inode) IsDir() bool {
	buf := make([]byte, 1)
	in.cache.Read(in.sector, buf, offIsDir, 1)
	return buf[0] != 0
}

// Length returns the current authoritative length of the inode's data, as
// stored on disk.
func (in *Inode) Length() int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lengthLocked()
}

func (in *Inode) lengthLocked() int64 {
	buf := make([]byte, 4)
	in.cache.Read(in.sector, buf, offLength, 4)
	return int64(int32(decodeUint32(buf)))
}

func (in *Inode) writeLengthLocked(n int64) {
	in.cache.Write(in.sector, encodeUint32(uint32(int32(n))), offLength, 4)
}

// Read copies up to len(dst) bytes starting at offset into dst, returning
// the number of bytes actually read. Reading at or past the current length
// returns (0, nil); reading across EOF returns a short read.
func (in *Inode) Read(dst []byte, offset int64) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	length := in.lengthLocked()

	total := 0
	for total < len(dst) && offset < length {
		inSector := int(offset % device.SectorSize)
		chunk := len(dst) - total
		if room := device.SectorSize - inSector; chunk > room {
			chunk = room
		}
		if left := int(length - offset); chunk > left {
			chunk = left
		}

		if dataSector, ok := lookup(in.cache, in.sector, offset); ok {
			in.cache.Read(dataSector, dst[total:total+chunk], inSector, chunk)
		} else {
			for i := 0; i < chunk; i++ {
				dst[total+i] = 0
			}
		}

		total += chunk
		offset += int64(chunk)
	}

	return total, nil
}

// Write copies src into the inode's data starting at offset, growing the
// file (and lazily allocating the blocks that covers) as needed. It
// returns the number of bytes actually written.
//
// If deny-write is active, it returns (0, fserrors.ErrDenyWrite) without
// writing. If offset is at or beyond MaxFileSize, it returns (0,
// fserrors.ErrTooLarge). On mid-write allocation failure it returns the
// bytes written so far with a nil error; the caller already knows from
// the short count that the write did not fully land.
func (in *Inode) Write(src []byte, offset int64) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.denyWriteCnt > 0 {
		return 0, fserrors.ErrDenyWrite
	}
	if offset < 0 {
		panic("inode: negative write offset")
	}
	if offset >= MaxFileSize {
		return 0, fserrors.ErrTooLarge
	}

	length := in.lengthLocked()
	newLength := length
	if want := offset + int64(len(src)); want > length {
		newLength = want
		if newLength > MaxFileSize {
			newLength = MaxFileSize
		}
		// Publish the new length before any of the newly-allocated blocks
		// are reachable, so a concurrent reader that observes the longer
		// length never races ahead of extend's zero-fill-before-publish.
		in.writeLengthLocked(newLength)
	}

	total := 0
	for total < len(src) && offset < newLength {
		inSector := int(offset % device.SectorSize)
		chunk := len(src) - total
		if room := device.SectorSize - inSector; chunk > room {
			chunk = room
		}
		if left := int(newLength - offset); chunk > left {
			chunk = left
		}

		dataSector, ok := extend(in.cache, in.freeMap, in.sector, offset)
		if !ok {
			break
		}

		in.cache.Write(dataSector, src[total:total+chunk], inSector, chunk)
		total += chunk
		offset += int64(chunk)
	}

	return total, nil
}

// DenyWrite asserts a deny-write hold for this opener. At most one hold
// per opener is expected; exceeding open_cnt trips the invariant check,
// since that can only come from a caller bug, never from user input.
func (in *Inode) DenyWrite() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.denyWriteCnt++
	in.checkInvariants()
}

// AllowWrite releases a deny-write hold asserted by DenyWrite.
func (in *Inode) AllowWrite() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.denyWriteCnt--
	in.checkInvariants()
}

// openCount and isRemoved are read by the registry under the registry lock
// plus this inode's own lock, per the documented lock order.
func (in *Inode) openCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.openCnt
}

func (in *Inode) isRemoved() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.removed
}
