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
	"github.com/blockfs/blockfs/freemap"
	"github.com/blockfs/blockfs/internal/cache"
)

// Registry is the process-wide open-inode registry: it deduplicates
// in-memory Inode objects by sector number, so that two openers of the
// same file observe each other's writes through one shared object.
//
// LOCK ORDERING: Registry.mu is acquired before any Inode's own mu.
type Registry struct {
	mu syncutil.InvariantMutex

	cache   *cache.Cache
	freeMap *freemap.FreeMap
	open    map[uint32]*Inode
}

// NewRegistry creates an empty open-inode registry backed by c and fm.
func NewRegistry(c *cache.Cache, fm *freemap.FreeMap) *Registry {
	r := &Registry{cache: c, freeMap: fm, open: make(map[uint32]*Inode)}
	r.mu = syncutil.NewInvariantMutex(r.checkInvariants)
	return r
}

func (r *Registry) checkInvariants() {
	for sector, in := range r.open {
		if sector != in.sector {
			panic(fmt.Sprintf("registry: entry keyed %d holds inode for sector %d", sector, in.sector))
		}
	}
}

// Open returns the shared Inode for sector, bumping its open count if it
// is already open, or creating a new registry entry otherwise.
func (r *Registry) Open(sector uint32) *Inode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if in, ok := r.open[sector]; ok {
		in.mu.Lock()
		in.openCnt++
		in.mu.Unlock()
		return in
	}

	in := newInode(sector, r.cache, r.freeMap)
	r.open[sector] = in
	return in
}

// MarkRemoved flags in's on-disk inode as doomed: when the last opener
// closes it, its data blocks and its inode sector are freed.
func (r *Registry) MarkRemoved(in *Inode) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.removed = true
}

// Close decrements in's open count. If it reaches zero, the registry entry
// is removed; if the inode had been marked removed, its data blocks and
// its own sector are freed at this point.
func (r *Registry) Close(in *Inode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in.mu.Lock()
	in.openCnt--
	openCnt := in.openCnt
	removed := in.removed
	in.mu.Unlock()

	if openCnt < 0 {
		panic(fmt.Sprintf("inode %d: open_cnt went negative", in.sector))
	}
	if openCnt > 0 {
		return
	}

	delete(r.open, in.sector)

	if removed {
		freeDataBlocks(r.cache, r.freeMap, in.sector)
		r.freeMap.Release(in.sector, 1)
	}
}

// IsInodeOpen reports whether sector has an open-inode entry with more
// than one opener, used by directory removal to forbid removing a
// directory that is open elsewhere.
func (r *Registry) IsInodeOpen(sector uint32) bool {
	r.mu.Lock()
	in, ok := r.open[sector]
	r.mu.Unlock()

	if !ok {
		return false
	}
	return in.openCount() > 1
}
