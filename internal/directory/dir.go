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

package directory

import (
	"github.com/blockfs/blockfs/freemap"
	"github.com/blockfs/blockfs/fserrors"
	"github.com/blockfs/blockfs/internal/cache"
	"github.com/blockfs/blockfs/internal/inode"
)

const (
	dotName    = "."
	dotDotName = ".."
)

// DirCreate lays out a fresh directory at dirSector: an inode plus its
// built-in "." and ".." entries. parentSector is the sector of the
// directory's parent (dirSector itself, for the root directory).
func DirCreate(c *cache.Cache, fm *freemap.FreeMap, reg *inode.Registry, dirSector, parentSector uint32) bool {
	if !inode.CreateOnDisk(c, fm, dirSector, true) {
		return false
	}

	in := reg.Open(dirSector)
	defer reg.Close(in)

	if err := addLocked(in, dotName, dirSector, true); err != nil {
		return false
	}
	if err := addLocked(in, dotDotName, parentSector, true); err != nil {
		return false
	}
	return true
}

// Lookup scans dir's entries for name, returning the sector it names and
// whether that sector holds a subdirectory.
func Lookup(dir *inode.Inode, name string) (sector uint32, isDir bool, err error) {
	if len(name) > MaxNameLen {
		return 0, false, fserrors.ErrNameTooLong
	}

	found := false
	err = forEachEntry(dir, func(e entry) bool {
		if e.inUse && e.name == name {
			sector, isDir, found = e.sector, e.isDir, true
			return false
		}
		return true
	})
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, fserrors.ErrNotFound
	}
	return sector, isDir, nil
}

// Add appends an entry naming sector (a file or subdirectory) under name in
// dir. It fails with ErrAlreadyExists if name is already taken in dir.
func Add(dir *inode.Inode, name string, sector uint32, isDir bool) error {
	if name == "" {
		return fserrors.ErrNotFound
	}
	if len(name) > MaxNameLen {
		return fserrors.ErrNameTooLong
	}
	if _, _, err := Lookup(dir, name); err == nil {
		return fserrors.ErrAlreadyExists
	}
	return addLocked(dir, name, sector, isDir)
}

// addLocked appends name to dir without checking for a duplicate; used both
// by Add (which has already checked) and by DirCreate's "." / ".." setup.
func addLocked(dir *inode.Inode, name string, sector uint32, isDir bool) error {
	// Reuse the first unused slot, if dir has one from a prior Remove;
	// otherwise append a fresh entry at EOF.
	offset := int64(0)
	reused := false
	err := forEachEntryAt(dir, func(off int64, e entry) bool {
		if !e.inUse {
			offset = off
			reused = true
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if !reused {
		offset = dir.Length()
	}

	rec := encodeEntry(entry{sector: sector, name: name, inUse: true, isDir: isDir})
	n, werr := dir.Write(rec, offset)
	if werr != nil {
		return werr
	}
	if n != entrySize {
		return fserrors.ErrNoSpace
	}
	return nil
}

// Remove looks up name in dir and, if the removal is legal, clears its
// entry, marks the target inode removed, and closes the registry's
// reference to it. Actual freeing of its data blocks and sector happens
// when its last opener closes it (immediately, if dir held the only
// reference). A directory name fails with ErrBusy if some other opener
// holds it open, or ErrNotEmpty if it holds more than its two built-in
// entries. "." and ".." always fail with ErrNotFound, matching a lookup
// miss: they are not independently removable entries.
func Remove(reg *inode.Registry, dir *inode.Inode, name string) error {
	if name == dotName || name == dotDotName {
		return fserrors.ErrNotFound
	}

	sector, isDir, err := Lookup(dir, name)
	if err != nil {
		return err
	}

	target := reg.Open(sector)

	if isDir {
		// IsInodeOpen reports open_cnt > 1; our own Open above already
		// accounts for one reference, so this is true only if some other
		// opener is also holding the directory.
		if reg.IsInodeOpen(sector) {
			reg.Close(target)
			return fserrors.ErrBusy
		}
		empty, emptyErr := IsEmpty(target)
		if emptyErr != nil {
			reg.Close(target)
			return emptyErr
		}
		if !empty {
			reg.Close(target)
			return fserrors.ErrNotEmpty
		}
	}

	if clearErr := clearEntry(dir, name); clearErr != nil {
		reg.Close(target)
		return clearErr
	}

	reg.MarkRemoved(target)
	reg.Close(target)
	return nil
}

// clearEntry tombstones the entry named name in dir, leaving its slot for
// Add to reuse later.
func clearEntry(dir *inode.Inode, name string) error {
	cleared := false
	err := forEachEntryAt(dir, func(off int64, e entry) bool {
		if e.inUse && e.name == name {
			e.inUse = false
			e.name = ""
			e.sector = 0
			dir.Write(encodeEntry(e), off)
			cleared = true
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if !cleared {
		return fserrors.ErrNotFound
	}
	return nil
}

// IsEmpty reports whether dir holds no entries beyond the built-in "." and
// "..".
func IsEmpty(dir *inode.Inode) (bool, error) {
	empty := true
	err := forEachEntry(dir, func(e entry) bool {
		if e.inUse && e.name != dotName && e.name != dotDotName {
			empty = false
			return false
		}
		return true
	})
	return empty, err
}

// Readdir returns the next in-use entry name at or after *pos, skipping "."
// and "..", and advances *pos past it. ok is false once the directory is
// exhausted.
func Readdir(dir *inode.Inode, pos *int64) (name string, ok bool, err error) {
	buf := make([]byte, entrySize)
	for {
		n, rerr := dir.Read(buf, *pos)
		if rerr != nil {
			return "", false, rerr
		}
		if n < entrySize {
			return "", false, nil
		}
		*pos += entrySize

		e := decodeEntry(buf)
		if !e.inUse || e.name == dotName || e.name == dotDotName {
			continue
		}
		return e.name, true, nil
	}
}

// forEachEntry calls fn for every entry (in-use or not) in dir, in order,
// stopping early if fn returns false.
func forEachEntry(dir *inode.Inode, fn func(entry) bool) error {
	return forEachEntryAt(dir, func(_ int64, e entry) bool { return fn(e) })
}

func forEachEntryAt(dir *inode.Inode, fn func(off int64, e entry) bool) error {
	buf := make([]byte, entrySize)
	length := dir.Length()
	for off := int64(0); off+entrySize <= length; off += entrySize {
		n, err := dir.Read(buf, off)
		if err != nil {
			return err
		}
		if n < entrySize {
			break
		}
		if !fn(off, decodeEntry(buf)) {
			return nil
		}
	}
	return nil
}
