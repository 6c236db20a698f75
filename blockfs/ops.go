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

package blockfs

import (
	"errors"

	"github.com/blockfs/blockfs/fserrors"
	"github.com/blockfs/blockfs/internal/directory"
	"github.com/blockfs/blockfs/internal/inode"
)

var (
	errInvalidWhence = errors.New("blockfs: invalid seek whence")
	errNegativeSeek  = errors.New("blockfs: negative seek position")
)

// Create makes a new, empty regular file at path (resolved relative to
// t's cwd, or the root for an absolute path) and returns an open Handle
// to it. If initialSize is positive, the file is grown to that length
// up front (every byte zero) by writing through the lazy allocator, the
// same way a caller's own writes would.
func (fs *FS) Create(t *Task, path string, initialSize int64) (*Handle, error) {
	in, err := fs.createEntry(t, path, false)
	if err != nil {
		return nil, err
	}

	if initialSize > 0 {
		if err := preallocate(in, initialSize); err != nil {
			fs.reg.Close(in)
			if rmErr := fs.Remove(t, path); rmErr != nil {
				return nil, rmErr
			}
			return nil, err
		}
	}

	return newHandle(fs, in), nil
}

// preallocate grows in to length n by writing n zero bytes from offset 0,
// exercising the same extend-on-write path a caller's own writes take.
func preallocate(in *inode.Inode, n int64) error {
	const chunk = 64 * 1024
	buf := make([]byte, chunk)

	written := int64(0)
	for written < n {
		want := n - written
		if want > chunk {
			want = chunk
		}
		got, err := in.Write(buf[:want], written)
		if err != nil {
			return err
		}
		written += int64(got)
		if int64(got) < want {
			return fserrors.ErrNoSpace
		}
	}
	return nil
}

// Mkdir creates a new, empty subdirectory at path.
func (fs *FS) Mkdir(t *Task, path string) error {
	in, err := fs.createEntry(t, path, true)
	if err != nil {
		return err
	}
	fs.reg.Close(in)
	return nil
}

// createEntry is shared by Create and Mkdir: it resolves path's parent
// directory, allocates a fresh inode sector, lays out the inode (plus "."
// and ".." for a directory), links it into the parent under the leaf
// name, and returns it open. Any partial allocation is released before
// returning an error.
func (fs *FS) createEntry(t *Task, path string, isDir bool) (*inode.Inode, error) {
	start := t.startFor(path)
	dir, leaf, err := directory.ResolveParent(fs.reg, start, trimLeadingSlash(path))
	fs.reg.Close(start)
	if err != nil {
		return nil, err
	}
	defer fs.reg.Close(dir)

	if _, _, lookupErr := directory.Lookup(dir, leaf); lookupErr == nil {
		return nil, fserrors.ErrAlreadyExists
	}

	sector, ok := fs.freeMap.Allocate(1)
	if !ok {
		return nil, fserrors.ErrNoSpace
	}

	if isDir {
		if !directory.DirCreate(fs.cache, fs.freeMap, fs.reg, sector, dir.Sector()) {
			fs.freeMap.Release(sector, 1)
			return nil, fserrors.ErrNoSpace
		}
	} else {
		if !inode.CreateOnDisk(fs.cache, fs.freeMap, sector, false) {
			fs.freeMap.Release(sector, 1)
			return nil, fserrors.ErrNoSpace
		}
	}

	if err := directory.Add(dir, leaf, sector, isDir); err != nil {
		orphan := fs.reg.Open(sector)
		fs.reg.MarkRemoved(orphan)
		fs.reg.Close(orphan)
		return nil, err
	}

	return fs.reg.Open(sector), nil
}

// Open resolves path and returns an open Handle to the file or directory
// it names.
func (fs *FS) Open(t *Task, path string) (*Handle, error) {
	start := t.startFor(path)
	in, err := directory.Resolve(fs.reg, start, trimLeadingSlash(path))
	fs.reg.Close(start)
	if err != nil {
		return nil, err
	}
	return newHandle(fs, in), nil
}

// OpenAny is Open plus an explicit is-directory flag, matching the
// design's open_any(path, out) -> {handle, is_dir}.
func (fs *FS) OpenAny(t *Task, path string) (h *Handle, isDir bool, err error) {
	h, err = fs.Open(t, path)
	if err != nil {
		return nil, false, err
	}
	return h, h.Isdir(), nil
}

// Remove unlinks the file or empty, unopened directory at path. It fails
// with fserrors.ErrBusy if path names a directory open elsewhere, or
// fserrors.ErrNotEmpty if it holds entries beyond "." and "..".
func (fs *FS) Remove(t *Task, path string) error {
	start := t.startFor(path)
	dir, leaf, err := directory.ResolveParent(fs.reg, start, trimLeadingSlash(path))
	fs.reg.Close(start)
	if err != nil {
		return err
	}
	defer fs.reg.Close(dir)

	return directory.Remove(fs.reg, dir, leaf)
}

// Readdir returns the next entry name in h (which must be a directory
// handle) at or after its current iteration position, advancing that
// position past it. ok is false once the directory is exhausted. "." and
// ".." are never returned.
func (fs *FS) Readdir(h *Handle) (name string, ok bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	name, ok, err = directory.Readdir(h.in, &h.offset)
	return name, ok, err
}
