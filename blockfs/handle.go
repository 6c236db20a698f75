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
	"io"
	"sync"

	"github.com/blockfs/blockfs/internal/inode"
)

// Handle is an open file or directory opener, returned by Create, Open
// and OpenAny. It carries its own read/write cursor (Tell/Seek) for
// files and its own iteration position (used by FS.Readdir) for
// directories; the same object plays both roles, so OpenAny can hand
// back a single opener either way.
type Handle struct {
	fs *FS
	in *inode.Inode

	mu     sync.Mutex
	offset int64 // file read/write cursor, and directory readdir position
	denied bool  // this handle holds a deny-write assertion on in
}

func newHandle(fs *FS, in *inode.Inode) *Handle {
	return &Handle{fs: fs, in: in}
}

// Isdir reports whether this handle names a directory.
func (h *Handle) Isdir() bool { return h.in.IsDir() }

// Inumber returns the sector number of the handle's underlying inode.
func (h *Handle) Inumber() uint32 { return h.in.Sector() }

// Length returns the handle's current file length.
func (h *Handle) Length() int64 { return h.in.Length() }

// Read copies up to len(dst) bytes from the handle's current cursor,
// advancing the cursor by the number of bytes actually read.
func (h *Handle) Read(dst []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.in.Read(dst, h.offset)
	h.offset += int64(n)
	return n, err
}

// Write copies src to the handle's current cursor, growing the file as
// needed, and advances the cursor by the number of bytes actually written.
func (h *Handle) Write(src []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.in.Write(src, h.offset)
	h.offset += int64(n)
	return n, err
}

// Tell returns the handle's current cursor position.
func (h *Handle) Tell() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offset
}

// Seek repositions the handle's cursor, following io.Seeker's whence
// conventions (io.SeekStart, io.SeekCurrent, io.SeekEnd).
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.offset
	case io.SeekEnd:
		base = h.in.Length()
	default:
		return 0, errInvalidWhence
	}

	pos := base + offset
	if pos < 0 {
		return 0, errNegativeSeek
	}
	h.offset = pos
	return pos, nil
}

// DenyWrite asserts a deny-write hold against the handle's inode, causing
// concurrent writers (including other handles on the same inode) to fail
// with fserrors.ErrDenyWrite until the hold is released. Each handle holds
// at most one assertion; repeated calls are no-ops.
func (h *Handle) DenyWrite() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.denied {
		return
	}
	h.denied = true
	h.in.DenyWrite()
}

// AllowWrite releases this handle's deny-write hold, if it has one.
func (h *Handle) AllowWrite() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.denied {
		return
	}
	h.denied = false
	h.in.AllowWrite()
}

// Close releases any deny-write hold this handle still has, then drops its
// reference to the underlying inode. Freeing of a removed inode's blocks
// happens automatically once its last opener closes it.
func (h *Handle) Close() {
	h.AllowWrite()
	h.fs.reg.Close(h.in)
}
