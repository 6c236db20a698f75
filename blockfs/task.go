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
	"sync"

	"github.com/blockfs/blockfs/device"
	"github.com/blockfs/blockfs/fserrors"
	"github.com/blockfs/blockfs/internal/directory"
	"github.com/blockfs/blockfs/internal/inode"
)

// Task is a caller's current-working-directory handle. It starts at the
// root directory and is mutated only by Chdir; nothing else in this
// package touches it. A Task must be released with
// Close when the caller is done with it, to drop its open-registry
// reference to its current cwd.
type Task struct {
	fs *FS

	mu  sync.Mutex
	cwd *inode.Inode
}

// NewTask returns a Task rooted at the filesystem's root directory.
func (fs *FS) NewTask() *Task {
	return &Task{fs: fs, cwd: fs.reg.Open(device.RootDirSector)}
}

// Close releases the Task's reference to its current cwd.
func (t *Task) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fs.reg.Close(t.cwd)
	t.cwd = nil
}

// Chdir resolves path (relative to t's current cwd, or the root if path
// begins with "/") and, if it names a directory, makes it t's new cwd.
func (t *Task) Chdir(path string) error {
	dir, err := t.resolveDirForChdir(path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	old := t.cwd
	t.cwd = dir
	t.mu.Unlock()

	t.fs.reg.Close(old)
	return nil
}

func (t *Task) resolveDirForChdir(path string) (*inode.Inode, error) {
	start := t.startFor(path)
	target, err := directory.Resolve(t.fs.reg, start, trimLeadingSlash(path))
	t.fs.reg.Close(start)
	if err != nil {
		return nil, err
	}
	if !target.IsDir() {
		t.fs.reg.Close(target)
		return nil, fserrors.ErrNotADirectory
	}
	return target, nil
}

// startFor returns the registry reference path resolution should start
// from: the root for an absolute path, or a fresh reference to t's current
// cwd for a relative one.
func (t *Task) startFor(path string) *inode.Inode {
	if isAbsolute(path) {
		return t.fs.reg.Open(device.RootDirSector)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fs.reg.Open(t.cwd.Sector())
}

func isAbsolute(path string) bool {
	return len(path) > 0 && path[0] == '/'
}

func trimLeadingSlash(path string) string {
	if isAbsolute(path) {
		return path[1:]
	}
	return path
}
