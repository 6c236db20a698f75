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
	"strings"

	"github.com/blockfs/blockfs/fserrors"
	"github.com/blockfs/blockfs/internal/inode"
)

// NextPart extracts the next slash-separated component from path, returning
// it along with the remainder of path after that component (and its
// separating slash, if any). ok is false once path has no more components.
// SplitPath is built on top of this for callers that want every component
// up front.
func NextPart(path string) (part, rest string, ok bool) {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "", "", false
	}
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:], true
	}
	return path, "", true
}

// SplitPath splits path into its slash-separated, non-empty components. A
// leading "/" has no special representation here; the caller decides
// whether to start resolution from the root or from a working directory
// based on whether path begins with "/".
func SplitPath(path string) []string {
	var parts []string
	for {
		part, rest, ok := NextPart(path)
		if !ok {
			break
		}
		parts = append(parts, part)
		path = rest
	}
	return parts
}

// ResolveParent walks every component of path except the last, starting
// from start, and returns the inode of the final directory along with the
// path's last component (the name to create, look up, or remove there).
// It fails with ErrNotADirectory if an intermediate component is a file,
// and ErrNotFound if an intermediate component does not exist.
//
// The returned dir is always a fresh registry reference, even when path has
// a single component and dir is therefore the same sector as start: the
// caller always owns exactly one reference to close, regardless of path
// shape.
func ResolveParent(reg *inode.Registry, start *inode.Inode, path string) (dir *inode.Inode, leaf string, err error) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return nil, "", fserrors.ErrNotFound
	}

	cur := reg.Open(start.Sector())
	for _, part := range parts[:len(parts)-1] {
		next, nextErr := stepInto(reg, cur, part)
		reg.Close(cur)
		if nextErr != nil {
			return nil, "", nextErr
		}
		cur = next
	}

	if !cur.IsDir() {
		reg.Close(cur)
		return nil, "", fserrors.ErrNotADirectory
	}

	return cur, parts[len(parts)-1], nil
}

// Resolve walks every component of path starting from start and returns the
// inode it names. An empty path resolves to start itself (a fresh
// reference to the same sector). The caller always owns exactly one
// reference to close.
func Resolve(reg *inode.Registry, start *inode.Inode, path string) (*inode.Inode, error) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return reg.Open(start.Sector()), nil
	}

	dir, leaf, err := ResolveParent(reg, start, path)
	if err != nil {
		return nil, err
	}
	target, err := stepInto(reg, dir, leaf)
	reg.Close(dir)
	return target, err
}

// stepInto looks up name in dir and opens the inode it names. It returns
// ErrNotADirectory if dir is not a directory (which is how a file used as
// an intermediate path component is reported), and Lookup's error if name
// is not in dir.
func stepInto(reg *inode.Registry, dir *inode.Inode, name string) (*inode.Inode, error) {
	if !dir.IsDir() {
		return nil, fserrors.ErrNotADirectory
	}
	sector, _, err := Lookup(dir, name)
	if err != nil {
		return nil, err
	}
	return reg.Open(sector), nil
}
