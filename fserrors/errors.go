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

// Package fserrors holds the sentinel errors shared by the inode,
// directory, and façade layers, so that callers at any level can use
// errors.Is against a single, stable set of error kinds.
package fserrors

import "errors"

var (
	// ErrNotFound is returned when a path component is missing during
	// resolution, or a directory lookup misses.
	ErrNotFound = errors.New("blockfs: not found")

	// ErrNotADirectory is returned when an intermediate path component is
	// not a directory, or an operation that requires a directory is given
	// a file.
	ErrNotADirectory = errors.New("blockfs: not a directory")

	// ErrNameTooLong is returned for a path component longer than 14 bytes.
	ErrNameTooLong = errors.New("blockfs: name too long")

	// ErrAlreadyExists is returned by create/mkdir when the name is taken.
	ErrAlreadyExists = errors.New("blockfs: already exists")

	// ErrNotEmpty is returned by remove of a directory with more than the
	// two built-in entries ("." and "..").
	ErrNotEmpty = errors.New("blockfs: directory not empty")

	// ErrBusy is returned by remove of a directory that is open elsewhere.
	ErrBusy = errors.New("blockfs: busy")

	// ErrNoSpace is returned when the free map is exhausted.
	ErrNoSpace = errors.New("blockfs: no space")

	// ErrTooLarge is returned by a write that starts at or beyond the
	// maximum representable file extent.
	ErrTooLarge = errors.New("blockfs: too large")

	// ErrDenyWrite is returned by a write against an inode with an active
	// deny-write hold.
	ErrDenyWrite = errors.New("blockfs: deny write")
)
