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

// Package directory implements the hierarchical directory layer: a
// directory is itself just an inode whose data holds a flat array of
// fixed-size entries, each naming a sector that holds another inode (file or
// subdirectory).
package directory

import "encoding/binary"

// MaxNameLen is the longest name a directory entry can hold, not counting
// the trailing NUL.
const MaxNameLen = 14

// entrySize is the on-disk size of one directory entry: a 4-byte sector
// number, a 15-byte NUL-terminated name, a 1-byte in-use flag, a 1-byte
// is-dir flag, padded to a round 24 bytes.
const entrySize = 24

const (
	entryOffSector = 0
	entryOffName   = 4
	entryOffInUse  = 4 + 15
	entryOffIsDir  = 4 + 15 + 1
)

type entry struct {
	sector uint32
	name   string
	inUse  bool
	isDir  bool
}

func encodeEntry(e entry) []byte {
	buf := make([]byte, entrySize)
	binary.LittleEndian.PutUint32(buf[entryOffSector:], e.sector)
	copy(buf[entryOffName:entryOffName+MaxNameLen+1], e.name)
	if e.inUse {
		buf[entryOffInUse] = 1
	}
	if e.isDir {
		buf[entryOffIsDir] = 1
	}
	return buf
}

func decodeEntry(buf []byte) entry {
	nameField := buf[entryOffName : entryOffName+MaxNameLen+1]
	nul := len(nameField)
	for i, b := range nameField {
		if b == 0 {
			nul = i
			break
		}
	}
	return entry{
		sector: binary.LittleEndian.Uint32(buf[entryOffSector:]),
		name:   string(nameField[:nul]),
		inUse:  buf[entryOffInUse] != 0,
		isDir:  buf[entryOffIsDir] != 0,
	}
}
