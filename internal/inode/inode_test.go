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

package inode_test

import (
	"bytes"
	"testing"

	"github.com/blockfs/blockfs/device"
	"github.com/blockfs/blockfs/freemap"
	"github.com/blockfs/blockfs/fserrors"
	"github.com/blockfs/blockfs/internal/cache"
	"github.com/blockfs/blockfs/internal/inode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T, numSectors uint32) (*cache.Cache, *freemap.FreeMap, *inode.Registry) {
	t.Helper()
	dev := device.NewMemory(numSectors)
	fm, err := freemap.Create(dev, numSectors)
	require.NoError(t, err)
	c := cache.New(dev, cache.DefaultSlots)
	return c, fm, inode.NewRegistry(c, fm)
}

// newInode allocates a sector from the free map and lays a fresh inode out
// on it, the same way the façade's create path does.
func newInode(t *testing.T, c *cache.Cache, fm *freemap.FreeMap, reg *inode.Registry, isDir bool) *inode.Inode {
	t.Helper()
	sector, ok := fm.Allocate(1)
	require.True(t, ok)
	require.True(t, inode.CreateOnDisk(c, fm, sector, isDir))
	return reg.Open(sector)
}

func TestCreateThenReadWriteRoundTrip(t *testing.T) {
	c, fm, reg := newHarness(t, 256)

	in := newInode(t, c, fm, reg, false)

	want := []byte("hello, blockfs")
	n, err := in.Write(want, 0)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.EqualValues(t, len(want), in.Length())

	got := make([]byte, len(want))
	n, err = in.Read(got, 0)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, got)
}

func TestReadPastEOFIsShort(t *testing.T) {
	c, fm, reg := newHarness(t, 256)
	in := newInode(t, c, fm, reg, false)

	_, err := in.Write([]byte("abc"), 0)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := in.Read(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = in.Read(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "reading at exactly EOF returns 0")
}

func TestSparseHoleReadsAsZero(t *testing.T) {
	c, fm, reg := newHarness(t, 512)
	in := newInode(t, c, fm, reg, false)

	// Writing one byte at offset 2*SectorSize allocates the single-indirect
	// sector and only its second data pointer. The first pointer (bytes
	// SectorSize..2*SectorSize-1) stays a hole inside the file's length and
	// must read back as zeros.
	_, err := in.Write([]byte{0xFF}, 2*device.SectorSize)
	require.NoError(t, err)

	buf := bytes.Repeat([]byte{0xAA}, device.SectorSize)
	n, err := in.Read(buf, device.SectorSize)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.True(t, bytes.Equal(buf, make([]byte, len(buf))))
}

func TestWriteAcrossIndirectBoundary(t *testing.T) {
	c, fm, reg := newHarness(t, 2000)
	in := newInode(t, c, fm, reg, false)

	// Offset 512 is the first byte of the single-indirect region.
	data := bytes.Repeat([]byte{0x7A}, 4)
	n, err := in.Write(data, device.SectorSize)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	got := make([]byte, len(data))
	_, err = in.Read(got, device.SectorSize)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteAtMaxFileSizeFails(t *testing.T) {
	c, fm, reg := newHarness(t, 256)
	in := newInode(t, c, fm, reg, false)

	n, err := in.Write([]byte{0x01}, inode.MaxFileSize)
	assert.ErrorIs(t, err, fserrors.ErrTooLarge)
	assert.Equal(t, 0, n)
}

func TestDenyWriteBlocksWrites(t *testing.T) {
	c, fm, reg := newHarness(t, 256)
	in := newInode(t, c, fm, reg, false)

	in.DenyWrite()
	n, err := in.Write([]byte("nope"), 0)
	assert.ErrorIs(t, err, fserrors.ErrDenyWrite)
	assert.Equal(t, 0, n)

	in.AllowWrite()
	n, err = in.Write([]byte("now ok"), 0)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestFreeOnLastCloseOfRemovedInode(t *testing.T) {
	c, fm, reg := newHarness(t, 256)
	in := newInode(t, c, fm, reg, false)

	_, err := in.Write(bytes.Repeat([]byte{1}, 10), 0)
	require.NoError(t, err)

	second := reg.Open(in.Sector())
	assert.Same(t, in, second, "Open of the same sector must return the shared entry")

	reg.MarkRemoved(in)
	reg.Close(in)
	assert.False(t, reg.IsInodeOpen(in.Sector()))

	before, _ := fm.Allocate(1)
	fm.Release(before, 1)

	reg.Close(second)
	// After the last close of a removed inode, its direct block (and the
	// inode sector itself) must be back in the free pool.
	freed, ok := fm.Allocate(1)
	assert.True(t, ok)
	_ = freed
}

func TestIsInodeOpenReflectsMultipleOpeners(t *testing.T) {
	c, fm, reg := newHarness(t, 256)
	first := newInode(t, c, fm, reg, false)
	sector := first.Sector()
	assert.False(t, reg.IsInodeOpen(sector))

	second := reg.Open(sector)
	assert.True(t, reg.IsInodeOpen(sector))

	reg.Close(second)
	assert.False(t, reg.IsInodeOpen(sector))
	reg.Close(first)
}

func TestCoalescedSingleByteWrites(t *testing.T) {
	c, fm, reg := newHarness(t, 4096)
	in := newInode(t, c, fm, reg, false)

	const total = 64 * 1024
	b := []byte{0x5A}
	for i := 0; i < total; i++ {
		_, err := in.Write(b, int64(i))
		require.NoError(t, err)
	}
	c.Flush()

	// 64 KiB of 1-byte writes touches 128 data sectors, plus the inode
	// sector and the single-indirect sector it allocates along the way.
	assert.LessOrEqual(t, c.DeviceWrites(), uint64(200))
}
