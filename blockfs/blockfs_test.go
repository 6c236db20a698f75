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

package blockfs_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blockfs/blockfs/blockfs"
	"github.com/blockfs/blockfs/fserrors"
	"github.com/blockfs/blockfs/internal/config"
	"github.com/blockfs/blockfs/internal/inode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Device.Path = filepath.Join(t.TempDir(), "blockfs.img")
	cfg.Logging.Severity = config.OFF
	return cfg
}

// mount formats a fresh image and returns the filesystem, a root-cwd task,
// and the config needed to remount the same image later.
func mount(t *testing.T) (*blockfs.FS, *blockfs.Task, config.Config) {
	t.Helper()
	cfg := testConfig(t)
	fs, err := blockfs.Format(cfg)
	require.NoError(t, err)
	task := fs.NewTask()
	t.Cleanup(func() {
		task.Close()
		require.NoError(t, fs.Shutdown())
	})
	return fs, task, cfg
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/hello.txt", 0)
	require.NoError(t, err)
	defer h.Close()

	want := []byte("some bytes to remember")
	n, err := h.Write(want)
	require.NoError(t, err)
	require.Equal(t, len(want), n)

	_, err = h.Seek(0, 0)
	require.NoError(t, err)

	got := make([]byte, len(want))
	n, err = h.Read(got)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, got)
}

func TestPersistsAcrossRemount(t *testing.T) {
	cfg := testConfig(t)

	fs, err := blockfs.Format(cfg)
	require.NoError(t, err)
	task := fs.NewTask()

	want := bytes.Repeat([]byte("0123456789abcdef"), 300)
	h, err := fs.Create(task, "/survivor.dat", 0)
	require.NoError(t, err)
	_, err = h.Write(want)
	require.NoError(t, err)
	h.Close()
	task.Close()
	require.NoError(t, fs.Shutdown())

	fs, err = blockfs.New(cfg)
	require.NoError(t, err)
	task = fs.NewTask()
	defer func() {
		task.Close()
		require.NoError(t, fs.Shutdown())
	}()

	h, err = fs.Open(task, "/survivor.dat")
	require.NoError(t, err)
	defer h.Close()

	got := make([]byte, len(want))
	n, err := h.Read(got)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, got)
}

func TestCreateRemoveCreate(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/phoenix", 0)
	require.NoError(t, err)
	h.Close()

	require.NoError(t, fs.Remove(task, "/phoenix"))

	h, err = fs.Create(task, "/phoenix", 0)
	require.NoError(t, err)
	h.Close()
}

func TestMkdirRmdirMkdir(t *testing.T) {
	fs, task, _ := mount(t)

	require.NoError(t, fs.Mkdir(task, "/nest"))
	require.NoError(t, fs.Remove(task, "/nest"))
	require.NoError(t, fs.Mkdir(task, "/nest"))
}

func TestNameLengthBoundary(t *testing.T) {
	fs, task, _ := mount(t)

	okName := "/" + strings.Repeat("n", 14)
	h, err := fs.Create(task, okName, 0)
	require.NoError(t, err)
	h.Close()

	tooLong := "/" + strings.Repeat("n", 15)
	_, err = fs.Create(task, tooLong, 0)
	assert.ErrorIs(t, err, fserrors.ErrNameTooLong)
}

func TestReadAtAndPastEOF(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/short", 0)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Write([]byte("12345"))
	require.NoError(t, err)
	_, err = h.Seek(0, 0)
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// At exactly EOF now.
	n, err = h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// Scenario: 65,536 one-byte writes to giant.txt must coalesce in the cache
// down to roughly one device write per data sector plus a little metadata.
func TestCoalescedWrites(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/giant.txt", 0)
	require.NoError(t, err)
	defer h.Close()

	fs.ResetStats()

	one := []byte{0x42}
	for i := 0; i < 65536; i++ {
		n, err := h.Write(one)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	fs.Flush()

	// 65536 bytes span 128 data sectors; allow a small constant on top for
	// the inode and the indirect sector. Free-map writes bypass the cache
	// and are not counted here.
	assert.LessOrEqual(t, fs.DeviceWrites(), uint64(200))
}

// Scenario: rereading design_doc.txt with a warm cache must beat the cold
// hit rate. ResetStats keeps the cache's slots, so the image is remounted
// after the file is written to make the first pass start cold.
func TestHitRateImprovesOnReread(t *testing.T) {
	cfg := testConfig(t)

	fs, err := blockfs.Format(cfg)
	require.NoError(t, err)
	task := fs.NewTask()

	content := bytes.Repeat([]byte{0x5A}, 1000)
	h, err := fs.Create(task, "/design_doc.txt", 0)
	require.NoError(t, err)
	_, err = h.Write(content)
	require.NoError(t, err)
	h.Close()
	task.Close()
	require.NoError(t, fs.Shutdown())

	fs, err = blockfs.New(cfg)
	require.NoError(t, err)
	task = fs.NewTask()
	defer func() {
		task.Close()
		require.NoError(t, fs.Shutdown())
	}()

	fs.ResetStats()

	readAll := func() {
		h, err := fs.Open(task, "/design_doc.txt")
		require.NoError(t, err)
		defer h.Close()
		buf := make([]byte, 10)
		for i := 0; i < 100; i++ {
			n, err := h.Read(buf)
			require.NoError(t, err)
			require.Equal(t, 10, n)
		}
	}

	readAll()
	h1 := fs.HitRate()

	readAll()
	assert.Greater(t, fs.HitRate(), h1)
}

// Scenario: tell starts at zero and advances with each byte read.
func TestTellSemantics(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/sample.txt", 0)
	require.NoError(t, err)
	defer h.Close()
	_, err = h.Write([]byte("abc"))
	require.NoError(t, err)

	h2, err := fs.Open(task, "/sample.txt")
	require.NoError(t, err)
	defer h2.Close()

	assert.EqualValues(t, 0, h2.Tell())

	b := make([]byte, 1)
	n, err := h2.Read(b)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.EqualValues(t, 1, h2.Tell())
}

// Scenario: growing a file by 4 KiB chunks stops at the maximum extent, and
// everything written up to that point reads back intact.
func TestGrowThenRead(t *testing.T) {
	if testing.Short() {
		t.Skip("writes the full multi-level extent")
	}

	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/big", 0)
	require.NoError(t, err)
	defer h.Close()

	const chunkSize = 4096
	const target = 10 << 20
	chunk := make([]byte, chunkSize)
	for i := range chunk {
		chunk[i] = byte(i % 251)
	}

	written := int64(0)
	for written < target {
		n, err := h.Write(chunk)
		if err != nil {
			assert.ErrorIs(t, err, fserrors.ErrTooLarge)
			break
		}
		written += int64(n)
		if n < chunkSize {
			break
		}
	}

	assert.Equal(t, inode.MaxFileSize, written)
	assert.Equal(t, inode.MaxFileSize, h.Length())

	// One more byte past the maximum must be refused outright.
	_, err = h.Write([]byte{0xFF})
	assert.ErrorIs(t, err, fserrors.ErrTooLarge)

	_, err = h.Seek(0, 0)
	require.NoError(t, err)

	got := make([]byte, chunkSize)
	for off := int64(0); off < written; {
		n, err := h.Read(got)
		require.NoError(t, err)
		require.Greater(t, n, 0)
		for i := 0; i < n; i++ {
			want := byte((off + int64(i)) % chunkSize % 251)
			if got[i] != want {
				t.Fatalf("byte %d: got %#x, want %#x", off+int64(i), got[i], want)
			}
		}
		off += int64(n)
	}
}

// Scenario: a directory open elsewhere cannot be removed.
func TestBusyRemove(t *testing.T) {
	fs, task, _ := mount(t)

	require.NoError(t, fs.Mkdir(task, "/d"))

	h, err := fs.Open(task, "/d")
	require.NoError(t, err)

	err = fs.Remove(task, "/d")
	assert.ErrorIs(t, err, fserrors.ErrBusy)

	h.Close()
	assert.NoError(t, fs.Remove(task, "/d"))
}

// Scenario: a directory with real entries cannot be removed.
func TestNonEmptyRmdir(t *testing.T) {
	fs, task, _ := mount(t)

	require.NoError(t, fs.Mkdir(task, "/a"))
	h, err := fs.Create(task, "/a/f", 0)
	require.NoError(t, err)
	h.Close()

	err = fs.Remove(task, "/a")
	assert.ErrorIs(t, err, fserrors.ErrNotEmpty)

	require.NoError(t, fs.Remove(task, "/a/f"))
	assert.NoError(t, fs.Remove(task, "/a"))
}

func TestRemoveDotEntriesFails(t *testing.T) {
	fs, task, _ := mount(t)

	require.NoError(t, fs.Mkdir(task, "/a"))
	assert.Error(t, fs.Remove(task, "/a/."))
	assert.Error(t, fs.Remove(task, "/a/.."))
}

func TestChdirAndRelativePaths(t *testing.T) {
	fs, task, _ := mount(t)

	require.NoError(t, fs.Mkdir(task, "/a"))
	require.NoError(t, fs.Mkdir(task, "/a/b"))
	require.NoError(t, task.Chdir("/a/b"))

	h, err := fs.Create(task, "leaf", 0)
	require.NoError(t, err)
	h.Close()

	// Visible under its absolute path too.
	h, err = fs.Open(task, "/a/b/leaf")
	require.NoError(t, err)
	h.Close()

	// ".." entries resolve like any other name.
	require.NoError(t, task.Chdir(".."))
	h, err = fs.Open(task, "b/leaf")
	require.NoError(t, err)
	h.Close()

	err = task.Chdir("/a/b/leaf")
	assert.ErrorIs(t, err, fserrors.ErrNotADirectory)
}

func TestReaddirSkipsDotEntries(t *testing.T) {
	fs, task, _ := mount(t)

	require.NoError(t, fs.Mkdir(task, "/dir"))
	for _, name := range []string{"x", "y", "z"} {
		h, err := fs.Create(task, "/dir/"+name, 0)
		require.NoError(t, err)
		h.Close()
	}

	h, err := fs.Open(task, "/dir")
	require.NoError(t, err)
	defer h.Close()
	require.True(t, h.Isdir())

	var names []string
	for {
		name, ok, err := fs.Readdir(h)
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"x", "y", "z"}, names)
}

func TestOpenAnyReportsKind(t *testing.T) {
	fs, task, _ := mount(t)

	require.NoError(t, fs.Mkdir(task, "/d"))
	h, err := fs.Create(task, "/f", 0)
	require.NoError(t, err)
	h.Close()

	h, isDir, err := fs.OpenAny(task, "/d")
	require.NoError(t, err)
	assert.True(t, isDir)
	assert.True(t, h.Isdir())
	h.Close()

	h, isDir, err = fs.OpenAny(task, "/f")
	require.NoError(t, err)
	assert.False(t, isDir)
	h.Close()
}

func TestInumberIsStableAcrossOpeners(t *testing.T) {
	fs, task, _ := mount(t)

	h1, err := fs.Create(task, "/f", 0)
	require.NoError(t, err)
	defer h1.Close()

	h2, err := fs.Open(task, "/f")
	require.NoError(t, err)
	defer h2.Close()

	assert.Equal(t, h1.Inumber(), h2.Inumber())
}

func TestDenyWriteBlocksAllOpeners(t *testing.T) {
	fs, task, _ := mount(t)

	h1, err := fs.Create(task, "/locked", 0)
	require.NoError(t, err)
	defer h1.Close()

	h2, err := fs.Open(task, "/locked")
	require.NoError(t, err)
	defer h2.Close()

	h1.DenyWrite()
	_, err = h2.Write([]byte("no"))
	assert.ErrorIs(t, err, fserrors.ErrDenyWrite)

	h1.AllowWrite()
	n, err := h2.Write([]byte("yes"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDenyWriteReleasedByClose(t *testing.T) {
	fs, task, _ := mount(t)

	h1, err := fs.Create(task, "/locked", 0)
	require.NoError(t, err)

	h2, err := fs.Open(task, "/locked")
	require.NoError(t, err)
	defer h2.Close()

	// Closing a handle that never called AllowWrite must release its hold
	// rather than leaving the inode write-protected (or tripping the
	// deny_write_cnt <= open_cnt invariant on the last close).
	h1.DenyWrite()
	h1.Close()

	n, err := h2.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDenyWriteHeldAtLastCloseDoesNotPanic(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/solo", 0)
	require.NoError(t, err)

	h.DenyWrite()
	require.NotPanics(t, h.Close)

	// The file is writable again through a fresh handle.
	h2, err := fs.Open(task, "/solo")
	require.NoError(t, err)
	defer h2.Close()
	n, err := h2.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateWithInitialSize(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/prealloc", 3000)
	require.NoError(t, err)
	defer h.Close()

	assert.EqualValues(t, 3000, h.Length())

	buf := make([]byte, 3000)
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3000, n)
	assert.Equal(t, make([]byte, 3000), buf)
}

func TestCreateExistingFails(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/dup", 0)
	require.NoError(t, err)
	h.Close()

	_, err = fs.Create(task, "/dup", 0)
	assert.ErrorIs(t, err, fserrors.ErrAlreadyExists)

	require.NoError(t, fs.Mkdir(task, "/dupdir"))
	assert.ErrorIs(t, fs.Mkdir(task, "/dupdir"), fserrors.ErrAlreadyExists)
}

func TestOpenMissingFails(t *testing.T) {
	fs, task, _ := mount(t)

	_, err := fs.Open(task, "/nope")
	assert.ErrorIs(t, err, fserrors.ErrNotFound)

	_, err = fs.Open(task, "/nope/deeper")
	assert.ErrorIs(t, err, fserrors.ErrNotFound)
}

func TestIntermediateFileComponentFails(t *testing.T) {
	fs, task, _ := mount(t)

	h, err := fs.Create(task, "/plain", 0)
	require.NoError(t, err)
	h.Close()

	_, err = fs.Open(task, "/plain/child")
	assert.ErrorIs(t, err, fserrors.ErrNotADirectory)
}
