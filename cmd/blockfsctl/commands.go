// Copyright 2025 Google LLC
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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockfs/blockfs/blockfs"
)

func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Reinitialize the image with an empty root directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := blockfs.Format(ctlConfig)
			if err != nil {
				return err
			}
			return fs.Shutdown()
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir path...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFS(func(fs *blockfs.FS, t *blockfs.Task) error {
				for _, path := range args {
					if err := fs.Mkdir(t, path); err != nil {
						return fmt.Errorf("mkdir %s: %w", path, err)
					}
				}
				return nil
			})
		},
	}
}

func newTouchCmd() *cobra.Command {
	var size int64
	cmd := &cobra.Command{
		Use:   "touch path...",
		Short: "Create empty files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFS(func(fs *blockfs.FS, t *blockfs.Task) error {
				for _, path := range args {
					h, err := fs.Create(t, path, size)
					if err != nil {
						return fmt.Errorf("create %s: %w", path, err)
					}
					h.Close()
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&size, "size", 0, "Preallocate this many zero bytes")
	return cmd
}

func newWriteCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "write path",
		Short: "Write stdin (or --from file) into a file, creating it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = os.Stdin
			if from != "" {
				f, err := os.Open(from)
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			data, err := io.ReadAll(src)
			if err != nil {
				return err
			}

			return withFS(func(fs *blockfs.FS, t *blockfs.Task) error {
				h, err := fs.Open(t, args[0])
				if err != nil {
					h, err = fs.Create(t, args[0], 0)
				}
				if err != nil {
					return err
				}
				defer h.Close()

				n, err := h.Write(data)
				if err != nil {
					return err
				}
				if n < len(data) {
					return fmt.Errorf("write %s: short write, %d of %d bytes", args[0], n, len(data))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Read contents from this local file instead of stdin")
	return cmd
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read path",
		Short: "Copy a file's contents to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFS(func(fs *blockfs.FS, t *blockfs.Task) error {
				h, err := fs.Open(t, args[0])
				if err != nil {
					return err
				}
				defer h.Close()
				if h.Isdir() {
					return fmt.Errorf("read %s: is a directory", args[0])
				}

				buf := make([]byte, 64*1024)
				for {
					n, err := h.Read(buf)
					if err != nil {
						return err
					}
					if n == 0 {
						return nil
					}
					if _, err := os.Stdout.Write(buf[:n]); err != nil {
						return err
					}
				}
			})
		},
	}
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory's entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return withFS(func(fs *blockfs.FS, t *blockfs.Task) error {
				h, err := fs.Open(t, path)
				if err != nil {
					return err
				}
				defer h.Close()
				if !h.Isdir() {
					return fmt.Errorf("ls %s: not a directory", path)
				}

				for {
					name, ok, err := fs.Readdir(h)
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
					fmt.Println(name)
				}
			})
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm path...",
		Short: "Remove files and empty directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFS(func(fs *blockfs.FS, t *blockfs.Task) error {
				for _, path := range args {
					if err := fs.Remove(t, path); err != nil {
						return fmt.Errorf("rm %s: %w", path, err)
					}
				}
				return nil
			})
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat [path]",
		Short: "Print cache statistics, or a file's inode number and length",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFS(func(fs *blockfs.FS, t *blockfs.Task) error {
				if len(args) == 1 {
					h, err := fs.Open(t, args[0])
					if err != nil {
						return err
					}
					defer h.Close()
					kind := "file"
					if h.Isdir() {
						kind = "directory"
					}
					fmt.Printf("%s\t%s\tinode %d\tlength %d\n", args[0], kind, h.Inumber(), h.Length())
					return nil
				}

				fmt.Printf("hit_rate\t%d%%\n", fs.HitRate())
				fmt.Printf("device_writes\t%d\n", fs.DeviceWrites())
				return nil
			})
		},
	}
}
