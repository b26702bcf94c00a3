// Command mkfs formats a disk image in the kernel's on-disk layout and
// optionally seeds it with a directory tree from the host filesystem,
// grounded on mkfs/mkfs.go's MkDisk-then-addfiles shape (same two
// host-side steps, adapted from that tool's inode-based filesystem onto
// this repo's flat block filesystem).
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"rvos/internal/filedisk"
	"rvos/internal/fs"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: mkfs <output image> <total blocks> [skeleton dir]")
		os.Exit(1)
	}

	image := os.Args[1]
	totalBlocks, err := strconv.ParseUint(os.Args[2], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid block count %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}

	disk, err := filedisk.Create(image, uint32(totalBlocks))
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating image: %v\n", err)
		os.Exit(1)
	}
	defer disk.Close()

	fsys := fs.Mount(disk)

	if len(os.Args) > 3 {
		if err := addfiles(fsys, os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "seeding skeleton dir: %v\n", err)
			os.Exit(1)
		}
	}

	if err := disk.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "syncing image: %v\n", err)
		os.Exit(1)
	}
}

// addfiles walks skeldir on the host and replicates its directories and
// files into fsys, mirroring mkfs.go's addfiles/copydata pair.
func addfiles(fsys *fs.FS, skeldir string) error {
	return filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("accessing %q: %w", path, err)
		}
		rel := strings.TrimPrefix(path, skeldir)
		if rel == "" {
			return nil
		}
		rel = "/" + strings.TrimPrefix(rel, "/")

		if d.IsDir() {
			if err := fsys.Mkdir(rel); err != nil {
				fmt.Fprintf(os.Stderr, "failed to create dir %v: %v\n", rel, err)
			}
			return nil
		}

		data, err := copydata(path)
		if err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
		if err := fsys.Write(rel, data); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create file %v: %v\n", rel, err)
		}
		return nil
	})
}

func copydata(src string) ([]byte, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return data, nil
}
