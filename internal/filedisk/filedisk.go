// Package filedisk backs the fs.BlockDevice interface with a plain
// host file, grounded on the teacher's ufs/driver.go ahci_disk_t: seek
// to block*SectorSize, then Read/Write exactly SectorSize bytes, under
// a mutex so seek+transfer stays atomic. Used by cmd/mkfs and by
// filesystem tests, which need a real persistent device without
// VirtIO/MMIO in the loop.
package filedisk

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// SectorSize matches the VirtIO block driver's fixed sector size.
const SectorSize = 512

// Disk is a host-file-backed block device.
type Disk struct {
	mu    sync.Mutex
	f     *os.File
	total uint32
}

// Open opens an existing disk image for read/write, taking an exclusive
// advisory lock so two kernel instances cannot share a mutable image.
func Open(path string) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("filedisk: lock %s: %w", path, err)
	}
	return newDisk(f)
}

// Create creates a new disk image of the given block count, zero-filled.
func Create(path string, totalBlocks uint32) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(totalBlocks) * SectorSize); err != nil {
		f.Close()
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("filedisk: lock %s: %w", path, err)
	}
	return &Disk{f: f, total: totalBlocks}, nil
}

func newDisk(f *os.File) (*Disk, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Disk{f: f, total: uint32(info.Size() / SectorSize)}, nil
}

// TotalBlocks reports the device's sector count.
func (d *Disk) TotalBlocks() uint32 { return d.total }

// ReadBlock reads sector index into buf (>= SectorSize).
func (d *Disk) ReadBlock(index uint32, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.Seek(int64(index)*SectorSize, 0); err != nil {
		panic(err)
	}
	n, err := d.f.Read(buf[:SectorSize])
	if n != SectorSize || err != nil {
		panic(fmt.Sprintf("filedisk: short read at block %d: n=%d err=%v", index, n, err))
	}
}

// WriteBlock writes sector index from buf (>= SectorSize).
func (d *Disk) WriteBlock(index uint32, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.Seek(int64(index)*SectorSize, 0); err != nil {
		panic(err)
	}
	n, err := d.f.Write(buf[:SectorSize])
	if n != SectorSize || err != nil {
		panic(fmt.Sprintf("filedisk: short write at block %d: n=%d err=%v", index, n, err))
	}
}

// Sync flushes pending writes to stable storage.
func (d *Disk) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return unix.Fdatasync(int(d.f.Fd()))
}

// Close releases the advisory lock and closes the backing file.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	return d.f.Close()
}
