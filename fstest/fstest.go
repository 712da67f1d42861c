// Package fstest builds small in-memory file systems for tests.
package fstest

import (
	"testing"

	"github.com/nano-go/nicofs/disk"
	"github.com/nano-go/nicofs/fs"
	"github.com/nano-go/nicofs/mkfs"
)

const (
	DiskBlocks uint64 = 2048
	Ninodes    uint32 = 200
)

// Format returns a memory disk holding a freshly formatted file system.
func Format(t testing.TB) disk.Disk {
	t.Helper()
	d := disk.NewMemDisk(DiskBlocks)
	if _, err := mkfs.Format(d, mkfs.Options{Ninodes: Ninodes}); err != nil {
		t.Fatalf("mkfs: %v", err)
	}
	return d
}

// Mount mounts d with test-sized caches.
func Mount(t testing.TB, d disk.Disk) *fs.FS {
	t.Helper()
	fsys, err := fs.Mount(d, fs.Options{Dev: 1})
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	return fsys
}

// New formats and mounts a fresh file system.
func New(t testing.TB) *fs.FS {
	t.Helper()
	return Mount(t, Format(t))
}
