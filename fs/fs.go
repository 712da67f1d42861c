// Package fs ties the layers of the file system together into a mounted
// instance and offers the operations the system-call layer needs.
package fs

import (
	"fmt"
	"io"

	"github.com/nano-go/nicofs/alloc"
	"github.com/nano-go/nicofs/bcache"
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/disk"
	"github.com/nano-go/nicofs/inode"
	"github.com/nano-go/nicofs/super"
	"github.com/nano-go/nicofs/util"
	"github.com/nano-go/nicofs/wal"
)

const (
	DefaultCacheBlocks uint64 = 64
	DefaultInodeSlots  uint64 = 50

	// The log pins up to LOGSIZE buffers; an operation needs room beside them.
	MinCacheBlocks = common.LOGSIZE + common.MAXOPBLOCKS
)

type Options struct {
	Dev         uint32
	CacheBlocks uint64
	InodeSlots  uint64

	// Console, if set, backs device inodes with major common.CONSOLE.
	ConsoleIn  io.Reader
	ConsoleOut io.Writer
}

// FS is a mounted file system.
type FS struct {
	Dev    uint32
	Disk   disk.Disk
	Bc     *bcache.Bcache
	Super  *super.Superblock
	Log    *wal.Walog
	Balloc *alloc.Alloc
	Icache *inode.Icache
}

// Mount opens the file system on d, completing any transaction a crash
// interrupted. A device without a valid superblock is fatal.
func Mount(d disk.Disk, opts Options) (*FS, error) {
	if opts.CacheBlocks == 0 {
		opts.CacheBlocks = DefaultCacheBlocks
	}
	if opts.InodeSlots == 0 {
		opts.InodeSlots = DefaultInodeSlots
	}
	if opts.CacheBlocks < MinCacheBlocks {
		return nil, fmt.Errorf("cache of `%d` blocks, need `%d`: %w",
			opts.CacheBlocks, MinCacheBlocks, common.ErrBounds)
	}
	bc := bcache.MkBcache(d, opts.CacheBlocks)
	sb := super.Load(bc)
	log := wal.MkLog(bc, common.Bnum(sb.LogStart))
	balloc := alloc.MkAlloc(sb, bc, log)
	ic := inode.MkIcache(opts.Dev, sb, bc, log, balloc, opts.InodeSlots)
	if opts.ConsoleIn != nil || opts.ConsoleOut != nil {
		ic.Register(common.CONSOLE, MkConsole(opts.ConsoleIn, opts.ConsoleOut))
	}
	util.DPrintf(1, "Mount: dev %d %v\n", opts.Dev, sb)
	return &FS{
		Dev:    opts.Dev,
		Disk:   d,
		Bc:     bc,
		Super:  sb,
		Log:    log,
		Balloc: balloc,
		Icache: ic,
	}, nil
}

// Unmount waits for running operations and flushes the device. It fails
// while inodes are still referenced.
func (fsys *FS) Unmount() error {
	fsys.Log.Quiesce()
	if n := fsys.Icache.NumCached(); n > 0 {
		return fmt.Errorf("`%d` inodes in use: %w", n, common.ErrBusy)
	}
	fsys.Bc.Barrier()
	util.DPrintf(1, "Unmount: dev %d\n", fsys.Dev)
	return nil
}

// Op runs f inside one log operation.
func (fsys *FS) Op(f func() error) error {
	fsys.Log.BeginOp()
	defer fsys.Log.EndOp()
	return f()
}

// NumFreeBlocks counts unallocated data blocks.
func (fsys *FS) NumFreeBlocks() uint64 {
	return fsys.Balloc.NumFree()
}

// NumFreeInodes counts unallocated on-disk inodes.
func (fsys *FS) NumFreeInodes() uint64 {
	return fsys.Icache.NumFree()
}
