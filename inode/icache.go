package inode

import (
	"fmt"
	"sync"

	"github.com/nano-go/nicofs/alloc"
	"github.com/nano-go/nicofs/bcache"
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/lockmap"
	"github.com/nano-go/nicofs/super"
	"github.com/nano-go/nicofs/util"
	"github.com/nano-go/nicofs/wal"
)

// Icache is a fixed table of in-memory inodes. A slot with ref zero is free
// for reuse; otherwise it is the only handle for its inode number.
type Icache struct {
	mu     *sync.Mutex // protects slots, every Inode.ref and devsw
	dev    uint32
	slots  []*Inode
	sb     *super.Superblock
	bc     *bcache.Bcache
	log    *wal.Walog
	balloc *alloc.Alloc
	devsw  [common.NDEV + 1]Device
}

func MkIcache(dev uint32, sb *super.Superblock, bc *bcache.Bcache, log *wal.Walog,
	balloc *alloc.Alloc, nslots uint64) *Icache {
	ic := &Icache{
		mu:     new(sync.Mutex),
		dev:    dev,
		sb:     sb,
		bc:     bc,
		log:    log,
		balloc: balloc,
	}
	for i := uint64(0); i < nslots; i++ {
		ic.slots = append(ic.slots, &Inode{
			Dev:  dev,
			ic:   ic,
			lock: lockmap.MkSleepLock(),
		})
	}
	return ic
}

func (ic *Icache) Log() *wal.Walog {
	return ic.log
}

// Get returns a referenced handle for inum without reading the disk.
func (ic *Icache) Get(inum common.Inum) *Inode {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	var empty *Inode
	for _, ip := range ic.slots {
		if ip.ref > 0 && ip.Inum == inum {
			ip.ref++
			return ip
		}
		if empty == nil && ip.ref == 0 {
			empty = ip
		}
	}
	if empty == nil {
		panic("iget: no inodes")
	}
	empty.Inum = inum
	empty.ref = 1
	empty.valid = false
	return empty
}

// Alloc claims the first free on-disk inode, giving it type typ, and
// returns an unlocked handle. Must be called inside a log operation.
// Running out of inodes is fatal.
func (ic *Icache) Alloc(typ Type) *Inode {
	for inum := common.Inum(1); uint32(inum) < ic.sb.Ninodes; inum++ {
		ad := ic.sb.InodeAddr(inum)
		b := ic.bc.Read(ad.Blkno)
		off := ad.Byte()
		d := DecodeDinode(b.Data[off:])
		if d.Type == TypeNone {
			d = Dinode{Type: typ}
			copy(b.Data[off:off+common.INODESZ], d.Encode())
			ic.log.Write(b)
			ic.bc.Release(b)
			util.DPrintf(5, "ialloc: %d type %v\n", inum, typ)
			return ic.Get(inum)
		}
		ic.bc.Release(b)
	}
	panic("ialloc: no inodes")
}

// NumFree counts unallocated on-disk inodes.
func (ic *Icache) NumFree() uint64 {
	var n uint64
	for inum := common.Inum(1); uint32(inum) < ic.sb.Ninodes; inum++ {
		ad := ic.sb.InodeAddr(inum)
		b := ic.bc.Read(ad.Blkno)
		if DecodeDinode(b.Data[ad.Byte():]).Type == TypeNone {
			n++
		}
		ic.bc.Release(b)
	}
	return n
}

// NumCached counts referenced slots.
func (ic *Icache) NumCached() uint64 {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	var n uint64
	for _, ip := range ic.slots {
		if ip.ref > 0 {
			n++
		}
	}
	return n
}

// Register installs the handlers for device inodes with the given major
// number.
func (ic *Icache) Register(major int32, d Device) {
	if major < 0 || int(major) >= len(ic.devsw) {
		panic(fmt.Sprintf("register: bad major %d", major))
	}
	ic.mu.Lock()
	ic.devsw[major] = d
	ic.mu.Unlock()
}

func (ic *Icache) device(major int32) (Device, error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if major < 0 || int(major) >= len(ic.devsw) || ic.devsw[major] == nil {
		return nil, fmt.Errorf("major `%d`: %w", major, common.ErrNoDevice)
	}
	return ic.devsw[major], nil
}
