// Package bcache caches disk blocks in memory.
//
// Each cached block is a Buf. Read returns a Buf locked for the caller's
// exclusive use; Release gives it back. Unreferenced buffers are recycled
// in least-recently-used order.
package bcache

import (
	"container/list"
	"sync"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/disk"
	"github.com/nano-go/nicofs/lockmap"
	"github.com/nano-go/nicofs/util"
)

type Buf struct {
	Blkno common.Bnum
	Data  disk.Block

	valid  bool   // Data holds the block's contents; protected by the block lock
	refcnt uint64 // protected by Bcache.mu
	elem   *list.Element
}

type Bcache struct {
	mu    *sync.Mutex // protects bufs, lru and every refcnt
	d     disk.Disk
	locks *lockmap.LockMap // one lock per block number
	bufs  map[common.Bnum]*Buf
	lru   *list.List // front is most recently released
}

func MkBcache(d disk.Disk, nbuf uint64) *Bcache {
	bc := &Bcache{
		mu:    new(sync.Mutex),
		d:     d,
		locks: lockmap.MkLockMap(),
		bufs:  make(map[common.Bnum]*Buf),
		lru:   list.New(),
	}
	for i := uint64(0); i < nbuf; i++ {
		b := &Buf{Blkno: common.NULLBNUM, Data: disk.NewBlock()}
		b.elem = bc.lru.PushBack(b)
	}
	util.DPrintf(1, "MkBcache: %d buffers\n", nbuf)
	return bc
}

// get returns a referenced buffer for blkno, recycling the least recently
// used idle buffer if blkno is not cached. Assumes bc.mu is held.
func (bc *Bcache) get(blkno common.Bnum) *Buf {
	if b, ok := bc.bufs[blkno]; ok {
		b.refcnt++
		return b
	}
	for e := bc.lru.Back(); e != nil; e = e.Prev() {
		b := e.Value.(*Buf)
		if b.refcnt == 0 {
			if bc.bufs[b.Blkno] == b {
				delete(bc.bufs, b.Blkno)
			}
			b.Blkno = blkno
			b.valid = false
			b.refcnt = 1
			bc.bufs[blkno] = b
			return b
		}
	}
	panic("bcache: no buffers")
}

// Read returns a locked buffer holding the contents of block blkno.
func (bc *Bcache) Read(blkno common.Bnum) *Buf {
	bc.mu.Lock()
	b := bc.get(blkno)
	bc.mu.Unlock()

	bc.locks.Acquire(uint64(blkno))
	if !b.valid {
		if err := bc.d.ReadTo(uint64(blkno), b.Data); err != nil {
			panic("bcache: read: " + err.Error())
		}
		b.valid = true
	}
	return b
}

// Write writes b's contents to the device. The caller must hold b.
func (bc *Bcache) Write(b *Buf) {
	if !bc.locks.Held(uint64(b.Blkno)) {
		panic("bcache: write of unlocked buffer")
	}
	if err := bc.d.Write(uint64(b.Blkno), b.Data); err != nil {
		panic("bcache: write: " + err.Error())
	}
}

// Release unlocks b and drops the caller's reference.
func (bc *Bcache) Release(b *Buf) {
	bc.locks.Release(uint64(b.Blkno))
	bc.Unpin(b)
}

// Pin takes an extra reference so b stays cached after Release.
func (bc *Bcache) Pin(b *Buf) {
	bc.mu.Lock()
	b.refcnt++
	bc.mu.Unlock()
}

func (bc *Bcache) Unpin(b *Buf) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if b.refcnt == 0 {
		panic("bcache: unpin of idle buffer")
	}
	b.refcnt--
	if b.refcnt == 0 {
		bc.lru.MoveToFront(b.elem)
	}
}

// Barrier makes every completed Write durable.
func (bc *Bcache) Barrier() {
	if err := bc.d.Barrier(); err != nil {
		panic("bcache: barrier: " + err.Error())
	}
}

func (bc *Bcache) Disk() disk.Disk {
	return bc.d
}

// Size is the number of blocks on the underlying device.
func (bc *Bcache) Size() uint64 {
	sz, err := bc.d.Size()
	if err != nil {
		panic("bcache: size: " + err.Error())
	}
	return sz
}
