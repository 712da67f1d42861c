package alloc

import (
	"fmt"
	"sync"

	"github.com/nano-go/nicofs/bcache"
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/super"
	"github.com/nano-go/nicofs/util"
	"github.com/nano-go/nicofs/wal"
)

// Alloc hands out data blocks using the on-disk bitmap. Bit n of the bitmap
// corresponds to block sb.BdataStart+n.
//
// Callers must be inside a log operation: every bitmap change and the
// zeroing of a new block are logged writes.
type Alloc struct {
	lock *sync.Mutex // serializes bitmap scans
	sb   *super.Superblock
	bc   *bcache.Bcache
	log  *wal.Walog
}

func MkAlloc(sb *super.Superblock, bc *bcache.Bcache, log *wal.Walog) *Alloc {
	return &Alloc{
		lock: new(sync.Mutex),
		sb:   sb,
		bc:   bc,
		log:  log,
	}
}

// bitsIn is the number of valid bits in the bitmap block at index i.
func (a *Alloc) bitsIn(i uint64) uint64 {
	return util.Min(a.sb.Bits()-i*common.NBITBLOCK, common.NBITBLOCK)
}

// findFreeBit sets and logs the first clear bit, returning its number.
func (a *Alloc) findFreeBit() (uint64, bool) {
	nblk := util.RoundUp(a.sb.Bits(), common.NBITBLOCK)
	for i := uint64(0); i < nblk; i++ {
		b := a.bc.Read(common.Bnum(a.sb.BmapStart) + common.Bnum(i))
		bits := a.bitsIn(i)
		for bit := uint64(0); bit < bits; bit++ {
			m := byte(1 << (bit % 8))
			if b.Data[bit/8]&m == 0 {
				b.Data[bit/8] |= m
				a.log.Write(b)
				a.bc.Release(b)
				num := i*common.NBITBLOCK + bit
				util.DPrintf(10, "findFreeBit: blk %d bit %d num %d\n", i, bit, num)
				return num, true
			}
		}
		a.bc.Release(b)
	}
	return 0, false
}

// zero overwrites bn with zeros through the log.
func (a *Alloc) zero(bn common.Bnum) {
	b := a.bc.Read(bn)
	for i := range b.Data {
		b.Data[i] = 0
	}
	a.log.Write(b)
	a.bc.Release(b)
}

// AllocBlock returns a zeroed data block. Running out of blocks is fatal.
func (a *Alloc) AllocBlock() common.Bnum {
	a.lock.Lock()
	num, ok := a.findFreeBit()
	a.lock.Unlock()
	if !ok {
		panic("balloc: out of blocks")
	}
	bn := common.Bnum(a.sb.BdataStart) + common.Bnum(num)
	a.zero(bn)
	util.DPrintf(5, "AllocBlock: %d\n", bn)
	return bn
}

// FreeBlock returns bn to the bitmap. Freeing a block that is not allocated
// is fatal.
func (a *Alloc) FreeBlock(bn common.Bnum) {
	if !a.sb.IsData(bn) {
		panic(fmt.Sprintf("bfree: %d is not a data block", bn))
	}
	ad := a.sb.BitAddr(bn)
	a.lock.Lock()
	defer a.lock.Unlock()
	b := a.bc.Read(ad.Blkno)
	if b.Data[ad.Byte()]&ad.Mask() == 0 {
		a.bc.Release(b)
		panic("bfree: freeing free block")
	}
	b.Data[ad.Byte()] &^= ad.Mask()
	a.log.Write(b)
	a.bc.Release(b)
	util.DPrintf(5, "FreeBlock: %d\n", bn)
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree counts the clear bits of the bitmap.
func (a *Alloc) NumFree() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	var used uint64
	nblk := util.RoundUp(a.sb.Bits(), common.NBITBLOCK)
	for i := uint64(0); i < nblk; i++ {
		b := a.bc.Read(common.Bnum(a.sb.BmapStart) + common.Bnum(i))
		for _, x := range b.Data[:a.bitsIn(i)/8] {
			used += popCnt(x)
		}
		a.bc.Release(b)
	}
	return a.sb.Bits() - used
}
