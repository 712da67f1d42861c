package inode

import (
	"fmt"

	"github.com/nano-go/nicofs/common"
)

// bmap returns the disk block holding logical block bn of ip, allocating
// it and the indirect block if needed. The bool reports whether ip.Addrs
// changed.
func (ip *Inode) bmap(bn uint64) (common.Bnum, bool) {
	changed := false
	if bn < common.NDIRECT {
		if ip.Addrs[bn] == common.NULLBNUM {
			ip.Addrs[bn] = ip.ic.balloc.AllocBlock()
			changed = true
		}
		return ip.Addrs[bn], changed
	}
	bn -= common.NDIRECT
	if bn >= common.NINDIRECT {
		panic(fmt.Sprintf("bmap: block %d out of range", bn+common.NDIRECT))
	}
	if ip.Addrs[common.NDIRECT] == common.NULLBNUM {
		ip.Addrs[common.NDIRECT] = ip.ic.balloc.AllocBlock()
		changed = true
	}
	b := ip.ic.bc.Read(ip.Addrs[common.NDIRECT])
	addr := GetAddr(b.Data, bn)
	if addr == common.NULLBNUM {
		addr = ip.ic.balloc.AllocBlock()
		PutAddr(b.Data, bn, addr)
		ip.ic.log.Write(b)
	}
	ip.ic.bc.Release(b)
	return addr, changed
}

// lookup is bmap without allocation; holes map to NULLBNUM.
func (ip *Inode) lookup(bn uint64) common.Bnum {
	if bn < common.NDIRECT {
		return ip.Addrs[bn]
	}
	bn -= common.NDIRECT
	if bn >= common.NINDIRECT || ip.Addrs[common.NDIRECT] == common.NULLBNUM {
		return common.NULLBNUM
	}
	b := ip.ic.bc.Read(ip.Addrs[common.NDIRECT])
	addr := GetAddr(b.Data, bn)
	ip.ic.bc.Release(b)
	return addr
}

// Bmap maps logical block bn to a disk block, allocating on demand, and
// persists ip if its block map changed. The caller must hold ip and be
// inside a log operation.
func (ip *Inode) Bmap(bn uint64) common.Bnum {
	ip.assertLocked("bmap")
	addr, changed := ip.bmap(bn)
	if changed {
		ip.Update()
	}
	return addr
}

// truncate frees every data block of ip and the indirect block.
func (ip *Inode) truncate() {
	for i := uint64(0); i < common.NDIRECT; i++ {
		if ip.Addrs[i] != common.NULLBNUM {
			ip.ic.balloc.FreeBlock(ip.Addrs[i])
			ip.Addrs[i] = common.NULLBNUM
		}
	}
	if ind := ip.Addrs[common.NDIRECT]; ind != common.NULLBNUM {
		b := ip.ic.bc.Read(ind)
		for j := uint64(0); j < common.NINDIRECT; j++ {
			if a := GetAddr(b.Data, j); a != common.NULLBNUM {
				ip.ic.balloc.FreeBlock(a)
			}
		}
		ip.ic.bc.Release(b)
		ip.ic.balloc.FreeBlock(ind)
		ip.Addrs[common.NDIRECT] = common.NULLBNUM
	}
	ip.Size = 0
	ip.Update()
}

// Truncate discards ip's contents. The caller must hold ip and be inside a
// log operation.
func (ip *Inode) Truncate() {
	ip.assertLocked("itrunc")
	ip.truncate()
}
