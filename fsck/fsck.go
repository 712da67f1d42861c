// Package fsck checks a mounted file system for structural damage: block
// map conflicts, bitmap leaks, bad directory entries and wrong link counts.
// It only reads.
package fsck

import (
	"fmt"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/dir"
	"github.com/nano-go/nicofs/fs"
	"github.com/nano-go/nicofs/inode"
	"github.com/nano-go/nicofs/util"
)

type Report struct {
	Files    uint64
	Dirs     uint64
	Devices  uint64
	Blocks   uint64 // data blocks in use by inodes
	Problems []string
}

func (r *Report) Clean() bool {
	return len(r.Problems) == 0
}

func (r *Report) problem(format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	util.DPrintf(1, "fsck: %s\n", msg)
	r.Problems = append(r.Problems, msg)
}

type checker struct {
	fsys    *fs.FS
	r       *Report
	dinodes map[common.Inum]inode.Dinode
	owner   map[common.Bnum]common.Inum
	refs    map[common.Inum]uint32
}

// Check scans every inode and the bitmap. Operations that start while it
// runs may show up as problems.
func Check(fsys *fs.FS) *Report {
	fsys.Log.Quiesce()
	c := &checker{
		fsys:    fsys,
		r:       &Report{},
		dinodes: make(map[common.Inum]inode.Dinode),
		owner:   make(map[common.Bnum]common.Inum),
		refs:    make(map[common.Inum]uint32),
	}
	c.readInodes()
	for inum, d := range c.dinodes {
		c.claimBlocks(inum, d)
	}
	for inum, d := range c.dinodes {
		if d.Type == inode.TypeDir {
			c.checkDir(inum, d)
		}
	}
	c.checkLinks()
	c.checkBitmap()
	return c.r
}

func (c *checker) readInodes() {
	sb := c.fsys.Super
	bc := c.fsys.Bc
	for inum := common.Inum(1); uint32(inum) < sb.Ninodes; inum++ {
		ad := sb.InodeAddr(inum)
		b := bc.Read(ad.Blkno)
		d := inode.DecodeDinode(b.Data[ad.Byte():])
		bc.Release(b)
		switch d.Type {
		case inode.TypeNone:
			continue
		case inode.TypeFile:
			c.r.Files++
		case inode.TypeDir:
			c.r.Dirs++
		case inode.TypeDevice:
			c.r.Devices++
		default:
			c.r.problem("inode %d: bad type %d", inum, d.Type)
			continue
		}
		if uint64(d.Size) > common.MAXFILE {
			c.r.problem("inode %d: size %d too large", inum, d.Size)
		}
		c.dinodes[inum] = d
	}
	if d, ok := c.dinodes[common.ROOTINUM]; !ok || d.Type != inode.TypeDir {
		c.r.problem("root inode is not a directory")
	}
}

func (c *checker) claim(inum common.Inum, bn common.Bnum) bool {
	if !c.fsys.Super.IsData(bn) {
		c.r.problem("inode %d: block %d outside the data region", inum, bn)
		return false
	}
	if other, ok := c.owner[bn]; ok {
		c.r.problem("inode %d: block %d also used by inode %d", inum, bn, other)
		return false
	}
	c.owner[bn] = inum
	c.r.Blocks++
	return true
}

func (c *checker) claimBlocks(inum common.Inum, d inode.Dinode) {
	for i := uint64(0); i < common.NDIRECT; i++ {
		if d.Addrs[i] != common.NULLBNUM {
			c.claim(inum, d.Addrs[i])
		}
	}
	ind := d.Addrs[common.NDIRECT]
	if ind == common.NULLBNUM || !c.claim(inum, ind) {
		return
	}
	b := c.fsys.Bc.Read(ind)
	defer c.fsys.Bc.Release(b)
	for j := uint64(0); j < common.NINDIRECT; j++ {
		if a := inode.GetAddr(b.Data, j); a != common.NULLBNUM {
			c.claim(inum, a)
		}
	}
}

// blockOf maps logical block bn of d without allocating.
func (c *checker) blockOf(d inode.Dinode, bn uint64) common.Bnum {
	if bn < common.NDIRECT {
		return d.Addrs[bn]
	}
	ind := d.Addrs[common.NDIRECT]
	if ind == common.NULLBNUM || !c.fsys.Super.IsData(ind) {
		return common.NULLBNUM
	}
	b := c.fsys.Bc.Read(ind)
	defer c.fsys.Bc.Release(b)
	return inode.GetAddr(b.Data, bn-common.NDIRECT)
}

func (c *checker) checkDir(inum common.Inum, d inode.Dinode) {
	if uint64(d.Size)%common.DIRENTSZ != 0 {
		c.r.problem("dir %d: size %d not a multiple of %d", inum, d.Size, common.DIRENTSZ)
	}
	var dot, dotdot bool
	for off := uint64(0); off+common.DIRENTSZ <= uint64(d.Size); off += common.DIRENTSZ {
		bn := c.blockOf(d, off/common.BlockSize)
		if bn == common.NULLBNUM || !c.fsys.Super.IsData(bn) {
			c.r.problem("dir %d: hole at %d", inum, off)
			continue
		}
		b := c.fsys.Bc.Read(bn)
		de := dir.DecodeDirent(b.Data[off%common.BlockSize:])
		c.fsys.Bc.Release(b)
		if de.Inum == common.NULLINUM {
			continue
		}
		if _, ok := c.dinodes[de.Inum]; !ok {
			c.r.problem("dir %d: entry %q names free inode %d", inum, de.Name, de.Inum)
			continue
		}
		switch de.Name {
		case ".":
			dot = true
			if de.Inum != inum {
				c.r.problem("dir %d: . names %d", inum, de.Inum)
			}
			continue
		case "..":
			dotdot = true
		}
		c.refs[de.Inum]++
	}
	if !dot || !dotdot {
		c.r.problem("dir %d: missing . or ..", inum)
	}
}

func (c *checker) checkLinks() {
	for inum, d := range c.dinodes {
		want := c.refs[inum]
		if inum == common.ROOTINUM {
			want++
		}
		if want == 0 {
			c.r.problem("inode %d: unreachable", inum)
			continue
		}
		if d.Nlink != want {
			c.r.problem("inode %d: nlink %d, found %d links", inum, d.Nlink, want)
		}
	}
}

func (c *checker) checkBitmap() {
	sb := c.fsys.Super
	bc := c.fsys.Bc
	for i := uint64(0); i < sb.Bits(); i++ {
		bn := common.Bnum(uint64(sb.BdataStart) + i)
		ad := sb.BitAddr(bn)
		b := bc.Read(ad.Blkno)
		set := b.Data[ad.Byte()]&ad.Mask() != 0
		bc.Release(b)
		_, used := c.owner[bn]
		if set && !used {
			c.r.problem("block %d: allocated but unused", bn)
		}
		if used && !set {
			c.r.problem("block %d: in use but free in bitmap", bn)
		}
	}
}
