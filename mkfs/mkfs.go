// Package mkfs builds file system images.
//
// The builder runs alone against the device, so it writes structures in
// place without the log and leaves the log header empty.
package mkfs

import (
	"fmt"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/dir"
	"github.com/nano-go/nicofs/disk"
	"github.com/nano-go/nicofs/inode"
	"github.com/nano-go/nicofs/super"
	"github.com/nano-go/nicofs/util"
)

const DefaultInodes uint32 = 4096 * 4

type Options struct {
	Size    uint32 // blocks; zero means the whole device
	Ninodes uint32 // zero means DefaultInodes
	Force   bool   // overwrite an existing file system
}

type Builder struct {
	d  disk.Disk
	sb *super.Superblock
}

// HasFS reports whether d already holds a file system superblock.
func HasFS(d disk.Disk) (bool, error) {
	b, err := d.Read(uint64(common.SUPERBLK))
	if err != nil {
		return false, fmt.Errorf("reading superblock: %w", err)
	}
	return super.Decode(b).Magic == common.FSMAGIC, nil
}

// Format writes an empty file system holding only the root directory.
func Format(d disk.Disk, opts Options) (*Builder, error) {
	devsize, err := d.Size()
	if err != nil {
		return nil, fmt.Errorf("sizing device: %w", err)
	}
	size := uint64(opts.Size)
	if size == 0 {
		size = devsize
	}
	if size > devsize || size > uint64(^uint32(0)) {
		return nil, fmt.Errorf("`%d` blocks on a `%d`-block device: %w", size, devsize, common.ErrBounds)
	}
	ninodes := opts.Ninodes
	if ninodes == 0 {
		ninodes = DefaultInodes
	}
	if !opts.Force {
		found, err := HasFS(d)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, common.ErrHasFS
		}
	}
	sb, err := super.MkLayout(uint32(size), ninodes)
	if err != nil {
		return nil, err
	}

	b := &Builder{d: d, sb: sb}
	zero := disk.NewBlock()
	for bn := sb.InodeStart; bn < sb.BdataStart; bn++ {
		if err := d.Write(uint64(bn), zero); err != nil {
			return nil, err
		}
	}
	if err := d.Write(uint64(common.SUPERBLK), sb.Encode()); err != nil {
		return nil, err
	}
	root, err := b.create(common.NULLINUM, "/", inode.TypeDir, 0, 0)
	if err != nil {
		return nil, err
	}
	if root != common.ROOTINUM {
		return nil, fmt.Errorf("root directory got inode `%d`", root)
	}
	util.DPrintf(1, "mkfs: %v\n", sb)
	return b, nil
}

func (b *Builder) Superblock() *super.Superblock {
	return b.sb
}

func (b *Builder) rblock(bn common.Bnum) (disk.Block, error) {
	return b.d.Read(uint64(bn))
}

func (b *Builder) wblock(bn common.Bnum, blk disk.Block) error {
	return b.d.Write(uint64(bn), blk)
}

func (b *Builder) balloc() (common.Bnum, error) {
	nblk := util.RoundUp(b.sb.Bits(), common.NBITBLOCK)
	for i := uint64(0); i < nblk; i++ {
		bmbn := common.Bnum(b.sb.BmapStart) + common.Bnum(i)
		blk, err := b.rblock(bmbn)
		if err != nil {
			return 0, err
		}
		bits := util.Min(b.sb.Bits()-i*common.NBITBLOCK, common.NBITBLOCK)
		for bit := uint64(0); bit < bits; bit++ {
			m := byte(1 << (bit % 8))
			if blk[bit/8]&m == 0 {
				blk[bit/8] |= m
				if err := b.wblock(bmbn, blk); err != nil {
					return 0, err
				}
				bn := common.Bnum(uint64(b.sb.BdataStart) + i*common.NBITBLOCK + bit)
				return bn, b.wblock(bn, disk.NewBlock())
			}
		}
	}
	return 0, fmt.Errorf("mkfs: out of data blocks: %w", common.ErrTooBig)
}

func (b *Builder) iread(inum common.Inum) (inode.Dinode, error) {
	ad := b.sb.InodeAddr(inum)
	blk, err := b.rblock(ad.Blkno)
	if err != nil {
		return inode.Dinode{}, err
	}
	return inode.DecodeDinode(blk[ad.Byte():]), nil
}

func (b *Builder) iwrite(inum common.Inum, d *inode.Dinode) error {
	ad := b.sb.InodeAddr(inum)
	blk, err := b.rblock(ad.Blkno)
	if err != nil {
		return err
	}
	copy(blk[ad.Byte():ad.Byte()+common.INODESZ], d.Encode())
	return b.wblock(ad.Blkno, blk)
}

func (b *Builder) ialloc(typ inode.Type) (common.Inum, error) {
	for inum := common.Inum(1); uint32(inum) < b.sb.Ninodes; inum++ {
		d, err := b.iread(inum)
		if err != nil {
			return 0, err
		}
		if d.Type == inode.TypeNone {
			d = inode.Dinode{Type: typ}
			return inum, b.iwrite(inum, &d)
		}
	}
	return 0, fmt.Errorf("mkfs: out of inodes: %w", common.ErrTooBig)
}

func (b *Builder) bmap(d *inode.Dinode, bn uint64) (common.Bnum, error) {
	var err error
	if bn < common.NDIRECT {
		if d.Addrs[bn] == common.NULLBNUM {
			d.Addrs[bn], err = b.balloc()
		}
		return d.Addrs[bn], err
	}
	bn -= common.NDIRECT
	if bn >= common.NINDIRECT {
		return 0, fmt.Errorf("mkfs: block `%d`: %w", bn+common.NDIRECT, common.ErrTooBig)
	}
	if d.Addrs[common.NDIRECT] == common.NULLBNUM {
		if d.Addrs[common.NDIRECT], err = b.balloc(); err != nil {
			return 0, err
		}
	}
	ind := d.Addrs[common.NDIRECT]
	blk, err := b.rblock(ind)
	if err != nil {
		return 0, err
	}
	addr := inode.GetAddr(blk, bn)
	if addr == common.NULLBNUM {
		if addr, err = b.balloc(); err != nil {
			return 0, err
		}
		inode.PutAddr(blk, bn, addr)
		if err := b.wblock(ind, blk); err != nil {
			return 0, err
		}
	}
	return addr, nil
}

// Append adds data to the end of inode inum.
func (b *Builder) Append(inum common.Inum, data []byte) error {
	d, err := b.iread(inum)
	if err != nil {
		return err
	}
	off := uint64(d.Size)
	if off+uint64(len(data)) > common.MAXFILE {
		return fmt.Errorf("appending `%d` bytes to inode `%d`: %w", len(data), inum, common.ErrTooBig)
	}
	for tot := uint64(0); tot < uint64(len(data)); {
		addr, err := b.bmap(&d, off/common.BlockSize)
		if err != nil {
			return err
		}
		blk, err := b.rblock(addr)
		if err != nil {
			return err
		}
		m := util.Min(uint64(len(data))-tot, common.BlockSize-off%common.BlockSize)
		copy(blk[off%common.BlockSize:], data[tot:tot+m])
		if err := b.wblock(addr, blk); err != nil {
			return err
		}
		tot += m
		off += m
	}
	d.Size = uint32(off)
	return b.iwrite(inum, &d)
}

func (b *Builder) lookup(dirInum common.Inum, name string) (common.Inum, bool, error) {
	d, err := b.iread(dirInum)
	if err != nil {
		return 0, false, err
	}
	for off := uint64(0); off < uint64(d.Size); off += common.DIRENTSZ {
		addr, err := b.bmap(&d, off/common.BlockSize)
		if err != nil {
			return 0, false, err
		}
		blk, err := b.rblock(addr)
		if err != nil {
			return 0, false, err
		}
		de := dir.DecodeDirent(blk[off%common.BlockSize:])
		if de.Inum != common.NULLINUM && de.Name == name {
			return de.Inum, true, nil
		}
	}
	return 0, false, nil
}

func (b *Builder) link(dirInum common.Inum, name string, child common.Inum) error {
	if name == "" || uint64(len(name)) > common.DIRSIZ {
		return fmt.Errorf("linking `%s`: %w", name, common.ErrInvalidName)
	}
	return b.Append(dirInum, dir.Dirent{Inum: child, Name: name}.Encode())
}

func (b *Builder) dirMake(parent common.Inum, child common.Inum) error {
	if err := b.link(child, ".", child); err != nil {
		return err
	}
	if err := b.link(child, "..", parent); err != nil {
		return err
	}
	d, err := b.iread(parent)
	if err != nil {
		return err
	}
	d.Nlink++
	return b.iwrite(parent, &d)
}

// create makes a new inode and links it into parent; parent NULLINUM makes
// the root directory.
func (b *Builder) create(parent common.Inum, name string, typ inode.Type,
	major int32, minor int32) (common.Inum, error) {
	if parent != common.NULLINUM {
		if _, found, err := b.lookup(parent, name); err != nil {
			return 0, err
		} else if found {
			return 0, fmt.Errorf("creating `%s`: %w", name, common.ErrExists)
		}
	}
	inum, err := b.ialloc(typ)
	if err != nil {
		return 0, err
	}
	d := inode.Dinode{Type: typ, Nlink: 1, Major: major, Minor: minor}
	if err := b.iwrite(inum, &d); err != nil {
		return 0, err
	}
	if parent != common.NULLINUM {
		if err := b.link(parent, name, inum); err != nil {
			return 0, err
		}
	}
	if typ == inode.TypeDir {
		if parent == common.NULLINUM {
			parent = inum
		}
		if err := b.dirMake(parent, inum); err != nil {
			return 0, err
		}
	}
	return inum, nil
}

func (b *Builder) Mkdir(parent common.Inum, name string) (common.Inum, error) {
	return b.create(parent, name, inode.TypeDir, 0, 0)
}

func (b *Builder) Create(parent common.Inum, name string) (common.Inum, error) {
	return b.create(parent, name, inode.TypeFile, 0, 0)
}

func (b *Builder) Mkdev(parent common.Inum, name string, major int32, minor int32) (common.Inum, error) {
	return b.create(parent, name, inode.TypeDevice, major, minor)
}

// AddFile creates name in parent holding data.
func (b *Builder) AddFile(parent common.Inum, name string, data []byte) (common.Inum, error) {
	inum, err := b.Create(parent, name)
	if err != nil {
		return 0, err
	}
	return inum, b.Append(inum, data)
}

// InitTree creates the standard top-level directories and the console
// device node. It returns the inode of /bin.
func (b *Builder) InitTree() (common.Inum, error) {
	var bin common.Inum
	for _, name := range []string{"bin", "dev", "etc", "home"} {
		inum, err := b.Mkdir(common.ROOTINUM, name)
		if err != nil {
			return 0, err
		}
		if name == "bin" {
			bin = inum
		}
		if name == "dev" {
			if _, err := b.Mkdev(inum, "console", common.CONSOLE, 0); err != nil {
				return 0, err
			}
		}
	}
	return bin, nil
}

// Lookup resolves name in directory dirInum.
func (b *Builder) Lookup(dirInum common.Inum, name string) (common.Inum, error) {
	inum, found, err := b.lookup(dirInum, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("looking up `%s`: %w", name, common.ErrNotFound)
	}
	return inum, nil
}
