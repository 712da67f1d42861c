// Package dir implements directories as arrays of Dirents stored in a
// directory inode's data. Every function expects the caller to hold the
// directory's lock; functions that modify it must run inside a log
// operation.
package dir

import (
	"fmt"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/inode"
)

func mustBeDir(dp *inode.Inode, who string) {
	if dp.Type != inode.TypeDir {
		panic(who + ": not a directory")
	}
}

// readEntry reads the entry at off, which must lie within the directory.
func readEntry(dp *inode.Inode, off uint32) Dirent {
	buf := make([]byte, common.DIRENTSZ)
	n, err := dp.Read(buf, off)
	if err != nil || uint64(n) != common.DIRENTSZ {
		panic(fmt.Sprintf("dir: short read at %d", off))
	}
	return DecodeDirent(buf)
}

func writeEntry(dp *inode.Inode, off uint32, de Dirent) error {
	n, err := dp.Write(de.Encode(), off)
	if err != nil {
		return err
	}
	if uint64(n) != common.DIRENTSZ {
		panic("dirlink: short write")
	}
	return nil
}

// find returns the offset of the entry named name.
func find(dp *inode.Inode, name string) (uint32, common.Inum, bool) {
	for off := uint32(0); off < dp.Size; off += uint32(common.DIRENTSZ) {
		de := readEntry(dp, off)
		if de.Inum != common.NULLINUM && de.Name == name {
			return off, de.Inum, true
		}
	}
	return 0, common.NULLINUM, false
}

// Lookup returns a referenced, unlocked inode for name in dp along with
// the offset of its entry.
func Lookup(dp *inode.Inode, name string) (*inode.Inode, uint32, error) {
	mustBeDir(dp, "dirlookup")
	off, inum, ok := find(dp, name)
	if !ok {
		return nil, 0, fmt.Errorf("looking up `%s`: %w", name, common.ErrNotFound)
	}
	return dp.Icache().Get(inum), off, nil
}

// Link adds de to dp, reusing the first empty slot or appending.
func Link(dp *inode.Inode, de Dirent) error {
	mustBeDir(dp, "dirlink")
	if de.Name == "" || uint64(len(de.Name)) > common.DIRSIZ {
		return fmt.Errorf("linking `%s`: %w", de.Name, common.ErrInvalidName)
	}
	if _, _, ok := find(dp, de.Name); ok {
		return fmt.Errorf("linking `%s`: %w", de.Name, common.ErrExists)
	}
	off := dp.Size
	for o := uint32(0); o < dp.Size; o += uint32(common.DIRENTSZ) {
		if readEntry(dp, o).Inum == common.NULLINUM {
			off = o
			break
		}
	}
	if err := writeEntry(dp, off, de); err != nil {
		return fmt.Errorf("linking `%s`: %w", de.Name, err)
	}
	return nil
}

// Unlink empties the entry at off, as returned by Lookup.
func Unlink(dp *inode.Inode, off uint32) error {
	mustBeDir(dp, "dirunlink")
	if uint64(off)%common.DIRENTSZ != 0 || off >= dp.Size {
		return fmt.Errorf("unlinking entry at `%d`: %w", off, common.ErrBounds)
	}
	return writeEntry(dp, off, Dirent{})
}

// IsEmpty reports whether dp has no entries besides "." and "..".
func IsEmpty(dp *inode.Inode) bool {
	mustBeDir(dp, "dirisempty")
	for off := uint32(2 * common.DIRENTSZ); off < dp.Size; off += uint32(common.DIRENTSZ) {
		if readEntry(dp, off).Inum != common.NULLINUM {
			return false
		}
	}
	return true
}

// Make fills the new directory dp with "." and "..", and counts the ".."
// link in parent. Both must be locked; for the root, parent is dp itself.
func Make(parent *inode.Inode, dp *inode.Inode) error {
	if err := Link(dp, Dirent{Inum: dp.Inum, Name: "."}); err != nil {
		return err
	}
	if err := Link(dp, Dirent{Inum: parent.Inum, Name: ".."}); err != nil {
		return err
	}
	parent.Nlink++
	parent.Update()
	return nil
}

// ReadDir returns the occupied entries of dp in slot order.
func ReadDir(dp *inode.Inode) []Dirent {
	mustBeDir(dp, "readdir")
	var des []Dirent
	for off := uint32(0); off < dp.Size; off += uint32(common.DIRENTSZ) {
		if de := readEntry(dp, off); de.Inum != common.NULLINUM {
			des = append(des, de)
		}
	}
	return des
}
