// Package super reads, validates and lays out the on-disk superblock.
package super

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/nano-go/nicofs/addr"
	"github.com/nano-go/nicofs/bcache"
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/util"
)

// Regions in block order: boot, super, inodes, log, bitmap, data.
type Superblock struct {
	Magic      uint32
	Size       uint32 // total blocks
	Nblocks    uint32 // data blocks
	Ninodes    uint32
	InodeStart uint32
	Nlog       uint32 // header plus data slots
	LogStart   uint32
	BmapStart  uint32
	BmapBytes  uint32
	BdataStart uint32
}

// Number of u32 words in the encoding.
const nfields = 10

// MinDataBlocks is the smallest data region MkLayout accepts.
const MinDataBlocks uint32 = 100

func (sb *Superblock) Encode() []byte {
	enc := marshal.NewEnc(common.BlockSize)
	enc.PutInt32(sb.Magic)
	enc.PutInt32(sb.Size)
	enc.PutInt32(sb.Nblocks)
	enc.PutInt32(sb.Ninodes)
	enc.PutInt32(sb.InodeStart)
	enc.PutInt32(sb.Nlog)
	enc.PutInt32(sb.LogStart)
	enc.PutInt32(sb.BmapStart)
	enc.PutInt32(sb.BmapBytes)
	enc.PutInt32(sb.BdataStart)
	return enc.Finish()
}

func Decode(b []byte) *Superblock {
	if uint64(len(b)) < nfields*4 {
		panic("super: short superblock")
	}
	dec := marshal.NewDec(b)
	sb := &Superblock{}
	sb.Magic = dec.GetInt32()
	sb.Size = dec.GetInt32()
	sb.Nblocks = dec.GetInt32()
	sb.Ninodes = dec.GetInt32()
	sb.InodeStart = dec.GetInt32()
	sb.Nlog = dec.GetInt32()
	sb.LogStart = dec.GetInt32()
	sb.BmapStart = dec.GetInt32()
	sb.BmapBytes = dec.GetInt32()
	sb.BdataStart = dec.GetInt32()
	return sb
}

func (sb *Superblock) InodeBlocks() uint32 {
	return uint32(util.RoundUp(uint64(sb.Ninodes), common.INODEBLK))
}

func (sb *Superblock) BmapBlocks() uint32 {
	return uint32(util.RoundUp(uint64(sb.BmapBytes), common.BlockSize))
}

// Bits is the number of data blocks the bitmap tracks.
func (sb *Superblock) Bits() uint64 {
	return uint64(sb.BmapBytes) * 8
}

// InodeAddr locates on-disk inode inum.
func (sb *Superblock) InodeAddr(inum common.Inum) addr.Addr {
	return addr.MkInodeAddr(common.Bnum(sb.InodeStart), inum)
}

// BitAddr locates the bitmap bit of data block bn.
func (sb *Superblock) BitAddr(bn common.Bnum) addr.Addr {
	return addr.MkBitAddr(common.Bnum(sb.BmapStart), uint64(bn-common.Bnum(sb.BdataStart)))
}

// IsData reports whether bn is a block the bitmap can hand out.
func (sb *Superblock) IsData(bn common.Bnum) bool {
	return uint64(bn) >= uint64(sb.BdataStart) &&
		uint64(bn) < uint64(sb.BdataStart)+sb.Bits()
}

// LogSlot is the block holding log data slot i.
func (sb *Superblock) LogSlot(i uint64) common.Bnum {
	return common.Bnum(uint64(sb.LogStart) + 1 + i)
}

// Validate checks the geometry: regions in order inode, log, bitmap, data,
// without overlap and within the device.
func (sb *Superblock) Validate() error {
	if sb.Magic != common.FSMAGIC {
		return fmt.Errorf("bad magic `%#x`", sb.Magic)
	}
	if uint64(sb.Nlog) != common.NLOG {
		return fmt.Errorf("log has `%d` blocks, want `%d`", sb.Nlog, common.NLOG)
	}
	if sb.Ninodes < 2 {
		return fmt.Errorf("too few inodes: `%d`", sb.Ninodes)
	}
	if common.Bnum(sb.InodeStart) <= common.SUPERBLK {
		return fmt.Errorf("inode region at `%d` overlaps the superblock", sb.InodeStart)
	}
	regions := []struct {
		name       string
		start, len uint64
	}{
		{"inode", uint64(sb.InodeStart), uint64(sb.InodeBlocks())},
		{"log", uint64(sb.LogStart), uint64(sb.Nlog)},
		{"bitmap", uint64(sb.BmapStart), uint64(sb.BmapBlocks())},
		{"data", uint64(sb.BdataStart), uint64(sb.Nblocks)},
	}
	for i := 1; i < len(regions); i++ {
		prev, r := regions[i-1], regions[i]
		if prev.start+prev.len > r.start {
			return fmt.Errorf("%s region at `%d` overlaps %s region", r.name, r.start, prev.name)
		}
	}
	data := regions[len(regions)-1]
	if data.start+data.len > uint64(sb.Size) {
		return fmt.Errorf("data region ends past the device: `%d` > `%d`",
			data.start+data.len, sb.Size)
	}
	if sb.Bits() > uint64(sb.Nblocks) {
		return fmt.Errorf("bitmap tracks `%d` blocks but there are `%d`", sb.Bits(), sb.Nblocks)
	}
	return nil
}

// Load reads and validates the superblock. A device without a file system,
// or with a corrupt superblock, is fatal.
func Load(bc *bcache.Bcache) *Superblock {
	b := bc.Read(common.SUPERBLK)
	sb := Decode(b.Data)
	bc.Release(b)
	if sb.Magic != common.FSMAGIC {
		panic("super: no file system")
	}
	if err := sb.Validate(); err != nil {
		panic("super: " + err.Error())
	}
	if uint64(sb.Size) > bc.Size() {
		panic(fmt.Sprintf("super: file system has %d blocks, device %d", sb.Size, bc.Size()))
	}
	util.DPrintf(1, "super.Load: %v\n", sb)
	return sb
}

// MkLayout computes the geometry of a fresh file system of size blocks
// with ninodes inodes. One unused block separates consecutive regions.
func MkLayout(size uint32, ninodes uint32) (*Superblock, error) {
	sb := &Superblock{
		Magic:      common.FSMAGIC,
		Size:       size,
		Ninodes:    ninodes,
		InodeStart: uint32(common.SUPERBLK) + 1,
		Nlog:       uint32(common.NLOG),
	}
	sb.LogStart = sb.InodeStart + sb.InodeBlocks() + 1
	sb.BmapStart = sb.LogStart + sb.Nlog + 1

	// everything past the bitmap, minus its trailing gap, holds data
	rest := int64(size) - int64(sb.BmapStart)
	var bmapBlocks int64 = 1
	for {
		data := rest - bmapBlocks - 1
		if data < int64(MinDataBlocks) {
			return nil, fmt.Errorf("`%d` blocks with `%d` inodes leaves `%d` data blocks: %w",
				size, ninodes, data, common.ErrBounds)
		}
		need := int64(util.RoundUp(uint64(data)/8, common.BlockSize))
		if need <= bmapBlocks {
			sb.Nblocks = uint32(data)
			sb.BmapBytes = uint32(data / 8)
			sb.BdataStart = sb.BmapStart + uint32(bmapBlocks) + 1
			break
		}
		bmapBlocks = need
	}
	return sb, nil
}

func (sb *Superblock) String() string {
	return fmt.Sprintf("size %d nblocks %d ninodes %d inodes@%d log@%d/%d bmap@%d/%dB data@%d",
		sb.Size, sb.Nblocks, sb.Ninodes, sb.InodeStart, sb.LogStart, sb.Nlog,
		sb.BmapStart, sb.BmapBytes, sb.BdataStart)
}
