package inode

import (
	"github.com/tchajed/marshal"

	"github.com/nano-go/nicofs/common"
)

type Type uint32

const (
	TypeNone   Type = 0
	TypeFile   Type = 1
	TypeDir    Type = 2
	TypeDevice Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeDevice:
		return "device"
	}
	return "unknown"
}

// Dinode is the on-disk inode. Addrs[common.NDIRECT] is the indirect block.
type Dinode struct {
	Type  Type
	Nlink uint32
	Size  uint32
	Major int32
	Minor int32
	Addrs [common.NDIRECT + 1]common.Bnum
}

func (d *Dinode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(uint32(d.Type))
	enc.PutInt32(d.Nlink)
	enc.PutInt32(d.Size)
	enc.PutInt32(uint32(d.Major))
	enc.PutInt32(uint32(d.Minor))
	for _, a := range d.Addrs {
		enc.PutInt32(uint32(a))
	}
	return enc.Finish()
}

func DecodeDinode(b []byte) Dinode {
	dec := marshal.NewDec(b[:common.INODESZ])
	var d Dinode
	d.Type = Type(dec.GetInt32())
	d.Nlink = dec.GetInt32()
	d.Size = dec.GetInt32()
	d.Major = int32(dec.GetInt32())
	d.Minor = int32(dec.GetInt32())
	for i := range d.Addrs {
		d.Addrs[i] = common.Bnum(dec.GetInt32())
	}
	return d
}

// GetAddr reads entry i of an indirect block.
func GetAddr(blk []byte, i uint64) common.Bnum {
	dec := marshal.NewDec(blk[i*4 : i*4+4])
	return common.Bnum(dec.GetInt32())
}

// PutAddr sets entry i of an indirect block.
func PutAddr(blk []byte, i uint64, bn common.Bnum) {
	enc := marshal.NewEnc(4)
	enc.PutInt32(uint32(bn))
	copy(blk[i*4:], enc.Finish())
}
