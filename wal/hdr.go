package wal

import (
	"github.com/tchajed/marshal"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/disk"
)

// On-disk log header: the number of registered blocks followed by LOGSIZE
// block-number slots. A zero count means the log holds nothing to install.
func encodeHdr(blocks []common.Bnum) disk.Block {
	if uint64(len(blocks)) > common.LOGSIZE {
		panic("wal: header overflow")
	}
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt32(uint32(len(blocks)))
	for i := uint64(0); i < common.LOGSIZE; i++ {
		var bn common.Bnum
		if i < uint64(len(blocks)) {
			bn = blocks[i]
		}
		enc.PutInt32(uint32(bn))
	}
	return enc.Finish()
}

func decodeHdr(b disk.Block) []common.Bnum {
	dec := marshal.NewDec(b)
	n := uint64(dec.GetInt32())
	if n > common.LOGSIZE {
		panic("wal: corrupt header")
	}
	blocks := make([]common.Bnum, n)
	for i := range blocks {
		blocks[i] = common.Bnum(dec.GetInt32())
	}
	return blocks
}
