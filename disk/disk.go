// Package disk is the block device under the file system: fixed-size
// sectors numbered from zero.
package disk

import "fmt"

// Block holds the contents of one sector.
type Block = []byte

const BlockSize uint64 = 512

// Disk is a sector-addressed device. Every address must be below Size and
// every written Block exactly BlockSize bytes; violations panic.
type Disk interface {
	Read(a uint64) (Block, error)
	ReadTo(a uint64, b Block) error
	Write(a uint64, v Block) error
	Size() (uint64, error)

	// Barrier returns once every completed Write is durable.
	Barrier() error
	Close() error
}

// NewBlock returns a zeroed sector buffer.
func NewBlock() Block {
	return make(Block, BlockSize)
}

func checkAccess(op string, a uint64, n uint64, b Block) {
	if a >= n {
		panic(fmt.Errorf("disk: out-of-bounds %s at %d", op, a))
	}
	if uint64(len(b)) != BlockSize {
		panic(fmt.Errorf("disk: %s of %d-byte buffer", op, len(b)))
	}
}
