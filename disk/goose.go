package disk

import (
	"fmt"
	"sync"

	gdisk "github.com/tchajed/goose/machine/disk"
)

// sectorsPer is the number of BlockSize blocks stored in one goose block.
const sectorsPer = gdisk.BlockSize / BlockSize

var _ Disk = (*gooseDisk)(nil)

// gooseDisk stores small blocks inside the larger blocks of a goose disk.
// Partial writes are read-modify-write, serialized by mu.
type gooseDisk struct {
	mu *sync.Mutex
	d  gdisk.Disk
}

// FromGoose exposes a goose disk as a Disk of BlockSize blocks.
func FromGoose(d gdisk.Disk) Disk {
	return &gooseDisk{mu: new(sync.Mutex), d: d}
}

func (g *gooseDisk) locate(a uint64) (uint64, uint64) {
	if a >= g.d.Size()*sectorsPer {
		panic(fmt.Errorf("out-of-bounds access at %v", a))
	}
	return a / sectorsPer, (a % sectorsPer) * BlockSize
}

func (g *gooseDisk) ReadTo(a uint64, b Block) error {
	if uint64(len(b)) != BlockSize {
		panic("buffer is not block-sized")
	}
	blk, off := g.locate(a)
	g.mu.Lock()
	big := g.d.Read(blk)
	g.mu.Unlock()
	copy(b, big[off:off+BlockSize])
	return nil
}

func (g *gooseDisk) Read(a uint64) (Block, error) {
	b := NewBlock()
	err := g.ReadTo(a, b)
	return b, err
}

func (g *gooseDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		panic(fmt.Errorf("v is not block-sized (%d bytes)", len(v)))
	}
	blk, off := g.locate(a)
	g.mu.Lock()
	defer g.mu.Unlock()
	big := g.d.Read(blk)
	copy(big[off:off+BlockSize], v)
	g.d.Write(blk, big)
	return nil
}

func (g *gooseDisk) Size() (uint64, error) {
	return g.d.Size() * sectorsPer, nil
}

func (g *gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g *gooseDisk) Close() error {
	g.d.Close()
	return nil
}
