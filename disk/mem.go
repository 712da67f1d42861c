package disk

import "sync"

var _ Disk = (*memDisk)(nil)

// memDisk keeps every sector in one contiguous slice.
type memDisk struct {
	mu   *sync.RWMutex
	data []byte
	n    uint64
}

// NewMemDisk returns a zeroed RAM disk of numBlocks sectors.
func NewMemDisk(numBlocks uint64) Disk {
	return &memDisk{
		mu:   new(sync.RWMutex),
		data: make([]byte, numBlocks*BlockSize),
		n:    numBlocks,
	}
}

func (d *memDisk) sector(a uint64) []byte {
	return d.data[a*BlockSize : (a+1)*BlockSize]
}

func (d *memDisk) ReadTo(a uint64, b Block) error {
	checkAccess("read", a, d.n, b)
	d.mu.RLock()
	copy(b, d.sector(a))
	d.mu.RUnlock()
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	b := NewBlock()
	return b, d.ReadTo(a, b)
}

func (d *memDisk) Write(a uint64, v Block) error {
	checkAccess("write", a, d.n, v)
	d.mu.Lock()
	copy(d.sector(a), v)
	d.mu.Unlock()
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	return d.n, nil
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
