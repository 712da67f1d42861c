package disk

import "sync"

// CrashDisk wraps a Disk and, once armed, silently drops every write after
// a budget of writes has been used up. It models power loss at an arbitrary
// point for recovery tests.
type CrashDisk struct {
	Disk
	mu      *sync.Mutex
	armed   bool
	budget  uint64
	dropped uint64
}

func NewCrashDisk(d Disk) *CrashDisk {
	return &CrashDisk{Disk: d, mu: new(sync.Mutex)}
}

// CrashAfter lets n more writes through and drops the rest.
func (c *CrashDisk) CrashAfter(n uint64) {
	c.mu.Lock()
	c.armed = true
	c.budget = n
	c.dropped = 0
	c.mu.Unlock()
}

// Reset stops dropping writes.
func (c *CrashDisk) Reset() {
	c.mu.Lock()
	c.armed = false
	c.mu.Unlock()
}

// Dropped reports how many writes were lost since the last CrashAfter.
func (c *CrashDisk) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *CrashDisk) Write(a uint64, v Block) error {
	c.mu.Lock()
	if c.armed {
		if c.budget == 0 {
			c.dropped++
			c.mu.Unlock()
			return nil
		}
		c.budget--
	}
	c.mu.Unlock()
	return c.Disk.Write(a, v)
}
