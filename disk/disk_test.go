package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdisk "github.com/tchajed/goose/machine/disk"
)

func mkBlock(b byte) Block {
	block := NewBlock()
	for i := range block {
		block[i] = b
	}
	return block
}

func checkDisk(t *testing.T, d Disk) {
	assert := assert.New(t)
	sz, err := d.Size()
	require.NoError(t, err)
	assert.Equal(uint64(16), sz)

	for a := uint64(0); a < sz; a++ {
		assert.NoError(d.Write(a, mkBlock(byte(a+1))))
	}
	for a := uint64(0); a < sz; a++ {
		b, err := d.Read(a)
		assert.NoError(err)
		assert.Equal(mkBlock(byte(a+1)), b, "block %d", a)
	}
	assert.NoError(d.Barrier())

	assert.Panics(func() { d.Read(sz) }, "out-of-bounds read")
	assert.Panics(func() { d.Write(sz, mkBlock(1)) }, "out-of-bounds write")
	assert.Panics(func() { d.Write(0, make(Block, 3)) }, "short write")
}

func TestMemDisk(t *testing.T) {
	checkDisk(t, NewMemDisk(16))
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 16)
	require.NoError(t, err)
	checkDisk(t, d)
	require.NoError(t, d.Close())

	d, err = OpenFileDisk(path)
	require.NoError(t, err)
	defer d.Close()
	b, err := d.Read(7)
	assert.NoError(t, err)
	assert.Equal(t, mkBlock(8), b, "contents survive reopen")
}

func TestGooseDisk(t *testing.T) {
	checkDisk(t, FromGoose(gdisk.NewMemDisk(2)))
}

func TestGooseDiskNeighbors(t *testing.T) {
	assert := assert.New(t)
	d := FromGoose(gdisk.NewMemDisk(1))
	d.Write(3, mkBlock(3))
	d.Write(4, mkBlock(4))
	d.Write(3, mkBlock(9))
	b, _ := d.Read(4)
	assert.Equal(mkBlock(4), b, "writing a block leaves its neighbors alone")
	b, _ = d.Read(3)
	assert.Equal(mkBlock(9), b)
}

func TestCrashDisk(t *testing.T) {
	assert := assert.New(t)
	c := NewCrashDisk(NewMemDisk(4))
	c.CrashAfter(1)
	c.Write(0, mkBlock(1))
	c.Write(1, mkBlock(2))
	c.Write(2, mkBlock(3))
	assert.Equal(uint64(2), c.Dropped())

	b, _ := c.Read(0)
	assert.Equal(mkBlock(1), b)
	b, _ = c.Read(1)
	assert.Equal(mkBlock(0), b, "write after the crash point is lost")

	c.Reset()
	c.Write(1, mkBlock(2))
	b, _ = c.Read(1)
	assert.Equal(mkBlock(2), b)
}
