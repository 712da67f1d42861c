package super

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nano-go/nicofs/bcache"
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/disk"
)

func TestLayout(t *testing.T) {
	assert := assert.New(t)
	sb, err := MkLayout(2048, 200)
	require.NoError(t, err)

	assert.Equal(uint32(2), sb.InodeStart)
	assert.Equal(uint32(29), sb.InodeBlocks())
	assert.Equal(uint32(32), sb.LogStart)
	assert.Equal(uint32(31), sb.Nlog)
	assert.Equal(uint32(64), sb.BmapStart)
	assert.Equal(uint32(66), sb.BdataStart)
	assert.Equal(uint32(2048), sb.BdataStart+sb.Nblocks, "data runs to the end")
	assert.Equal(sb.Nblocks/8, sb.BmapBytes)
	assert.NoError(sb.Validate())
}

func TestLayoutLargeBitmap(t *testing.T) {
	sb, err := MkLayout(1<<16, 4096*4)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), sb.BmapBlocks())
	assert.NoError(t, sb.Validate())
	assert.True(t, sb.Bits() <= uint64(sb.Nblocks))
}

func TestLayoutTooSmall(t *testing.T) {
	_, err := MkLayout(150, 200)
	assert.True(t, errors.Is(err, common.ErrBounds))
}

func TestEncoding(t *testing.T) {
	assert := assert.New(t)
	sb, _ := MkLayout(2048, 200)
	b := sb.Encode()
	assert.Equal(int(common.BlockSize), len(b))
	assert.Equal([]byte{0xCF, 0xEA, 0xE3, 0xF2}, b[:4], "little-endian magic")
	assert.Equal([]byte{0x00, 0x08, 0x00, 0x00}, b[4:8], "size")
	assert.Equal([]byte{66, 0, 0, 0}, b[36:40], "bdata_start is the tenth word")
	assert.Equal(sb, Decode(b))
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)
	good, _ := MkLayout(2048, 200)

	sb := *good
	sb.LogStart = sb.InodeStart + 3
	assert.Error(sb.Validate(), "log overlaps inodes")

	sb = *good
	sb.Nblocks++
	sb.Size--
	assert.Error(sb.Validate(), "data past the device")

	sb = *good
	sb.Nlog = 10
	assert.Error(sb.Validate())

	sb = *good
	sb.Magic = 0
	assert.Error(sb.Validate())
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(2048)
	bc := bcache.MkBcache(d, 8)
	assert.PanicsWithValue("super: no file system", func() { Load(bc) })

	sb, _ := MkLayout(2048, 200)
	d.Write(uint64(common.SUPERBLK), sb.Encode())
	bc = bcache.MkBcache(d, 8)
	assert.Equal(sb, Load(bc))

	sb.BdataStart = sb.BmapStart
	d.Write(uint64(common.SUPERBLK), sb.Encode())
	bc = bcache.MkBcache(d, 8)
	assert.Panics(func() { Load(bc) }, "corrupt geometry is fatal")
}

func TestGeometryHelpers(t *testing.T) {
	assert := assert.New(t)
	sb, _ := MkLayout(2048, 200)
	assert.Equal(common.Bnum(33), sb.LogSlot(0))
	assert.True(sb.IsData(common.Bnum(sb.BdataStart)))
	assert.False(sb.IsData(common.Bnum(sb.BdataStart - 1)))
	assert.False(sb.IsData(common.Bnum(uint64(sb.BdataStart) + sb.Bits())))

	a := sb.BitAddr(common.Bnum(sb.BdataStart + 10))
	assert.Equal(common.Bnum(sb.BmapStart), a.Blkno)
	assert.Equal(uint64(10), a.Off)

	a = sb.InodeAddr(8)
	assert.Equal(common.Bnum(3), a.Blkno)
	assert.Equal(uint64(68), a.Byte())
}
