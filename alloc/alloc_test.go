package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nano-go/nicofs/bcache"
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/disk"
	"github.com/nano-go/nicofs/super"
	"github.com/nano-go/nicofs/wal"
)

func TestPopCnt(t *testing.T) {
	assert.Equal(t, uint64(0), popCnt(0))
	assert.Equal(t, uint64(1), popCnt(1))
	assert.Equal(t, uint64(1), popCnt(2))
	assert.Equal(t, uint64(2), popCnt(3))
	assert.Equal(t, uint64(8), popCnt(255))
}

type AllocSuite struct {
	suite.Suite
	d   disk.Disk
	sb  *super.Superblock
	bc  *bcache.Bcache
	log *wal.Walog
	a   *Alloc
}

func (suite *AllocSuite) SetupTest() {
	suite.d = disk.NewMemDisk(2048)
	sb, err := super.MkLayout(2048, 200)
	require.NoError(suite.T(), err)
	suite.sb = sb
	suite.restart()
}

func (suite *AllocSuite) restart() {
	suite.bc = bcache.MkBcache(suite.d, 64)
	suite.log = wal.MkLog(suite.bc, common.Bnum(suite.sb.LogStart))
	suite.a = MkAlloc(suite.sb, suite.bc, suite.log)
}

func (suite *AllocSuite) alloc() common.Bnum {
	suite.log.BeginOp()
	defer suite.log.EndOp()
	return suite.a.AllocBlock()
}

func (suite *AllocSuite) free(bn common.Bnum) {
	suite.log.BeginOp()
	defer suite.log.EndOp()
	suite.a.FreeBlock(bn)
}

func TestAlloc(t *testing.T) {
	suite.Run(t, new(AllocSuite))
}

func (suite *AllocSuite) TestAllocFree() {
	total := suite.sb.Bits()
	suite.Equal(total, suite.a.NumFree(), "everything is initially free")

	n := suite.alloc()
	suite.Equal(common.Bnum(suite.sb.BdataStart), n, "first data block")
	n2 := suite.alloc()
	suite.Equal(n+1, n2)
	suite.Equal(total-2, suite.a.NumFree())

	suite.free(n)
	suite.Equal(total-1, suite.a.NumFree())
	suite.Equal(n, suite.alloc(), "freed block is reused first")
	suite.free(n)
	suite.free(n2)
	suite.Equal(total, suite.a.NumFree(), "free count conserved")
}

func (suite *AllocSuite) TestZeroed() {
	junk := disk.NewBlock()
	for i := range junk {
		junk[i] = 0xAB
	}
	suite.d.Write(uint64(suite.sb.BdataStart), junk)
	suite.restart()

	bn := suite.alloc()
	b := suite.bc.Read(bn)
	suite.Equal(make([]byte, disk.BlockSize), b.Data, "new block is zeroed in the cache")
	suite.bc.Release(b)
	blk, _ := suite.d.Read(uint64(bn))
	suite.Equal(make([]byte, disk.BlockSize), []byte(blk), "and on disk after commit")
}

func (suite *AllocSuite) TestPersistent() {
	n := suite.alloc()
	suite.restart()
	suite.Equal(suite.sb.Bits()-1, suite.a.NumFree())
	suite.NotEqual(n, suite.alloc())
}

func (suite *AllocSuite) TestDoubleFree() {
	n := suite.alloc()
	suite.free(n)
	suite.log.BeginOp()
	suite.PanicsWithValue("bfree: freeing free block", func() { suite.a.FreeBlock(n) })
}

func (suite *AllocSuite) TestFreeNonData() {
	suite.log.BeginOp()
	suite.Panics(func() { suite.a.FreeBlock(common.Bnum(suite.sb.BmapStart)) })
}

func (suite *AllocSuite) TestExhaustion() {
	total := suite.sb.Bits()
	for i := uint64(0); i < total; i += 4 {
		suite.log.BeginOp()
		for j := i; j < i+4 && j < total; j++ {
			suite.a.AllocBlock()
		}
		suite.log.EndOp()
	}
	suite.Equal(uint64(0), suite.a.NumFree())
	suite.log.BeginOp()
	suite.PanicsWithValue("balloc: out of blocks", func() { suite.a.AllocBlock() })
}

func (suite *AllocSuite) TestConcurrent() {
	const nthread = 6
	const nop = 10
	var mu sync.Mutex
	seen := make(map[common.Bnum]bool)
	var wg sync.WaitGroup
	for g := 0; g < nthread; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < nop; i++ {
				suite.log.BeginOp()
				bns := []common.Bnum{suite.a.AllocBlock(), suite.a.AllocBlock()}
				suite.log.EndOp()
				mu.Lock()
				for _, bn := range bns {
					suite.False(seen[bn], "block %d handed out twice", bn)
					seen[bn] = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	suite.Equal(nthread*nop*2, len(seen))
	suite.Equal(suite.sb.Bits()-uint64(len(seen)), suite.a.NumFree())

	for bn := range seen {
		suite.free(bn)
	}
	suite.Equal(suite.sb.Bits(), suite.a.NumFree())
}
