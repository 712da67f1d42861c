package wal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/nano-go/nicofs/bcache"
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/disk"
)

const logStart common.Bnum = 2

// home blocks live past the log region
func dataBnum(x common.Bnum) common.Bnum {
	return logStart + common.Bnum(common.NLOG) + x
}

func mkBlock(b byte) disk.Block {
	block := disk.NewBlock()
	for i := range block {
		block[i] = b
	}
	return block
}

type WalSuite struct {
	suite.Suite
	d  disk.Disk
	bc *bcache.Bcache
	l  *Walog
}

func (suite *WalSuite) SetupTest() {
	suite.d = disk.NewMemDisk(200)
	suite.restart()
}

// restart drops all in-memory state, as a crash would, and reopens the log.
func (suite *WalSuite) restart() {
	suite.bc = bcache.MkBcache(suite.d, 64)
	suite.l = MkLog(suite.bc, logStart)
}

func (suite *WalSuite) write(bn common.Bnum, v byte) {
	b := suite.bc.Read(dataBnum(bn))
	copy(b.Data, mkBlock(v))
	suite.l.Write(b)
	suite.bc.Release(b)
}

func (suite *WalSuite) diskBlock(bn common.Bnum) disk.Block {
	b, _ := suite.d.Read(uint64(dataBnum(bn)))
	return b
}

func TestWal(t *testing.T) {
	suite.Run(t, new(WalSuite))
}

func (suite *WalSuite) TestCommit() {
	suite.l.BeginOp()
	suite.write(0, 1)
	suite.write(1, 2)
	suite.Equal(mkBlock(0), suite.diskBlock(0), "home block untouched before commit")
	suite.l.EndOp()

	suite.Equal(mkBlock(1), suite.diskBlock(0))
	suite.Equal(mkBlock(2), suite.diskBlock(1))
	suite.Equal(uint64(0), suite.l.NumLogged())
	suite.Empty(suite.l.readHead(), "header cleared after install")
}

func (suite *WalSuite) TestAbsorb() {
	suite.l.BeginOp()
	suite.write(3, 1)
	suite.write(3, 2)
	suite.write(3, 3)
	suite.Equal(uint64(1), suite.l.NumLogged())
	suite.l.EndOp()
	suite.Equal(mkBlock(3), suite.diskBlock(3))
}

func (suite *WalSuite) TestGroupCommit() {
	suite.l.BeginOp()
	suite.l.BeginOp()
	suite.write(0, 1)
	suite.l.EndOp()
	suite.Equal(mkBlock(0), suite.diskBlock(0), "commit waits for every open op")
	suite.write(1, 2)
	suite.l.EndOp()
	suite.Equal(mkBlock(1), suite.diskBlock(0))
	suite.Equal(mkBlock(2), suite.diskBlock(1))
}

func (suite *WalSuite) TestCrashBeforeCommitPoint() {
	suite.l.BeginOp()
	suite.write(0, 1)
	suite.write(1, 1)
	suite.l.writeLog()
	suite.restart()
	suite.Equal(mkBlock(0), suite.diskBlock(0), "uncommitted batch is lost")
	suite.Equal(mkBlock(0), suite.diskBlock(1))
}

func (suite *WalSuite) TestCrashAfterCommitPoint() {
	suite.l.BeginOp()
	suite.write(0, 1)
	suite.write(1, 2)
	suite.l.writeLog()
	suite.l.writeHead(suite.l.blocks)
	suite.Equal(mkBlock(0), suite.diskBlock(0))

	suite.restart()
	suite.Equal(mkBlock(1), suite.diskBlock(0), "recovery installs the batch")
	suite.Equal(mkBlock(2), suite.diskBlock(1))
	suite.Empty(suite.l.readHead())

	suite.restart()
	suite.Equal(mkBlock(1), suite.diskBlock(0), "second recovery is a no-op")
	suite.Equal(mkBlock(2), suite.diskBlock(1))
}

func (suite *WalSuite) TestCrashDuringInstall() {
	suite.l.BeginOp()
	suite.write(0, 1)
	suite.write(1, 2)
	suite.l.writeLog()
	suite.l.writeHead(suite.l.blocks)
	// install only the first block, then crash
	suite.l.installTrans(suite.l.blocks[:1], false)
	suite.Equal(mkBlock(0), suite.diskBlock(1))

	suite.restart()
	suite.Equal(mkBlock(1), suite.diskBlock(0))
	suite.Equal(mkBlock(2), suite.diskBlock(1))
}

func (suite *WalSuite) TestRecoveryIdempotent() {
	suite.l.BeginOp()
	suite.write(5, 7)
	suite.l.writeLog()
	suite.l.writeHead(suite.l.blocks)

	suite.restart()
	// replay the same header again, as a crash just before clearing it would
	suite.l.writeHead([]common.Bnum{dataBnum(5)})
	suite.restart()
	suite.Equal(mkBlock(7), suite.diskBlock(5))
}

func (suite *WalSuite) TestWriteOutsideOp() {
	b := suite.bc.Read(dataBnum(0))
	defer suite.bc.Release(b)
	suite.PanicsWithValue("wal: write outside of op", func() { suite.l.Write(b) })
}

func (suite *WalSuite) TestTooBig() {
	suite.l.BeginOp()
	for i := common.Bnum(0); i < common.Bnum(common.LOGSIZE); i++ {
		suite.write(i, 1)
	}
	suite.PanicsWithValue("wal: transaction too big", func() { suite.write(common.Bnum(common.LOGSIZE), 1) })
}

func (suite *WalSuite) TestEndWithoutBegin() {
	suite.Panics(func() { suite.l.EndOp() })
}

func (suite *WalSuite) TestAdmission() {
	// three ops fill the reservation; a fourth must wait
	for i := 0; i < 3; i++ {
		suite.l.BeginOp()
	}
	admitted := make(chan struct{})
	go func() {
		suite.l.BeginOp()
		close(admitted)
	}()
	select {
	case <-admitted:
		suite.Fail("fourth op admitted while the log is reserved")
	default:
	}
	suite.l.EndOp()
	<-admitted
	suite.Equal(uint64(3), suite.l.Outstanding())
	for i := 0; i < 3; i++ {
		suite.l.EndOp()
	}
	suite.Equal(uint64(0), suite.l.Outstanding())
}

func TestConcurrentOps(t *testing.T) {
	d := disk.NewMemDisk(200)
	bc := bcache.MkBcache(d, 64)
	l := MkLog(bc, logStart)

	const nthread = 8
	const nop = 20
	var wg sync.WaitGroup
	for g := 0; g < nthread; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < nop; i++ {
				l.BeginOp()
				for _, bn := range []common.Bnum{dataBnum(common.Bnum(g)), dataBnum(100)} {
					b := bc.Read(bn)
					b.Data[0]++
					l.Write(b)
					bc.Release(b)
				}
				l.EndOp()
			}
		}(g)
	}
	wg.Wait()

	assert := assert.New(t)
	for g := 0; g < nthread; g++ {
		b, _ := d.Read(uint64(dataBnum(common.Bnum(g))))
		assert.Equal(byte(nop), b[0])
	}
	b, _ := d.Read(uint64(dataBnum(100)))
	assert.Equal(byte(nthread*nop%256), b[0])
}

// Crashing after any number of device writes during a commit leaves either
// none or all of the batch visible after recovery.
func TestCrashAnywhere(t *testing.T) {
	assert := assert.New(t)
	blocks := []common.Bnum{dataBnum(0), dataBnum(1), dataBnum(2)}
	// slots + header + installs + header
	nwrites := uint64(2*len(blocks) + 2)
	for k := uint64(0); k <= nwrites; k++ {
		mem := disk.NewMemDisk(200)
		cd := disk.NewCrashDisk(mem)
		bc := bcache.MkBcache(cd, 64)
		l := MkLog(bc, logStart)

		l.BeginOp()
		for i, bn := range blocks {
			b := bc.Read(bn)
			copy(b.Data, mkBlock(byte(i+1)))
			l.Write(b)
			bc.Release(b)
		}
		cd.CrashAfter(k)
		l.EndOp()

		MkLog(bcache.MkBcache(mem, 64), logStart)
		committed := k > uint64(len(blocks))
		for i, bn := range blocks {
			b, _ := mem.Read(uint64(bn))
			if committed {
				assert.Equal(mkBlock(byte(i+1)), b, "crash after %d writes", k)
			} else {
				assert.Equal(mkBlock(0), b, "crash after %d writes", k)
			}
		}
	}
}
