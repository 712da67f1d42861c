// wal implements write-ahead logging
//
// The layout of the log region:
// [ header | slot 0 | slot 1 | ... | slot LOGSIZE-1 ]
//
// File system operations bracket their writes with BeginOp and EndOp.
// Blocks written inside brackets are registered with the log but stay in
// the buffer cache. When the last outstanding operation ends, the batch is
// committed: the blocks are copied into the log slots, the header is
// written (the commit point), the slots are installed to their home
// locations, and the header is cleared. A crash before the commit point
// loses the batch; a crash after it is repaired by recovery at mount.
package wal

import (
	"sync"

	"github.com/nano-go/nicofs/bcache"
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/util"
)

type Walog struct {
	memLock *sync.Mutex
	cond    *sync.Cond // broadcast when an op ends or a commit finishes
	bc      *bcache.Bcache
	start   common.Bnum // header block; slots follow

	// protected by memLock
	outstanding uint64
	committing  bool
	blocks      []common.Bnum // registered in the open batch, no duplicates
}

// MkLog opens the log whose header lives at block start, installing any
// transaction that committed before a crash.
func MkLog(bc *bcache.Bcache, start common.Bnum) *Walog {
	ml := new(sync.Mutex)
	l := &Walog{
		memLock: ml,
		cond:    sync.NewCond(ml),
		bc:      bc,
		start:   start,
	}
	l.recover()
	util.DPrintf(1, "MkLog: start %d size %d\n", start, common.LOGSIZE)
	return l
}

func (l *Walog) slot(i int) common.Bnum {
	return l.start + 1 + common.Bnum(i)
}

// BeginOp waits until the log can absorb one more operation's worst case
// and no commit is in progress.
func (l *Walog) BeginOp() {
	l.memLock.Lock()
	for {
		if l.committing {
			l.cond.Wait()
			continue
		}
		if uint64(len(l.blocks))+(l.outstanding+1)*common.MAXOPBLOCKS > common.LOGSIZE {
			util.DPrintf(5, "BeginOp: log is full; wait\n")
			l.cond.Wait()
			continue
		}
		l.outstanding++
		break
	}
	l.memLock.Unlock()
}

// Write registers the cache buffer b with the open batch. The caller must
// hold b and be inside a BeginOp/EndOp bracket. b stays pinned in the cache
// until the batch is installed.
func (l *Walog) Write(b *bcache.Buf) {
	l.memLock.Lock()
	defer l.memLock.Unlock()
	if l.outstanding < 1 {
		panic("wal: write outside of op")
	}
	for _, bn := range l.blocks {
		if bn == b.Blkno {
			util.DPrintf(5, "Write: absorb %d\n", b.Blkno)
			return
		}
	}
	if uint64(len(l.blocks)) >= common.LOGSIZE {
		panic("wal: transaction too big")
	}
	util.DPrintf(5, "Write: add %d pos %d\n", b.Blkno, len(l.blocks))
	l.blocks = append(l.blocks, b.Blkno)
	l.bc.Pin(b)
}

// EndOp closes a bracket. The last outstanding operation commits the batch
// before returning.
func (l *Walog) EndOp() {
	l.memLock.Lock()
	if l.outstanding == 0 {
		l.memLock.Unlock()
		panic("wal: end op without begin")
	}
	if l.committing {
		l.memLock.Unlock()
		panic("wal: end op during commit")
	}
	l.outstanding--
	doCommit := l.outstanding == 0
	if doCommit {
		l.committing = true
	} else {
		// the reservation shrank; waiters may now fit
		l.cond.Broadcast()
	}
	l.memLock.Unlock()

	if doCommit {
		// no op is open and BeginOp waits on committing, so the batch is
		// ours without memLock
		l.commit()
		l.memLock.Lock()
		l.committing = false
		l.cond.Broadcast()
		l.memLock.Unlock()
	}
}

func (l *Walog) commit() {
	if len(l.blocks) == 0 {
		return
	}
	util.DPrintf(1, "commit: %d blocks\n", len(l.blocks))
	l.writeLog()
	l.writeHead(l.blocks)
	l.installTrans(l.blocks, false)
	l.writeHead(nil)
	l.blocks = nil
}

// Outstanding is the number of open operations.
func (l *Walog) Outstanding() uint64 {
	l.memLock.Lock()
	defer l.memLock.Unlock()
	return l.outstanding
}

// NumLogged is the number of distinct blocks registered in the open batch.
func (l *Walog) NumLogged() uint64 {
	l.memLock.Lock()
	defer l.memLock.Unlock()
	return uint64(len(l.blocks))
}

// Size is the capacity of the log in blocks.
func (l *Walog) Size() uint64 {
	return common.LOGSIZE
}

// Quiesce waits until no operation is open and no commit is running. New
// operations may begin as soon as it returns.
func (l *Walog) Quiesce() {
	l.memLock.Lock()
	for l.outstanding > 0 || l.committing {
		l.cond.Wait()
	}
	l.memLock.Unlock()
}
