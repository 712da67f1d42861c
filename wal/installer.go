package wal

import (
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/util"
)

// writeLog copies every registered block from the cache into its log slot.
func (l *Walog) writeLog() {
	for i, bn := range l.blocks {
		from := l.bc.Read(bn)
		to := l.bc.Read(l.slot(i))
		copy(to.Data, from.Data)
		l.bc.Write(to)
		l.bc.Release(to)
		l.bc.Release(from)
	}
	l.bc.Barrier()
}

// writeHead durably records blocks as the log's contents. Writing a
// non-empty header is the commit point; writing an empty one retires the
// transaction.
func (l *Walog) writeHead(blocks []common.Bnum) {
	b := l.bc.Read(l.start)
	copy(b.Data, encodeHdr(blocks))
	l.bc.Write(b)
	l.bc.Release(b)
	l.bc.Barrier()
}

func (l *Walog) readHead() []common.Bnum {
	b := l.bc.Read(l.start)
	blocks := decodeHdr(b.Data)
	l.bc.Release(b)
	return blocks
}

// installTrans copies each log slot to its home block. During recovery the
// home buffers were never pinned by Write.
func (l *Walog) installTrans(blocks []common.Bnum, recovering bool) {
	for i, bn := range blocks {
		util.DPrintf(5, "installTrans: write log block %d to %d\n", i, bn)
		lb := l.bc.Read(l.slot(i))
		db := l.bc.Read(bn)
		copy(db.Data, lb.Data)
		l.bc.Write(db)
		l.bc.Release(db)
		l.bc.Release(lb)
		if !recovering {
			l.bc.Unpin(db)
		}
	}
	l.bc.Barrier()
}

// recover completes a transaction that committed before a crash. Running it
// again after it finished, or after a crash part way through, is harmless.
func (l *Walog) recover() {
	blocks := l.readHead()
	if len(blocks) == 0 {
		return
	}
	util.DPrintf(1, "recover: installing %d blocks\n", len(blocks))
	l.installTrans(blocks, true)
	l.writeHead(nil)
}
