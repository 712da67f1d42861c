package inode

import (
	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/lockmap"
	"github.com/nano-go/nicofs/util"
)

// Inode is the in-memory copy of an on-disk inode.
//
// Dev and Inum are fixed while ref > 0. The embedded Dinode is only
// meaningful while the handle is locked.
type Inode struct {
	Dev  uint32
	Inum common.Inum

	ic    *Icache
	ref   uint64 // protected by ic.mu
	lock  *lockmap.SleepLock
	valid bool // Dinode has been read from disk; protected by lock

	Dinode
}

type Stat struct {
	Dev   uint32
	Inum  common.Inum
	Type  Type
	Nlink uint32
	Size  uint32
	Major int32
	Minor int32
}

func (ip *Inode) assertLocked(who string) {
	if !ip.lock.Holding() {
		panic(who + ": inode not locked")
	}
}

func (ip *Inode) Dup() *Inode {
	ip.ic.mu.Lock()
	ip.ref++
	ip.ic.mu.Unlock()
	return ip
}

// Lock acquires ip, reading the inode from disk the first time.
func (ip *Inode) Lock() {
	ip.ic.mu.Lock()
	ref := ip.ref
	ip.ic.mu.Unlock()
	if ref < 1 {
		panic("ilock: unreferenced inode")
	}
	ip.lock.Lock()
	if !ip.valid {
		ad := ip.ic.sb.InodeAddr(ip.Inum)
		b := ip.ic.bc.Read(ad.Blkno)
		ip.Dinode = DecodeDinode(b.Data[ad.Byte():])
		ip.ic.bc.Release(b)
		ip.valid = true
		if ip.Type == TypeNone {
			ip.lock.Unlock()
			panic("ilock: no type")
		}
	}
}

func (ip *Inode) Unlock() {
	ip.assertLocked("iunlock")
	ip.lock.Unlock()
}

// Update writes the in-memory copy back to disk through the log. The
// caller must hold ip and be inside a log operation.
func (ip *Inode) Update() {
	ip.assertLocked("iupdate")
	ad := ip.ic.sb.InodeAddr(ip.Inum)
	b := ip.ic.bc.Read(ad.Blkno)
	copy(b.Data[ad.Byte():ad.Byte()+common.INODESZ], ip.Dinode.Encode())
	ip.ic.log.Write(b)
	ip.ic.bc.Release(b)
}

// Put drops a reference. Dropping the last reference to an inode with no
// links frees it and its blocks, so Put must run inside a log operation.
func (ip *Inode) Put() {
	ip.lock.Lock()
	if ip.valid && ip.Nlink == 0 {
		ip.ic.mu.Lock()
		r := ip.ref
		ip.ic.mu.Unlock()
		if r == 1 {
			// nobody else can reach ip, so no one else can lock it
			util.DPrintf(5, "iput: free inode %d\n", ip.Inum)
			ip.truncate()
			ip.Type = TypeNone
			ip.Update()
			ip.valid = false
		}
	}
	ip.lock.Unlock()

	ip.ic.mu.Lock()
	ip.ref--
	ip.ic.mu.Unlock()
}

func (ip *Inode) UnlockPut() {
	ip.Unlock()
	ip.Put()
}

// Stat copies ip's metadata. The caller must hold ip.
func (ip *Inode) Stat() Stat {
	ip.assertLocked("istat")
	return Stat{
		Dev:   ip.Dev,
		Inum:  ip.Inum,
		Type:  ip.Type,
		Nlink: ip.Nlink,
		Size:  ip.Size,
		Major: ip.Major,
		Minor: ip.Minor,
	}
}

// Icache is the cache ip belongs to.
func (ip *Inode) Icache() *Icache {
	return ip.ic
}
