package common

import (
	"github.com/nano-go/nicofs/disk"
)

const (
	BlockSize uint64 = disk.BlockSize

	// Block numbers of the fixed-location records.
	BOOTBLK  Bnum = 0
	SUPERBLK Bnum = 1

	FSMAGIC uint32 = 0xF2E3EACF

	NDIRECT   uint64 = 11
	NINDIRECT uint64 = BlockSize / 4
	MAXBLOCKS uint64 = NDIRECT + NINDIRECT
	MAXFILE   uint64 = MAXBLOCKS * BlockSize

	INODESZ  uint64 = 4*5 + 4*(NDIRECT+1) // on-disk size
	INODEBLK uint64 = BlockSize / INODESZ

	DIRSIZ    uint64 = 60
	DIRENTSZ  uint64 = 4 + DIRSIZ
	NBITBLOCK uint64 = BlockSize * 8

	MAXOPBLOCKS uint64 = 10
	LOGSIZE     uint64 = MAXOPBLOCKS * 3
	NLOG        uint64 = LOGSIZE + 1 // header + data slots

	// Major numbers of the devices the kernel knows about.
	NDEV    = 1
	CONSOLE = 1
)

type Inum uint32
type Bnum uint32

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = 1
	NULLBNUM Bnum = 0
)
