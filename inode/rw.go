package inode

import (
	"fmt"
	"math"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/util"
)

// Read copies up to len(dst) bytes starting at off into dst and returns the
// count. Reads stop at the end of the file; unallocated blocks read as
// zeros. Device inodes are handed to their device. The caller must hold ip.
func (ip *Inode) Read(dst []byte, off uint32) (int, error) {
	ip.assertLocked("iread")
	if ip.Type == TypeDevice {
		dev, err := ip.ic.device(ip.Major)
		if err != nil {
			return 0, err
		}
		return dev.Read(ip, dst)
	}

	if uint64(len(dst)) > math.MaxUint32 || util.SumOverflows32(off, uint32(len(dst))) {
		return 0, fmt.Errorf("reading `%d` bytes at `%d`: %w", len(dst), off, common.ErrBounds)
	}
	if off > ip.Size {
		return 0, fmt.Errorf("reading at `%d` past size `%d`: %w", off, ip.Size, common.ErrBounds)
	}
	n := uint64(len(dst))
	if uint64(off)+n > uint64(ip.Size) {
		n = uint64(ip.Size - off)
	}

	pos := uint64(off)
	for tot := uint64(0); tot < n; {
		m := util.Min(n-tot, common.BlockSize-pos%common.BlockSize)
		addr := ip.lookup(pos / common.BlockSize)
		if addr == common.NULLBNUM {
			for i := tot; i < tot+m; i++ {
				dst[i] = 0
			}
		} else {
			b := ip.ic.bc.Read(addr)
			copy(dst[tot:tot+m], b.Data[pos%common.BlockSize:])
			ip.ic.bc.Release(b)
		}
		tot += m
		pos += m
	}
	return int(n), nil
}

// Write copies src into ip starting at off, growing the file as needed up
// to the maximum file size. Writing past the current end leaves a hole.
// The caller must hold ip and be inside a log operation large enough for
// the blocks touched.
func (ip *Inode) Write(src []byte, off uint32) (int, error) {
	ip.assertLocked("iwrite")
	if ip.Type == TypeDevice {
		dev, err := ip.ic.device(ip.Major)
		if err != nil {
			return 0, err
		}
		return dev.Write(ip, src)
	}

	if uint64(len(src)) > math.MaxUint32 || util.SumOverflows32(off, uint32(len(src))) {
		return 0, fmt.Errorf("writing `%d` bytes at `%d`: %w", len(src), off, common.ErrBounds)
	}
	n := uint64(len(src))
	end := uint64(off) + n
	if end > common.MAXFILE {
		return 0, fmt.Errorf("writing up to `%d`: %w", end, common.ErrTooBig)
	}

	changed := false
	pos := uint64(off)
	for tot := uint64(0); tot < n; {
		m := util.Min(n-tot, common.BlockSize-pos%common.BlockSize)
		addr, ch := ip.bmap(pos / common.BlockSize)
		changed = changed || ch
		b := ip.ic.bc.Read(addr)
		copy(b.Data[pos%common.BlockSize:], src[tot:tot+m])
		ip.ic.log.Write(b)
		ip.ic.bc.Release(b)
		tot += m
		pos += m
	}

	if n > 0 && end > uint64(ip.Size) {
		ip.Size = uint32(end)
		changed = true
	}
	if changed {
		ip.Update()
	}
	return int(n), nil
}
