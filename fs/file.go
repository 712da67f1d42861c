package fs

import (
	"fmt"
	"io"
	"sync"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/inode"
	"github.com/nano-go/nicofs/pathname"
)

const (
	O_RDONLY  = 0x000
	O_WRONLY  = 0x001
	O_RDWR    = 0x002
	O_ACCMODE = 0x003
	O_CREAT   = 0x040
	O_APPEND  = 0x400
)

// A write touches at most this many bytes per log operation: the data
// blocks, plus the inode, indirect and bitmap blocks.
const maxWriteBytes = ((common.MAXOPBLOCKS - 4) / 2) * common.BlockSize

// File is an open file: an inode plus an offset.
type File struct {
	fs       *FS
	ip       *inode.Inode
	readable bool
	writable bool
	appends  bool

	mu   *sync.Mutex // protects off and refs
	off  uint32
	refs uint64
}

// Open opens path with the given O_ flags. With O_CREAT a missing regular
// file is created. Directories may only be opened read-only.
func (p *Proc) Open(path string, flags int) (*File, error) {
	var ip *inode.Inode
	err := p.fs.Op(func() error {
		var err error
		if flags&O_CREAT != 0 {
			ip, err = p.create(path, inode.TypeFile, 0, 0)
		} else {
			ip, err = pathname.Lookup(p.fs.Icache, p.cwd, path)
		}
		if err != nil {
			return err
		}
		ip.Lock()
		if ip.Type == inode.TypeDir && flags&O_ACCMODE != O_RDONLY {
			ip.UnlockPut()
			ip = nil
			return fmt.Errorf("opening `%s` for writing: %w", path, common.ErrIsDir)
		}
		ip.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	mode := flags & O_ACCMODE
	return &File{
		fs:       p.fs,
		ip:       ip,
		readable: mode == O_RDONLY || mode == O_RDWR,
		writable: mode == O_WRONLY || mode == O_RDWR,
		appends:  flags&O_APPEND != 0,
		mu:       new(sync.Mutex),
		refs:     1,
	}, nil
}

// Read reads from the current offset. It returns io.EOF at the end of a
// regular file.
func (f *File) Read(dst []byte) (int, error) {
	if !f.readable {
		return 0, fmt.Errorf("read: %w", common.ErrPermission)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ip.Lock()
	n, err := f.ip.Read(dst, f.off)
	f.ip.Unlock()
	if err != nil {
		return n, err
	}
	f.off += uint32(n)
	if n == 0 && len(dst) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes src at the current offset, or at the end of the file when
// opened with O_APPEND. Large writes are split across several log
// operations, so a crash may leave a prefix of src written.
func (f *File) Write(src []byte) (int, error) {
	if !f.writable {
		return 0, fmt.Errorf("write: %w", common.ErrPermission)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tot := 0
	for tot < len(src) || len(src) == 0 {
		m := len(src) - tot
		if m > int(maxWriteBytes) {
			m = int(maxWriteBytes)
		}
		var n int
		err := f.fs.Op(func() error {
			f.ip.Lock()
			defer f.ip.Unlock()
			if f.appends {
				f.off = f.ip.Size
			}
			var err error
			n, err = f.ip.Write(src[tot:tot+m], f.off)
			return err
		})
		f.off += uint32(n)
		tot += n
		if err != nil {
			return tot, err
		}
		if n != m {
			return tot, fmt.Errorf("write: short write")
		}
		if len(src) == 0 {
			break
		}
	}
	return tot, nil
}

// Seek implements io.Seeker for regular files and directories.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(f.off)
	case io.SeekEnd:
		f.ip.Lock()
		base = int64(f.ip.Size)
		f.ip.Unlock()
	default:
		return 0, fmt.Errorf("seek whence `%d`: %w", whence, common.ErrBounds)
	}
	pos := base + offset
	if pos < 0 || pos > int64(common.MAXFILE) {
		return 0, fmt.Errorf("seek to `%d`: %w", pos, common.ErrBounds)
	}
	f.off = uint32(pos)
	return pos, nil
}

func (f *File) Stat() inode.Stat {
	f.ip.Lock()
	defer f.ip.Unlock()
	return f.ip.Stat()
}

// Dup returns f with one more reference; both share the offset.
func (f *File) Dup() *File {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
	return f
}

// Close drops a reference, releasing the inode with the last one.
func (f *File) Close() error {
	f.mu.Lock()
	if f.refs == 0 {
		f.mu.Unlock()
		panic("fileclose: no references")
	}
	f.refs--
	last := f.refs == 0
	f.mu.Unlock()
	if !last {
		return nil
	}
	return f.fs.Op(func() error {
		f.ip.Put()
		return nil
	})
}
