package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var _ Disk = fileDisk{}

// fileDisk is a disk image in a host file or block device. I/O errors are
// fatal: the layers above cannot recover from a failing device.
type fileDisk struct {
	fd        int
	numBlocks uint64
}

func openFd(path string, flags int) (int, unix.Stat_t, error) {
	var st unix.Stat_t
	fd, err := unix.Open(path, flags, 0666)
	if err != nil {
		return -1, st, fmt.Errorf("opening `%s`: %w", path, err)
	}
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return -1, st, fmt.Errorf("stat `%s`: %w", path, err)
	}
	return fd, st, nil
}

// NewFileDisk opens path as a disk of numBlocks sectors, creating it if
// needed. A regular file is resized to fit.
func NewFileDisk(path string, numBlocks uint64) (Disk, error) {
	fd, st, err := openFd(path, unix.O_RDWR|unix.O_CREAT)
	if err != nil {
		return nil, err
	}
	want := int64(numBlocks * BlockSize)
	if st.Mode&unix.S_IFMT == unix.S_IFREG && st.Size != want {
		if err := unix.Ftruncate(fd, want); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("resizing `%s`: %w", path, err)
		}
	}
	return fileDisk{fd: fd, numBlocks: numBlocks}, nil
}

// OpenFileDisk opens an existing image and sizes the disk from it.
func OpenFileDisk(path string) (Disk, error) {
	fd, st, err := openFd(path, unix.O_RDWR)
	if err != nil {
		return nil, err
	}
	return fileDisk{fd: fd, numBlocks: uint64(st.Size) / BlockSize}, nil
}

func (d fileDisk) ReadTo(a uint64, b Block) error {
	checkAccess("read", a, d.numBlocks, b)
	if _, err := unix.Pread(d.fd, b, int64(a*BlockSize)); err != nil {
		panic("disk: pread: " + err.Error())
	}
	return nil
}

func (d fileDisk) Read(a uint64) (Block, error) {
	b := NewBlock()
	return b, d.ReadTo(a, b)
}

func (d fileDisk) Write(a uint64, v Block) error {
	checkAccess("write", a, d.numBlocks, v)
	if _, err := unix.Pwrite(d.fd, v, int64(a*BlockSize)); err != nil {
		panic("disk: pwrite: " + err.Error())
	}
	return nil
}

func (d fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

// Barrier is fsync. On macOS that reaches the drive but is not a true
// barrier (that needs F_FULLFSYNC).
func (d fileDisk) Barrier() error {
	if err := unix.Fsync(d.fd); err != nil {
		panic("disk: fsync: " + err.Error())
	}
	return nil
}

func (d fileDisk) Close() error {
	return unix.Close(d.fd)
}
