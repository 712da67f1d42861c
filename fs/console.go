package fs

import (
	"io"
	"sync"

	"github.com/nano-go/nicofs/inode"
)

// Console is the character device behind /dev/console.
type Console struct {
	mu  *sync.Mutex
	in  io.Reader
	out io.Writer
}

func MkConsole(in io.Reader, out io.Writer) *Console {
	return &Console{mu: new(sync.Mutex), in: in, out: out}
}

func (c *Console) Read(ip *inode.Inode, dst []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in == nil {
		return 0, io.EOF
	}
	return c.in.Read(dst)
}

func (c *Console) Write(ip *inode.Inode, src []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		return len(src), nil
	}
	return c.out.Write(src)
}
