package fs

import (
	"fmt"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/dir"
	"github.com/nano-go/nicofs/inode"
	"github.com/nano-go/nicofs/pathname"
	"github.com/nano-go/nicofs/util"
)

// Proc carries the per-process state path lookups depend on: the current
// working directory.
type Proc struct {
	fs  *FS
	cwd *inode.Inode
}

func (fsys *FS) NewProc() *Proc {
	return &Proc{fs: fsys, cwd: fsys.Icache.Get(common.ROOTINUM)}
}

// Fork returns a process sharing p's working directory.
func (p *Proc) Fork() *Proc {
	return &Proc{fs: p.fs, cwd: p.cwd.Dup()}
}

// Exit drops the working directory.
func (p *Proc) Exit() {
	p.fs.Op(func() error {
		p.cwd.Put()
		return nil
	})
	p.cwd = nil
}

// create makes a new inode at path and returns it referenced and unlocked.
// Creating a regular file that already exists returns the existing file.
// Must run inside a log operation.
func (p *Proc) create(path string, typ inode.Type, major int32, minor int32) (*inode.Inode, error) {
	ic := p.fs.Icache
	dp, name, err := pathname.LookupParent(ic, p.cwd, path)
	if err != nil {
		return nil, err
	}
	if !pathname.ValidName(name) {
		dp.Put()
		return nil, fmt.Errorf("creating `%s`: %w", name, common.ErrInvalidName)
	}

	dp.Lock()
	if ip, _, err := dir.Lookup(dp, name); err == nil {
		dp.UnlockPut()
		ip.Lock()
		if typ == inode.TypeFile && ip.Type == inode.TypeFile {
			ip.Unlock()
			return ip, nil
		}
		ip.UnlockPut()
		return nil, fmt.Errorf("creating `%s`: %w", name, common.ErrExists)
	}

	ip := ic.Alloc(typ)
	ip.Lock()
	ip.Major = major
	ip.Minor = minor
	ip.Nlink = 1
	ip.Update()

	if err := dir.Link(dp, dir.Dirent{Inum: ip.Inum, Name: name}); err != nil {
		ip.Nlink = 0
		ip.Update()
		ip.UnlockPut()
		dp.UnlockPut()
		return nil, err
	}
	if typ == inode.TypeDir {
		if err := dir.Make(dp, ip); err != nil {
			panic(fmt.Sprintf("create: %v", err))
		}
	}
	util.DPrintf(3, "create: %s -> %d (%v)\n", path, ip.Inum, typ)
	ip.Unlock()
	dp.UnlockPut()
	return ip, nil
}

func (p *Proc) Mkdir(path string) error {
	return p.fs.Op(func() error {
		ip, err := p.create(path, inode.TypeDir, 0, 0)
		if err != nil {
			return err
		}
		ip.Put()
		return nil
	})
}

func (p *Proc) Mknod(path string, major int32, minor int32) error {
	return p.fs.Op(func() error {
		ip, err := p.create(path, inode.TypeDevice, major, minor)
		if err != nil {
			return err
		}
		ip.Put()
		return nil
	})
}

// Unlink removes the entry for path. Directories must be empty; "." and
// ".." cannot be removed.
func (p *Proc) Unlink(path string) error {
	return p.fs.Op(func() error {
		dp, name, err := pathname.LookupParent(p.fs.Icache, p.cwd, path)
		if err != nil {
			return err
		}
		if name == "." || name == ".." {
			dp.Put()
			return fmt.Errorf("unlinking `%s`: %w", name, common.ErrInvalidName)
		}

		dp.Lock()
		ip, off, err := dir.Lookup(dp, name)
		if err != nil {
			dp.UnlockPut()
			return err
		}
		ip.Lock()
		if ip.Nlink < 1 {
			panic("unlink: nlink < 1")
		}
		if ip.Type == inode.TypeDir && !dir.IsEmpty(ip) {
			ip.UnlockPut()
			dp.UnlockPut()
			return fmt.Errorf("unlinking `%s`: %w", name, common.ErrNotEmpty)
		}
		if err := dir.Unlink(dp, off); err != nil {
			panic(fmt.Sprintf("unlink: %v", err))
		}
		if ip.Type == inode.TypeDir {
			dp.Nlink--
			dp.Update()
		}
		dp.UnlockPut()

		ip.Nlink--
		ip.Update()
		util.DPrintf(3, "unlink: %s (%d, nlink %d)\n", path, ip.Inum, ip.Nlink)
		ip.UnlockPut()
		return nil
	})
}

// Chdir makes path the working directory.
func (p *Proc) Chdir(path string) error {
	return p.fs.Op(func() error {
		ip, err := pathname.Lookup(p.fs.Icache, p.cwd, path)
		if err != nil {
			return err
		}
		ip.Lock()
		if ip.Type != inode.TypeDir {
			ip.UnlockPut()
			return fmt.Errorf("chdir `%s`: %w", path, common.ErrNotDir)
		}
		ip.Unlock()
		p.cwd.Put()
		p.cwd = ip
		return nil
	})
}

func (p *Proc) Stat(path string) (inode.Stat, error) {
	var st inode.Stat
	err := p.fs.Op(func() error {
		ip, err := pathname.Lookup(p.fs.Icache, p.cwd, path)
		if err != nil {
			return err
		}
		ip.Lock()
		st = ip.Stat()
		ip.UnlockPut()
		return nil
	})
	return st, err
}

// ReadDir lists the entries of the directory at path, "." and ".."
// included.
func (p *Proc) ReadDir(path string) ([]dir.Dirent, error) {
	var des []dir.Dirent
	err := p.fs.Op(func() error {
		ip, err := pathname.Lookup(p.fs.Icache, p.cwd, path)
		if err != nil {
			return err
		}
		ip.Lock()
		defer ip.UnlockPut()
		if ip.Type != inode.TypeDir {
			return fmt.Errorf("listing `%s`: %w", path, common.ErrNotDir)
		}
		des = dir.ReadDir(ip)
		return nil
	})
	return des, err
}
