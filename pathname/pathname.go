// Package pathname resolves slash-separated paths to inodes.
package pathname

import (
	"fmt"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/dir"
	"github.com/nano-go/nicofs/inode"
)

// SkipElem splits off the first element of path. Leading slashes are
// skipped; the remainder starts at the slash after the element. Elements
// longer than common.DIRSIZ are cut to DIRSIZ bytes. ok is false when path
// holds no more elements.
//
//	SkipElem("a/bb/c") = "a", "/bb/c"
//	SkipElem("///a//bb") = "a", "//bb"
//	SkipElem("a") = "a", ""
//	SkipElem("") = SkipElem("////") = ok false
func SkipElem(path string) (name string, rest string, ok bool) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	if i == len(path) {
		return "", "", false
	}
	j := i
	for j < len(path) && path[j] != '/' {
		j++
	}
	name = path[i:j]
	if uint64(len(name)) > common.DIRSIZ {
		name = name[:common.DIRSIZ]
	}
	return name, path[j:], true
}

func skipSlashes(path string) string {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	return path[i:]
}

// Parent splits path into the text before its last element and that
// element, without touching the disk.
//
//	Parent("ab/cd/efg") = "ab/cd/", "efg"
//	Parent("/efg") = "/", "efg"
//	Parent("efg/") = "", "efg"
//	Parent("/") = "", ""
func Parent(path string) (parent string, name string) {
	rest := path
	for {
		n, r, ok := SkipElem(rest)
		if !ok {
			return parent, name
		}
		parent = path[:len(path)-len(skipSlashes(rest))]
		name = n
		rest = r
	}
}

func namex(ic *inode.Icache, cwd *inode.Inode, path string, nameiparent bool) (*inode.Inode, string, error) {
	var ip *inode.Inode
	if len(path) > 0 && path[0] == '/' {
		ip = ic.Get(common.ROOTINUM)
	} else {
		ip = cwd.Dup()
	}

	var name string
	for {
		n, rest, ok := SkipElem(path)
		if !ok {
			break
		}
		name = n
		path = skipSlashes(rest)

		ip.Lock()
		if ip.Type != inode.TypeDir {
			ip.UnlockPut()
			return nil, "", fmt.Errorf("resolving `%s`: %w", name, common.ErrNotDir)
		}
		if nameiparent && path == "" {
			ip.Unlock()
			return ip, name, nil
		}
		next, _, err := dir.Lookup(ip, name)
		ip.UnlockPut()
		if err != nil {
			return nil, "", err
		}
		ip = next
	}
	if nameiparent {
		ip.Put()
		return nil, "", fmt.Errorf("path has no final element: %w", common.ErrNotFound)
	}
	return ip, name, nil
}

// Lookup returns a referenced, unlocked inode for path. Relative paths
// start at cwd. Only one directory is locked at a time. Dropping the last
// reference to an unlinked directory frees it, so callers should run
// inside a log operation.
func Lookup(ic *inode.Icache, cwd *inode.Inode, path string) (*inode.Inode, error) {
	ip, _, err := namex(ic, cwd, path, false)
	return ip, err
}

// LookupParent returns the directory that would hold the final element of
// path, referenced and unlocked, and that element's name. The final
// element need not exist.
func LookupParent(ic *inode.Icache, cwd *inode.Inode, path string) (*inode.Inode, string, error) {
	return namex(ic, cwd, path, true)
}

var invalidChars = [256]bool{'/': true, 0x7F: true}

// ValidName reports whether name may be given to a new file.
func ValidName(name string) bool {
	if len(name) == 0 || uint64(len(name)) > common.DIRSIZ {
		return false
	}
	if name[0] == '+' || name[0] == '-' || name[0] == '.' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= 31 || invalidChars[c] {
			return false
		}
	}
	return true
}
