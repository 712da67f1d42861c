package inode

// Device handles reads and writes of device inodes. Handlers are looked up
// by the inode's major number.
type Device interface {
	Read(ip *Inode, dst []byte) (int, error)
	Write(ip *Inode, src []byte) (int, error)
}
