package dir

import (
	"bytes"

	"github.com/tchajed/marshal"

	"github.com/nano-go/nicofs/common"
)

// Dirent is a directory entry. An entry with Inum NULLINUM is an empty
// slot. Names are at most common.DIRSIZ bytes; a name of exactly DIRSIZ
// bytes is stored without a terminating NUL.
type Dirent struct {
	Inum common.Inum
	Name string
}

func (de Dirent) Encode() []byte {
	if uint64(len(de.Name)) > common.DIRSIZ {
		panic("dirent: name too long")
	}
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt32(uint32(de.Inum))
	b := enc.Finish()
	copy(b[4:], de.Name)
	return b
}

func DecodeDirent(b []byte) Dirent {
	dec := marshal.NewDec(b[:4])
	inum := common.Inum(dec.GetInt32())
	name := b[4:common.DIRENTSZ]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Dirent{Inum: inum, Name: string(name)}
}
