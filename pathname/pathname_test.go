package pathname_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nano-go/nicofs/common"
	"github.com/nano-go/nicofs/fs"
	"github.com/nano-go/nicofs/fstest"
	"github.com/nano-go/nicofs/inode"
	"github.com/nano-go/nicofs/pathname"
)

func TestValidName(t *testing.T) {
	assert := assert.New(t)
	for _, name := range []string{
		"hello", "a.txt", "a.out", "a  .out", "abcdefghijklmn", "      ", "a..",
		"abc?", "a(b)", "b", "0", "a.aa", "test()", "é",
		strings.Repeat("x", int(common.DIRSIZ)),
	} {
		assert.True(pathname.ValidName(name), "%q", name)
	}
	for _, name := range []string{
		"+ab", "+", "", "-=", "\babc", "abc\b", "hshe\t\n", ".", "..", ".hidden",
		"a/b", "del\x7f", strings.Repeat("x", int(common.DIRSIZ)+1),
	} {
		assert.False(pathname.ValidName(name), "%q", name)
	}
}

func TestSkipElem(t *testing.T) {
	assert := assert.New(t)
	type step struct {
		name string
		off  int
	}
	for _, tc := range []struct {
		input string
		steps []step
	}{
		{"/abc", []step{{"abc", 4}}},
		{"abc", []step{{"abc", 3}}},
		{"abc/", []step{{"abc", 3}}},
		{"", nil},
		{"/", nil},
		{"///", nil},
		{"abc/./b", []step{{"abc", 3}, {".", 5}, {"b", 7}}},
		{"//abc//\n../b/", []step{{"abc", 5}, {"\n..", 10}, {"b", 12}}},
		{"///abc//../  d//efg../", []step{{"abc", 6}, {"..", 10}, {"  d", 14}, {"efg..", 21}}},
	} {
		var got []step
		s := tc.input
		for {
			name, rest, ok := pathname.SkipElem(s)
			if !ok {
				break
			}
			got = append(got, step{name, len(tc.input) - len(rest)})
			s = rest
		}
		assert.Equal(tc.steps, got, "%q", tc.input)
	}
}

func TestSkipElemTruncates(t *testing.T) {
	long := strings.Repeat("y", int(common.DIRSIZ)+5)
	name, rest, ok := pathname.SkipElem(long + "/z")
	assert.True(t, ok)
	assert.Equal(t, long[:common.DIRSIZ], name)
	assert.Equal(t, "/z", rest)
}

func TestParent(t *testing.T) {
	assert := assert.New(t)
	for _, tc := range []struct{ input, parent, name string }{
		{"ab/cd/efg", "ab/cd/", "efg"},
		{"efg", "", "efg"},
		{"/efg", "/", "efg"},
		{"efg/", "", "efg"},
		{"/", "", ""},
	} {
		parent, name := pathname.Parent(tc.input)
		assert.Equal(tc.parent, parent, "%q", tc.input)
		assert.Equal(tc.name, name, "%q", tc.input)
	}
}

// lookupEnv is a file system holding the tree the lookup tests walk.
type lookupEnv struct {
	fsys *fs.FS
	p    *fs.Proc
	root *inode.Inode
}

func newLookupEnv(t *testing.T) *lookupEnv {
	fsys := fstest.New(t)
	p := fsys.NewProc()
	require.NoError(t, p.Mkdir("/tmp"))
	require.NoError(t, p.Mkdir("/tmp/abc"))
	require.NoError(t, p.Mkdir("/tmp/foo"))
	f, err := p.Open("/tmp/abc/efg", fs.O_CREAT|fs.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	f, err = p.Open("/tmp/foo/bar", fs.O_CREAT|fs.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return &lookupEnv{fsys: fsys, p: p, root: fsys.Icache.Get(common.ROOTINUM)}
}

func (env *lookupEnv) inum(t *testing.T, path string) common.Inum {
	st, err := env.p.Stat(path)
	require.NoError(t, err)
	return st.Inum
}

func (env *lookupEnv) lookup(path string) (common.Inum, error) {
	var inum common.Inum
	err := env.fsys.Op(func() error {
		ip, err := pathname.Lookup(env.fsys.Icache, env.root, path)
		if err != nil {
			return err
		}
		inum = ip.Inum
		ip.Put()
		return nil
	})
	return inum, err
}

func (env *lookupEnv) lookupParent(path string) (common.Inum, string, error) {
	var inum common.Inum
	var name string
	err := env.fsys.Op(func() error {
		ip, n, err := pathname.LookupParent(env.fsys.Icache, env.root, path)
		if err != nil {
			return err
		}
		inum, name = ip.Inum, n
		ip.Put()
		return nil
	})
	return inum, name, err
}

func TestLookup(t *testing.T) {
	assert := assert.New(t)
	env := newLookupEnv(t)
	efg := env.inum(t, "/tmp/abc/efg")
	bar := env.inum(t, "/tmp/foo/bar")

	for _, path := range []string{"/tmp/abc/efg", "/tmp//abc///efg//", "tmp/abc/efg"} {
		inum, err := env.lookup(path)
		assert.NoError(err, path)
		assert.Equal(efg, inum, path)
	}
	for _, path := range []string{"/tmp/foo/bar", "/tmp/../tmp/foo/bar", "/../tmp/./foo/bar"} {
		inum, err := env.lookup(path)
		assert.NoError(err, path)
		assert.Equal(bar, inum, path)
	}

	for _, path := range []string{
		"/tmp/s", "/tmp//a  b", "///tmp//e ",
		"/tmp/.././/../foo/./bar//", "/tmp/....../foo/bar",
	} {
		_, err := env.lookup(path)
		assert.ErrorIs(err, common.ErrNotFound, path)
	}
	for _, path := range []string{"/tmp/foo/bar/foo", "/tmp/./foo/bar/../foo"} {
		_, err := env.lookup(path)
		assert.ErrorIs(err, common.ErrNotDir, path)
	}

	inum, err := env.lookup("/")
	assert.NoError(err)
	assert.Equal(common.ROOTINUM, inum)
}

func TestLookupParent(t *testing.T) {
	assert := assert.New(t)
	env := newLookupEnv(t)
	tmp := env.inum(t, "/tmp")

	for _, path := range []string{"/tmp//abc", "/tmp/abc", "///tmp//abc", "/tmp/missing/../abc"} {
		inum, name, err := env.lookupParent(path)
		if path == "/tmp/missing/../abc" {
			assert.ErrorIs(err, common.ErrNotFound, "intermediate elements must exist")
			continue
		}
		assert.NoError(err, path)
		assert.Equal(tmp, inum, path)
		assert.Equal("abc", name, path)
	}

	inum, name, err := env.lookupParent("/tmp")
	assert.NoError(err)
	assert.Equal(common.ROOTINUM, inum)
	assert.Equal("tmp", name)

	_, _, err = env.lookupParent("/")
	assert.ErrorIs(err, common.ErrNotFound)
	_, _, err = env.lookupParent("/tmp/foo/bar/x")
	assert.ErrorIs(err, common.ErrNotDir)
}

func TestLookupReleases(t *testing.T) {
	env := newLookupEnv(t)
	_, err := env.lookup("/tmp/abc/efg")
	require.NoError(t, err)
	_, err = env.lookup("/tmp/abc/nope")
	require.Error(t, err)
	_, _, err = env.lookupParent("/tmp/abc/x")
	require.NoError(t, err)
	// env.root and the process's working directory
	assert.Equal(t, uint64(1), env.fsys.Icache.NumCached())
}
