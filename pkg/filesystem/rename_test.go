package filesystem_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weberc2/ext2fs/pkg/filesystem"
	"github.com/weberc2/ext2fs/pkg/mkfs"
	. "github.com/weberc2/ext2fs/pkg/types"
	"golang.org/x/sys/unix"
)

// tree builds /a (dir) holding /a/f, plus /b (dir) and /g at the root.
func tree(t *testing.T) *filesystem.FileSystem {
	t.Helper()
	fs := open(t, mkfs.Floppy)
	for _, dir := range []string{"a", "b"} {
		_, err := fs.Mkdir("/", dir, 0755)
		require.NoError(t, err)
	}
	for _, file := range []struct{ parent, name string }{{"/a", "f"}, {"/", "g"}} {
		_, err := fs.Create(file.parent, file.name, 0644)
		require.NoError(t, err)
	}
	_, err := fs.Write("/g", []byte("gg"), 0)
	require.NoError(t, err)
	return fs
}

func links(t *testing.T, fs *filesystem.FileSystem, path string) uint16 {
	t.Helper()
	inode, err := fs.Lookup(path)
	require.NoError(t, err)
	return inode.LinksCount
}

func dotdot(t *testing.T, fs *filesystem.FileSystem, path string) Ino {
	t.Helper()
	entries, err := fs.Readdir(path)
	require.NoError(t, err)
	require.Equal(t, "..", entries[1].Name)
	return entries[1].Ino
}

func TestRename_File(t *testing.T) {
	fs := tree(t)
	f, err := fs.Lookup("/a/f")
	require.NoError(t, err)

	require.NoError(t, fs.Rename("/a/f", "/b/h", 0))
	_, err = fs.Lookup("/a/f")
	requireErrno(t, unix.ENOENT, err)
	h, err := fs.Lookup("/b/h")
	require.NoError(t, err)
	require.Equal(t, f.Ino, h.Ino)
	require.Equal(t, uint16(1), h.LinksCount)
}

func TestRename_ReplacesFile(t *testing.T) {
	fs := tree(t)
	before := statfs(t, fs)
	f, err := fs.Lookup("/a/f")
	require.NoError(t, err)

	require.NoError(t, fs.Rename("/a/f", "/g", 0))
	g, err := fs.Lookup("/g")
	require.NoError(t, err)
	require.Equal(t, f.Ino, g.Ino)

	// the old `/g` and its data block are released
	after := statfs(t, fs)
	require.Equal(t, before.FreeInodes+1, after.FreeInodes)
	require.Equal(t, before.FreeBlocks+1, after.FreeBlocks)
}

func TestRename_NoReplace(t *testing.T) {
	fs := tree(t)
	requireErrno(
		t,
		unix.EEXIST,
		fs.Rename("/a/f", "/g", filesystem.RenameNoReplace),
	)
	require.NoError(t, fs.Rename("/a/f", "/a/new", filesystem.RenameNoReplace))
}

func TestRename_Directory(t *testing.T) {
	fs := tree(t)
	b, err := fs.Lookup("/b")
	require.NoError(t, err)

	require.NoError(t, fs.Rename("/a", "/b/a", 0))
	require.Equal(t, b.Ino, dotdot(t, fs, "/b/a"))
	require.Equal(t, uint16(3), links(t, fs, "/b"))
	require.Equal(t, uint16(3), links(t, fs, "/"))

	_, err = fs.Lookup("/b/a/f")
	require.NoError(t, err)

	// renaming within the same parent keeps the link counts
	require.NoError(t, fs.Rename("/b/a", "/b/c", 0))
	require.Equal(t, uint16(3), links(t, fs, "/b"))
}

func TestRename_ReplacesEmptyDirectory(t *testing.T) {
	fs := tree(t)
	require.NoError(t, fs.Rename("/b", "/a/f2", 0))
	_, err := fs.Mkdir("/", "empty", 0755)
	require.NoError(t, err)

	require.NoError(t, fs.Rename("/a/f2", "/empty", 0))
	require.Equal(t, uint16(4), links(t, fs, "/"))
	require.Equal(t, uint16(2), links(t, fs, "/a"))

	requireErrno(t, unix.ENOTEMPTY, fs.Rename("/empty", "/a", 0))
}

func TestRename_Errors(t *testing.T) {
	fs := tree(t)
	for _, testCase := range []struct {
		name     string
		old, new string
		flags    uint32
		wanted   unix.Errno
	}{
		{name: "missing-source", old: "/missing", new: "/x", wanted: unix.ENOENT},
		{name: "missing-parent", old: "/g", new: "/missing/x", wanted: unix.ENOENT},
		{name: "into-itself", old: "/a", new: "/a/x", wanted: unix.EINVAL},
		{name: "file-over-dir", old: "/g", new: "/b", wanted: unix.EISDIR},
		{name: "dir-over-file", old: "/b", new: "/g", wanted: unix.ENOTDIR},
		{
			name:   "both-flags",
			old:    "/g",
			new:    "/a/f",
			flags:  filesystem.RenameNoReplace | filesystem.RenameExchange,
			wanted: unix.EINVAL,
		},
		{
			name:   "unknown-flag",
			old:    "/g",
			new:    "/a/f",
			flags:  1 << 5,
			wanted: unix.EINVAL,
		},
		{
			name:   "exchange-missing",
			old:    "/g",
			new:    "/x",
			flags:  filesystem.RenameExchange,
			wanted: unix.ENOENT,
		},
		{
			name:   "exchange-into-itself",
			old:    "/a",
			new:    "/a/f",
			flags:  filesystem.RenameExchange,
			wanted: unix.EINVAL,
		},
		{name: "root", old: "/", new: "/x", wanted: unix.EINVAL},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			requireErrno(
				t,
				testCase.wanted,
				fs.Rename(testCase.old, testCase.new, testCase.flags),
			)
		})
	}
}

func TestRename_SamePathIsNoop(t *testing.T) {
	fs := tree(t)
	require.NoError(t, fs.Rename("/g", "/g", 0))
	_, err := fs.Lookup("/g")
	require.NoError(t, err)
}

func TestRename_Exchange(t *testing.T) {
	fs := tree(t)
	a, err := fs.Lookup("/a")
	require.NoError(t, err)
	g, err := fs.Lookup("/g")
	require.NoError(t, err)

	// swap a directory in `/` with a file in `/b`
	require.NoError(t, fs.Rename("/g", "/b/g", 0))
	require.NoError(t, fs.Rename("/a", "/b/g", filesystem.RenameExchange))

	moved, err := fs.Lookup("/b/g")
	require.NoError(t, err)
	require.Equal(t, a.Ino, moved.Ino)
	moved, err = fs.Lookup("/a")
	require.NoError(t, err)
	require.Equal(t, g.Ino, moved.Ino)

	b, err := fs.Lookup("/b")
	require.NoError(t, err)
	require.Equal(t, b.Ino, dotdot(t, fs, "/b/g"))
	require.Equal(t, uint16(3), b.LinksCount)
	require.Equal(t, uint16(3), links(t, fs, "/"))

	entries, err := fs.Readdir("/")
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.Name == "a" {
			require.Equal(t, FileTypeRegular, entry.FileType)
		}
	}
}

func TestSplit(t *testing.T) {
	for _, testCase := range []struct {
		path      string
		wanted    []string
		wantedErr error
	}{
		{path: "/", wanted: nil},
		{path: "/a", wanted: []string{"a"}},
		{path: "//a//b/", wanted: []string{"a", "b"}},
		{path: "a/b", wantedErr: filesystem.NotAbsolutePathErr},
		{path: "", wantedErr: filesystem.NotAbsolutePathErr},
	} {
		t.Run(testCase.path, func(t *testing.T) {
			found, err := filesystem.Split(testCase.path)
			require.ErrorIs(t, err, testCase.wantedErr)
			require.Equal(t, testCase.wanted, found)
		})
	}
}

func TestSplitParent(t *testing.T) {
	for _, testCase := range []struct {
		path         string
		parent, name string
		wantedErr    error
	}{
		{path: "/a", parent: "/", name: "a"},
		{path: "/a/b/c", parent: "/a/b", name: "c"},
		{path: "/a/b/", parent: "/a", name: "b"},
		{path: "/", wantedErr: filesystem.InvalidNameErr},
		{path: "rel", wantedErr: filesystem.NotAbsolutePathErr},
	} {
		t.Run(testCase.path, func(t *testing.T) {
			parent, name, err := filesystem.SplitParent(testCase.path)
			require.ErrorIs(t, err, testCase.wantedErr)
			require.Equal(t, testCase.parent, parent)
			require.Equal(t, testCase.name, name)
		})
	}
}

func TestJoin(t *testing.T) {
	require.Equal(t, "/a", filesystem.Join("/", "a"))
	require.Equal(t, "/a/b", filesystem.Join("/a", "b"))
	require.Equal(t, "/a/b", filesystem.Join("/a/", "b"))
}
