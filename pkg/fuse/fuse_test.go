package fuse

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/weberc2/ext2fs/pkg/filesystem"
	. "github.com/weberc2/ext2fs/pkg/types"
)

func TestFillAttr(t *testing.T) {
	atime := time.Unix(100, 0)
	mtime := time.Unix(200, 0)
	ctime := time.Unix(300, 0)

	var out fuse.Attr
	fillAttr(&out, &filesystem.Attr{
		Ino:       12,
		Mode:      ModeRegular | 0644,
		FileType:  FileTypeRegular,
		Size:      4097,
		Links:     1,
		UID:       1000,
		GID:       100,
		Sectors:   10,
		BlockSize: 1024,
		ATime:     atime,
		MTime:     mtime,
		CTime:     ctime,
	})

	wanted := fuse.Attr{
		Ino:     12,
		Mode:    0100644,
		Size:    4097,
		Blocks:  10,
		Blksize: 1024,
		Nlink:   1,
		Atime:   100,
		Mtime:   200,
		Ctime:   300,
		Owner:   fuse.Owner{Uid: 1000, Gid: 100},
	}
	if diff := cmp.Diff(wanted, out); diff != "" {
		t.Fatalf("fillAttr(): unexpected attributes (-wanted +found):\n%s", diff)
	}
}

func TestFillStatfs(t *testing.T) {
	var out fuse.StatfsOut
	fillStatfs(&out, &filesystem.Statfs{
		BlockSize:  1024,
		Blocks:     1440,
		FreeBlocks: 1400,
		Inodes:     184,
		FreeInodes: 183,
		NameMax:    MaxNameLen,
	})

	wanted := fuse.StatfsOut{
		Blocks:  1440,
		Bfree:   1400,
		Bavail:  1400,
		Files:   184,
		Ffree:   183,
		Bsize:   1024,
		Frsize:  1024,
		NameLen: 255,
	}
	if diff := cmp.Diff(wanted, out); diff != "" {
		t.Fatalf("fillStatfs(): unexpected stats (-wanted +found):\n%s", diff)
	}
}

func TestDirEntries(t *testing.T) {
	for _, testCase := range []struct {
		name    string
		entries []DirEntry
		wanted  []fuse.DirEntry
	}{
		{
			name:    "empty",
			entries: nil,
			wanted:  []fuse.DirEntry{},
		},
		{
			name: "root",
			entries: []DirEntry{
				{Ino: 1, FileType: FileTypeDir, Name: "."},
				{Ino: 1, FileType: FileTypeDir, Name: ".."},
				{Ino: 2, FileType: FileTypeRegular, Name: "test"},
			},
			wanted: []fuse.DirEntry{
				{Ino: 1, Mode: 040000, Name: "."},
				{Ino: 1, Mode: 040000, Name: ".."},
				{Ino: 2, Mode: 0100000, Name: "test"},
			},
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			found := dirEntries(testCase.entries)
			if diff := cmp.Diff(testCase.wanted, found); diff != "" {
				t.Fatalf(
					"dirEntries(): unexpected entries (-wanted +found):\n%s",
					diff,
				)
			}
		})
	}
}
