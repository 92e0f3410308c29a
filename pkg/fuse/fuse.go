// Package fuse serves a `filesystem.FileSystem` to the kernel through
// go-fuse's node API.
package fuse

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/filesystem"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const attrTimeout = time.Second

// Node is a directory or file in the mounted tree. Nodes carry no state of
// their own beyond the go-fuse inode; every operation resolves the node's
// path against the filesystem.
type Node struct {
	fs.Inode
	fsys *filesystem.FileSystem
}

var (
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeStatfser  = (*Node)(nil)
)

// Root returns the node for the filesystem's root directory.
func Root(fsys *filesystem.FileSystem) *Node { return &Node{fsys: fsys} }

// Mount mounts `fsys` at `dir`. The caller waits on the returned server and
// unmounts it.
func Mount(
	dir string,
	fsys *filesystem.FileSystem,
	debug bool,
) (*fuse.Server, error) {
	timeout := attrTimeout
	server, err := fs.Mount(dir, Root(fsys), &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName: "ext2fs",
			Name:   "ext2fs",
			Debug:  debug,
		},
		AttrTimeout:  &timeout,
		EntryTimeout: &timeout,
	})
	if err != nil {
		return nil, err
	}
	logrus.WithField("dir", dir).Info("mounted fuse filesystem")
	return server, nil
}

func (n *Node) path() string { return "/" + n.Path(nil) }

func (n *Node) childPath(name string) string {
	return filesystem.Join(n.path(), name)
}

func (n *Node) newChild(ctx context.Context, inode *Inode) *fs.Inode {
	return n.NewInode(
		ctx,
		&Node{fsys: n.fsys},
		fs.StableAttr{
			Mode: uint32(inode.Mode.Format()),
			Ino:  uint64(inode.Ino),
		},
	)
}

func errno(err error) syscall.Errno {
	if err == nil {
		return fs.OK
	}
	e := filesystem.Errno(err)
	if e == syscall.EIO {
		logrus.WithError(err).Error("fuse operation failed")
	}
	return e
}

func (n *Node) Lookup(
	ctx context.Context,
	name string,
	out *fuse.EntryOut,
) (*fs.Inode, syscall.Errno) {
	attr, err := n.fsys.Getattr(n.childPath(name))
	if err != nil {
		return nil, errno(err)
	}
	fillAttr(&out.Attr, &attr)
	return n.NewInode(
		ctx,
		&Node{fsys: n.fsys},
		fs.StableAttr{Mode: uint32(attr.Mode.Format()), Ino: uint64(attr.Ino)},
	), fs.OK
}

func (n *Node) Getattr(
	ctx context.Context,
	f fs.FileHandle,
	out *fuse.AttrOut,
) syscall.Errno {
	attr, err := n.fsys.Getattr(n.path())
	if err != nil {
		return errno(err)
	}
	fillAttr(&out.Attr, &attr)
	return fs.OK
}

func (n *Node) Setattr(
	ctx context.Context,
	f fs.FileHandle,
	in *fuse.SetAttrIn,
	out *fuse.AttrOut,
) syscall.Errno {
	path := n.path()
	if size, ok := in.GetSize(); ok {
		if err := n.fsys.Truncate(path, Byte(size)); err != nil {
			return errno(err)
		}
	}
	if mode, ok := in.GetMode(); ok {
		if err := n.fsys.Chmod(path, Mode(mode)); err != nil {
			return errno(err)
		}
	}

	current, err := n.fsys.Getattr(path)
	if err != nil {
		return errno(err)
	}
	uid, uidOK := in.GetUID()
	gid, gidOK := in.GetGID()
	if uidOK || gidOK {
		if !uidOK {
			uid = uint32(current.UID)
		}
		if !gidOK {
			gid = uint32(current.GID)
		}
		if err := n.fsys.Chown(path, uint16(uid), uint16(gid)); err != nil {
			return errno(err)
		}
	}
	atime, atimeOK := in.GetATime()
	mtime, mtimeOK := in.GetMTime()
	if atimeOK || mtimeOK {
		if !atimeOK {
			atime = current.ATime
		}
		if !mtimeOK {
			mtime = current.MTime
		}
		if err := n.fsys.Utimens(path, atime, mtime); err != nil {
			return errno(err)
		}
	}

	attr, err := n.fsys.Getattr(path)
	if err != nil {
		return errno(err)
	}
	fillAttr(&out.Attr, &attr)
	return fs.OK
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.fsys.Readdir(n.path())
	if err != nil {
		return nil, errno(err)
	}
	return fs.NewListDirStream(dirEntries(entries)), fs.OK
}

func (n *Node) Open(
	ctx context.Context,
	flags uint32,
) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_TRUNC != 0 {
		if err := n.fsys.Truncate(n.path(), 0); err != nil {
			return nil, 0, errno(err)
		}
	}
	return nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (n *Node) Read(
	ctx context.Context,
	f fs.FileHandle,
	dest []byte,
	off int64,
) (fuse.ReadResult, syscall.Errno) {
	count, err := n.fsys.Read(n.path(), dest, Byte(off))
	if err != nil {
		return nil, errno(err)
	}
	return fuse.ReadResultData(dest[:count]), fs.OK
}

func (n *Node) Write(
	ctx context.Context,
	f fs.FileHandle,
	data []byte,
	off int64,
) (uint32, syscall.Errno) {
	count, err := n.fsys.Write(n.path(), data, Byte(off))
	if err != nil {
		return 0, errno(err)
	}
	return uint32(count), fs.OK
}

func (n *Node) Create(
	ctx context.Context,
	name string,
	flags uint32,
	mode uint32,
	out *fuse.EntryOut,
) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	inode, err := n.fsys.Create(n.path(), name, Mode(mode))
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	attr, err := n.fsys.Getattr(n.childPath(name))
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	fillAttr(&out.Attr, &attr)
	return n.newChild(ctx, &inode), nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (n *Node) Mkdir(
	ctx context.Context,
	name string,
	mode uint32,
	out *fuse.EntryOut,
) (*fs.Inode, syscall.Errno) {
	inode, err := n.fsys.Mkdir(n.path(), name, Mode(mode))
	if err != nil {
		return nil, errno(err)
	}
	attr, err := n.fsys.Getattr(n.childPath(name))
	if err != nil {
		return nil, errno(err)
	}
	fillAttr(&out.Attr, &attr)
	return n.newChild(ctx, &inode), fs.OK
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errno(n.fsys.Unlink(n.childPath(name)))
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errno(n.fsys.Rmdir(n.childPath(name)))
}

func (n *Node) Rename(
	ctx context.Context,
	name string,
	newParent fs.InodeEmbedder,
	newName string,
	flags uint32,
) syscall.Errno {
	newPath := filesystem.Join(
		"/"+newParent.EmbeddedInode().Path(nil),
		newName,
	)
	return errno(n.fsys.Rename(n.childPath(name), newPath, flags))
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	stats, err := n.fsys.Statfs()
	if err != nil {
		return errno(err)
	}
	fillStatfs(out, &stats)
	return fs.OK
}

func fillAttr(out *fuse.Attr, attr *filesystem.Attr) {
	out.Ino = uint64(attr.Ino)
	out.Mode = uint32(attr.Mode)
	out.Size = uint64(attr.Size)
	out.Blocks = uint64(attr.Sectors)
	out.Blksize = uint32(attr.BlockSize)
	out.Nlink = uint32(attr.Links)
	out.Uid = uint32(attr.UID)
	out.Gid = uint32(attr.GID)
	out.SetTimes(&attr.ATime, &attr.MTime, &attr.CTime)
}

func fillStatfs(out *fuse.StatfsOut, stats *filesystem.Statfs) {
	out.Bsize = uint32(stats.BlockSize)
	out.Frsize = uint32(stats.BlockSize)
	out.Blocks = uint64(stats.Blocks)
	out.Bfree = uint64(stats.FreeBlocks)
	out.Bavail = uint64(stats.FreeBlocks)
	out.Files = uint64(stats.Inodes)
	out.Ffree = uint64(stats.FreeInodes)
	out.NameLen = uint32(stats.NameMax)
}

func dirEntries(entries []DirEntry) []fuse.DirEntry {
	out := make([]fuse.DirEntry, len(entries))
	for i := range entries {
		out[i] = fuse.DirEntry{
			Name: entries[i].Name,
			Ino:  uint64(entries[i].Ino),
			Mode: uint32(entries[i].FileType.Mode()),
		}
	}
	return out
}
