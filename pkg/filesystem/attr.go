package filesystem

import (
	"fmt"
	"time"

	. "github.com/weberc2/ext2fs/pkg/types"
	"golang.org/x/sys/unix"
)

// Attr is the subset of an inode that `stat` reports.
type Attr struct {
	Ino       Ino       `json:"ino"`
	Mode      Mode      `json:"mode"`
	FileType  FileType  `json:"fileType"`
	Size      Byte      `json:"size"`
	Links     uint16    `json:"links"`
	UID       uint16    `json:"uid"`
	GID       uint16    `json:"gid"`
	Sectors   uint32    `json:"sectors"`
	BlockSize Byte      `json:"blockSize"`
	ATime     time.Time `json:"atime"`
	MTime     time.Time `json:"mtime"`
	CTime     time.Time `json:"ctime"`
}

func (fs *FileSystem) attr(inode *Inode) Attr {
	return Attr{
		Ino:       inode.Ino,
		Mode:      inode.Mode,
		FileType:  inode.FileType(),
		Size:      inode.Size,
		Links:     inode.LinksCount,
		UID:       inode.UID,
		GID:       inode.GID,
		Sectors:   inode.Sectors,
		BlockSize: fs.engine.BlockSize(),
		ATime:     time.Unix(int64(inode.ATime), 0),
		MTime:     time.Unix(int64(inode.MTime), 0),
		CTime:     time.Unix(int64(inode.CTime), 0),
	}
}

func (fs *FileSystem) Getattr(path string) (Attr, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	inode, err := fs.resolve(path)
	if err != nil {
		return Attr{}, fmt.Errorf("getting attributes of `%s`: %w", path, err)
	}
	return fs.attr(&inode), nil
}

// Chmod replaces the permission bits of the inode at `path`; the file
// format is unchanged.
func (fs *FileSystem) Chmod(path string, mode Mode) error {
	return fs.setattr(path, "changing mode", func(inode *Inode) {
		inode.Mode = inode.Mode.Format() | mode.Perm()
	})
}

func (fs *FileSystem) Chown(path string, uid, gid uint16) error {
	return fs.setattr(path, "changing owner", func(inode *Inode) {
		inode.UID = uid
		inode.GID = gid
	})
}

// Utimens sets the access and modification times of the inode at `path`.
func (fs *FileSystem) Utimens(path string, atime, mtime time.Time) error {
	return fs.setattr(path, "changing times", func(inode *Inode) {
		inode.ATime = uint32(atime.Unix())
		inode.MTime = uint32(mtime.Unix())
	})
}

func (fs *FileSystem) setattr(
	path string,
	action string,
	f func(inode *Inode),
) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	inode, err := fs.resolve(path)
	if err != nil {
		return fmt.Errorf("%s of `%s`: %w", action, path, err)
	}
	f(&inode)
	inode.CTime = fs.now()
	if err := fs.engine.Inodes.Put(&inode); err != nil {
		return fmt.Errorf("%s of `%s`: %w", action, path, err)
	}
	return nil
}

// Statfs summarizes the filesystem's capacity from the superblock.
type Statfs struct {
	BlockSize      Byte   `json:"blockSize"`
	Blocks         uint32 `json:"blocks"`
	FreeBlocks     uint32 `json:"freeBlocks"`
	Inodes         uint32 `json:"inodes"`
	FreeInodes     uint32 `json:"freeInodes"`
	Groups         uint32 `json:"groups"`
	FirstDataBlock uint32 `json:"firstDataBlock"`
	NameMax        int    `json:"nameMax"`
	VolumeName     string `json:"volumeName"`
	UUID           string `json:"uuid"`
	MountCount     uint16 `json:"mountCount"`
}

func (fs *FileSystem) Statfs() (Statfs, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	sb, err := fs.engine.Superblock.Read()
	if err != nil {
		return Statfs{}, fmt.Errorf("getting filesystem statistics: %w", err)
	}
	return Statfs{
		BlockSize:      sb.BlockSize(),
		Blocks:         sb.BlocksCount,
		FreeBlocks:     sb.FreeBlocksCount,
		Inodes:         sb.InodesCount,
		FreeInodes:     sb.FreeInodesCount,
		Groups:         sb.GroupCount(),
		FirstDataBlock: sb.FirstDataBlock,
		NameMax:        MaxNameLen,
		VolumeName:     sb.VolumeName,
		UUID:           sb.UUID.String(),
		MountCount:     sb.MountCount,
	}, nil
}

// Groups returns a snapshot of the block group descriptors.
func (fs *FileSystem) Groups() []GroupDesc {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	groups := fs.engine.Groups
	descs := make([]GroupDesc, groups.Len())
	for g := range descs {
		descs[g] = groups.Desc(uint32(g))
	}
	return descs
}

// Inode loads an inode record by number, bypassing path resolution.
func (fs *FileSystem) Inode(ino Ino) (Inode, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if ino == InoNil || uint32(ino) > fs.engine.Groups.InodesCount() {
		return Inode{}, fmt.Errorf("loading inode `%d`: %w", ino, unix.EINVAL)
	}
	var inode Inode
	if err := fs.engine.Inodes.Get(ino, &inode); err != nil {
		return Inode{}, fmt.Errorf("loading inode `%d`: %w", ino, err)
	}
	return inode, nil
}
