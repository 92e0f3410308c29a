package alloc

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/group"
	"github.com/weberc2/ext2fs/pkg/io"
	"github.com/weberc2/ext2fs/pkg/superblock"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const (
	OutOfInodesErr ConstError = "out of free inodes"
)

type InoAllocator struct {
	volume     io.BlockReadWriter
	groups     *group.Directory
	superblock *superblock.Store
}

func NewInoAllocator(
	volume io.BlockReadWriter,
	groups *group.Directory,
	superblock *superblock.Store,
) *InoAllocator {
	return &InoAllocator{
		volume:     volume,
		groups:     groups,
		superblock: superblock,
	}
}

func (ia *InoAllocator) bitmap(g uint32) Bitmap {
	return NewBitmap(ia.volume, ia.groups.Desc(g).InodeBitmap)
}

func (ia *InoAllocator) State(ino Ino) (bool, error) {
	g, offset := ia.groups.LocateIno(ino)
	allocated, err := ia.bitmap(g).Test(offset)
	if err != nil {
		return false, fmt.Errorf("checking state of inode `%d`: %w", ino, err)
	}
	return allocated, nil
}

// Reserve marks `ino` allocated. It's used to claim fixed inodes such as
// the root directory.
func (ia *InoAllocator) Reserve(ino Ino) error {
	g, offset := ia.groups.LocateIno(ino)
	prior, err := ia.bitmap(g).Tag(offset, true)
	if err != nil {
		return fmt.Errorf("reserving inode `%d`: %w", ino, err)
	}
	if !prior {
		if err := ia.count(g, true); err != nil {
			return fmt.Errorf("reserving inode `%d`: %w", ino, err)
		}
	}
	return nil
}

// AllocateIdle claims the first free inode id (1-based), scanning groups
// in ascending order. Running out of inodes is fatal.
func (ia *InoAllocator) AllocateIdle() (Ino, error) {
	for g := uint32(0); g < ia.groups.Len(); g++ {
		offset, ok, err := ia.bitmap(g).Claim(ia.groups.InodesPerGroup())
		if err != nil {
			return InoNil, fmt.Errorf(
				"allocating inode in group `%d`: %w",
				g,
				err,
			)
		}
		if !ok {
			continue
		}

		ino := ia.groups.GroupIno(g, offset)
		if err := ia.count(g, true); err != nil {
			return InoNil, fmt.Errorf("allocating inode `%d`: %w", ino, err)
		}
		logrus.WithField("ino", ino).Debug("allocated inode")
		return ino, nil
	}

	panic(fmt.Errorf(
		"allocating inode (`%d` groups scanned): %w",
		ia.groups.Len(),
		OutOfInodesErr,
	))
}

// Delete clears `ino`'s bitmap bit. The inode must be allocated, and the
// caller must already have released its data.
func (ia *InoAllocator) Delete(ino Ino) error {
	g, offset := ia.groups.LocateIno(ino)
	prior, err := ia.bitmap(g).Tag(offset, false)
	if err != nil {
		return fmt.Errorf("deleting inode `%d`: %w", ino, err)
	}
	if !prior {
		panic(fmt.Sprintf("deleting inode `%d`: inode isn't allocated", ino))
	}
	if err := ia.count(g, false); err != nil {
		return fmt.Errorf("deleting inode `%d`: %w", ino, err)
	}
	logrus.WithField("ino", ino).Debug("deleted inode")
	return nil
}

// CountDir adjusts the used-directories count of `ino`'s group.
func (ia *InoAllocator) CountDir(ino Ino, delta int) error {
	g, _ := ia.groups.LocateIno(ino)
	if err := ia.groups.Update(g, func(desc *GroupDesc) {
		desc.UsedDirsCount = uint16(int(desc.UsedDirsCount) + delta)
	}); err != nil {
		return fmt.Errorf("counting directory inode `%d`: %w", ino, err)
	}
	return nil
}

func (ia *InoAllocator) count(g uint32, allocated bool) error {
	if err := ia.groups.Update(g, func(desc *GroupDesc) {
		if allocated {
			desc.FreeInodesCount--
		} else {
			desc.FreeInodesCount++
		}
	}); err != nil {
		return fmt.Errorf("updating free inode count: %w", err)
	}
	if err := ia.superblock.Update(func(sb *Superblock) {
		if allocated {
			sb.FreeInodesCount--
		} else {
			sb.FreeInodesCount++
		}
	}); err != nil {
		return fmt.Errorf("updating free inode count: %w", err)
	}
	return nil
}
