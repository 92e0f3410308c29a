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
	OutOfBlocksErr ConstError = "out of free blocks"
)

type BlockAllocator struct {
	volume     io.BlockReadWriter
	groups     *group.Directory
	superblock *superblock.Store
}

func NewBlockAllocator(
	volume io.BlockReadWriter,
	groups *group.Directory,
	superblock *superblock.Store,
) *BlockAllocator {
	return &BlockAllocator{
		volume:     volume,
		groups:     groups,
		superblock: superblock,
	}
}

func (ba *BlockAllocator) bitmap(g uint32) Bitmap {
	return NewBitmap(ba.volume, ba.groups.Desc(g).BlockBitmap)
}

// State reports whether block `b` is allocated.
func (ba *BlockAllocator) State(b Block) (bool, error) {
	g, offset := ba.groups.LocateBlock(b)
	allocated, err := ba.bitmap(g).Test(offset)
	if err != nil {
		return false, fmt.Errorf("checking state of block `%d`: %w", b, err)
	}
	return allocated, nil
}

// Tag marks block `b` allocated or free. The prior value isn't checked;
// tagging a block into the state it's already in is the caller's mistake
// and is silently absorbed (free counts only move when the bit does).
func (ba *BlockAllocator) Tag(b Block, allocated bool) error {
	g, offset := ba.groups.LocateBlock(b)
	prior, err := ba.bitmap(g).Tag(offset, allocated)
	if err != nil {
		return fmt.Errorf("tagging block `%d` as `%t`: %w", b, allocated, err)
	}
	if prior != allocated {
		if err := ba.count(g, allocated); err != nil {
			return fmt.Errorf(
				"tagging block `%d` as `%t`: %w",
				b,
				allocated,
				err,
			)
		}
	}
	logrus.WithFields(logrus.Fields{
		"block":     b,
		"allocated": allocated,
	}).Debug("tagged block")
	return nil
}

// Free is shorthand for `Tag(b, false)`.
func (ba *BlockAllocator) Free(b Block) error { return ba.Tag(b, false) }

// AllocateIdle claims the first free block scanning groups in ascending
// order, zero-fills it, and returns its id. Running out of blocks is fatal.
func (ba *BlockAllocator) AllocateIdle() (Block, error) {
	for g := uint32(0); g < ba.groups.Len(); g++ {
		offset, ok, err := ba.bitmap(g).Claim(ba.groups.BlocksInGroup(g))
		if err != nil {
			return BlockNil, fmt.Errorf(
				"allocating block in group `%d`: %w",
				g,
				err,
			)
		}
		if !ok {
			continue
		}

		b := ba.groups.GroupBlock(g, offset)
		if err := ba.volume.ZeroBlock(b); err != nil {
			return BlockNil, fmt.Errorf("allocating block `%d`: %w", b, err)
		}
		if err := ba.count(g, true); err != nil {
			return BlockNil, fmt.Errorf("allocating block `%d`: %w", b, err)
		}
		logrus.WithFields(logrus.Fields{
			"block": b,
			"group": g,
		}).Debug("allocated block")
		return b, nil
	}

	panic(fmt.Errorf(
		"allocating block (`%d` groups scanned): %w",
		ba.groups.Len(),
		OutOfBlocksErr,
	))
}

func (ba *BlockAllocator) count(g uint32, allocated bool) error {
	if err := ba.groups.Update(g, func(desc *GroupDesc) {
		if allocated {
			desc.FreeBlocksCount--
		} else {
			desc.FreeBlocksCount++
		}
	}); err != nil {
		return fmt.Errorf("updating free block count: %w", err)
	}
	if err := ba.superblock.Update(func(sb *Superblock) {
		if allocated {
			sb.FreeBlocksCount--
		} else {
			sb.FreeBlocksCount++
		}
	}); err != nil {
		return fmt.Errorf("updating free block count: %w", err)
	}
	return nil
}
