// Package resize grows and shrinks an inode's block allocation to match a
// target byte size.
package resize

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/alloc"
	"github.com/weberc2/ext2fs/pkg/inode/data/block/physical"
	"github.com/weberc2/ext2fs/pkg/io"
	"github.com/weberc2/ext2fs/pkg/math"
	. "github.com/weberc2/ext2fs/pkg/types"
)

type Resizer struct {
	volume     io.BlockReadWriter
	blockSize  Byte
	allocator  *alloc.BlockAllocator
	physical   *physical.ReadWriter
	inodeStore InodeStore

	// Now stamps MTime and CTime; tests pin it.
	Now func() time.Time
}

func NewResizer(
	volume io.BlockReadWriter,
	allocator *alloc.BlockAllocator,
	physical *physical.ReadWriter,
	inodeStore InodeStore,
) *Resizer {
	return &Resizer{
		volume:     volume,
		blockSize:  volume.BlockSize(),
		allocator:  allocator,
		physical:   physical,
		inodeStore: inodeStore,
		Now:        time.Now,
	}
}

// Resize loads inode `ino` and resizes it to `size` bytes.
func (r *Resizer) Resize(ino Ino, size Byte) error {
	var inode Inode
	if err := r.inodeStore.Get(ino, &inode); err != nil {
		return fmt.Errorf("resizing inode `%d` to `%d` bytes: %w", ino, size, err)
	}
	return r.ResizeInode(&inode, size)
}

// ResizeInode allocates or releases blocks so that exactly
// `ceil(size/blockSize)` logical blocks are backed, then records the new
// size and block count and stores the inode. Bytes past the new size read
// as zeros if the file later grows again.
func (r *Resizer) ResizeInode(inode *Inode, size Byte) error {
	if size < 0 {
		panic(fmt.Sprintf("resizing inode `%d`: negative size `%d`", inode.Ino, size))
	}

	entries := uint64(r.blockSize / BlockPointerSize)
	sectorsPerBlock := uint32(r.blockSize / SectorSize)
	used := uint64(inode.Sectors / sectorsPerBlock)
	after := uint64(math.DivRoundUp(size, r.blockSize))
	if after > physical.MaxBlocks(entries) {
		return fmt.Errorf(
			"resizing inode `%d` to `%d` bytes: `%d` blocks: %w",
			inode.Ino,
			size,
			after,
			physical.OutOfRangeErr,
		)
	}

	if size < inode.Size && size%r.blockSize != 0 {
		if err := r.zeroTail(inode, size); err != nil {
			return fmt.Errorf(
				"resizing inode `%d` to `%d` bytes: %w",
				inode.Ino,
				size,
				err,
			)
		}
	}

	switch {
	case after < used:
		if err := r.shrink(inode, entries, used, after); err != nil {
			return fmt.Errorf(
				"resizing inode `%d` to `%d` bytes: %w",
				inode.Ino,
				size,
				err,
			)
		}
	case after > used:
		for b := used; b < after; b++ {
			if _, err := r.physical.ReadAlloc(inode, Block(b)); err != nil {
				return fmt.Errorf(
					"resizing inode `%d` to `%d` bytes: allocating block "+
						"`%d`: %w",
					inode.Ino,
					size,
					b,
					err,
				)
			}
		}
	}

	now := uint32(r.Now().Unix())
	inode.Size = size
	inode.Sectors = uint32(after) * sectorsPerBlock
	inode.MTime = now
	inode.CTime = now
	if err := r.inodeStore.Put(inode); err != nil {
		return fmt.Errorf(
			"resizing inode `%d` to `%d` bytes: storing inode: %w",
			inode.Ino,
			size,
			err,
		)
	}

	logrus.WithFields(logrus.Fields{
		"ino":    inode.Ino,
		"size":   size,
		"before": used,
		"after":  after,
	}).Debug("resized inode")
	return nil
}

// zeroTail clears the part of the block containing byte `size` which lies
// beyond `size` and within the old size.
func (r *Resizer) zeroTail(inode *Inode, size Byte) error {
	var (
		logical = Block(size / r.blockSize)
		start   = size % r.blockSize
		end     = math.Min(r.blockSize, inode.Size-Byte(logical)*r.blockSize)
	)
	b, err := r.physical.Read(inode, logical)
	if err != nil {
		return fmt.Errorf("zeroing tail of block `%d`: %w", logical, err)
	}
	if err := r.volume.WriteAt(b, start, make([]byte, end-start)); err != nil {
		return fmt.Errorf("zeroing tail of block `%d`: %w", logical, err)
	}
	return nil
}

func (r *Resizer) shrink(
	inode *Inode,
	entries uint64,
	used uint64,
	after uint64,
) error {
	for b := after; b < math.Min(used, DirectBlocksCount); b++ {
		if inode.Block[b] == BlockNil {
			continue
		}
		if err := r.allocator.Free(inode.Block[b]); err != nil {
			return fmt.Errorf("freeing direct block `%d`: %w", b, err)
		}
		inode.Block[b] = BlockNil
	}

	base := uint64(DirectBlocksCount)
	for _, subtree := range [...]struct{ lvl, slot int }{
		{1, SinglyIndirectIndex},
		{2, DoublyIndirectIndex},
		{3, TriplyIndirectIndex},
	} {
		lvl, slot := subtree.lvl, subtree.slot
		span := math.Pow(entries, lvl)
		start, end := math.Max(after, base), math.Min(used, base+span)
		if start < end && inode.Block[slot] != BlockNil {
			freed, err := r.physical.FreeRange(
				inode.Block[slot],
				lvl,
				Block(start-base),
				Block(end-base),
			)
			if err != nil {
				return fmt.Errorf(
					"freeing blocks [%d, %d) of level `%d` subtree: %w",
					start,
					end,
					lvl,
					err,
				)
			}
			if freed {
				inode.Block[slot] = BlockNil
			}
		}
		base += span
	}
	return nil
}
